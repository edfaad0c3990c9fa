package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"netsentry/pkg/types"
)

// Exporter exposes the latest snapshot as prometheus metrics. It reads
// published snapshots only, so scrapes never contend with ticking.
type Exporter struct {
	mon *Monitor

	downloadDesc *prometheus.Desc
	uploadDesc   *prometheus.Desc
	connsDesc    *prometheus.Desc
	devicesDesc  *prometheus.Desc
	alertsDesc   *prometheus.Desc
}

// NewExporter returns a collector for the given monitor.
func NewExporter(mon *Monitor) *Exporter {
	return &Exporter{
		mon: mon,
		downloadDesc: prometheus.NewDesc(
			"netsentry_download_bytes_per_second",
			"Download rate from the latest speed sample.",
			nil, nil,
		),
		uploadDesc: prometheus.NewDesc(
			"netsentry_upload_bytes_per_second",
			"Upload rate from the latest speed sample.",
			nil, nil,
		),
		connsDesc: prometheus.NewDesc(
			"netsentry_connections",
			"Socket count from the latest speed sample.",
			nil, nil,
		),
		devicesDesc: prometheus.NewDesc(
			"netsentry_devices",
			"Known devices by activity state.",
			[]string{"state"}, nil,
		),
		alertsDesc: prometheus.NewDesc(
			"netsentry_alerts",
			"Retained alerts by kind.",
			[]string{"kind"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.downloadDesc
	ch <- e.uploadDesc
	ch <- e.connsDesc
	ch <- e.devicesDesc
	ch <- e.alertsDesc
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.mon.Snapshot()
	latest := snap.Latest()

	ch <- prometheus.MustNewConstMetric(e.downloadDesc, prometheus.GaugeValue, latest.DownloadBps)
	ch <- prometheus.MustNewConstMetric(e.uploadDesc, prometheus.GaugeValue, latest.UploadBps)
	ch <- prometheus.MustNewConstMetric(e.connsDesc, prometheus.GaugeValue, float64(latest.Connections))

	var active, inactive float64
	for _, d := range snap.Devices {
		if d.Active {
			active++
		} else {
			inactive++
		}
	}
	ch <- prometheus.MustNewConstMetric(e.devicesDesc, prometheus.GaugeValue, active, "active")
	ch <- prometheus.MustNewConstMetric(e.devicesDesc, prometheus.GaugeValue, inactive, "inactive")

	byKind := map[types.AlertKind]float64{
		types.AlertPortScan:       0,
		types.AlertTrafficAnomaly: 0,
		types.AlertSuspiciousConn: 0,
	}
	for _, a := range snap.Alerts {
		byKind[a.Kind]++
	}
	for kind, count := range byKind {
		ch <- prometheus.MustNewConstMetric(e.alertsDesc, prometheus.GaugeValue, count, string(kind))
	}
}
