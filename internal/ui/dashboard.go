package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"netsentry/pkg/types"
)

const newDeviceWindow = 24 * time.Hour

// Core is the read-only surface the dashboard polls.
type Core interface {
	Snapshot() types.Snapshot
	Notable() []types.Connection
}

// Dashboard renders monitor snapshots in the terminal. It is purely a
// consumer: it polls published snapshots once per second and never touches
// core state.
type Dashboard struct {
	app  *tview.Application
	core Core

	statsView   *tview.TextView
	historyView *tview.TextView
	connsView   *tview.TextView
	devicesView *tview.TextView
	alertsView  *tview.TextView

	pollInterval time.Duration
}

// NewDashboard builds the layout over the given core.
func NewDashboard(core Core) *Dashboard {
	d := &Dashboard{
		app:          tview.NewApplication(),
		core:         core,
		pollInterval: time.Second,
	}
	d.setupUI()
	return d
}

// Run blocks until the user quits (q or Ctrl-C).
func (d *Dashboard) Run() error {
	go d.pollLoop()
	return d.app.Run()
}

// Stop terminates the UI event loop.
func (d *Dashboard) Stop() {
	d.app.Stop()
}

func (d *Dashboard) setupUI() {
	d.statsView = tview.NewTextView().SetDynamicColors(true)
	d.statsView.SetBorder(true).SetTitle(" Network Stats ")

	d.historyView = tview.NewTextView().SetDynamicColors(true)
	d.historyView.SetBorder(true).SetTitle(" Speed History ")

	d.connsView = tview.NewTextView().SetDynamicColors(true)
	d.connsView.SetBorder(true).SetTitle(" Notable Connections ")

	d.devicesView = tview.NewTextView().SetDynamicColors(true)
	d.devicesView.SetBorder(true).SetTitle(" Devices ")

	d.alertsView = tview.NewTextView().SetDynamicColors(true)
	d.alertsView.SetBorder(true).SetTitle(" Alerts ")

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.statsView, 7, 0, false).
		AddItem(d.historyView, 0, 1, false).
		AddItem(d.alertsView, 0, 1, false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.connsView, 0, 1, false).
		AddItem(d.devicesView, 0, 1, false)

	root := tview.NewFlex().
		AddItem(left, 0, 1, false).
		AddItem(right, 0, 1, false)

	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' || event.Key() == tcell.KeyCtrlC {
			d.app.Stop()
			return nil
		}
		return event
	})

	d.app.SetRoot(root, true)
}

func (d *Dashboard) pollLoop() {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		snap := d.core.Snapshot()
		notable := d.core.Notable()
		d.app.QueueUpdateDraw(func() {
			d.renderStats(snap)
			d.renderHistory(snap)
			d.renderConnections(notable)
			d.renderDevices(snap)
			d.renderAlerts(snap)
		})
	}
}

func (d *Dashboard) renderStats(snap types.Snapshot) {
	latest := snap.Latest()
	d.statsView.SetText(fmt.Sprintf(
		"[green]▼ Download:[white] %s\n"+
			"[red]▲ Upload:[white]   %s\n"+
			"[yellow]Connections:[white] %d\n\n"+
			"[gray]as of %s",
		FormatSpeed(latest.DownloadBps),
		FormatSpeed(latest.UploadBps),
		latest.Connections,
		snap.TakenAt.Format("15:04:05"),
	))
}

func (d *Dashboard) renderHistory(snap types.Snapshot) {
	if len(snap.Samples) == 0 {
		d.historyView.SetText("[gray]No samples yet")
		return
	}

	var peak float64
	for _, s := range snap.Samples {
		if s.DownloadBps > peak {
			peak = s.DownloadBps
		}
	}

	var builder strings.Builder
	for _, s := range snap.Samples {
		width := 0
		if peak > 0 {
			width = int(s.DownloadBps / peak * 30)
		}
		builder.WriteString(fmt.Sprintf("%s [green]%s[white] %s\n",
			s.Timestamp.Format("15:04:05"),
			strings.Repeat("█", width),
			FormatSpeed(s.DownloadBps),
		))
	}
	d.historyView.SetText(builder.String())
}

func (d *Dashboard) renderConnections(conns []types.Connection) {
	if len(conns) == 0 {
		d.connsView.SetText("[gray]No notable connections")
		return
	}

	var builder strings.Builder
	builder.WriteString("[yellow]Process          Local -> Remote (Status)[white]\n")
	builder.WriteString(strings.Repeat("─", 55) + "\n")
	for i, conn := range conns {
		if i >= 20 {
			builder.WriteString(fmt.Sprintf("[gray]... and %d more\n", len(conns)-20))
			break
		}
		color := "[white]"
		if conn.Status == types.StatusEstablished {
			color = "[green]"
		}
		remote := conn.RemoteAddr
		if remote == "" {
			remote = "N/A"
		}
		builder.WriteString(fmt.Sprintf("%s%-16s %s -> %s (%s)[white]\n",
			color, conn.Process, conn.LocalAddr, remote, conn.Status))
	}
	d.connsView.SetText(builder.String())
}

func (d *Dashboard) renderDevices(snap types.Snapshot) {
	if len(snap.Devices) == 0 {
		d.devicesView.SetText("[gray]No devices discovered")
		return
	}

	now := time.Now()
	var builder strings.Builder
	builder.WriteString("[yellow]MAC                IP               Type        Name[white]\n")
	builder.WriteString(strings.Repeat("─", 60) + "\n")
	for _, dev := range snap.Devices {
		color := "[green]"
		if !dev.Active {
			color = "[gray]"
		}
		marker := ""
		if dev.NewInLast(newDeviceWindow, now) {
			marker = " [cyan]NEW[white]"
		}
		builder.WriteString(fmt.Sprintf("%s%-18s %-16s %-11s %s%s[white]\n",
			color, dev.MAC, dev.IP, dev.Type, dev.Name, marker))
	}
	d.devicesView.SetText(builder.String())
}

func (d *Dashboard) renderAlerts(snap types.Snapshot) {
	if len(snap.Alerts) == 0 {
		d.alertsView.SetText("[gray]No alerts")
		return
	}

	var builder strings.Builder
	// Newest first.
	for i := len(snap.Alerts) - 1; i >= 0; i-- {
		a := snap.Alerts[i]
		color := "[white]"
		switch a.Severity {
		case types.SeverityHigh:
			color = "[red]"
		case types.SeverityMedium:
			color = "[yellow]"
		}
		builder.WriteString(fmt.Sprintf("%s%s %-22s %s[white]\n",
			color, a.Timestamp.Format("15:04:05"), a.Kind, a.Details))
	}
	d.alertsView.SetText(builder.String())
}
