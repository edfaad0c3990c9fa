package collector

import "netsentry/pkg/types"

// History is a fixed-capacity rolling store of recent speed samples.
// Appending to a full buffer evicts the oldest entry (strict FIFO). It is
// owned by the monitor and is not safe for unsynchronized concurrent use;
// consumers only ever see the copies returned by Snapshot.
type History struct {
	capacity int
	samples  []types.SpeedSample
}

// HistoryStats are derived over the current buffer contents. An empty
// buffer yields all zeros.
type HistoryStats struct {
	AvgDownload float64
	MinDownload float64
	MaxDownload float64
	AvgUpload   float64
	MinUpload   float64
	MaxUpload   float64
}

// NewHistory returns an empty buffer holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		capacity: capacity,
		samples:  make([]types.SpeedSample, 0, capacity),
	}
}

// Append inserts a sample, evicting the oldest entry when full.
func (h *History) Append(sample types.SpeedSample) {
	if len(h.samples) == h.capacity {
		copy(h.samples, h.samples[1:])
		h.samples[h.capacity-1] = sample
		return
	}
	h.samples = append(h.samples, sample)
}

// Len reports the number of stored samples.
func (h *History) Len() int {
	return len(h.samples)
}

// Snapshot returns a defensive copy, ordered oldest to newest.
func (h *History) Snapshot() []types.SpeedSample {
	out := make([]types.SpeedSample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Stats computes average/min/max over the current contents.
func (h *History) Stats() HistoryStats {
	var stats HistoryStats
	if len(h.samples) == 0 {
		return stats
	}

	stats.MinDownload = h.samples[0].DownloadBps
	stats.MaxDownload = h.samples[0].DownloadBps
	stats.MinUpload = h.samples[0].UploadBps
	stats.MaxUpload = h.samples[0].UploadBps

	var sumDown, sumUp float64
	for _, s := range h.samples {
		sumDown += s.DownloadBps
		sumUp += s.UploadBps
		if s.DownloadBps < stats.MinDownload {
			stats.MinDownload = s.DownloadBps
		}
		if s.DownloadBps > stats.MaxDownload {
			stats.MaxDownload = s.DownloadBps
		}
		if s.UploadBps < stats.MinUpload {
			stats.MinUpload = s.UploadBps
		}
		if s.UploadBps > stats.MaxUpload {
			stats.MaxUpload = s.UploadBps
		}
	}

	n := float64(len(h.samples))
	stats.AvgDownload = sumDown / n
	stats.AvgUpload = sumUp / n
	return stats
}
