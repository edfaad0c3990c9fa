package ui

import "fmt"

// FormatSpeed renders a bytes-per-second rate for display: base-1024
// units, two decimal places, and a plain "0 B/s" for zero.
func FormatSpeed(bps float64) string {
	if bps <= 0 {
		return "0 B/s"
	}

	const unit = 1024.0
	units := []string{"B/s", "KB/s", "MB/s", "GB/s"}
	value := bps
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.2f B/s", value)
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}
