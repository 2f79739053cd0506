package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ConvertBytesToHumanReadable formats a byte count using binary units (KiB, MiB, ...).
func ConvertBytesToHumanReadable(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed formats a transfer rate in bytes per second.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// FormatDuration renders d as a compact "1h2m3s" style string, rounded to seconds.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
