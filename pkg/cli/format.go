package cli

import "fmt"

// FormatDuration formats milliseconds to a human readable string, used by
// the client CLI to report search latency.
func FormatDuration(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs = secs - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatBytes formats a byte count to a human readable string, used to log
// snapshot sizes in pkg/backend.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatBytesInt formats bytes (int) to human readable string
func FormatBytesInt(bytes int) string {
	return FormatBytes(int64(bytes))
}
