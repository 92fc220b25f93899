package playback

import "fmt"

// FormatMs formats milliseconds as m:ss, or h:mm:ss from one hour on.
// Negative values format as 0:00.
func FormatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
