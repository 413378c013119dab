package transcribe

import (
	"fmt"
	"strings"
	"time"
)

// FormatSRT serializes the transcript as a SubRip subtitle file. An empty
// transcript yields an empty payload.
func FormatSRT(t Transcript) []byte {
	if len(t) == 0 {
		return nil
	}
	var b strings.Builder
	for i, segment := range t {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			srtTimestamp(segment.Start),
			srtTimestamp(segment.End),
			segment.Text,
		)
	}
	return []byte(b.String())
}

func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	millis := d.Milliseconds()
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	seconds := millis / 1000
	millis -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
