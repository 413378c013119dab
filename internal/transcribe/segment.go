package transcribe

import (
	"sort"
	"strings"
	"time"
)

// Segment is one timed span of recognized speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcript is an ordered, non-overlapping sequence of segments. It may be
// empty for silent input.
type Transcript []Segment

// Normalize enforces the transcript contract on raw recognizer output:
// segments are sorted by start time, blank or negative spans are dropped,
// and an overlap is resolved by clamping the earlier segment's end to the
// later segment's start.
func Normalize(raw []Segment) Transcript {
	cleaned := make([]Segment, 0, len(raw))
	for _, segment := range raw {
		segment.Text = strings.TrimSpace(segment.Text)
		if segment.Text == "" {
			continue
		}
		if segment.Start < 0 {
			segment.Start = 0
		}
		if segment.End <= segment.Start {
			continue
		}
		cleaned = append(cleaned, segment)
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Start < cleaned[j].Start
	})

	for i := 0; i < len(cleaned)-1; i++ {
		if cleaned[i].End > cleaned[i+1].Start {
			cleaned[i].End = cleaned[i+1].Start
		}
	}

	result := cleaned[:0]
	for _, segment := range cleaned {
		if segment.End > segment.Start {
			result = append(result, segment)
		}
	}
	return Transcript(result)
}

// Overlapping returns the segments whose span intersects [start, end).
func (t Transcript) Overlapping(start, end time.Duration) Transcript {
	var out Transcript
	for _, segment := range t {
		if segment.Start < end && segment.End > start {
			out = append(out, segment)
		}
	}
	return out
}

// Nearest returns the segment whose span is closest to the instant, or
// false when the transcript is empty.
func (t Transcript) Nearest(at time.Duration) (Segment, bool) {
	if len(t) == 0 {
		return Segment{}, false
	}
	best := t[0]
	bestDist := distance(best, at)
	for _, segment := range t[1:] {
		if d := distance(segment, at); d < bestDist {
			best = segment
			bestDist = d
		}
	}
	return best, true
}

func distance(segment Segment, at time.Duration) time.Duration {
	if at < segment.Start {
		return segment.Start - at
	}
	if at > segment.End {
		return at - segment.End
	}
	return 0
}
