// Package frames selects representative keyframes from sampled video frames.
// The policy compares each candidate's luminance against the previously
// accepted frame, waits for the picture to settle before accepting a change,
// and bounds both the spacing and the total number of selected frames.
package frames

import (
	"context"
	"image"
	"time"

	"lectern/internal/config"
	"lectern/internal/faults"
	"lectern/internal/media"
)

// Keyframe is one accepted frame with its source timestamp.
type Keyframe struct {
	Timestamp time.Duration
	Path      string
}

// Selector applies the configured selection policy. Selection is
// deterministic for a given candidate sequence and tuning.
type Selector struct {
	cfg config.Frames
}

// NewSelector builds a Selector from configuration.
func NewSelector(cfg config.Frames) *Selector {
	return &Selector{cfg: cfg}
}

// Select walks the candidates in temporal order and returns the accepted
// keyframes. Media with no decodable frame fails with the frame-extraction
// marker.
func (s *Selector) Select(ctx context.Context, candidates []media.SampledFrame) ([]Keyframe, error) {
	decoded := make([]image.Image, 0, len(candidates))
	kept := make([]media.SampledFrame, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := loadImage(candidate.Path)
		if err != nil {
			// Skip undecodable samples; the no-frame check below catches
			// media with no usable visual content at all.
			continue
		}
		decoded = append(decoded, img)
		kept = append(kept, candidate)
	}
	if len(kept) == 0 {
		return nil, faults.Wrap(faults.ErrFrameExtraction, "frames", "select keyframes", "no decodable frames", nil)
	}

	selected := s.walk(kept, decoded)
	if len(selected) == 0 {
		// Static media has no change points; the opening frame still
		// represents it.
		selected = []Keyframe{{Timestamp: kept[0].Timestamp, Path: kept[0].Path}}
	}
	selected = thin(selected, s.cfg.MaxFrames)
	return selected, nil
}

// walk is the core acceptance loop: a change relative to the reference look
// opens a pending candidate, which is accepted only once it has stayed
// stable for the configured window and sits far enough after the previously
// accepted frame.
func (s *Selector) walk(candidates []media.SampledFrame, images []image.Image) []Keyframe {
	minSpacing := time.Duration(s.cfg.MinSpacingMS) * time.Millisecond

	var selected []Keyframe
	reference := images[0]
	var lastAccepted time.Duration

	pending := -1
	stable := 0

	accept := func(i int) {
		if diffScore(reference, images[i], s.cfg.PixelDelta) < s.cfg.MinChangedFrac {
			// A flicker that settled back to the reference look is not a
			// change.
			return
		}
		if len(selected) > 0 && candidates[i].Timestamp-lastAccepted < minSpacing {
			return
		}
		selected = append(selected, Keyframe{
			Timestamp: candidates[i].Timestamp,
			Path:      candidates[i].Path,
		})
		lastAccepted = candidates[i].Timestamp
	}

	for i := 1; i < len(candidates); i++ {
		if pending >= 0 {
			if diffScore(images[pending], images[i], s.cfg.PixelDelta) >= s.cfg.MinChangedFrac {
				// Still moving; restart stability tracking on the new look.
				pending = i
				stable = 1
			} else {
				stable++
			}
			if stable >= s.cfg.StabilityWindow {
				accept(pending)
				reference = images[pending]
				pending = -1
				stable = 0
			}
			continue
		}

		if diffScore(reference, images[i], s.cfg.PixelDelta) >= s.cfg.MinChangedFrac {
			pending = i
			stable = 1
		}
	}

	// A change still pending at end of media counts as the final look.
	if pending >= 0 {
		accept(pending)
	}
	return selected
}

// thin reduces the selection to at most max frames by even sampling that
// always keeps the first and last frame.
func thin(selected []Keyframe, max int) []Keyframe {
	if max <= 0 || len(selected) <= max {
		return selected
	}
	if max == 1 {
		return []Keyframe{selected[len(selected)-1]}
	}
	out := make([]Keyframe, 0, max)
	n := len(selected)
	for i := 0; i < max; i++ {
		idx := i * (n - 1) / (max - 1)
		out = append(out, selected[idx])
	}
	return out
}
