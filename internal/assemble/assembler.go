// Package assemble lays out the final document: one page per accepted
// keyframe, each paired with the transcript text spoken around that frame.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"lectern/internal/config"
	"lectern/internal/faults"
	"lectern/internal/frames"
	"lectern/internal/transcribe"
)

const (
	pageMargin    = 10.0
	captionHeight = 40.0
	captionGap    = 4.0
)

// Assembler renders keyframes and transcript into a PDF.
type Assembler struct {
	cfg config.Assemble
}

// New builds an Assembler from configuration.
func New(cfg config.Assemble) *Assembler {
	return &Assembler{cfg: cfg}
}

// Build renders the document bytes. Pages are emitted in frame-timestamp
// order; a frame with no spoken text still yields an image-only page. Zero
// keyframes is an assembly failure, not an empty document.
func (a *Assembler) Build(ctx context.Context, keyframes []frames.Keyframe, transcript transcribe.Transcript) ([]byte, error) {
	if len(keyframes) == 0 {
		return nil, faults.Wrap(faults.ErrAssembly, "assemble", "build document", "no keyframes selected", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orientation := a.cfg.Orientation
	if orientation == "" {
		orientation = "L"
	}
	pageSize := a.cfg.PageSize
	if pageSize == "" {
		pageSize = "A4"
	}

	pdf := fpdf.New(orientation, "mm", pageSize, "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)

	pageWidth, pageHeight := pdf.GetPageSize()
	imageWidth := pageWidth - 2*pageMargin
	imageHeight := pageHeight - 2*pageMargin - captionHeight - captionGap

	for _, frame := range keyframes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		pdf.ImageOptions(frame.Path, pageMargin, pageMargin, imageWidth, imageHeight, false,
			fpdf.ImageOptions{ReadDpi: true}, 0, "")

		pdf.SetXY(pageMargin, pageMargin+imageHeight+captionGap)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(imageWidth, 5, formatTimestamp(frame.Timestamp), "", 1, "L", false, 0, "")

		if caption := captionFor(frame.Timestamp, transcript); caption != "" {
			pdf.SetX(pageMargin)
			pdf.SetFont("Helvetica", "", 11)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(imageWidth, 6, caption, "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, faults.Wrap(faults.ErrAssembly, "assemble", "render document", "", err)
	}
	return buf.Bytes(), nil
}

// captionFor pairs a frame with the transcript text whose span contains the
// frame's timestamp, falling back to the nearest segment when nothing
// contains it.
func captionFor(at time.Duration, transcript transcribe.Transcript) string {
	containing := transcript.Overlapping(at, at+time.Nanosecond)
	if len(containing) > 0 {
		texts := make([]string, 0, len(containing))
		for _, segment := range containing {
			texts = append(texts, segment.Text)
		}
		return strings.Join(texts, " ")
	}
	nearest, ok := transcript.Nearest(at)
	if !ok {
		return ""
	}
	return nearest.Text
}

func formatTimestamp(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
