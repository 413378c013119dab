package frames

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// loadImage decodes one candidate frame from disk.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// diffScore returns the fraction of pixels whose luminance differs between
// the two images by more than delta (0..255). Images of different dimensions
// score as fully changed.
func diffScore(a, b image.Image, delta int) float64 {
	boundsA := a.Bounds()
	boundsB := b.Bounds()
	if boundsA.Dx() != boundsB.Dx() || boundsA.Dy() != boundsB.Dy() {
		return 1.0
	}
	total := boundsA.Dx() * boundsA.Dy()
	if total == 0 {
		return 0
	}

	changed := 0
	for y := 0; y < boundsA.Dy(); y++ {
		for x := 0; x < boundsA.Dx(); x++ {
			la := luminance(a.At(boundsA.Min.X+x, boundsA.Min.Y+y).RGBA())
			lb := luminance(b.At(boundsB.Min.X+x, boundsB.Min.Y+y).RGBA())
			d := la - lb
			if d < 0 {
				d = -d
			}
			if d > delta {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}

// luminance maps premultiplied 16-bit RGBA to 8-bit BT.601 luma.
func luminance(r, g, b, _ uint32) int {
	return int((299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000)
}
