package describe

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// MinSide and MaxSide bound the longest side of a normalised image.
	MinSide = 400
	MaxSide = 2000

	contrastPercent = 10
	sharpenSigma    = 0.6
)

// Normalize decodes raw image bytes, scales the longest side into
// [MinSide, MaxSide] keeping the aspect ratio, applies mild contrast and
// sharpening, and re-encodes as PNG.
func Normalize(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	img = fit(img)
	img = imaging.AdjustContrast(img, contrastPercent)
	img = imaging.Sharpen(img, sharpenSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)

	var target int
	switch {
	case longest < MinSide:
		target = MinSide
	case longest > MaxSide:
		target = MaxSide
	default:
		return img
	}

	if w >= h {
		return imaging.Resize(img, target, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, target, imaging.Lanczos)
}
