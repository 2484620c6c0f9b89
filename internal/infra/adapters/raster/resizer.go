package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"neunovapdf-backend/internal/domain/ports/adapter"

	"github.com/disintegration/imaging"
)

var _ adapter.ImageResizer = (*Resizer)(nil)

// Resizer re-encodes every output as JPEG at a fixed quality.
type Resizer struct {
	quality int
}

func NewResizer(jpegQuality int) *Resizer {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &Resizer{quality: jpegQuality}
}

func (r *Resizer) Resize(ctx context.Context, in, out string, spec adapter.ResizeSpec) error {
	if spec.Width <= 0 || spec.Height <= 0 {
		return fmt.Errorf("resize: invalid target %dx%d", spec.Width, spec.Height)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := fit(src, spec)
	if err := imaging.Save(dst, out, imaging.JPEGQuality(r.quality)); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}

func fit(src image.Image, spec adapter.ResizeSpec) image.Image {
	switch spec.Mode {
	case adapter.FitCover, adapter.FitCrop:
		return imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	case adapter.FitContain, adapter.FitPad:
		// scale up or down to touch the box, then letterbox onto white
		w, h := containSize(src.Bounds(), spec)
		inner := imaging.Resize(src, w, h, imaging.Lanczos)
		canvas := imaging.New(spec.Width, spec.Height, color.White)
		return imaging.PasteCenter(canvas, inner)
	default:
		return imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
	}
}

// containSize returns the largest size with the source aspect ratio that
// fits inside the target box.
func containSize(b image.Rectangle, spec adapter.ResizeSpec) (int, int) {
	sw, sh := float64(b.Dx()), float64(b.Dy())
	scale := math.Min(float64(spec.Width)/sw, float64(spec.Height)/sh)
	w := min(spec.Width, max(1, int(math.Round(sw*scale))))
	h := min(spec.Height, max(1, int(math.Round(sh*scale))))
	return w, h
}
