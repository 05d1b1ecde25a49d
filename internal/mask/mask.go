// Package mask converts a drawing layer into the strict binary mask the
// generative edit service consumes: every pixel touched by a stroke becomes
// pure opaque white, every untouched pixel pure opaque black. Anti-aliased
// stroke edges are intentionally collapsed into the nearest binary class.
package mask

import (
	"errors"
	"image"

	"render-studio/internal/imaging"
)

var ErrNotInitialized = errors.New("drawing layer not initialized")

// Composite derives the binary mask from the overlay raster and encodes it as
// a lossless PNG. The output dimensions always equal the overlay's.
func Composite(overlay *image.RGBA) (imaging.SourceImage, error) {
	if overlay == nil {
		return imaging.SourceImage{}, ErrNotInitialized
	}

	bounds := overlay.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// Pix layout is RGBA; classify on the source alpha channel alone.
	for i := 0; i < len(out.Pix); i += 4 {
		if overlay.Pix[i+3] > 0 {
			out.Pix[i+0] = 0xff
			out.Pix[i+1] = 0xff
			out.Pix[i+2] = 0xff
		}
		out.Pix[i+3] = 0xff
	}

	return imaging.EncodePNG(out)
}

// Painted reports whether any stroke has touched the overlay. Useful for
// warning before an edit would be submitted with an all-black mask.
func Painted(overlay *image.RGBA) bool {
	if overlay == nil {
		return false
	}
	for i := 3; i < len(overlay.Pix); i += 4 {
		if overlay.Pix[i] > 0 {
			return true
		}
	}
	return false
}
