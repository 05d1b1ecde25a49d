package mask

import (
	"errors"
	"image"
	"testing"

	"render-studio/internal/canvas"
	"render-studio/internal/imaging"
)

func TestCompositeRequiresInitializedLayer(t *testing.T) {
	if _, err := Composite(nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestCompositeIsStrictlyBinary(t *testing.T) {
	p := canvas.NewPair()
	p.Load(image.NewRGBA(image.Rect(0, 0, 64, 64)))

	// Strokes paint with partial alpha; the mask must still come out binary.
	_ = p.BeginStroke(canvas.Point{X: 10, Y: 10}, 9)
	p.ExtendStroke(canvas.Point{X: 50, Y: 30})
	p.EndStroke()

	out, err := Composite(p.Overlay())
	if err != nil {
		t.Fatal(err)
	}
	if out.MimeType != "image/png" {
		t.Errorf("mime = %q, want image/png", out.MimeType)
	}
	if out.Width != 64 || out.Height != 64 {
		t.Errorf("dims = %dx%d, want 64x64", out.Width, out.Height)
	}

	decoded, err := imaging.Decode(out)
	if err != nil {
		t.Fatal(err)
	}

	var white, black int
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			px := decoded.RGBAAt(x, y)
			switch {
			case px.R == 255 && px.G == 255 && px.B == 255 && px.A == 255:
				white++
			case px.R == 0 && px.G == 0 && px.B == 0 && px.A == 255:
				black++
			default:
				t.Fatalf("non-binary pixel %v at (%d,%d)", px, x, y)
			}
		}
	}
	if white == 0 {
		t.Error("no white pixels; stroke did not reach the mask")
	}
	if black == 0 {
		t.Error("no black pixels; mask is fully selected")
	}
}

func TestCompositeEmptyOverlayIsAllBlack(t *testing.T) {
	overlay := image.NewRGBA(image.Rect(0, 0, 8, 8))
	out, err := Composite(overlay)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := imaging.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			px := decoded.RGBAAt(x, y)
			if px.R != 0 || px.G != 0 || px.B != 0 || px.A != 255 {
				t.Fatalf("pixel %v at (%d,%d), want opaque black", px, x, y)
			}
		}
	}
}

func TestPainted(t *testing.T) {
	if Painted(nil) {
		t.Error("nil overlay reported painted")
	}

	overlay := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if Painted(overlay) {
		t.Error("empty overlay reported painted")
	}

	overlay.Pix[3] = 1 // one pixel with the faintest alpha
	if !Painted(overlay) {
		t.Error("painted overlay not detected")
	}
}
