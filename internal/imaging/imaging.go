package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported or invalid image data")

// SourceImage is an immutable raw image: base64-encoded bytes plus content type.
// Width and Height are the decoded pixel dimensions, recorded once at construction.
type SourceImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (s SourceImage) IsZero() bool {
	return s.Base64 == ""
}

func (s SourceImage) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", s.MimeType, s.Base64)
}

// FromBytes validates and wraps raw uploaded bytes. Only PNG, JPEG and WEBP
// are accepted; anything else fails with ErrUnsupportedImage.
func FromBytes(data []byte) (SourceImage, error) {
	if len(data) == 0 {
		return SourceImage{}, ErrUnsupportedImage
	}

	mimeType := http.DetectContentType(data)
	switch mimeType {
	case "image/png", "image/jpeg", "image/webp":
	default:
		return SourceImage{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return SourceImage{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	return SourceImage{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// FromDataURL parses a "data:<mime>;base64,<data>" string as produced by the
// generative service and by browser canvases.
func FromDataURL(dataURL string) (SourceImage, error) {
	dataURL = strings.TrimSpace(dataURL)
	if !strings.HasPrefix(dataURL, "data:") {
		return SourceImage{}, fmt.Errorf("%w: not a data URL", ErrUnsupportedImage)
	}

	idx := strings.IndexByte(dataURL, ',')
	if idx < 0 {
		return SourceImage{}, fmt.Errorf("%w: malformed data URL", ErrUnsupportedImage)
	}

	raw, err := base64.StdEncoding.DecodeString(dataURL[idx+1:])
	if err != nil {
		return SourceImage{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	return FromBytes(raw)
}

// Decode materializes the pixel data as an RGBA buffer.
func Decode(s SourceImage) (*image.RGBA, error) {
	raw, err := base64.StdEncoding.DecodeString(s.Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// EncodePNG encodes an in-memory raster losslessly. Used for masks and for
// results chained back into a new editing session.
func EncodePNG(img image.Image) (SourceImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return SourceImage{}, fmt.Errorf("encode png: %w", err)
	}

	bounds := img.Bounds()
	return SourceImage{
		Base64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType: "image/png",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}
