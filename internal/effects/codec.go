package effects

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"
)

// MaxPixels is the largest canvas Decode accepts.
const MaxPixels = 40_000_000

var ErrTooLarge = errors.New("image too large")

// Output is an encoded render.
type Output struct {
	Data        []byte
	ContentType string
	Format      string
}

// Decode checks the dimensions before decoding so a tiny file cannot claim
// an enormous canvas.
func Decode(data []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	return img, format, nil
}

// Encode writes img in format when the format is writable, otherwise PNG.
func Encode(img image.Image, format string) (Output, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		format = "png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return Output{}, fmt.Errorf("encode %s: %w", format, err)
	}

	return Output{
		Data:        buf.Bytes(),
		ContentType: "image/" + format,
		Format:      format,
	}, nil
}

// Render decodes data, scales it down to maxEdge, applies the effect and
// encodes the result.
func Render(data []byte, name string, maxEdge int) (Output, error) {
	e, err := Lookup(name)
	if err != nil {
		return Output{}, err
	}

	img, format, err := Decode(data)
	if err != nil {
		return Output{}, err
	}

	out := e.apply(fit(toNRGBA(img), maxEdge))
	if e.Alpha {
		format = "png"
	}

	return Encode(out, format)
}

// Extension returns the file extension for an encoded format.
func Extension(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}
