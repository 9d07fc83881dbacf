// Package effects renders photo edits. Every effect works on an NRGBA copy
// of the source so the input image is never modified.
package effects

import (
	"errors"
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

const Default = "default"

var ErrUnknownEffect = errors.New("unknown effect")

// Effect is a named image transformation.
type Effect struct {
	Name  string
	Label string
	// Alpha is set when the output has transparent pixels and must be
	// encoded in a format that keeps them.
	Alpha bool

	apply func(*image.NRGBA) *image.NRGBA
}

func (e Effect) Apply(img image.Image) image.Image {
	return e.apply(toNRGBA(img))
}

var registry = map[string]Effect{}

func register(name, label string, alpha bool, fn func(*image.NRGBA) *image.NRGBA) {
	registry[name] = Effect{Name: name, Label: label, Alpha: alpha, apply: fn}
}

func init() {
	register(Default, "Original", false, func(img *image.NRGBA) *image.NRGBA { return img })
	register("grayscale", "Grayscale", false, func(img *image.NRGBA) *image.NRGBA { return imaging.Grayscale(img) })
	register("sepia", "Sepia", false, sepia)
	register("invert", "Invert", false, func(img *image.NRGBA) *image.NRGBA { return imaging.Invert(img) })
	register("blur", "Blur", false, func(img *image.NRGBA) *image.NRGBA { return imaging.Blur(img, 2) })
	register("sharpen", "Sharpen", false, func(img *image.NRGBA) *image.NRGBA { return imaging.Sharpen(img, 1.5) })
	register("emboss", "Emboss", false, convolve(kernelEmboss, imaging.ConvolveOptions{Bias: 128}))
	register("edges", "Find edges", false, convolve(kernelEdges, imaging.ConvolveOptions{Abs: true}))
	register("smooth", "Smooth", false, convolve(kernelSmooth, imaging.ConvolveOptions{Normalize: true}))
	register("brighten", "Brighten", false, func(img *image.NRGBA) *image.NRGBA { return imaging.AdjustBrightness(img, 25) })
	register("darken", "Darken", false, func(img *image.NRGBA) *image.NRGBA { return imaging.AdjustBrightness(img, -25) })
	register("contrast", "Contrast", false, func(img *image.NRGBA) *image.NRGBA { return imaging.AdjustContrast(img, 40) })
	register("flip", "Flip", false, func(img *image.NRGBA) *image.NRGBA { return imaging.FlipV(img) })
	register("mirror", "Mirror", false, func(img *image.NRGBA) *image.NRGBA { return imaging.FlipH(img) })
	register("rotate", "Rotate", false, func(img *image.NRGBA) *image.NRGBA { return imaging.Rotate270(img) })
	register("vignette", "Vignette", false, vignette)
	register("circle", "Circle", true, circle)
	register("thumbnail", "Thumbnail", false, func(img *image.NRGBA) *image.NRGBA { return fit(img, thumbnailEdge) })
}

func Lookup(name string) (Effect, error) {
	e, ok := registry[name]
	if !ok {
		return Effect{}, ErrUnknownEffect
	}
	return e, nil
}

// All returns every effect, the default first and the rest by name.
func All() []Effect {
	out := make([]Effect, 0, len(registry))
	for _, e := range registry {
		if e.Name != Default {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return append([]Effect{registry[Default]}, out...)
}

// toNRGBA copies img into a new NRGBA image anchored at the origin.
func toNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}
