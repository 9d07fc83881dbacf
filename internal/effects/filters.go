package effects

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const thumbnailEdge = 128

var (
	kernelEmboss = [9]float64{
		-1, -1, 0,
		-1, 0, 1,
		0, 1, 1,
	}
	kernelEdges = [9]float64{
		-1, -1, -1,
		-1, 8, -1,
		-1, -1, -1,
	}
	kernelSmooth = [9]float64{
		1, 1, 1,
		1, 5, 1,
		1, 1, 1,
	}
)

func convolve(k [9]float64, opts imaging.ConvolveOptions) func(*image.NRGBA) *image.NRGBA {
	return func(img *image.NRGBA) *image.NRGBA {
		return imaging.Convolve3x3(img, k, &opts)
	}
}

func clamp(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 255)))
}

// sepia uses the Microsoft sepia matrix; imaging has no sepia tone.
func sepia(img *image.NRGBA) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clamp(0.393*r + 0.769*g + 0.189*b),
			G: clamp(0.349*r + 0.686*g + 0.168*b),
			B: clamp(0.272*r + 0.534*g + 0.131*b),
			A: c.A,
		}
	})
}

func vignette(src *image.NRGBA) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	cx, cy := float64(w)/2, float64(h)/2
	outer := math.Hypot(cx, cy)

	dc := gg.NewContext(w, h)
	dc.DrawImage(src, 0, 0)

	grad := gg.NewRadialGradient(cx, cy, outer*0.4, cx, cy, outer)
	grad.AddColorStop(0, color.NRGBA{A: 0})
	grad.AddColorStop(1, color.NRGBA{A: 200})
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()

	return toNRGBA(dc.Image())
}

// circle center-crops to a square and clips it to a disc.
func circle(src *image.NRGBA) *image.NRGBA {
	side := min(src.Rect.Dx(), src.Rect.Dy())
	square := imaging.CropCenter(src, side, side)

	dc := gg.NewContext(side, side)
	dc.DrawCircle(float64(side)/2, float64(side)/2, float64(side)/2)
	dc.Clip()
	dc.DrawImage(square, 0, 0)

	return toNRGBA(dc.Image())
}

// fit scales the image down so its longer edge is at most edge pixels.
func fit(src *image.NRGBA, edge int) *image.NRGBA {
	if edge <= 0 {
		return src
	}
	return imaging.Fit(src, edge, edge, imaging.CatmullRom)
}
