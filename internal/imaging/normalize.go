// Package imaging converts arbitrary rasters into the printer's fixed
// monochrome canvas.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// Default trim tuning applied when Params leaves the knobs zero.
const (
	defaultTrimLuma   = 245
	defaultTrimMargin = 10
	defaultMinTrimPct = 5.0
)

// Content scale bounds inside the canvas.
const (
	minScalePct = 50
	maxScalePct = 100
)

// Params configures the fixed-canvas conversion.
type Params struct {
	// Width and Height fix the target canvas in pixels. The composed canvas
	// is Width rounded up to a whole byte of pixels by Height exactly.
	Width  int
	Height int
	// ScalePct shrinks the content within the canvas. Values outside 50-100
	// are clamped; zero means full size.
	ScalePct int
	// Dither selects Floyd-Steinberg error diffusion over a hard threshold.
	Dither bool

	// TrimLuma marks pixels darker than this as content when trimming
	// surrounding whitespace.
	TrimLuma uint8
	// TrimMargin pads the detected content box before cropping.
	TrimMargin int
	// MinTrimPct skips trimming unless it would remove at least this share
	// of the source area.
	MinTrimPct float64
}

// ClampScale normalizes a requested content scale to the supported 50-100
// range, mapping zero to full size.
func ClampScale(pct int) int {
	if pct == 0 {
		return maxScalePct
	}
	if pct < minScalePct {
		return minScalePct
	}
	if pct > maxScalePct {
		return maxScalePct
	}
	return pct
}

// Normalize converts a decoded frame into a strict bilevel canvas sized for
// the printer: trim whitespace, rotate to match the target orientation,
// scale to fit, center on white, and threshold or dither to 1-bit.
func Normalize(src image.Image, p Params) (*image.Gray, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid target canvas %dx%d", p.Width, p.Height)
	}
	if p.TrimLuma == 0 {
		p.TrimLuma = defaultTrimLuma
	}
	if p.TrimMargin == 0 {
		p.TrimMargin = defaultTrimMargin
	}
	if p.MinTrimPct == 0 {
		p.MinTrimPct = defaultMinTrimPct
	}

	content := trim(grayscale(src), p.TrimLuma, p.TrimMargin, p.MinTrimPct)

	// Landscape content on a portrait label prints sideways otherwise.
	// Trimming first keeps the decision about the content, not the page.
	if content.Bounds().Dx() > content.Bounds().Dy() && p.Width < p.Height {
		content = rotate90(content)
	}

	scale := ClampScale(p.ScalePct)

	cw, ch := content.Bounds().Dx(), content.Bounds().Dy()
	maxW := float64(p.Width) * float64(scale) / 100
	maxH := float64(p.Height) * float64(scale) / 100
	f := math.Min(maxW/float64(cw), maxH/float64(ch))
	newW, newH := int(float64(cw)*f), int(float64(ch)*f)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	resized := resize.Resize(uint(newW), uint(newH), content, resize.Lanczos3)

	padW := (p.Width + 7) / 8 * 8
	canvas := image.NewGray(image.Rect(0, 0, padW, p.Height))
	for i := range canvas.Pix {
		canvas.Pix[i] = 0xFF
	}
	ox := (padW - newW) / 2
	oy := (p.Height - newH) / 2
	draw.Draw(canvas, image.Rect(ox, oy, ox+newW, oy+newH), resized, resized.Bounds().Min, draw.Src)

	if p.Dither {
		return ditherBilevel(canvas), nil
	}
	return thresholdBilevel(canvas), nil
}

// grayscale copies any image into a luma representation anchored at the
// origin.
func grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
	return g
}

// trim crops surrounding whitespace. The original is returned untouched when
// nothing is dark or the crop would not remove enough area to matter.
func trim(g *image.Gray, luma uint8, margin int, minTrimPct float64) *image.Gray {
	b := g.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		rowStart := g.PixOffset(b.Min.X, y)
		row := g.Pix[rowStart : rowStart+b.Dx()]
		for i, px := range row {
			if px >= luma {
				continue
			}
			x := b.Min.X + i
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return g
	}

	box := image.Rect(minX-margin, minY-margin, maxX+1+margin, maxY+1+margin).Intersect(b)
	keep := 1 - minTrimPct/100
	if float64(box.Dx()*box.Dy()) > keep*float64(b.Dx()*b.Dy()) {
		return g
	}

	out := image.NewGray(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(out, out.Bounds(), g, box.Min, draw.Src)
	return out
}

// rotate90 turns the image a quarter turn counterclockwise.
func rotate90(g *image.Gray) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			out.SetGray(x, y, g.GrayAt(b.Min.X+w-1-y, b.Min.Y+x))
		}
	}
	return out
}

// thresholdBilevel maps every pixel to pure black or pure white at the
// midpoint.
func thresholdBilevel(g *image.Gray) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, px := range g.Pix {
		if px >= 128 {
			out.Pix[i] = 0xFF
		} else {
			out.Pix[i] = 0x00
		}
	}
	return out
}

// ditherBilevel distributes quantization error across neighbors, which keeps
// logos and gradients legible on a 1-bit canvas.
func ditherBilevel(g *image.Gray) *image.Gray {
	b := g.Bounds()
	pal := color.Palette{color.Gray{Y: 0x00}, color.Gray{Y: 0xFF}}
	quantized := image.NewPaletted(b, pal)
	draw.FloydSteinberg.Draw(quantized, b, g, b.Min)

	out := image.NewGray(b)
	for i, idx := range quantized.Pix {
		if idx == 0 {
			out.Pix[i] = 0x00
		} else {
			out.Pix[i] = 0xFF
		}
	}
	return out
}
