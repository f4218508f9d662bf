package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

// EncodePNG serializes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Preview renders a PNG thumbnail with the longest edge capped at maxEdge.
// Images already within the cap are encoded as-is.
func Preview(img image.Image, maxEdge int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge > 0 && (w > maxEdge || h > maxEdge) {
		var nw, nh int
		if w >= h {
			nw = maxEdge
			nh = int(math.Round(float64(h) * float64(maxEdge) / float64(w)))
		} else {
			nh = maxEdge
			nw = int(math.Round(float64(w) * float64(maxEdge) / float64(h)))
		}
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}
	return EncodePNG(img)
}
