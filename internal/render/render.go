// Package render classifies uploads and decodes single-frame images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"path/filepath"
	"strings"

	// Registered decoders for the formats the intake endpoint accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/printops/labelpress/internal/label"
)

var pdfMagic = []byte("%PDF-")

// imageExtensions lists filename suffixes treated as single-frame images.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// DetectKind classifies an upload by filename extension first and content
// sniffing second, so a mislabeled body still routes correctly. Anything
// unrecognized is treated as an image and fails later at decode.
func DetectKind(filename string, data []byte) label.SourceKind {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".pdf" {
		return label.KindPDF
	}
	if _, ok := imageExtensions[ext]; ok {
		return label.KindImage
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return label.KindPDF
	}
	return label.KindImage
}

// Decode parses image bytes into an RGBA frame.
func Decode(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return ToRGBA(img), nil
}

// ToRGBA copies any decoded image into RGBA form anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
