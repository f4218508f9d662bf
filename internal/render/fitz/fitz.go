// Package fitz rasterizes PDF pages with MuPDF.
package fitz

import (
	"context"
	"fmt"
	"image"

	gofitz "github.com/gen2brain/go-fitz"

	"github.com/printops/labelpress/internal/label"
)

// Renderer implements label.PageRenderer on top of MuPDF. Every call opens
// the document fresh, so the zero value is safe for concurrent use.
type Renderer struct{}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// PageCount reports how many pages the document holds.
func (Renderer) PageCount(doc []byte) (int, error) {
	d, err := gofitz.NewFromMemory(doc)
	if err != nil {
		return 0, fmt.Errorf("open document: %w", err)
	}
	defer d.Close()
	return d.NumPage(), nil
}

// RenderPage rasterizes one zero-indexed page at the requested density.
func (Renderer) RenderPage(ctx context.Context, doc []byte, page, dpi int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := gofitz.NewFromMemory(doc)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer d.Close()

	if page < 0 || page >= d.NumPage() {
		return nil, fmt.Errorf("page %d of %d: %w", page+1, d.NumPage(), label.ErrPageOutOfRange)
	}

	img, err := d.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", page+1, err)
	}
	return img, nil
}
