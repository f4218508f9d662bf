package label

import (
	"context"
	"image"
	"time"
)

// PageRenderer rasterizes pages of a PDF document.
type PageRenderer interface {
	PageCount(doc []byte) (int, error)
	RenderPage(ctx context.Context, doc []byte, page int, dpi int) (*image.RGBA, error)
}

// Detector asks a vision service where the shipping label sits in a frame
// and returns the raw reply text for the extractor to parse.
type Detector interface {
	Locate(ctx context.Context, frame *image.RGBA) (string, error)
}

// Dispatcher submits finished wire labels to a print queue.
type Dispatcher interface {
	Submit(ctx context.Context, wire WireLabel, printer string) (PrintReceipt, error)
	Printers(ctx context.Context) ([]Printer, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
