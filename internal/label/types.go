// Package label defines core types shared across subsystems.
package label

import "image"

// SourceKind identifies what the uploaded bytes contain.
type SourceKind string

// Source kinds recognized by the raster adapter.
const (
	KindPDF   SourceKind = "pdf"
	KindImage SourceKind = "image"
)

// GraphicEncoding names the transport encoding of a wire label.
type GraphicEncoding string

// Supported graphic-field encodings.
const (
	EncodingASCII GraphicEncoding = "ascii"
	EncodingZ64   GraphicEncoding = "z64"
)

// WireLabel is a finished printer command block ready for dispatch.
type WireLabel struct {
	ZPL         string          `json:"zpl"`
	Encoding    GraphicEncoding `json:"encoding"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	BytesPerRow int             `json:"bytes_per_row"`
	TotalBytes  int             `json:"total_bytes"`
}

// ExtractionOutcome tags the result of a region-extraction attempt.
type ExtractionOutcome string

// Extraction outcomes. Cropped and FullFrame carry a frame; NoLabel and
// Failed carry a reason instead.
const (
	// ExtractionCropped means the detector located the label and the frame
	// was cropped to it (or confirmed the frame already is the label).
	ExtractionCropped ExtractionOutcome = "cropped"
	// ExtractionFullFrame means no meaningful crop was possible and the
	// frame passes through unchanged (heuristic miss, oversized box, or no
	// detector configured).
	ExtractionFullFrame ExtractionOutcome = "full_frame"
	// ExtractionNoLabel means the detector affirmatively reported no label,
	// or a parsed box failed geometric validation in strict mode.
	ExtractionNoLabel ExtractionOutcome = "no_label"
	// ExtractionFailed means the detector call errored or its reply could
	// not be parsed; only surfaced in strict mode.
	ExtractionFailed ExtractionOutcome = "failed"
)

// Extraction is the tagged result of one region-extraction attempt. Keeping
// "no label detected" distinct from "detector errored" distinct from "cropped"
// avoids the nullable-image ambiguity.
type Extraction struct {
	Outcome ExtractionOutcome
	Frame   *image.RGBA
	Reason  string
}

// Cropped reports whether the extraction produced a confirmed label frame.
func (e Extraction) Cropped() bool { return e.Outcome == ExtractionCropped }

// Printer describes one CUPS destination.
type Printer struct {
	Name  string `json:"name"`
	Info  string `json:"info"`
	State int    `json:"state"`
	URI   string `json:"uri"`
}

// PrintReceipt reports the outcome of one print submission.
type PrintReceipt struct {
	Success bool   `json:"success"`
	JobID   int    `json:"job_id,omitempty"`
	Printer string `json:"printer,omitempty"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}
