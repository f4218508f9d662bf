// Package extract locates the shipping label region within a frame.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
)

// Validation tuning applied when Config leaves the knobs zero.
const (
	defaultSnapPx         = 10
	defaultMinAreaPct     = 10.0
	defaultMaxAreaPct     = 90.0
	defaultBoundsTolPx    = 5
	defaultLetterTolPct   = 13.0
	usLetterRatio         = 11.0 / 8.5
	portraitCropWidthPct  = 0.50
	portraitCropHeightPct = 0.58
	landscapeCropWidth    = 0.57
	landscapeCropHeight   = 0.97
)

// Config tunes bounding-box validation and the letter-size fallback.
type Config struct {
	// SnapPx is the grid the detector's coordinates snap to, damping
	// run-to-run jitter from a noisy upstream model.
	SnapPx int
	// MinAreaPct rejects boxes covering less than this share of the frame.
	MinAreaPct float64
	// MaxAreaPct treats boxes covering more than this share as no crop.
	MaxAreaPct float64
	// BoundsTolerancePx forgives boxes that overhang the frame by this much.
	BoundsTolerancePx int
	// LetterAspectTolerancePct is how far from 11:8.5 a page may deviate and
	// still trigger the letter-size heuristic.
	LetterAspectTolerancePct float64
}

func (c Config) withDefaults() Config {
	if c.SnapPx <= 0 {
		c.SnapPx = defaultSnapPx
	}
	if c.MinAreaPct <= 0 {
		c.MinAreaPct = defaultMinAreaPct
	}
	if c.MaxAreaPct <= 0 {
		c.MaxAreaPct = defaultMaxAreaPct
	}
	if c.BoundsTolerancePx <= 0 {
		c.BoundsTolerancePx = defaultBoundsTolPx
	}
	if c.LetterAspectTolerancePct <= 0 {
		c.LetterAspectTolerancePct = defaultLetterTolPct
	}
	return c
}

// Extractor wraps a vision detector with reply parsing, geometric
// validation, and deterministic fallbacks.
type Extractor struct {
	detector label.Detector
	cfg      Config
	logger   *zap.Logger
}

// New builds an Extractor. A nil detector disables vision lookups; the
// fallbacks still apply.
func New(detector label.Detector, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{detector: detector, cfg: cfg.withDefaults(), logger: logger}
}

// Extract finds the label region in the frame. In strict mode any miss is
// reported as-is so multi-page scans can skip pages that hold no label; in
// non-strict mode the extractor always produces a printable frame, via the
// letter-size heuristic or by passing the frame through unchanged.
func (e *Extractor) Extract(ctx context.Context, frame *image.RGBA, strict bool) label.Extraction {
	if e.detector == nil {
		if strict {
			return label.Extraction{Outcome: label.ExtractionNoLabel, Reason: "no detector configured"}
		}
		return e.fallback(frame, "no detector configured")
	}

	reply, err := e.detector.Locate(ctx, frame)
	if err != nil {
		e.logger.Warn("detector call failed", zap.Error(err))
		if strict {
			return label.Extraction{Outcome: label.ExtractionFailed, Reason: fmt.Sprintf("detector: %v", err)}
		}
		return e.fallback(frame, "detector error")
	}

	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	parsed := e.parseReply(reply, w, h)
	switch parsed.kind {
	case parsedNoLabel:
		if strict {
			return label.Extraction{Outcome: label.ExtractionNoLabel, Reason: parsed.reason}
		}
		return e.fallback(frame, parsed.reason)
	case parseFailed:
		e.logger.Warn("unusable detector reply", zap.String("reason", parsed.reason))
		if strict {
			return label.Extraction{Outcome: label.ExtractionFailed, Reason: parsed.reason}
		}
		return e.fallback(frame, parsed.reason)
	}

	b, verdict, reason := e.validate(parsed.box, w, h)
	switch verdict {
	case boxValid:
		e.logger.Debug("label region cropped",
			zap.Int("x1", b.x1), zap.Int("y1", b.y1),
			zap.Int("x2", b.x2), zap.Int("y2", b.y2))
		cropped := cropRGBA(frame, image.Rect(b.x1, b.y1, b.x2, b.y2))
		return label.Extraction{Outcome: label.ExtractionCropped, Frame: cropped, Reason: "detector box"}
	case boxFullFrame:
		return label.Extraction{Outcome: label.ExtractionFullFrame, Frame: frame, Reason: reason}
	default: // boxRejected
		e.logger.Warn("detector box rejected", zap.String("reason", reason))
		if strict {
			return label.Extraction{Outcome: label.ExtractionNoLabel, Reason: reason}
		}
		return e.fallback(frame, reason)
	}
}

// fallback produces the non-strict terminal outcome: a letter-size crop when
// the page shape warrants one, otherwise the unmodified frame.
func (e *Extractor) fallback(frame *image.RGBA, reason string) label.Extraction {
	if cropped, ok := e.letterCrop(frame); ok {
		return label.Extraction{
			Outcome: label.ExtractionCropped,
			Frame:   cropped,
			Reason:  reason + "; letter-size heuristic",
		}
	}
	return label.Extraction{Outcome: label.ExtractionFullFrame, Frame: frame, Reason: reason}
}

// box is a detector bounding box in pixel space.
type box struct {
	x1, y1, x2, y2 int
}

type parseKind int

const (
	parsedBox parseKind = iota
	parsedNoLabel
	parseFailed
)

type parseResult struct {
	kind   parseKind
	box    box
	reason string
}

// detectorReply mirrors the JSON shapes seen across detector revisions:
// pixel keys, percentage keys, and explicit found/no_label flags.
type detectorReply struct {
	Found   *bool    `json:"found"`
	NoLabel *bool    `json:"no_label"`
	X1      *float64 `json:"x1"`
	Y1      *float64 `json:"y1"`
	X2      *float64 `json:"x2"`
	Y2      *float64 `json:"y2"`
	X1Pct   *float64 `json:"x1_pct"`
	Y1Pct   *float64 `json:"y1_pct"`
	X2Pct   *float64 `json:"x2_pct"`
	Y2Pct   *float64 `json:"y2_pct"`
}

// parseReply pulls the first JSON object out of the reply text and converts
// it to a pixel-space box, percentage keys first, then pixel keys.
func (e *Extractor) parseReply(reply string, w, h int) parseResult {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end < start {
		return parseResult{kind: parseFailed, reason: "no JSON object in detector reply"}
	}

	var dr detectorReply
	if err := json.Unmarshal([]byte(reply[start:end+1]), &dr); err != nil {
		return parseResult{kind: parseFailed, reason: "malformed detector JSON"}
	}

	if dr.NoLabel != nil && *dr.NoLabel {
		return parseResult{kind: parsedNoLabel, reason: "detector reported no label"}
	}
	if dr.Found != nil && !*dr.Found {
		return parseResult{kind: parsedNoLabel, reason: "detector found nothing"}
	}

	grid := e.cfg.SnapPx
	if dr.X1Pct != nil || dr.Y1Pct != nil || dr.X2Pct != nil || dr.Y2Pct != nil {
		if dr.X1Pct == nil || dr.Y1Pct == nil || dr.X2Pct == nil || dr.Y2Pct == nil {
			return parseResult{kind: parseFailed, reason: "incomplete percentage bounding box"}
		}
		return parseResult{kind: parsedBox, box: box{
			x1: snapDown(*dr.X1Pct/100*float64(w), grid),
			y1: snapDown(*dr.Y1Pct/100*float64(h), grid),
			x2: snapUp(*dr.X2Pct/100*float64(w), grid),
			y2: snapUp(*dr.Y2Pct/100*float64(h), grid),
		}}
	}

	if dr.X1 == nil || dr.Y1 == nil || dr.X2 == nil || dr.Y2 == nil {
		return parseResult{kind: parseFailed, reason: "incomplete bounding box"}
	}
	return parseResult{kind: parsedBox, box: box{
		x1: snapDown(*dr.X1, grid),
		y1: snapDown(*dr.Y1, grid),
		x2: snapUp(*dr.X2, grid),
		y2: snapUp(*dr.Y2, grid),
	}}
}

type boxVerdict int

const (
	boxValid boxVerdict = iota
	boxFullFrame
	boxRejected
)

// validate applies the geometric sanity rules to a parsed box and clamps it
// to the frame.
func (e *Extractor) validate(b box, w, h int) (box, boxVerdict, string) {
	if b.x2 <= b.x1 || b.y2 <= b.y1 {
		return b, boxRejected, fmt.Sprintf("inverted box (%d,%d)-(%d,%d)", b.x1, b.y1, b.x2, b.y2)
	}

	tol := e.cfg.BoundsTolerancePx
	if b.x1 < -tol || b.y1 < -tol || b.x2 > w+tol || b.y2 > h+tol {
		return b, boxRejected, fmt.Sprintf("box (%d,%d)-(%d,%d) outside %dx%d frame", b.x1, b.y1, b.x2, b.y2, w, h)
	}

	if b.x1 < 0 {
		b.x1 = 0
	}
	if b.y1 < 0 {
		b.y1 = 0
	}
	if b.x2 > w {
		b.x2 = w
	}
	if b.y2 > h {
		b.y2 = h
	}

	areaPct := float64((b.x2-b.x1)*(b.y2-b.y1)) / float64(w*h) * 100
	if areaPct < e.cfg.MinAreaPct {
		return b, boxRejected, fmt.Sprintf("box covers %.1f%% of frame, under the %.0f%% minimum", areaPct, e.cfg.MinAreaPct)
	}
	if areaPct > e.cfg.MaxAreaPct {
		return b, boxFullFrame, fmt.Sprintf("box covers %.1f%% of frame, no meaningful crop", areaPct)
	}
	return b, boxValid, ""
}

// letterCrop applies the letter-size heuristic: carrier sites emit full-page
// letter documents with the 4x6 label in a predictable corner, so a page
// shaped like US letter gets cropped there.
func (e *Extractor) letterCrop(frame *image.RGBA) (*image.RGBA, bool) {
	bounds := frame.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, false
	}

	long, short := float64(w), float64(h)
	if h > w {
		long, short = float64(h), float64(w)
	}
	ratio := long / short
	if math.Abs(ratio-usLetterRatio)/usLetterRatio > e.cfg.LetterAspectTolerancePct/100 {
		return nil, false
	}

	var cw, ch int
	if h >= w {
		cw = int(float64(w) * portraitCropWidthPct)
		ch = int(float64(h) * portraitCropHeightPct)
	} else {
		cw = int(float64(w) * landscapeCropWidth)
		ch = int(float64(h) * landscapeCropHeight)
	}
	crop := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+cw, bounds.Min.Y+ch)
	return cropRGBA(frame, crop), true
}

func snapDown(v float64, grid int) int {
	return int(math.Floor(v/float64(grid))) * grid
}

func snapUp(v float64, grid int) int {
	return int(math.Ceil(v/float64(grid))) * grid
}

// cropRGBA copies the rectangle out of the frame so stages never share
// backing pixel arrays.
func cropRGBA(frame *image.RGBA, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), frame, r.Min, draw.Src)
	return out
}
