// Package pipeline orchestrates one print run end to end: classify the
// upload, raster it, find the label, normalize, encode, and dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/clock/system"
	"github.com/printops/labelpress/internal/hash/sha256"
	"github.com/printops/labelpress/internal/id/uuid"
	"github.com/printops/labelpress/internal/imaging"
	"github.com/printops/labelpress/internal/label"
	"github.com/printops/labelpress/internal/metrics"
	"github.com/printops/labelpress/internal/render"
	"github.com/printops/labelpress/internal/trace"
	"github.com/printops/labelpress/internal/zpl"
)

// Defaults applied when Config leaves the knobs zero.
const (
	defaultRenderDPI = 300
	defaultWidthPx   = 812
	defaultHeightPx  = 1218
	previewMaxEdge   = 512
)

// Extractor narrows internal/extract to the single call the pipeline makes.
type Extractor interface {
	Extract(ctx context.Context, frame *image.RGBA, strict bool) label.Extraction
}

// Config carries the rendering and processing knobs applied to every run.
type Config struct {
	RenderDPI       int
	LabelWidthPx    int
	LabelHeightPx   int
	DefaultScalePct int
	Dither          bool

	TrimLuma     uint8
	TrimMarginPx int
	MinTrimPct   float64
}

// Deps are the capabilities a Runner drives. Renderer, Extractor, and
// Dispatcher are required; Clock, IDs, Hasher, and Logger fall back to the
// system implementations.
type Deps struct {
	Renderer   label.PageRenderer
	Extractor  Extractor
	Dispatcher label.Dispatcher
	Clock      label.Clock
	IDs        label.IDGenerator
	Hasher     label.Hasher
	Logger     *zap.Logger
	Sinks      []trace.Sink
}

// Request is one print submission.
type Request struct {
	Filename string
	Data     []byte
	Printer  string
	// ScalePct overrides the configured content scale; zero keeps the default.
	ScalePct int
}

// Result is everything a caller learns about one run. Stages always holds
// the trace up to the failure point.
type Result struct {
	RunID      string
	Success    bool
	Stages     []trace.Record
	Print      *label.PrintReceipt
	PreviewPNG []byte
	DocSHA256  string
	Error      string
	Total      time.Duration
}

// Runner executes print runs. Each run owns its frames, canvas, and trace;
// a single Runner is safe for concurrent use.
type Runner struct {
	cfg        Config
	renderer   label.PageRenderer
	extractor  Extractor
	dispatcher label.Dispatcher
	clock      label.Clock
	ids        label.IDGenerator
	hasher     label.Hasher
	logger     *zap.Logger
	sinks      []trace.Sink
}

// New builds a Runner with the given knobs and capabilities.
func New(cfg Config, deps Deps) *Runner {
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = defaultRenderDPI
	}
	if cfg.LabelWidthPx <= 0 {
		cfg.LabelWidthPx = defaultWidthPx
	}
	if cfg.LabelHeightPx <= 0 {
		cfg.LabelHeightPx = defaultHeightPx
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		renderer:   deps.Renderer,
		extractor:  deps.Extractor,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		ids:        deps.IDs,
		hasher:     deps.Hasher,
		logger:     deps.Logger,
		sinks:      deps.Sinks,
	}
}

// Run executes the full pipeline for one request. Failures do not surface as
// errors; they are reported through the Result with an error stage appended
// and the prior trace preserved.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	runID := r.newRunID()
	rec := trace.NewRecorder(runID, r.clock, r.sinks...)
	log := r.logger.With(zap.String("run_id", runID), zap.String("filename", req.Filename))

	digest := r.hashDoc(req.Data, log)
	if digest != "" {
		log = log.With(zap.String("doc_sha256", digest))
	}

	result := r.execute(ctx, req, rec, log)
	result.RunID = runID
	result.DocSHA256 = digest
	result.Stages = rec.Records()
	result.Total = rec.Elapsed()

	metrics.ObserveRun(result.Success)
	if result.Success {
		log.Info("run complete", zap.Duration("total", result.Total))
	} else {
		log.Error("run failed", zap.String("reason", result.Error), zap.Duration("total", result.Total))
	}
	return result
}

func (r *Runner) execute(ctx context.Context, req Request, rec *trace.Recorder, log *zap.Logger) Result {
	fail := func(msg string) Result {
		rec.Add(trace.StageError, msg)
		return Result{Error: msg}
	}

	if len(req.Data) == 0 {
		return fail("empty document")
	}

	kind := render.DetectKind(req.Filename, req.Data)
	rec.Addf(trace.StageDetect, "type=%s", kind)

	frame, err := r.sourceFrame(ctx, req.Data, kind, rec)
	if err != nil {
		return fail(err.Error())
	}

	scale := req.ScalePct
	if scale == 0 {
		scale = r.cfg.DefaultScalePct
	}
	scale = imaging.ClampScale(scale)

	canvas, err := imaging.Normalize(frame, imaging.Params{
		Width:      r.cfg.LabelWidthPx,
		Height:     r.cfg.LabelHeightPx,
		ScalePct:   scale,
		Dither:     r.cfg.Dither,
		TrimLuma:   r.cfg.TrimLuma,
		TrimMargin: r.cfg.TrimMarginPx,
		MinTrimPct: r.cfg.MinTrimPct,
	})
	if err != nil {
		return fail(fmt.Sprintf("normalize: %v", err))
	}
	rec.Addf(trace.StageProcess, "%dx%d mono @ %d%%", canvas.Bounds().Dx(), canvas.Bounds().Dy(), scale)

	preview, err := imaging.Preview(canvas, previewMaxEdge)
	if err != nil {
		// The thumbnail is informational; never fail a print for it.
		log.Warn("preview encode failed", zap.Error(err))
		preview = nil
	}

	wire, err := zpl.EncodeASCII(canvas)
	if err != nil {
		return fail(fmt.Sprintf("encode: %v", err))
	}
	rec.Addf(trace.StageEncode, "%d bytes (%s)", len(wire.ZPL), wire.Encoding)
	metrics.ObserveEncodedLabel(string(wire.Encoding), len(wire.ZPL))

	receipt, err := r.dispatcher.Submit(ctx, wire, req.Printer)
	metrics.ObservePrintJob(receipt.Backend, err == nil)
	if err != nil {
		result := fail(fmt.Sprintf("dispatch: %v", err))
		result.Print = &receipt
		result.PreviewPNG = preview
		return result
	}
	rec.Add(trace.StagePrint, printDetail(receipt))

	return Result{Success: true, Print: &receipt, PreviewPNG: preview}
}

// sourceFrame turns the upload into the frame to print: decode or render,
// then region extraction. It appends the render/load and extract stages.
func (r *Runner) sourceFrame(ctx context.Context, data []byte, kind label.SourceKind, rec *trace.Recorder) (*image.RGBA, error) {
	if kind == label.KindPDF {
		return r.pdfFrame(ctx, data, rec)
	}

	frame, err := render.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	rec.Addf(trace.StageLoad, "%dx%d", frame.Bounds().Dx(), frame.Bounds().Dy())

	ext := r.extractor.Extract(ctx, frame, false)
	rec.Add(trace.StageExtract, extractDetail(ext))
	return ext.Frame, nil
}

// pdfFrame renders the document and picks the page holding the label. Single
// page documents extract non-strict. Multi-page documents are scanned in
// order under strict extraction, stopping at the first confirmed label so
// later pages are never rendered; when no page hits, the first page falls
// back to non-strict extraction.
func (r *Runner) pdfFrame(ctx context.Context, doc []byte, rec *trace.Recorder) (*image.RGBA, error) {
	pages, err := r.renderer.PageCount(doc)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if pages <= 0 {
		return nil, errors.New("document has no pages")
	}

	if pages == 1 {
		frame, err := r.renderer.RenderPage(ctx, doc, 0, r.cfg.RenderDPI)
		if err != nil {
			return nil, fmt.Errorf("render page 1: %w", err)
		}
		rec.Addf(trace.StageRender, "page 1 of 1, %dx%d", frame.Bounds().Dx(), frame.Bounds().Dy())

		ext := r.extractor.Extract(ctx, frame, false)
		rec.Add(trace.StageExtract, extractDetail(ext))
		return ext.Frame, nil
	}

	var first *image.RGBA
	for page := 0; page < pages; page++ {
		frame, err := r.renderer.RenderPage(ctx, doc, page, r.cfg.RenderDPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", page+1, err)
		}
		rec.Addf(trace.StageRender, "page %d of %d, %dx%d", page+1, pages, frame.Bounds().Dx(), frame.Bounds().Dy())
		if page == 0 {
			first = frame
		}

		ext := r.extractor.Extract(ctx, frame, true)
		if ext.Cropped() {
			rec.Addf(trace.StageExtract, "label found on page %d, %dx%d",
				page+1, ext.Frame.Bounds().Dx(), ext.Frame.Bounds().Dy())
			return ext.Frame, nil
		}
		rec.Addf(trace.StageExtract, "no label on page %d", page+1)
	}

	ext := r.extractor.Extract(ctx, first, false)
	rec.Addf(trace.StageExtract, "fallback to page 1 non-strict, %dx%d",
		ext.Frame.Bounds().Dx(), ext.Frame.Bounds().Dy())
	return ext.Frame, nil
}

func (r *Runner) newRunID() string {
	id, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("run id generation failed", zap.Error(err))
		return fmt.Sprintf("run-%d", r.clock.Now().UnixNano())
	}
	return id
}

// hashDoc digests the upload so operators can match a printed label back to
// the document that produced it.
func (r *Runner) hashDoc(data []byte, log *zap.Logger) string {
	if len(data) == 0 {
		return ""
	}
	digest, err := r.hasher.Hash(data)
	if err != nil {
		log.Warn("document hash failed", zap.Error(err))
		return ""
	}
	return digest
}

func extractDetail(ext label.Extraction) string {
	if ext.Cropped() {
		return fmt.Sprintf("cropped to %dx%d", ext.Frame.Bounds().Dx(), ext.Frame.Bounds().Dy())
	}
	return "full page (no crop)"
}

func printDetail(receipt label.PrintReceipt) string {
	if receipt.JobID > 0 {
		return fmt.Sprintf("job %d", receipt.JobID)
	}
	return fmt.Sprintf("submitted to %s", receipt.Printer)
}
