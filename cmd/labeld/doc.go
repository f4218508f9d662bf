// Package main hosts the label service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and the print endpoints. Uploads arrive as
//     size-capped multipart forms and are normalized into pipeline.Request values before a run starts.
//   - Pipeline: internal/pipeline.Runner drives one upload through detect, render/load, extract, process,
//     encode, and print stages, recording per-stage timings on a trace recorder whose sinks feed zap and
//     Prometheus.
//   - Rendering: PDFs rasterize page by page through go-fitz (MuPDF); raster uploads decode via the stdlib
//     image codecs plus the golang.org/x/image formats (BMP, TIFF, WebP).
//   - Extraction: a vision detector (Anthropic or Gemini) proposes the label bounding box; internal/extract
//     snaps it to a grid, validates it, and falls back to the letter-size heuristic or the full frame when
//     the reply is unusable.
//   - Encoding & dispatch: internal/zpl packs the 1-bit canvas into ^GFA (ASCII hex or Z64) and
//     internal/print submits the program to CUPS over IPP or through the lp/lpstat binaries.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: each request runs its own pipeline; a single Runner is safe for concurrent use.
//     Detector calls are rate limited (detect.qps) and deadline-bounded so one slow vision call cannot wedge
//     an upload.
//   - Degradation: with no detector configured (provider "none" or a missing API key) uploads still print,
//     full frame. Pipeline failures return 200 with success=false plus the stage trace for debugging.
//   - Observability: zap logs carry run IDs and stage timings; Prometheus counters/histograms track runs,
//     detector calls, print jobs, and encoded label sizes.
//
// Quick checklist:
//   - Configure env vars: LABELD_SERVER_PORT, LABELD_DETECT_PROVIDER / LABELD_DETECT_API_KEY,
//     LABELD_PRINT_MODE, LABELD_PRINT_CUPS_HOST, and LABELD_PRINT_DEFAULT_PRINTER for the common setups.
//   - Run locally: go run ./cmd/labeld -config config.yaml (or rely solely on env overrides).
//   - The process reacts to SIGTERM for graceful drain; in-flight runs are bounded by the request timeout.
package main
