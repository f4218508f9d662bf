package api

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
	"github.com/printops/labelpress/internal/pipeline"
	"github.com/printops/labelpress/internal/trace"
)

// maxUploadBytes caps one multipart upload. Carrier PDFs run a few MB; this
// leaves room for photo scans without letting a bad client exhaust memory.
const maxUploadBytes = 32 << 20

// printLabel handles POST /v1/labels/print. The multipart form carries the
// document under "file", an optional "printer" (falling back to the
// configured default), and an optional "scale_pct" override. The pipeline
// runs synchronously; the response always carries the stage trace, so a
// failed run still explains itself.
func (s *Server) printLabel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck // read-only temp file

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	printer := strings.TrimSpace(r.FormValue("printer"))
	if printer == "" {
		printer = s.cfg.Print.DefaultPrinter
	}
	if printer == "" {
		writeError(w, http.StatusBadRequest, "no printer specified")
		return
	}

	scalePct := 0
	if v := strings.TrimSpace(r.FormValue("scale_pct")); v != "" {
		scalePct, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid scale_pct")
			return
		}
	}

	res := s.runner.Run(r.Context(), pipeline.Request{
		Filename: header.Filename,
		Data:     data,
		Printer:  printer,
		ScalePct: scalePct,
	})
	writeJSON(w, http.StatusOK, toPrintResponse(res))
}

// listPrinters handles GET /v1/printers.
func (s *Server) listPrinters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PrintTimeout())
	defer cancel()

	printers, err := s.dispatcher.Printers(ctx)
	if err != nil {
		s.logger.Error("list printers failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to list printers")
		return
	}
	if printers == nil {
		printers = []label.Printer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"printers": printers,
		"default":  s.cfg.Print.DefaultPrinter,
	})
}

// debugConfig handles GET /v1/debug/config, returning the effective
// configuration with secrets masked.
func (s *Server) debugConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Redacted())
}

type printResponse struct {
	RunID         string              `json:"run_id"`
	Success       bool                `json:"success"`
	Stages        []trace.Record      `json:"stages"`
	Print         *label.PrintReceipt `json:"print,omitempty"`
	PreviewBase64 string              `json:"preview_base64,omitempty"`
	DocSHA256     string              `json:"doc_sha256,omitempty"`
	Error         string              `json:"error,omitempty"`
	TotalMS       int64               `json:"total_ms"`
}

func toPrintResponse(res pipeline.Result) printResponse {
	stages := res.Stages
	if stages == nil {
		stages = []trace.Record{}
	}
	resp := printResponse{
		RunID:     res.RunID,
		Success:   res.Success,
		Stages:    stages,
		Print:     res.Print,
		DocSHA256: res.DocSHA256,
		Error:     res.Error,
		TotalMS:   res.Total.Milliseconds(),
	}
	if len(res.PreviewPNG) > 0 {
		resp.PreviewBase64 = base64.StdEncoding.EncodeToString(res.PreviewPNG)
	}
	return resp
}
