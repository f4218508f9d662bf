// Package ipp dispatches encoded labels to CUPS queues over IPP.
package ipp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	goipp "github.com/phin1x/go-ipp"
	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
)

// Backend is the receipt tag for this dispatcher.
const Backend = "ipp"

const documentName = "shipping-label"

// cupsClient is the slice of go-ipp's client the dispatcher needs.
type cupsClient interface {
	PrintJob(doc goipp.Document, printer string, jobAttributes map[string]interface{}) (int, error)
	GetPrinters(attributes []string) (map[string]goipp.Attributes, error)
}

// Config locates the CUPS server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// Dispatcher implements label.Dispatcher against a CUPS server.
type Dispatcher struct {
	client cupsClient
	logger *zap.Logger
}

var _ label.Dispatcher = (*Dispatcher)(nil)

// New builds a dispatcher for the configured CUPS server. Host and port
// default to localhost:631.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port <= 0 {
		port = 631
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client: goipp.NewCUPSClient(host, port, cfg.Username, cfg.Password, cfg.UseTLS),
		logger: logger,
	}
}

// Submit sends the wire label to the named queue as a raw octet-stream job,
// leaving the ZPL untouched by CUPS filters.
func (d *Dispatcher) Submit(ctx context.Context, wire label.WireLabel, printer string) (label.PrintReceipt, error) {
	if printer == "" {
		return label.PrintReceipt{Backend: Backend, Error: label.ErrNoPrinter.Error()}, label.ErrNoPrinter
	}
	if err := ctx.Err(); err != nil {
		return label.PrintReceipt{Backend: Backend, Printer: printer, Error: err.Error()}, err
	}

	doc := goipp.Document{
		Document: strings.NewReader(wire.ZPL),
		Size:     len(wire.ZPL),
		Name:     documentName,
		MimeType: goipp.MimeTypeOctetStream,
	}
	jobID, err := d.client.PrintJob(doc, printer, map[string]interface{}{})
	if err != nil {
		d.logger.Error("ipp print job failed", zap.String("printer", printer), zap.Error(err))
		receipt := label.PrintReceipt{Backend: Backend, Printer: printer, Error: err.Error()}
		return receipt, fmt.Errorf("%w: %v", label.ErrDispatch, err)
	}

	d.logger.Info("ipp job submitted",
		zap.String("printer", printer),
		zap.Int("job_id", jobID),
		zap.Int("bytes", len(wire.ZPL)))
	return label.PrintReceipt{Success: true, JobID: jobID, Printer: printer, Backend: Backend}, nil
}

// Printers lists the queues the CUPS server exposes, sorted by name.
func (d *Dispatcher) Printers(ctx context.Context) ([]label.Printer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attrs, err := d.client.GetPrinters([]string{
		"printer-name",
		"printer-info",
		"printer-state",
		"printer-uri-supported",
	})
	if err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}

	printers := make([]label.Printer, 0, len(attrs))
	for name, attr := range attrs {
		printers = append(printers, label.Printer{
			Name:  name,
			Info:  firstString(attr, "printer-info"),
			State: firstInt(attr, "printer-state"),
			URI:   firstString(attr, "printer-uri-supported"),
		})
	}
	sort.Slice(printers, func(i, j int) bool { return printers[i].Name < printers[j].Name })
	return printers, nil
}

func firstString(attrs goipp.Attributes, key string) string {
	if vals := attrs[key]; len(vals) > 0 {
		if s, ok := vals[0].Value.(string); ok {
			return s
		}
	}
	return ""
}

func firstInt(attrs goipp.Attributes, key string) int {
	if vals := attrs[key]; len(vals) > 0 {
		switch v := vals[0].Value.(type) {
		case int:
			return v
		case int32:
			return int(v)
		}
	}
	return 0
}
