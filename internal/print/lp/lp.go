// Package lp dispatches encoded labels through the CUPS command line tools,
// for hosts where the IPP port is firewalled but lp/lpstat still work.
package lp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
)

// Backend is the receipt tag for this dispatcher.
const Backend = "lp"

// Printer states from RFC 8011, matching what the IPP backend reports.
const (
	stateIdle       = 3
	stateProcessing = 4
	stateStopped    = 5
)

const (
	defaultSubmitTimeout = 10 * time.Second
	defaultStatusTimeout = 5 * time.Second
)

// lp prints the job id as "request id is <queue>-<n> (1 file(s))".
var jobIDPattern = regexp.MustCompile(`request id is \S+-(\d+)`)

// runFunc executes one spooler command, feeding stdin and returning stdout.
// Tests swap it for a fake.
type runFunc func(ctx context.Context, env []string, stdin []byte, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, env []string, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w", msg, err)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Config points the CLI tools at a spooler and bounds their runtime.
type Config struct {
	// Server sets CUPS_SERVER for the child processes; empty means the
	// local spooler.
	Server        string
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
}

// Dispatcher implements label.Dispatcher by shelling out to lp and lpstat.
type Dispatcher struct {
	cfg    Config
	run    runFunc
	logger *zap.Logger
}

var _ label.Dispatcher = (*Dispatcher)(nil)

// New builds a dispatcher around the system lp tools.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, run: runCommand, logger: logger}
}

// Submit pipes the wire label into lp as a raw job. The -o raw flag keeps
// CUPS filters from reinterpreting the ZPL.
func (d *Dispatcher) Submit(ctx context.Context, wire label.WireLabel, printer string) (label.PrintReceipt, error) {
	if printer == "" {
		return label.PrintReceipt{Backend: Backend, Error: label.ErrNoPrinter.Error()}, label.ErrNoPrinter
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	out, err := d.run(ctx, d.env(), []byte(wire.ZPL), "lp", "-d", printer, "-o", "raw")
	if err != nil {
		d.logger.Error("lp submit failed", zap.String("printer", printer), zap.Error(err))
		receipt := label.PrintReceipt{Backend: Backend, Printer: printer, Error: err.Error()}
		return receipt, fmt.Errorf("%w: %v", label.ErrDispatch, err)
	}

	jobID := parseJobID(string(out))
	d.logger.Info("lp job submitted",
		zap.String("printer", printer),
		zap.Int("job_id", jobID),
		zap.Int("bytes", len(wire.ZPL)))
	return label.PrintReceipt{Success: true, JobID: jobID, Printer: printer, Backend: Backend}, nil
}

// Printers parses lpstat -p output into the shared printer shape. lpstat
// only reports name and state, so Info and URI stay empty.
func (d *Dispatcher) Printers(ctx context.Context) ([]label.Printer, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.StatusTimeout)
	defer cancel()

	out, err := d.run(ctx, d.env(), nil, "lpstat", "-p")
	if err != nil {
		return nil, fmt.Errorf("lpstat: %w", err)
	}

	printers := parsePrinters(string(out))
	sort.Slice(printers, func(i, j int) bool { return printers[i].Name < printers[j].Name })
	return printers, nil
}

func (d *Dispatcher) env() []string {
	if d.cfg.Server == "" {
		return nil
	}
	return []string{"CUPS_SERVER=" + d.cfg.Server}
}

// parseJobID pulls the numeric job id out of lp's confirmation line,
// returning zero when the output is not in the expected shape.
func parseJobID(out string) int {
	m := jobIDPattern.FindStringSubmatch(out)
	if len(m) != 2 {
		return 0
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return id
}

func parsePrinters(out string) []label.Printer {
	var printers []label.Printer
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "printer" {
			continue
		}
		p := label.Printer{Name: fields[1]}
		switch {
		case strings.Contains(line, "is idle"):
			p.State = stateIdle
		case strings.Contains(line, "printing"):
			p.State = stateProcessing
		case strings.Contains(line, "disabled"):
			p.State = stateStopped
		}
		printers = append(printers, p)
	}
	return printers
}
