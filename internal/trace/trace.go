// Package trace records per-run pipeline progress and fans completed stage
// events out to pluggable sinks.
package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/printops/labelpress/internal/label"
)

// Stage denotes the pipeline milestone an event belongs to.
type Stage string

// Supported pipeline stages, in the order a run visits them.
const (
	StageDetect  Stage = "detect"
	StageRender  Stage = "render"
	StageLoad    Stage = "load"
	StageExtract Stage = "extract"
	StageProcess Stage = "process"
	StageEncode  Stage = "encode"
	StagePrint   Stage = "print"
	StageError   Stage = "error"
)

// Record is one completed stage entry as reported to API clients. Elapsed
// counts from run start, so a trace reads as a cumulative timeline.
type Record struct {
	Name      string `json:"name"`
	Detail    string `json:"detail"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Event is the sink-facing view of one completed stage.
type Event struct {
	// RunID identifies the pipeline run emitting the event.
	RunID string
	// Stage denotes which milestone completed.
	Stage Stage
	// Detail carries human-readable context (dimensions, page numbers).
	Detail string
	// Elapsed is the time since run start.
	Elapsed time.Duration
	// StageDur is the time spent in this stage alone.
	StageDur time.Duration
	// At is the completion timestamp.
	At time.Time
}

// Sink consumes completed stage events. Implementations must be safe for
// concurrent use; a single sink instance serves every run.
type Sink interface {
	Record(evt Event)
}

// Recorder accumulates the stage trace for a single pipeline run and
// forwards each entry to the configured sinks as it lands.
type Recorder struct {
	runID string
	clock label.Clock
	sinks []Sink

	mu      sync.Mutex
	start   time.Time
	prev    time.Duration
	records []Record
}

// NewRecorder starts a trace for one run. A nil clock falls back to the
// system clock.
func NewRecorder(runID string, clk label.Clock, sinks ...Sink) *Recorder {
	if clk == nil {
		clk = sysClock{}
	}
	return &Recorder{
		runID: runID,
		clock: clk,
		sinks: sinks,
		start: clk.Now(),
	}
}

// Add appends one completed stage and notifies the sinks.
func (r *Recorder) Add(stage Stage, detail string) {
	now := r.clock.Now()

	r.mu.Lock()
	elapsed := now.Sub(r.start)
	stageDur := elapsed - r.prev
	if stageDur < 0 {
		stageDur = 0
	}
	r.prev = elapsed
	r.records = append(r.records, Record{
		Name:      string(stage),
		Detail:    detail,
		ElapsedMS: elapsed.Milliseconds(),
	})
	r.mu.Unlock()

	evt := Event{
		RunID:    r.runID,
		Stage:    stage,
		Detail:   detail,
		Elapsed:  elapsed,
		StageDur: stageDur,
		At:       now,
	}
	for _, s := range r.sinks {
		if s != nil {
			s.Record(evt)
		}
	}
}

// Addf appends a stage with a formatted detail string.
func (r *Recorder) Addf(stage Stage, format string, args ...any) {
	r.Add(stage, fmt.Sprintf(format, args...))
}

// Records returns a copy of the trace so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Elapsed returns the time since the run started.
func (r *Recorder) Elapsed() time.Duration {
	return r.clock.Now().Sub(r.start)
}

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now() }
