package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// stepClock advances a fixed amount on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Unix(1700000000, 0).UTC(), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// captureSink remembers every event it receives.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Record(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func TestRecorderCumulativeTimeline(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	rec := NewRecorder("run-1", newStepClock(100*time.Millisecond), sink)

	rec.Add(StageDetect, "type=pdf")
	rec.Addf(StageRender, "page %d of %d, %dx%d", 1, 3, 2550, 3300)

	records := rec.Records()
	require.Len(t, records, 2)
	require.Equal(t, Record{Name: "detect", Detail: "type=pdf", ElapsedMS: 100}, records[0])
	require.Equal(t, "render", records[1].Name)
	require.Equal(t, "page 1 of 3, 2550x3300", records[1].Detail)
	require.Equal(t, int64(200), records[1].ElapsedMS)

	require.Len(t, sink.events, 2)
	require.Equal(t, "run-1", sink.events[0].RunID)
	require.Equal(t, StageDetect, sink.events[0].Stage)
	require.Equal(t, 100*time.Millisecond, sink.events[0].Elapsed)
	require.Equal(t, 100*time.Millisecond, sink.events[0].StageDur)
	require.Equal(t, 200*time.Millisecond, sink.events[1].Elapsed)
	require.Equal(t, 100*time.Millisecond, sink.events[1].StageDur)
}

func TestRecorderRecordsAreCopies(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("run-2", newStepClock(time.Millisecond))
	rec.Add(StageLoad, "800x600")

	records := rec.Records()
	records[0].Detail = "mutated"

	require.Equal(t, "800x600", rec.Records()[0].Detail)
}

func TestRecorderToleratesNilSink(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("run-3", newStepClock(time.Millisecond), nil)
	rec.Add(StageError, "boom")
	require.Len(t, rec.Records(), 1)
}

func TestLogSinkEmitsStructuredFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	sink.Record(Event{
		RunID:    "run-4",
		Stage:    StageEncode,
		Detail:   "61440 bytes (ascii)",
		Elapsed:  time.Second,
		StageDur: 200 * time.Millisecond,
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "pipeline stage", entries[0].Message)

	fields := entries[0].ContextMap()
	require.Equal(t, "run-4", fields["run_id"])
	require.Equal(t, "encode", fields["stage"])
	require.Equal(t, "61440 bytes (ascii)", fields["detail"])

	// A nil logger degrades to a no-op rather than panicking.
	NewLogSink(nil).Record(Event{Stage: StagePrint})
}

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are updated from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	sink.Record(Event{RunID: "run-5", Stage: StageDetect, StageDur: 10 * time.Millisecond})
	sink.Record(Event{RunID: "run-5", Stage: StageRender, StageDur: 2 * time.Second})
	sink.Record(Event{RunID: "run-5", Stage: StageRender, StageDur: 1 * time.Second})

	require.Equal(t, 1.0, testutil.ToFloat64(sink.stagesTotal.WithLabelValues("detect")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.stagesTotal.WithLabelValues("render")))
	require.Equal(t, 2, testutil.CollectAndCount(sink.stageDuration, "labeld_stage_duration_seconds"))
}

func TestPrometheusSinkRejectsDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
