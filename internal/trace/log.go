package trace

import "go.uber.org/zap"

// LogSink emits structured logs for each completed stage. It is useful in
// development or audits where metrics alone are too coarse.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record logs one stage event using structured fields.
func (s *LogSink) Record(evt Event) {
	s.logger.Info("pipeline stage",
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
		zap.String("detail", evt.Detail),
		zap.Duration("elapsed", evt.Elapsed),
		zap.Duration("stage_dur", evt.StageDur),
	)
}
