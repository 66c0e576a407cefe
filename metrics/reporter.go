package metrics

import (
	"context"
	"time"

	"mini-cmd/logger"
)

// Config controls periodic reporting. A zero ReportInterval disables it.
type Config struct {
	ReportInterval time.Duration `mapstructure:"report_interval" validate:"gte=0" default:"1m"`
}

// Reporter periodically writes the aggregator's snapshot to the log.
type Reporter struct {
	agg      *Aggregator
	logger   logger.Logger
	interval time.Duration
}

// NewReporter creates a reporter that logs every interval.
func NewReporter(agg *Aggregator, log logger.Logger, interval time.Duration) *Reporter {
	return &Reporter{agg: agg, logger: log.Named("metrics"), interval: interval}
}

// Run logs snapshots until ctx is done. A non-positive interval disables reporting.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			LogSnapshot(r.logger, r.agg.Snapshot())
		}
	}
}

// LogSnapshot writes one entry per command kind.
func LogSnapshot(log logger.Logger, s Snapshot) {
	if len(s.Count) == 0 {
		log.Infow("no commands processed")
		return
	}
	for _, kind := range s.Kinds() {
		p := s.Latency[kind]
		log.Infow("command statistics",
			"command", kind,
			"count", s.Count[kind],
			"min_ms", s.MinMs[kind],
			"max_ms", s.MaxMs[kind],
			"avg_ms", s.AvgMs[kind],
			"p50_ms", p.P50,
			"p95_ms", p.P95,
			"p99_ms", p.P99,
		)
	}
}
