// Package dispatch resolves decoded requests into responses.
//
// Dispatch is the single entry point: it runs the command, times it, records the
// latency with the Recorder and turns any failure into an error Response. Batch
// commands call Dispatch again for each of their items, in order.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/code19m/errx"
	"github.com/samber/lo"

	"mini-cmd/calc"
	"mini-cmd/logger"
	"mini-cmd/message"
)

// CodeUnsupportedCommand is returned for a request without a known command.
const CodeUnsupportedCommand = "UNSUPPORTED_COMMAND"

// Recorder receives the latency of every completed non-batch command.
type Recorder interface {
	Record(kind message.CommandKind, ms float64) uint64
}

// Dispatcher executes commands. It is safe for concurrent use as long as its Recorder is.
type Dispatcher struct {
	recorder Recorder
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-command debug entries.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.Named("dispatch") }
}

// WithClock replaces the clock read by the time command.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher recording into rec.
func New(rec Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		recorder: rec,
		logger:   logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves req into exactly one Response.
//
// Every command except Batch is timed and recorded. A Batch always succeeds: its value is
// the list of item responses in input order, with failed items represented as error entries.
func (d *Dispatcher) Dispatch(ctx context.Context, req message.Request) message.Response {
	if req.Command == nil {
		return message.ErrorResponse(&req.RequestID, "request has no command")
	}

	if batch, ok := req.Command.(message.Batch); ok {
		return message.OKResponse(req.RequestID, d.dispatchBatch(ctx, batch))
	}

	kind := req.Command.Kind()
	start := time.Now()
	value, err := d.execute(req.Command)
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	count := d.recorder.Record(kind, elapsed)
	d.logger.Debugw("processed command",
		"command", kind,
		"request_id", req.RequestID,
		"duration_ms", elapsed,
		"count", count,
	)

	if err != nil {
		return message.ErrorResponse(&req.RequestID, err.Error())
	}
	return message.OKResponse(req.RequestID, value)
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, batch message.Batch) []message.Response {
	return lo.Map(batch.Items, func(item message.BatchItem, _ int) message.Response {
		if item.Err != nil {
			return item.Err.Response()
		}
		return d.Dispatch(ctx, item.Request)
	})
}

func (d *Dispatcher) execute(cmd message.Command) (any, error) {
	switch c := cmd.(type) {
	case message.Ping:
		return "pong", nil
	case message.Echo:
		if c.Value == nil {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(c.Value) {
			return nil, errx.New("echo payload is not valid JSON", errx.WithCode(message.CodeInvalidPayload))
		}
		return c.Value, nil
	case message.Time:
		return message.TimeResult{Time: d.now().UTC().Format(time.RFC3339)}, nil
	case message.Calculate:
		result, err := calc.Evaluate(c.Operation, c.A, c.B)
		if err != nil {
			return nil, err
		}
		return message.CalcResult{Result: result}, nil
	}
	return nil, errx.New("unsupported command `"+string(cmd.Kind())+"`", errx.WithCode(CodeUnsupportedCommand))
}
