// Package metrics aggregates per-command latency statistics for the lifetime of the server.
package metrics

import (
	"slices"
	"sync"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/samber/lo"

	"mini-cmd/message"
)

// histogramSize is the reservoir size of each per-kind latency sample.
const histogramSize = 1028

// Aggregator keeps count, min, max and mean latency per command kind.
// It is safe for concurrent use; each Record is applied in a single critical section.
type Aggregator struct {
	mu    sync.Mutex
	count map[message.CommandKind]uint64
	min   map[message.CommandKind]float64
	max   map[message.CommandKind]float64
	avg   map[message.CommandKind]float64
	// hist holds latencies in microseconds for the percentile view.
	hist map[message.CommandKind]gometrics.Histogram
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		count: make(map[message.CommandKind]uint64),
		min:   make(map[message.CommandKind]float64),
		max:   make(map[message.CommandKind]float64),
		avg:   make(map[message.CommandKind]float64),
		hist:  make(map[message.CommandKind]gometrics.Histogram),
	}
}

// Record adds one completed command of the given kind that took ms milliseconds,
// and returns the number of commands of that kind recorded so far.
func (a *Aggregator) Record(kind message.CommandKind, ms float64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count[kind]++
	n := a.count[kind]

	if cur, ok := a.min[kind]; !ok || ms < cur {
		a.min[kind] = ms
	}
	if cur, ok := a.max[kind]; !ok || ms > cur {
		a.max[kind] = ms
	}
	if cur, ok := a.avg[kind]; ok {
		a.avg[kind] = cur + (ms-cur)/float64(n)
	} else {
		a.avg[kind] = ms
	}

	h, ok := a.hist[kind]
	if !ok {
		h = gometrics.NewHistogram(gometrics.NewUniformSample(histogramSize))
		a.hist[kind] = h
	}
	h.Update(int64(ms * 1000))

	return n
}

// Snapshot is a point-in-time copy of the aggregated statistics.
type Snapshot struct {
	Count   map[message.CommandKind]uint64      `json:"count"`
	MinMs   map[message.CommandKind]float64     `json:"min_ms"`
	MaxMs   map[message.CommandKind]float64     `json:"max_ms"`
	AvgMs   map[message.CommandKind]float64     `json:"avg_ms"`
	Latency map[message.CommandKind]Percentiles `json:"latency"`
}

// Percentiles are sampled latency percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`
}

// Snapshot copies the current statistics.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Count:   make(map[message.CommandKind]uint64, len(a.count)),
		MinMs:   make(map[message.CommandKind]float64, len(a.min)),
		MaxMs:   make(map[message.CommandKind]float64, len(a.max)),
		AvgMs:   make(map[message.CommandKind]float64, len(a.avg)),
		Latency: make(map[message.CommandKind]Percentiles, len(a.hist)),
	}
	for k, v := range a.count {
		s.Count[k] = v
		s.MinMs[k] = a.min[k]
		s.MaxMs[k] = a.max[k]
		s.AvgMs[k] = a.avg[k]
	}
	for k, h := range a.hist {
		ps := h.Snapshot().Percentiles([]float64{0.5, 0.95, 0.99})
		s.Latency[k] = Percentiles{P50: ps[0] / 1000, P95: ps[1] / 1000, P99: ps[2] / 1000}
	}
	return s
}

// Kinds returns the recorded command kinds in lexical order.
func (s Snapshot) Kinds() []message.CommandKind {
	kinds := lo.Keys(s.Count)
	slices.Sort(kinds)
	return kinds
}
