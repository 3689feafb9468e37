// Package prompush implements metrics.Backend on a private Prometheus
// registry that is pushed to a Pushgateway on Flush. A batch job has no
// scrape endpoint that outlives it, so push is the delivery model.
package prompush

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"salesdw/internal/metrics"
)

// Options configures the Pushgateway backend.
type Options struct {
	// URL of the Pushgateway, e.g. http://pushgateway:9091.
	URL string
	// Job is the Pushgateway job label. Defaults to "salesdw".
	Job string
	// Grouping adds grouping labels (e.g. instance, env).
	Grouping map[string]string
}

// Backend buffers into Prometheus collectors keyed by metric name and label
// set. Label names are fixed per metric at first use.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher
	ctx    context.Context

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New validates opts and builds the backend. Nothing is sent until Flush.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("prompush: url is required")
	}
	job := opts.Job
	if job == "" {
		job = "salesdw"
	}

	reg := prometheus.NewRegistry()
	p := push.New(opts.URL, job).Gatherer(reg)
	for _, k := range sortedKeys(opts.Grouping) {
		p = p.Grouping(k, opts.Grouping[k])
	}

	return &Backend{
		reg:        reg,
		pusher:     p,
		ctx:        ctx,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

// IncCounter implements metrics.Backend. Non-positive deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, sortedKeys(labels))
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.counters[name] = vec
	}
	if c, err := vec.GetMetricWith(prometheus.Labels(labels)); err == nil {
		c.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Negative values are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help(name),
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, sortedKeys(labels))
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.histograms[name] = vec
	}
	if h, err := vec.GetMetricWith(prometheus.Labels(labels)); err == nil {
		h.Observe(value)
	}
}

// Flush pushes the registry, replacing the job's previous group.
func (b *Backend) Flush() error {
	if err := b.pusher.PushContext(b.ctx); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Gatherer exposes the registry for inspection.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }

func help(name string) string {
	return "salesdw metric " + name
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ metrics.Backend = (*Backend)(nil)
