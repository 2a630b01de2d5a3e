package obs

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tag is one key-value dimension on a metric sample.
type Tag struct {
	Key   string
	Value string
}

// T builds a Tag.
func T(key, value string) Tag { return Tag{Key: key, Value: value} }

// Registry is the process-wide metrics store. Samples are keyed by name plus
// ordered tags: counters are monotonic, gauges hold the last value, timers
// keep a distribution. Counter and gauge values stay readable in-process
// (the health evaluator polls them) and every sample is mirrored into a
// Prometheus collector for scraping.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64

	prom         *prometheus.Registry
	promCounters map[string]*prometheus.CounterVec
	promGauges   map[string]*prometheus.GaugeVec
	promTimers   map[string]*prometheus.HistogramVec
	buildInfo    *prometheus.GaugeVec
}

// NewRegistry constructs an empty registry with its own Prometheus registry
// behind it.
func NewRegistry() *Registry {
	r := &Registry{
		counters:     make(map[string]int64),
		gauges:       make(map[string]float64),
		prom:         prometheus.NewRegistry(),
		promCounters: make(map[string]*prometheus.CounterVec),
		promGauges:   make(map[string]*prometheus.GaugeVec),
		promTimers:   make(map[string]*prometheus.HistogramVec),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "medguard_build_info",
				Help: "Medguard build information.",
			},
			[]string{"version", "commit"},
		),
	}
	r.prom.MustRegister(r.buildInfo)
	return r
}

// Increment adds one to the counter identified by name and tags.
func (r *Registry) Increment(name string, tags ...Tag) {
	key := sampleKey(name, tags)
	r.mu.Lock()
	r.counters[key]++
	vec, ok := r.promCounters[name]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: promName(name) + "_total",
				Help: "Counter " + name + ".",
			},
			labelNames(tags),
		)
		if err := r.prom.Register(vec); err != nil {
			vec = nil
		} else {
			r.promCounters[name] = vec
		}
	}
	r.mu.Unlock()
	if vec != nil {
		if m, err := vec.GetMetricWith(labels(tags)); err == nil {
			m.Inc()
		}
	}
}

// RecordDuration observes d on the timer identified by name and tags.
func (r *Registry) RecordDuration(name string, d time.Duration, tags ...Tag) {
	r.mu.Lock()
	vec, ok := r.promTimers[name]
	if !ok {
		vec = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    promName(name) + "_seconds",
				Help:    "Timer " + name + " in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			labelNames(tags),
		)
		if err := r.prom.Register(vec); err != nil {
			vec = nil
		} else {
			r.promTimers[name] = vec
		}
	}
	r.mu.Unlock()
	if vec != nil {
		if m, err := vec.GetMetricWith(labels(tags)); err == nil {
			m.Observe(d.Seconds())
		}
	}
}

// SetGauge stores the current value of the gauge identified by name and tags.
func (r *Registry) SetGauge(name string, value float64, tags ...Tag) {
	key := sampleKey(name, tags)
	r.mu.Lock()
	r.gauges[key] = value
	vec, ok := r.promGauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: promName(name),
				Help: "Gauge " + name + ".",
			},
			labelNames(tags),
		)
		if err := r.prom.Register(vec); err != nil {
			vec = nil
		} else {
			r.promGauges[name] = vec
		}
	}
	r.mu.Unlock()
	if vec != nil {
		if m, err := vec.GetMetricWith(labels(tags)); err == nil {
			m.Set(value)
		}
	}
}

// CounterValue returns the current count for name and tags, zero if the
// counter was never incremented.
func (r *Registry) CounterValue(name string, tags ...Tag) int64 {
	key := sampleKey(name, tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

// GaugeValue returns the last value set for name and tags, zero if the gauge
// was never set.
func (r *Registry) GaugeValue(name string, tags ...Tag) float64 {
	key := sampleKey(name, tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[key]
}

// SetBuildInfo publishes the build_info gauge with value 1.
func (r *Registry) SetBuildInfo(version, commit string) {
	r.buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler exposes the Prometheus scrape endpoint for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

func sampleKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, t.Key+"="+t.Value)
	}
	sort.Strings(parts)
	return name + "|" + strings.Join(parts, ",")
}

func labelNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Key)
	}
	sort.Strings(names)
	return names
}

func labels(tags []Tag) prometheus.Labels {
	out := make(prometheus.Labels, len(tags))
	for _, t := range tags {
		out[t.Key] = t.Value
	}
	return out
}

var promReplacer = strings.NewReplacer(".", "_", "-", "_")

func promName(name string) string {
	return "medguard_" + promReplacer.Replace(name)
}
