package metrics

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "llmbridge"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder collects per-call vendor metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	gatherer prometheus.Gatherer
	handler  http.Handler
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg prometheus.Registerer) (*Recorder, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rec := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Vendor API calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Vendor API call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider", "operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the vendor, by provider, model and kind.",
		}, []string{"provider", "model", "kind"}),
	}
	var err error
	if rec.requests, err = register(reg, rec.requests); err != nil {
		return nil, err
	}
	if rec.latency, err = register(reg, rec.latency); err != nil {
		return nil, err
	}
	if rec.tokens, err = register(reg, rec.tokens); err != nil {
		return nil, err
	}
	rec.gatherer = gatherer
	if gatherer != nil {
		rec.handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	} else {
		rec.handler = promhttp.Handler()
	}
	return rec, nil
}

// register returns the already registered collector when reg has an equal one,
// so several recorders can share a registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// ObserveRequest records one vendor call.
func (r *Recorder) ObserveRequest(provider, operation string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	r.requests.WithLabelValues(provider, operation, outcome).Inc()
	r.latency.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// AddTokens records token usage; kind is e.g. "input", "output", "thoughts".
func (r *Recorder) AddTokens(provider, model, kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.tokens.WithLabelValues(provider, model, kind).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return r.handler
}

// WriteText writes the gathered metrics to w in the Prometheus text format.
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	g := r.gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
