package mdm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/mdm/errs"
)

// Error kinds used as the "kind" label of mdm_decode_errors_total.
const (
	ErrorKindFormat             = "format"
	ErrorKindMissingField       = "missing_field"
	ErrorKindUnsupportedFeature = "unsupported_feature"
	ErrorKindUnsupportedFormat  = "unsupported_format"
	ErrorKindOther              = "other"
)

// Metrics counts reconciliation outcomes.
type Metrics struct {
	reg prometheus.Registerer

	definitions  prometheus.Counter
	joined       prometheus.Counter
	missed       prometheus.Counter
	decodeErrors *prometheus.CounterVec
}

// NewMetrics creates the reconciler counters and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		reg: reg,
		definitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdm_definitions_total",
			Help: "Definition records decoded and stored in the cache.",
		}),
		joined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdm_points_joined_total",
			Help: "Point records joined with a cached definition.",
		}),
		missed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdm_points_missed_total",
			Help: "Point records dropped because no definition was cached.",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdm_decode_errors_total",
			Help: "Messages that failed to decode, by error kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.definitions, m.joined, m.missed, m.decodeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// observeCacheSize registers the mdm_cached_definitions gauge backed by size.
func (m *Metrics) observeCacheSize(size func() int) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mdm_cached_definitions",
		Help: "Definitions currently held in the cache, including expired entries not yet swept.",
	}, func() float64 { return float64(size()) })

	return m.reg.Register(g)
}

func (m *Metrics) incDefinition() {
	if m != nil {
		m.definitions.Inc()
	}
}

func (m *Metrics) incJoined() {
	if m != nil {
		m.joined.Inc()
	}
}

func (m *Metrics) incMissed() {
	if m != nil {
		m.missed.Inc()
	}
}

func (m *Metrics) incError(err error) {
	if m != nil {
		m.decodeErrors.WithLabelValues(ErrorKind(err)).Inc()
	}
}

// ErrorKind classifies err by the errs sentinel it wraps.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, errs.ErrUnsupportedFormat):
		return ErrorKindUnsupportedFormat
	case errors.Is(err, errs.ErrUnsupportedFeature):
		return ErrorKindUnsupportedFeature
	case errors.Is(err, errs.ErrMissingField):
		return ErrorKindMissingField
	case errors.Is(err, errs.ErrFormat):
		return ErrorKindFormat
	default:
		return ErrorKindOther
	}
}
