// Package metrics exposes Prometheus collectors for content operations. The
// collectors are fed through a simplecms.Hooks bundle.
package metrics

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Collector provides content engine metrics.
type Collector struct {
	registry *prometheus.Registry

	itemWrites *prometheus.CounterVec
	failures   *prometheus.CounterVec
	vetoes     *prometheus.CounterVec
}

// NewCollector creates a collector on its own registry, together with the Go
// runtime and process collectors.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "simplecms"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.itemWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "items",
			Name:      "writes_total",
			Help:      "Completed content item writes by content type and operation",
		},
		[]string{"type", "op"},
	)

	c.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operations",
			Name:      "errors_total",
			Help:      "Failed content operations by content type, operation and error kind",
		},
		[]string{"type", "op", "kind"},
	)

	c.vetoes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "vetoes_total",
			Help:      "Operations denied by a before-hook",
		},
		[]string{"type", "op"},
	)

	c.registry.MustRegister(
		c.itemWrites,
		c.failures,
		c.vetoes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// UnknownType is the type label for operations on undeclared content types.
// It keeps the label set bounded by the declarations.
const UnknownType = "unknown"

func typeLabel(hctx simplecms.HookContext) string {
	if !hctx.Declared {
		return UnknownType
	}
	return hctx.TypeSlug
}

// RecordWrite counts a completed item write.
func (c *Collector) RecordWrite(typeSlug, op string) {
	c.itemWrites.WithLabelValues(typeSlug, op).Inc()
}

// RecordError counts a failed operation. Denials are also counted as vetoes.
func (c *Collector) RecordError(typeSlug, op string, err error) {
	kind := simplecms.KindOf(err)
	c.failures.WithLabelValues(typeSlug, op, string(kind)).Inc()
	if kind == simplecms.KindDenied {
		c.vetoes.WithLabelValues(typeSlug, op).Inc()
	}
}

// Hooks returns the bundle that feeds this collector.
func (c *Collector) Hooks() simplecms.Hooks {
	return simplecms.Hooks{
		AfterCreate: []simplecms.AfterCreateHook{
			func(hctx simplecms.HookContext, item *simplecms.Item) error {
				c.RecordWrite(typeLabel(hctx), "create")
				return nil
			},
		},
		AfterUpdate: []simplecms.AfterUpdateHook{
			func(hctx simplecms.HookContext, item *simplecms.Item) error {
				c.RecordWrite(typeLabel(hctx), "update")
				return nil
			},
		},
		AfterDelete: []simplecms.AfterDeleteHook{
			func(hctx simplecms.HookContext, id uuid.UUID) error {
				c.RecordWrite(typeLabel(hctx), "delete")
				return nil
			},
		},
		OnError: []simplecms.ErrorHook{
			func(hctx simplecms.HookContext, operation string, err error) {
				c.RecordError(typeLabel(hctx), operation, err)
			},
		},
	}
}
