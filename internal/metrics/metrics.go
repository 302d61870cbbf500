// Package metrics defines the Prometheus metrics exported by weatherdash.
// They register with the default registry on import and are served by the
// echoprometheus handler at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weatherdash"

// ── Synchronizer metrics ──────────────────────────────────────────────────────

// StreamEventsTotal counts push events applied to a dashboard list.
// Labels:
//   - kind: "latest_data", "created", "updated" or "deleted"
//   - result: "applied" or "ignored" (absent id, filtered city)
var StreamEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_events_total",
		Help:      "Total number of push events received by dashboards, by kind and result.",
	},
	[]string{"kind", "result"},
)

// FetchesTotal counts REST record fetches.
// Label:
//   - outcome: "ok", "stale", "unauthorized" or "error"
var FetchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetches_total",
		Help:      "Total number of record fetches, by outcome.",
	},
	[]string{"outcome"},
)

// FetchDuration measures the round trip of a record fetch.
var FetchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of record fetches against the backend.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ActiveMounts is the number of mounted dashboards.
var ActiveMounts = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_mounts",
		Help:      "Current number of mounted dashboards holding a stream connection.",
	},
)

// StreamReconnectsTotal counts stream connection attempts after the first.
var StreamReconnectsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_reconnects_total",
		Help:      "Total number of event stream reconnect attempts.",
	},
)

// ── Web metrics ───────────────────────────────────────────────────────────────

// FormSubmissionsTotal counts CRUD form submissions.
// Labels:
//   - form: "create", "edit" or "delete"
//   - result: "ok", "invalid" or "failed"
var FormSubmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "form_submissions_total",
		Help:      "Total number of record form submissions, by form and result.",
	},
	[]string{"form", "result"},
)

// BrowserClients is the number of connected browser push sockets.
var BrowserClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_clients",
		Help:      "Current number of browser websocket connections.",
	},
)

// RateLimitedTotal counts requests rejected by the auth rate limiter.
// Label:
//   - path: the route pattern, e.g. "/login"
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter, by route.",
	},
	[]string{"path"},
)
