// Package metrics exposes the Prometheus counters, gauges, and
// histograms the connect/session/crypto packages record against.
// Every metric in this package shares the teamauth namespace and a
// dedicated registry so the demo CLI can serve /metrics without
// pulling in the global default registry's Go-runtime noise.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "teamauth"

// Registry is the registry every metric in this package registers
// against. promhttp.HandlerFor(Registry, ...) serves it.
var Registry = prometheus.NewRegistry()
