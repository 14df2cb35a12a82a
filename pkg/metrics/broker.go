/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BrokerMetrics holds Prometheus metrics for the two attestation RPCs.
type BrokerMetrics struct {
	// RPCDurationSeconds tracks latency per RPC method.
	RPCDurationSeconds *prometheus.HistogramVec
	// RPCRequestsTotal counts requests per method and outcome.
	RPCRequestsTotal *prometheus.CounterVec
	// RPCErrorsTotal counts errors per method and taxonomy bucket.
	RPCErrorsTotal *prometheus.CounterVec
	// SessionsParked tracks live (not yet consumed) session store entries.
	SessionsParked prometheus.Gauge
}

// NewBrokerMetrics creates and registers broker RPC metrics on the default registry.
func NewBrokerMetrics() *BrokerMetrics {
	return &BrokerMetrics{
		RPCDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kbs_rpc_duration_seconds",
			Help:    "Duration of GetBundle/GetSecret calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		RPCRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kbs_rpc_requests_total",
			Help: "Total RPC calls by method and outcome",
		}, []string{"method", "outcome"}),
		RPCErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kbs_rpc_errors_total",
			Help: "Total RPC errors by method and error taxonomy bucket",
		}, []string{"method", "taxonomy"}),
		SessionsParked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kbs_sessions_parked",
			Help: "Number of initialized sessions currently parked awaiting GetSecret",
		}),
	}
}

// NewBrokerMetricsWithRegistry creates broker metrics on an isolated
// registry, for tests or per-process composition roots that do not want
// the global default registry.
func NewBrokerMetricsWithRegistry(reg *prometheus.Registry) *BrokerMetrics {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kbs_rpc_duration_seconds",
		Help:    "Duration of GetBundle/GetSecret calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kbs_rpc_requests_total",
		Help: "Total RPC calls by method and outcome",
	}, []string{"method", "outcome"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kbs_rpc_errors_total",
		Help: "Total RPC errors by method and error taxonomy bucket",
	}, []string{"method", "taxonomy"})
	sessionsParked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kbs_sessions_parked",
		Help: "Number of initialized sessions currently parked awaiting GetSecret",
	})

	reg.MustRegister(duration, requests, errorsTotal, sessionsParked)

	return &BrokerMetrics{
		RPCDurationSeconds: duration,
		RPCRequestsTotal:   requests,
		RPCErrorsTotal:     errorsTotal,
		SessionsParked:     sessionsParked,
	}
}

// RecordRPC observes an RPC's duration and outcome. taxonomy is empty on
// success.
func (m *BrokerMetrics) RecordRPC(method string, d time.Duration, taxonomy string) {
	m.RPCDurationSeconds.WithLabelValues(method).Observe(d.Seconds())
	if taxonomy == "" {
		m.RPCRequestsTotal.WithLabelValues(method, "success").Inc()
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, "error").Inc()
	m.RPCErrorsTotal.WithLabelValues(method, taxonomy).Inc()
}
