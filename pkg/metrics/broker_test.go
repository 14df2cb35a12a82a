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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestBrokerMetrics_RecordRPC_Success(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBrokerMetricsWithRegistry(reg)

	m.RecordRPC("GetBundle", 10*time.Millisecond, "")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, hasCounterValue(families, "kbs_rpc_requests_total", map[string]string{"method": "GetBundle", "outcome": "success"}, 1))
}

func TestBrokerMetrics_RecordRPC_Error(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBrokerMetricsWithRegistry(reg)

	m.RecordRPC("GetSecret", 5*time.Millisecond, "PolicyRejected")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, hasCounterValue(families, "kbs_rpc_requests_total", map[string]string{"method": "GetSecret", "outcome": "error"}, 1))
	require.True(t, hasCounterValue(families, "kbs_rpc_errors_total", map[string]string{"method": "GetSecret", "taxonomy": "PolicyRejected"}, 1))
}

func hasCounterValue(families []*dto.MetricFamily, name string, labels map[string]string, want float64) bool {
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if matchesLabels(metric.GetLabel(), labels) && metric.GetCounter().GetValue() == want {
				return true
			}
		}
	}
	return false
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	got := make(map[string]string, len(pairs))
	for _, p := range pairs {
		got[p.GetName()] = p.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
