// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/commond/internal/protocol"
)

var (
	// requestsTotal counts dispatched requests by command and reply status
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commond_requests_total",
			Help: "Total requests by command and reply status",
		},
		[]string{"command", "status"},
	)

	// requestDuration tracks handling time per command
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commond_request_duration_seconds",
			Help:    "Request handling time by command",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
		[]string{"command"},
	)

	// liveAlerts tracks the number of live alerts
	liveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "commond_live_alerts",
			Help: "Number of alerts currently raised",
		},
	)
)

// recordRequest records one dispatched request
func recordRequest(command string, status protocol.Status, elapsed time.Duration) {
	requestsTotal.WithLabelValues(command, string(status)).Inc()
	requestDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}
