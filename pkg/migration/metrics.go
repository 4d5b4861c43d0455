// Copyright 2024 The saturn.io Authors
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

package migration

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	migrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saturn",
		Name:      "migrations_total",
		Help:      "Environment migrations by final status.",
	}, []string{"status"})
	migrationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "saturn",
		Name:      "migration_duration_seconds",
		Help:      "Execution time of environment migrations.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	precheckFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saturn",
		Name:      "precheck_failures_total",
		Help:      "Failed pre-migration checks by check name.",
	}, []string{"check"})
)

func init() {
	prometheus.MustRegister(migrationsTotal, migrationDuration, precheckFailuresTotal)
}

func observePreCheck(result *PreCheckResult) {
	for name, check := range result.Checks {
		if !check.Pass {
			precheckFailuresTotal.WithLabelValues(name).Inc()
		}
	}
}
