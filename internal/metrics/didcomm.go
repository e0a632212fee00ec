// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DIDCommSeals tracks Service.Generate outcomes.
	DIDCommSeals = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "didcomm",
			Name:      "seals_total",
			Help:      "Total number of DIDComm messages sealed",
		},
		[]string{"status"}, // success, failure
	)

	// DIDCommUnseals tracks Service.Verify outcomes.
	DIDCommUnseals = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "didcomm",
			Name:      "unseals_total",
			Help:      "Total number of DIDComm messages verified",
		},
		[]string{"status"}, // success, failure
	)

	// DIDCommOperationDuration tracks seal/verify latency.
	DIDCommOperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "didcomm",
			Name:      "operation_duration_seconds",
			Help:      "DIDComm seal/verify operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to 1.6s
		},
		[]string{"operation"}, // seal, verify
	)
)
