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
	// StateTransitions tracks Idle/Update/Rollback state-machine moves
	// the runtime manager broadcasts (spec.md §4.10).
	StateTransitions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "state_transitions_total",
			Help:      "Total number of runtime state-machine transitions",
		},
		[]string{"from", "to"},
	)

	// ProcessesLaunched tracks agent/controller processes spawned by
	// the process manager.
	ProcessesLaunched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "processes_launched_total",
			Help:      "Total number of processes launched by the runtime manager",
		},
		[]string{"feat_type"}, // agent, controller
	)

	// TrackedProcesses reports how many processes currently occupy the
	// shared-memory process table's four slots.
	TrackedProcesses = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "tracked_processes",
			Help:      "Number of processes currently tracked in runtime shared memory",
		},
	)
)
