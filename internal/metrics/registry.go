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

// Package metrics exposes the Prometheus counters, gauges, and
// histograms emitted by the runtime manager, the DIDComm service, and
// the Sidetree client.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "miax_agent"

// Registry is the collector registry every metric in this package
// registers with, and that Handler serves.
var Registry = prometheus.NewRegistry()
