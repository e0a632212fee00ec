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

// Package version holds the agent's own build version: the controller
// gates update bundles on it (§4.11) and the worker reports it over
// GET /internal/version/get (§6).
package version

// Version is this binary's own major.minor.patch string, populated at
// build time via -ldflags "-X .../internal/version.Version=1.2.3". Both
// the controller and the worker are built from the same binary, so a
// single build-time value serves CARGO_PKG_VERSION's role in spec.md
// §4.11 step 1 for both process kinds.
var Version = "0.1.0"
