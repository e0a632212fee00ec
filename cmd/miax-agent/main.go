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

// Command miax-agent is the decentralized-identity agent node binary.
// With no subcommand it runs the worker directly; "controller" runs the
// supervisor and "controlled" runs the worker as spawned by a
// supervisor (spec.md §6 CLI).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miax-network/miax-agent/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "miax-agent",
	Short: "miax decentralized-identity agent node",
	Long: `miax-agent creates and resolves Sidetree-anchored DIDs, seals and
verifies DIDComm-encrypted messages, and supervises its own binary across
in-place update and rollback operations.

With no subcommand it runs the worker directly, matching how a supervised
worker is otherwise spawned with "controlled".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControlled(cmd.Context())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.ErrorMsg("miax-agent exited with error", logger.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(controllerCmd)
	rootCmd.AddCommand(controlledCmd)
}
