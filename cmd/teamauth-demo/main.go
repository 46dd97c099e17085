// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "teamauth-demo",
	Short: "teamauth demo CLI - exercise the pairwise connection protocol over a real socket",
	Long: `teamauth-demo wires the connect/chain/crypto/transport packages
together behind a real WebSocket relay. It is a demo app, not part of
the protocol's core: it exists to exercise connect.Connection against
an actual network socket the way cmd/sage-did exercises did/crypto in
the teacher repo.

This tool supports:
- Generating a device identity key
- Running a relay server two peers dial into
- Running one side of a pairwise connection (admin or invitee)`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
