// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshid/teamauth/crypto/keys"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 device identity key and write it to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := keys.GenerateEd25519KeyPair()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		priv, ok := kp.PrivateKey().(ed25519.PrivateKey)
		if !ok {
			return fmt.Errorf("unexpected private key type")
		}
		if err := os.WriteFile(keygenOut, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote device key to %s (id=%s)\n", keygenOut, kp.ID())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "device.key", "output path for the generated key")
	rootCmd.AddCommand(keygenCmd)
}

// loadDeviceKey reads back a key file written by keygen.
func loadDeviceKey(path, id string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seed, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	return ed25519.PrivateKey(seed), nil
}
