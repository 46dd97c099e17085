// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meshid/teamauth/chain"
	"github.com/meshid/teamauth/connect"
	sagecrypto "github.com/meshid/teamauth/crypto"
	"github.com/meshid/teamauth/crypto/keys"
	"github.com/meshid/teamauth/internal/logger"
	"github.com/meshid/teamauth/invite"
	"github.com/meshid/teamauth/pkg/storage/memory"
)

var joinArgs struct {
	relayURL    string
	tokenURL    string
	session     string
	inviteeName string
	inviteeKind string
	seed        string
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Run the invitee side of a pairwise connection",
	Long: `join admits a device into an existing team using only an
invitation seed transcribed out of band. Its device identity key is
the starter keypair deterministically derived from (invitee, seed) —
the same credential proves the invitation and, once admitted, signs
every future identity challenge (spec.md §4.B, §4.C).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		chain.SetStarterKeyVerifier(invite.VerifyProof)
		chain.SetStarterKeyDeriver(invite.DerivePublicKey)

		invitee := connect.Invitee{Kind: joinArgs.inviteeKind, Name: joinArgs.inviteeName}
		priv, err := invite.GenerateStarterKeys(invitee, joinArgs.seed)
		if err != nil {
			return fmt.Errorf("derive starter key: %w", err)
		}
		kp, err := keys.NewEd25519KeyPair(priv, joinArgs.inviteeName)
		if err != nil {
			return fmt.Errorf("wrap starter key: %w", err)
		}

		ctx := connect.NewInviteeContext(kp, invitee, joinArgs.seed)

		dialCtx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		peer, err := dialRelay(dialCtx, joinArgs.relayURL, joinArgs.tokenURL, joinArgs.session)
		if err != nil {
			return fmt.Errorf("dial relay: %w", err)
		}
		defer peer.Close()

		conn := connect.New(ctx, sagecrypto.Provider{}, peer, connect.DefaultConfig())
		peer.Attach(conn)
		wireLogging(conn, logger.Default())
		persistSession(conn, ctx, memory.NewStore(), joinArgs.session, joinArgs.inviteeName, logger.Default())

		conn.Start(nil)
		defer conn.Stop()

		waitForInterrupt()
		return nil
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinArgs.relayURL, "relay-url", "ws://127.0.0.1:8765/relay", "relay WebSocket URL")
	joinCmd.Flags().StringVar(&joinArgs.tokenURL, "token-url", "http://127.0.0.1:8765/token", "relay token endpoint")
	joinCmd.Flags().StringVar(&joinArgs.session, "session", "demo", "rendezvous session ID shared with the host")
	joinCmd.Flags().StringVar(&joinArgs.inviteeName, "invitee-name", "", "invitee name the host issued an invitation for")
	joinCmd.Flags().StringVar(&joinArgs.inviteeKind, "invitee-kind", "DEVICE", "invitee kind: MEMBER or DEVICE")
	joinCmd.Flags().StringVar(&joinArgs.seed, "seed", "", "invitation seed transcribed from the host")
	rootCmd.AddCommand(joinCmd)
}
