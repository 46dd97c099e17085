// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshid/teamauth/chain"
	"github.com/meshid/teamauth/connect"
	sagecrypto "github.com/meshid/teamauth/crypto"
	"github.com/meshid/teamauth/crypto/keys"
	"github.com/meshid/teamauth/internal/logger"
	"github.com/meshid/teamauth/invite"
	"github.com/meshid/teamauth/pkg/storage/memory"
)

var hostArgs struct {
	keyPath    string
	relayURL   string
	tokenURL   string
	session    string
	user       string
	device     string
	inviteName string
	inviteKind string
	seed       string
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run the team-admin side of a pairwise connection",
	Long: `host bootstraps a brand-new team chain with this device as its
genesis admin, optionally opens an invitation slot for a second device,
and waits for a peer to connect through the relay.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		chain.SetStarterKeyVerifier(invite.VerifyProof)
		chain.SetStarterKeyDeriver(invite.DerivePublicKey)

		priv, err := loadDeviceKey(hostArgs.keyPath, hostArgs.user+"::"+hostArgs.device)
		if err != nil {
			return err
		}
		kp, err := keys.NewEd25519KeyPair(priv, hostArgs.user+"::"+hostArgs.device)
		if err != nil {
			return fmt.Errorf("wrap device key: %w", err)
		}
		pub := priv.Public().(ed25519.PublicKey)

		team := chain.New(hostArgs.user, hostArgs.device, pub, pub)

		if hostArgs.inviteName != "" {
			team.Invite(connect.Invitee{Kind: hostArgs.inviteKind, Name: hostArgs.inviteName}, hostArgs.seed)
			fmt.Fprintf(cmd.OutOrStdout(), "invitation open for %s %q, seed %q\n", hostArgs.inviteKind, hostArgs.inviteName, hostArgs.seed)
		}

		ctx := connect.NewContext(kp, hostArgs.user, hostArgs.device, team)

		dialCtx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		peer, err := dialRelay(dialCtx, hostArgs.relayURL, hostArgs.tokenURL, hostArgs.session)
		if err != nil {
			return fmt.Errorf("dial relay: %w", err)
		}
		defer peer.Close()

		conn := connect.New(ctx, sagecrypto.Provider{}, peer, connect.DefaultConfig())
		peer.Attach(conn)
		wireLogging(conn, logger.Default())
		persistSession(conn, ctx, memory.NewStore(), hostArgs.session, hostArgs.user+"::"+hostArgs.device, logger.Default())

		conn.Start(nil)
		defer conn.Stop()

		waitForInterrupt()
		return nil
	},
}

func init() {
	hostCmd.Flags().StringVar(&hostArgs.keyPath, "key", "device.key", "path to this device's identity key")
	hostCmd.Flags().StringVar(&hostArgs.relayURL, "relay-url", "ws://127.0.0.1:8765/relay", "relay WebSocket URL")
	hostCmd.Flags().StringVar(&hostArgs.tokenURL, "token-url", "http://127.0.0.1:8765/token", "relay token endpoint")
	hostCmd.Flags().StringVar(&hostArgs.session, "session", "demo", "rendezvous session ID shared with the peer")
	hostCmd.Flags().StringVar(&hostArgs.user, "user", "admin", "this device's user name")
	hostCmd.Flags().StringVar(&hostArgs.device, "device", "primary", "this device's device name")
	hostCmd.Flags().StringVar(&hostArgs.inviteName, "invite-name", "", "invitee name to open an invitation for")
	hostCmd.Flags().StringVar(&hostArgs.inviteKind, "invite-kind", "DEVICE", "invitee kind: MEMBER or DEVICE")
	hostCmd.Flags().StringVar(&hostArgs.seed, "seed", "", "invitation seed to hand the invitee out of band")
	rootCmd.AddCommand(hostCmd)
}

// wireLogging attaches observable-event listeners that just log, so
// both host and join print the same handshake narrative.
func wireLogging(conn *connect.Connection, log logger.Logger) {
	conn.OnChange(func(s connect.Summary) {
		log.Info("connection state changed", logger.String("state", s.State.String()), logger.String("invitation", s.InvitationState))
	})
	conn.OnJoined(func(t connect.Team) {
		log.Info("joined team", logger.String("head", t.Head()))
	})
	conn.OnConnected(func() {
		log.Info("connected: session key established")
	})
	conn.OnDisconnected(func(reason string) {
		log.Warn("disconnected", logger.String("reason", reason))
	})
	conn.OnMessage(func(plaintext []byte) {
		log.Info("received message", logger.String("body", string(plaintext)))
	})
}

func waitForInterrupt() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
}
