// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshid/teamauth/health"
	"github.com/meshid/teamauth/internal/logger"
	"github.com/meshid/teamauth/transport/wsrelay"
)

var (
	relayAddr   string
	relaySecret string
	healthPort  int
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a WebSocket relay that pairs two peers by session ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Default()

		tokens := wsrelay.NewTokenIssuer([]byte(relaySecret), time.Hour)
		relay := wsrelay.NewRelay(tokens)

		mux := http.NewServeMux()
		mux.Handle("/relay", relay.Handler())
		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			sid := r.URL.Query().Get("session")
			if sid == "" {
				http.Error(w, "missing session query parameter", http.StatusBadRequest)
				return
			}
			tok, err := tokens.Mint(sid)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, tok)
		})

		checker := health.NewHealthChecker(5 * time.Second)
		checker.SetLogger(log)
		hs := health.NewServer(checker, log, healthPort)
		if err := hs.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}

		log.Info("relay listening", logger.String("addr", relayAddr))
		return http.ListenAndServe(relayAddr, mux)
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayAddr, "addr", ":8765", "address the relay listens on")
	relayCmd.Flags().StringVar(&relaySecret, "secret", "", "HMAC secret used to mint/verify relay bearer tokens")
	relayCmd.Flags().IntVar(&healthPort, "health-port", 8080, "port serving /health and /metrics")
	rootCmd.AddCommand(relayCmd)
}
