// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provider health and breaker state",
		Long:  "Query the running daemon and display each provider's health score, availability, and circuit state.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "daemon address to query (defaults to server.listen)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("server.listen")
	}
	out := cmd.OutOrStdout()

	dc := newDaemonClient(addr)

	var provBody struct {
		Providers []health.Snapshot `json:"providers"`
	}
	if err := dc.getJSON("/api/v1/providers", &provBody); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Daemon at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	var brBody struct {
		Breakers []health.BreakerSnapshot `json:"breakers"`
	}
	if err := dc.getJSON("/api/v1/breakers", &brBody); err != nil {
		return err
	}

	states := make(map[string]health.BreakerSnapshot, len(brBody.Breakers))
	for _, b := range brBody.Breakers {
		states[b.Provider] = b
	}

	_, _ = fmt.Fprintf(out, "Daemon at %s: %d providers\n\n", addr, len(provBody.Providers))
	_, _ = fmt.Fprintf(out, "%-14s %-12s %-7s %-10s %s\n", "PROVIDER", "STATUS", "SCORE", "CIRCUIT", "LAST ERROR")
	for _, p := range provBody.Providers {
		status := "available"
		if !p.Available {
			status = "unavailable"
		}
		circuit := "closed"
		if b, ok := states[p.Provider]; ok {
			circuit = b.State
		}
		lastErr := p.LastError
		if len(lastErr) > 48 {
			lastErr = lastErr[:45] + "..."
		}
		_, _ = fmt.Fprintf(out, "%-14s %-12s %-7.2f %-10s %s\n", p.Provider, status, p.Score, circuit, lastErr)
	}
	return nil
}
