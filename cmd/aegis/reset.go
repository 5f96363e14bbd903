// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset all circuit breakers",
		Long:  "Tell the running daemon to force every circuit breaker back to closed with counters cleared.",
		RunE:  runReset,
	}

	cmd.Flags().String("address", "", "daemon address (defaults to server.listen)")

	return cmd
}

func runReset(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("server.listen")
	}

	dc := newDaemonClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := dc.postJSON("/api/v1/breakers/reset", &body); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Daemon at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All circuit breakers reset.")
	return nil
}
