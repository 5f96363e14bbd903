// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/secrets"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [provider]",
		Short: "Probe configured providers",
		Long:  "Build each configured provider and run its health probe once. With an argument, probes only that provider.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTest,
	}
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolver := secrets.NewResolver(secrets.NewKeyringStore())
	reg, err := provider.NewRegistry(cfg, resolver)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	ids := reg.IDs()
	if len(args) == 1 {
		if _, err := reg.Get(args[0]); err != nil {
			return err
		}
		ids = []string{args[0]}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, id := range ids {
		inv, err := reg.Get(id)
		if err != nil {
			continue
		}

		probeCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Health.ProbeTimeout())
		probeErr := inv.Probe(probeCtx)
		cancel()

		if probeErr != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %-14s %s\n", id, probeErr)
			continue
		}
		_, _ = fmt.Fprintf(out, "OK    %-14s\n", id)
	}

	if failed > 0 {
		return aegiserr.Errorf(aegiserr.CodeProviderUnavailable, "%d of %d providers failed their probe", failed, len(ids))
	}
	return nil
}
