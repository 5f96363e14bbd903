// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/store"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Propose tuned thresholds from observed performance",
		Long:  "Read the persisted attempt history and propose adjusted performance, breaker, and retry thresholds. Proposals are printed; --save writes them back to the config file.",
		RunE:  runOptimize,
	}

	cmd.Flags().Bool("save", false, "write the proposed configuration back to the config file")
	cmd.Flags().Duration("window", 7*24*time.Hour, "how far back to read attempt history")

	return cmd
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	window, _ := cmd.Flags().GetDuration("window")
	stats, err := st.Metrics().Stats(cmd.Context(), time.Now().Add(-window))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(stats) == 0 {
		_, _ = fmt.Fprintln(out, "No attempt history recorded yet; nothing to optimize.")
		return nil
	}

	proposed := config.Optimize(cfg, stats)

	_, _ = fmt.Fprintf(out, "Observed history (%d providers, last %s):\n", len(stats), window)
	for _, s := range stats {
		_, _ = fmt.Fprintf(out, "  %-14s attempts=%d success=%.0f%% p95=%s\n",
			s.Provider, s.Attempts, s.SuccessRate()*100, s.P95Latency.Round(time.Millisecond))
	}

	_, _ = fmt.Fprintln(out, "\nProposed thresholds:")
	printProposal(out, "performance.max_response_time_ms",
		cfg.Performance.MaxResponseTimeMS, proposed.Performance.MaxResponseTimeMS)
	printProposal(out, "breaker.failure_threshold",
		int64(cfg.Breaker.FailureThreshold), int64(proposed.Breaker.FailureThreshold))
	printProposal(out, "retry.max_retries",
		int64(cfg.Retry.MaxRetries), int64(proposed.Retry.MaxRetries))

	save, _ := cmd.Flags().GetBool("save")
	if !save {
		_, _ = fmt.Fprintln(out, "\nRun with --save to apply.")
		return nil
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		return aegiserr.New(aegiserr.CodeConfigSaveWriteFailure,
			"no config file in use; pass --config to choose where to save")
	}
	if err := config.Save(proposed, path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "\nSaved to %s\n", path)
	return nil
}

func printProposal(out io.Writer, key string, current, next int64) {
	if current == next {
		_, _ = fmt.Fprintf(out, "  %-36s %d (unchanged)\n", key, current)
		return
	}
	_, _ = fmt.Fprintf(out, "  %-36s %d -> %d\n", key, current, next)
}
