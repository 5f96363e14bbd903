// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/secrets"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long:  "Check the provider topology, thresholds, and credential references. Warnings are advisory; errors prevent the daemon from starting.",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	// Unmarshal without the fail-closed check so a broken config still
	// gets its issues itemized below instead of a single parse error.
	cfg, err := config.Unmarshal(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolver := secrets.NewResolver(secrets.NewKeyringStore())
	issues := cfg.Validate(resolver.Has)

	out := cmd.OutOrStdout()
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}

	for _, issue := range issues {
		_, _ = fmt.Fprintln(out, issue.String())
	}

	if config.HasErrors(issues) {
		return aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "configuration has errors")
	}
	_, _ = fmt.Fprintln(out, "Configuration is valid (with warnings).")
	return nil
}
