// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/events"
	"github.com/aegis-dev/aegis/internal/failover"
	"github.com/aegis-dev/aegis/internal/health"
	"github.com/aegis-dev/aegis/internal/orchestrator"
	"github.com/aegis-dev/aegis/internal/provider"
	_ "github.com/aegis-dev/aegis/internal/provider/anthropic" // register anthropic factory
	_ "github.com/aegis-dev/aegis/internal/provider/google"    // register google factory
	_ "github.com/aegis-dev/aegis/internal/provider/ollama"    // register ollama factory
	_ "github.com/aegis-dev/aegis/internal/provider/openai"    // register openai factory
	"github.com/aegis-dev/aegis/internal/retry"
	"github.com/aegis-dev/aegis/internal/secrets"
	"github.com/aegis-dev/aegis/internal/server"
	"github.com/aegis-dev/aegis/internal/store"
	_ "github.com/aegis-dev/aegis/internal/store/sqlite" // register sqlite backend
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Daemon holds all wired subsystems and manages their lifecycle.
type Daemon struct {
	Config       *config.Config
	Registry     *provider.Registry
	Breakers     *breaker.Set
	Events       *events.Log
	Store        store.Store
	Monitor      *health.Monitor
	Selector     *failover.Selector
	Orchestrator *orchestrator.Orchestrator
	Server       *server.Server
}

// WireDaemon creates all subsystems and wires them together.
func WireDaemon(cfg *config.Config) (*Daemon, error) {
	resolver := secrets.NewResolver(secrets.NewKeyringStore())

	if issues := cfg.Validate(resolver.Has); config.HasErrors(issues) {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"invalid configuration:\n%s", config.JoinIssues(issues))
	}

	// 1. Provider registry — a missing or credential-less primary is fatal,
	// broken fallbacks are logged and skipped.
	reg, err := provider.NewRegistry(cfg, resolver)
	if err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "building provider registry")
	}

	// 2. Shared breaker set — monitor, selector, and orchestrator all
	// observe the same circuits.
	breakers := breaker.NewSet(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout(),
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	})

	// 3. Event log and persistence. Store failures degrade to logging via
	// the event sink; store setup failure itself is fatal.
	log := events.NewLog(0)
	st, err := store.Open(cfg.Storage)
	if err != nil {
		_ = reg.Close()
		return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "opening event store")
	}
	sink := events.Tee{log, store.NewEventSink(st.Events())}

	// 4. Health monitor with each provider's probe registered.
	mon := health.NewMonitor(cfg.Health, cfg.Performance, breakers, sink)
	for _, id := range reg.IDs() {
		inv, err := reg.Get(id)
		if err != nil {
			continue
		}
		mon.Register(id, inv.Probe)
	}

	// 5. Selection, retry, and orchestration.
	sel := failover.NewSelector(cfg.Selection, cfg.Providers, mon, breakers)
	pol := retry.NewPolicy(cfg.Retry)
	orch := orchestrator.New(orchestrator.Deps{
		Primary:  cfg.Primary,
		Registry: reg,
		Monitor:  mon,
		Breakers: breakers,
		Selector: sel,
		Policy:   pol,
		Events:   sink,
		Metrics:  st.Metrics(),
	})

	// 6. HTTP observability surface.
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		_ = reg.Close()
		_ = st.Close()
		return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "creating server")
	}
	srv.RegisterServices(&server.Services{
		Health:   mon,
		Breakers: breakers,
		Events:   log,
		Invoker:  orch,
	})

	return &Daemon{
		Config:       cfg,
		Registry:     reg,
		Breakers:     breakers,
		Events:       log,
		Store:        st,
		Monitor:      mon,
		Selector:     sel,
		Orchestrator: orch,
		Server:       srv,
	}, nil
}

// Start primes provider health, launches the background probe loop, and
// runs the HTTP server until the context is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.Monitor.CheckAll(ctx); err != nil {
		slog.Warn("initial health check failed", "error", err)
	}
	d.Monitor.StartBackgroundLoop()
	defer d.Monitor.StopBackgroundLoop()

	slog.Info("aegis daemon started",
		"listen", d.Config.Server.Listen,
		"primary", d.Config.Primary,
		"providers", len(d.Config.Providers))

	return d.Server.Start(ctx)
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	var errs []error
	if d.Registry != nil {
		if err := d.Registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
