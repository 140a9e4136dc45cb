package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kinos/catalog"
	"github.com/yairfalse/kinos/config"
	"github.com/yairfalse/kinos/journal"
	"github.com/yairfalse/kinos/orchestrator"
	"github.com/yairfalse/kinos/policy"
	"github.com/yairfalse/kinos/providers/aws"
)

// loadConfig reads the config file and applies CLI overrides. An unreadable
// or malformed file logs a warning and falls back to defaults; a file that
// parses but fails validation is fatal.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		var parseErr *config.ParseError
		if !errors.As(err, &parseErr) {
			return nil, err
		}
		log.Warn().Err(err).Msg("continuing with default config")
	}

	if flagRegion != "" {
		cfg.Region = flagRegion
	}
	return cfg, nil
}

// cycleRuntime bundles everything one snapshot cycle needs and owns the
// stores it opened
type cycleRuntime struct {
	cfg          *config.Config
	provider     *aws.Provider
	orchestrator *orchestrator.Orchestrator
	catalog      *catalog.Catalog
	journal      *journal.Journal
}

// newCycleRuntime wires provider, stores, guard and notifier into an
// orchestrator per the loaded config
func newCycleRuntime(ctx context.Context, cfg *config.Config, dryRun bool) (*cycleRuntime, error) {
	provider, err := aws.New(ctx, aws.Config{Region: cfg.Region})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws provider: %w", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	jnl, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		_ = cat.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	orch := orchestrator.NewOrchestrator(provider, cfg.Filter(), cfg.RetentionDays).
		WithCatalog(cat).
		WithJournal(jnl).
		WithIdentity(provider.Region(), provider.AccountID()).
		WithDryRun(dryRun)

	if cfg.SNSTopic != "" {
		orch = orch.WithNotifier(provider.Notifier(cfg.SNSTopic))
	}

	if cfg.Guard.PolicyDir != "" {
		guard := policy.NewGuard()
		if err := guard.LoadDir(ctx, cfg.Guard.PolicyDir); err != nil {
			_ = jnl.Close()
			_ = cat.Close()
			return nil, fmt.Errorf("failed to load hold policies: %w", err)
		}
		orch = orch.WithGuard(guard)
	}

	return &cycleRuntime{
		cfg:          cfg,
		provider:     provider,
		orchestrator: orch,
		catalog:      cat,
		journal:      jnl,
	}, nil
}

// Close releases the runtime's stores
func (r *cycleRuntime) Close() {
	if err := r.journal.Close(); err != nil {
		log.Error().Err(err).Msg("journal close failed")
	}
	if err := r.catalog.Close(); err != nil {
		log.Error().Err(err).Msg("catalog close failed")
	}
}

// pruneJournal applies the journal's own retention window
func (r *cycleRuntime) pruneJournal() {
	cleanupCfg := journal.DefaultConfig()
	cleanupCfg.RetentionDays = r.cfg.Journal.RetentionDays

	if err := journal.Cleanup(r.cfg.Journal.Dir, cleanupCfg); err != nil {
		log.Warn().Err(err).Msg("journal cleanup failed")
	}
}
