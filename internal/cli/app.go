package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/admin"
	"github.com/pitabwire/govconsole/internal/capability"
	"github.com/pitabwire/govconsole/internal/config"
	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/internal/dedupe"
	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/internal/store"
)

// app is everything a command needs to route interactions.
type app struct {
	store     store.Store
	resolver  *capability.Resolver
	dashboard *console.Dashboard

	// guard is nil when redelivery protection is off. guardCheck is set
	// for guards with a remote backend.
	guard      dedupe.Guard
	guardCheck observability.HealthChecker

	closers []func() error
}

// newApp opens the store, migrates it, and builds the dashboard. metrics
// may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*app, error) {
	a := &app{}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.ResolveDSN(), cfg.Store.MaxConns)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	if err := st.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("static policy: %w", err)
	}
	a.resolver = capability.NewResolver(evaluator, cfg.Capability.Cache.TTL)

	opts := admin.Options{
		ID:       cfg.Console.Dashboard,
		PageSize: cfg.Console.PageSize,
		Logger:   logger,
	}
	if metrics != nil {
		a.resolver.SetRecorder(metrics)
		opts.Observer = metrics
	}
	if expr := cfg.Console.ProposalsRule; expr != "" {
		rule, err := capability.NewRule(expr)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("console.proposals_rule: %w", err)
		}
		opts.ProposalsRule = rule
	}
	a.dashboard, err = admin.New(st, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Dedupe.Enabled {
		switch cfg.Dedupe.Driver {
		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr: cfg.Dedupe.Addr(),
				DB:   cfg.Dedupe.DB,
			})
			a.closers = append(a.closers, client.Close)
			g := dedupe.NewRedisGuard(client, cfg.Dedupe.TTL)
			a.guard, a.guardCheck = g, g
		default:
			a.guard = dedupe.NewMemoryGuard(cfg.Dedupe.TTL)
		}
	}

	logger.Info("console ready",
		zap.String("dashboard", a.dashboard.ID()),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("dedupe", a.guard != nil),
	)
	return a, nil
}

// Close releases the store and any remote clients, last opened first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
