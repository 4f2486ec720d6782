package main

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/auth"
	"github.com/adpilot/engine/internal/config"
	"github.com/adpilot/engine/internal/executor"
	"github.com/adpilot/engine/internal/guard"
	"github.com/adpilot/engine/internal/platform"
	"github.com/adpilot/engine/internal/store"
	"github.com/adpilot/engine/internal/telemetry"
	"github.com/adpilot/engine/internal/workflow"
)

// app is the wired service shared by every command.
type app struct {
	db        *sql.DB
	store     *store.Store
	registry  *prometheus.Registry
	metrics   *telemetry.Metrics
	auth      *auth.Authenticator
	engine    *workflow.Engine
	pipeline  *workflow.Pipeline
	approvals *workflow.Approvals
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	st := store.New(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg)

	meta := platform.NewMetaClient(platform.MetaOptions{
		BaseURL:    cfg.Platform.BaseURL,
		Timeout:    cfg.PlatformTimeout(),
		MaxRetries: cfg.Platform.MaxRetries,
		RetryBase:  cfg.PlatformRetryBase(),
	}, log.Named("platform"), metrics)

	g := guard.NewGuard(guard.GuardConfig{
		MinDailyBudgetCents:        cfg.Budget.MinDailyCents,
		DefaultMaxDailyBudgetCents: cfg.Budget.DefaultMaxDailyCents,
	})
	exec := executor.New(st, meta, g, log.Named("executor"), metrics)
	exec.FallbackToken = cfg.Platform.AccessToken

	authn := auth.New(st)
	engine := workflow.NewEngine(db)

	return &app{
		db:        db,
		store:     st,
		registry:  reg,
		metrics:   metrics,
		auth:      authn,
		engine:    engine,
		pipeline:  workflow.NewPipeline(engine, st, st, log.Named("pipeline"), metrics),
		approvals: workflow.NewApprovals(engine, authn, st, exec, st, log.Named("approvals"), metrics),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
