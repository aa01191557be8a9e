package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"centroid/internal/embedding"
	"centroid/internal/indexworker"
	"centroid/internal/observability"
	"centroid/internal/obsmetrics"
	"centroid/internal/service"
	"centroid/internal/silo"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background index-update worker against the configured stores",
	Long: `serve wires internal/store, internal/vectorstore, internal/embedding,
internal/silo and internal/service together and runs
internal/indexworker.Worker until interrupted. It does not expose an HTTP
surface — that integration is out of scope for this repository; serve exists
to give the component packages a runnable host for operators and for any
embedding application to import internal/service directly.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	observability.InitLogger(cfg.LogPath, firstNonEmpty(cfg.LogLevel, "info"))

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Observability.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("init otel: %w", err)
		}
		defer shutdown(context.Background())
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	vecCfg, err := parseVectorDSN(cfg.Vector.DSN)
	if err != nil {
		return fmt.Errorf("parse vector dsn: %w", err)
	}
	vec, err := vectorstore.NewClient(vecCfg)
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer vec.Close()

	emb, err := embedding.NewRegistryFromConfig(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("build embedding registry: %w", err)
	}

	st := store.New(pool)
	siloMgr := silo.New(pool, st, vec, cfg.Postgres.AdminSchema, cfg.Vector.Dimensions)
	if err := siloMgr.EnsureCatalog(ctx); err != nil {
		return fmt.Errorf("ensure silo catalog: %w", err)
	}

	logger := observability.LoggerWithTrace(ctx)

	svcOpts := []service.Option{service.WithLogger(service.NewZerologLogger(*logger))}
	var workerOpts []indexworker.Option
	if cfg.Observability.OTLP != "" {
		metrics := obsmetrics.NewOtelMetrics()
		svcOpts = append(svcOpts, service.WithMetrics(metrics))
		workerOpts = append(workerOpts, indexworker.WithMetrics(metrics))
	}

	svc, err := service.New(st, vec, emb, siloMgr, cfg, svcOpts...)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	svc.Start(ctx)
	_ = svc // no in-process caller: serve hosts the façade for an embedding application to import, and blocks on the worker below

	worker := indexworker.New(st, vec, emb, service.NewIndexWorkerTenantSource(siloMgr), cfg.Ingestion.IndexUpdate.BatchSize, cfg.Ingestion.IndexUpdate.Sleep, workerOpts...)
	worker.Start(ctx, cfg.Ingestion.IndexUpdate.Sleep)

	logger.Info().Msg("centroidctl serve: index-update worker running")
	<-ctx.Done()
	return nil
}
