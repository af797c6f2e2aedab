package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/collector"
	"prakashmadai10/gisaudit/config"
	"prakashmadai10/gisaudit/logging"
	"prakashmadai10/gisaudit/pipeline"
	"prakashmadai10/gisaudit/portal"
	"prakashmadai10/gisaudit/reconcile"
	"prakashmadai10/gisaudit/sink"
)

func main() {
	logger := logging.New("gisaudit")
	ctx := context.Background()

	cfg, err := config.LoadEnvConfig("settings.env")
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration failed")
	}

	mode, err := reconcile.ParseMode(cfg.ReconcileMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration failed")
	}

	pool, err := pgxpool.New(ctx, cfg.AuditDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to audit database failed")
	}
	defer pool.Close()

	store := sink.NewAuditTable(pool, cfg.AuditTable)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("audit table bootstrap failed")
	}

	run := config.NewRunContext(cfg.Location)

	portals := []collector.Portal{
		portal.NewClient(audit.SourceEnterprise, cfg.EnterpriseURL, cfg.EnterpriseToken, logger),
		portal.NewClient(audit.SourceOnline, cfg.OnlineURL, cfg.OnlineToken, logger),
	}

	summary, err := pipeline.Run(ctx, store, portals, run, pipeline.Options{
		MaxItems:   cfg.MaxItems,
		MaxWorkers: cfg.MaxWorkers,
		BatchSize:  cfg.BatchSize,
		FirstRun:   cfg.FirstRun,
		Mode:       mode,
		ExcludeTag: cfg.ExcludeTag,
		TestMode:   cfg.TestMode,
		TestItemID: cfg.TestItemID,
		URLs: reconcile.URLTemplates{
			Enterprise: cfg.EnterpriseURL,
			Online:     cfg.OnlineURL,
		},
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("audit run aborted")
	}

	for _, f := range summary.ItemFailures {
		logger.Warn().
			Str("portal", string(f.Source)).
			Str("item", f.ItemID).
			Str("title", f.Title).
			Str("reason", f.Reason).
			Msg("item not collected")
	}
	for _, f := range summary.CommitFailures {
		logger.Warn().
			Str("portal", string(f.Key.Source)).
			Str("item", f.Key.ItemID).
			Int64("sublayer", f.Key.SublayerID).
			Str("reason", f.Reason).
			Msg("record rejected by sink")
	}
	logger.Info().Int("unchanged", len(summary.Unchanged)).Msg("skipped records available for export")

	os.Exit(0)
}
