// Package pipeline runs one full audit: probe the sink, load the previous
// snapshot, collect both portals concurrently, reconcile, normalize, and
// commit. A run always finishes with a Summary; only an unwritable sink or a
// portal setup failure aborts it.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/collector"
	"prakashmadai10/gisaudit/config"
	"prakashmadai10/gisaudit/reconcile"
	"prakashmadai10/gisaudit/sink"
	"prakashmadai10/gisaudit/tracking"
)

// Options shape one run; they come from the caller's configuration.
type Options struct {
	MaxItems   int
	MaxWorkers int
	BatchSize  int
	FirstRun   bool
	Mode       reconcile.Mode
	ExcludeTag string
	TestMode   bool
	TestItemID string
	URLs       reconcile.URLTemplates
}

// Summary is the run outcome returned to the caller. Unchanged carries the
// skipped records for the caller to persist; the pipeline never writes files.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	PortalCounts map[audit.Source]int

	Processed int
	Succeeded int
	Failed    int

	ItemFailures   []audit.ItemFailure
	CommitFailures []sink.RecordFailure
	Unchanged      []audit.LayerRecord
}

// Run executes the audit against store with the given portals.
func Run(ctx context.Context, store sink.Store, portals []collector.Portal,
	run config.RunContext, opts Options, logger zerolog.Logger) (*Summary, error) {

	logger.Info().
		Str("run_id", run.RunID).
		Str("label", run.Label()).
		Bool("first_run", opts.FirstRun).
		Str("mode", string(opts.Mode)).
		Msg("audit run starting")

	// The probe gates everything: an unwritable sink makes collection
	// pointless, so no portal call happens before it passes.
	cap, err := sink.Probe(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("sink capability probe: %w", err)
	}
	store.UseCapability(cap)

	prev := sink.EmptySnapshot()
	if !opts.FirstRun {
		prev = sink.LoadSnapshot(ctx, store, run.TimestampMs(), logger)
	}

	tracker := tracking.NewResolver()

	var (
		mu           sync.Mutex
		recordSets   = make([][]audit.LayerRecord, len(portals))
		itemFailures []audit.ItemFailure
		portalCounts = make(map[audit.Source]int, len(portals))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range portals {
		i, p := i, p
		g.Go(func() error {
			col := collector.New(p, cap, prev, tracker, run, collector.Options{
				MaxItems:   opts.MaxItems,
				MaxWorkers: opts.MaxWorkers,
				ExcludeTag: opts.ExcludeTag,
				TestMode:   opts.TestMode,
				TestItemID: opts.TestItemID,
			}, logger)

			records, failures := col.Collect(gctx)

			mu.Lock()
			recordSets[i] = records
			itemFailures = append(itemFailures, failures...)
			portalCounts[p.Source()] = len(records)
			mu.Unlock()
			return nil
		})
	}
	// Collectors swallow their own errors into failure entries.
	_ = g.Wait()

	all := collector.Merge(logger, recordSets...)
	if len(all) == 0 {
		logger.Warn().Msg("no data collected")
	}

	changed, unchanged := reconcile.Partition(all, prev, opts.Mode, opts.FirstRun)
	logger.Info().
		Int("changed", len(changed)).
		Int("unchanged", len(unchanged)).
		Msg("reconciliation complete")

	normalized := reconcile.NormalizeAll(changed, cap, run, opts.URLs)

	report := sink.CommitBatches(ctx, store, normalized, opts.BatchSize, logger)

	summary := &Summary{
		RunID:          run.RunID,
		Started:        run.StartedUTC,
		Finished:       time.Now().UTC(),
		PortalCounts:   portalCounts,
		Processed:      report.Attempted,
		Succeeded:      report.Succeeded,
		Failed:         len(report.Failures),
		ItemFailures:   itemFailures,
		CommitFailures: report.Failures,
		Unchanged:      unchanged,
	}

	logger.Info().
		Str("run_id", summary.RunID).
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Finished.Sub(summary.Started)).
		Msg("audit run complete")

	return summary, nil
}
