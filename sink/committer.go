package sink

import (
	"context"

	"github.com/rs/zerolog"

	"prakashmadai10/gisaudit/audit"
)

// DefaultBatchSize matches the sink's edit payload sweet spot.
const DefaultBatchSize = 2000

// RowResult is one row's outcome from a batch insert.
type RowResult struct {
	OK     bool
	Reason string
}

// RecordFailure identifies a record the sink rejected and why.
type RecordFailure struct {
	Key    audit.Key
	Reason string
}

// CommitReport summarizes a commit: Attempted == Succeeded + len(Failures).
type CommitReport struct {
	Attempted int
	Succeeded int
	Failures  []RecordFailure
}

// BatchInserter is the slice of the sink consulted by CommitBatches.
type BatchInserter interface {
	InsertRows(ctx context.Context, records []audit.LayerRecord) ([]RowResult, error)
}

// CommitBatches partitions records into fixed-size batches, preserving input
// order, and submits each independently. A failed batch marks its rows failed
// and the remaining batches still run; one bad batch never blocks the rest of
// the run.
func CommitBatches(ctx context.Context, ins BatchInserter, records []audit.LayerRecord, batchSize int, logger zerolog.Logger) CommitReport {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	report := CommitReport{Attempted: len(records)}
	if len(records) == 0 {
		return report
	}

	batchNum := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		batchNum++

		results, err := ins.InsertRows(ctx, batch)
		if err != nil {
			logger.Error().Err(err).Int("batch", batchNum).Int("rows", len(batch)).Msg("batch insert failed")
			for i := range batch {
				report.Failures = append(report.Failures, RecordFailure{
					Key:    batch[i].Key(),
					Reason: err.Error(),
				})
			}
			continue
		}

		succeeded := 0
		for i := range batch {
			if i >= len(results) {
				report.Failures = append(report.Failures, RecordFailure{
					Key:    batch[i].Key(),
					Reason: "no result returned for row",
				})
				continue
			}
			if results[i].OK {
				succeeded++
				continue
			}
			report.Failures = append(report.Failures, RecordFailure{
				Key:    batch[i].Key(),
				Reason: results[i].Reason,
			})
		}
		report.Succeeded += succeeded

		if succeeded == len(batch) {
			logger.Info().Int("batch", batchNum).Int("rows", len(batch)).Msg("batch committed")
		} else {
			logger.Warn().Int("batch", batchNum).
				Int("succeeded", succeeded).
				Int("failed", len(batch)-succeeded).
				Msg("partial batch commit")
		}
	}

	return report
}
