package sink

import (
	"context"

	"github.com/rs/zerolog"

	"prakashmadai10/gisaudit/audit"
)

// SnapshotRow is the prior run's state for one (source, item, sublayer) key.
type SnapshotRow struct {
	Key audit.Key

	TotalFeatures *int64

	ItemCreatedMs   *int64
	ItemUpdatedMs   *int64
	DataUpdatedMs   *int64
	SchemaUpdatedMs *int64

	RunTimestampMs int64
}

// PreviousSnapshot maps each key to its most recent prior record. Read-only
// once loaded; shared across collector workers without locking.
type PreviousSnapshot struct {
	rows map[audit.Key]SnapshotRow
}

func (s *PreviousSnapshot) Lookup(k audit.Key) (SnapshotRow, bool) {
	row, ok := s.rows[k]
	return row, ok
}

func (s *PreviousSnapshot) Empty() bool { return len(s.rows) == 0 }

func (s *PreviousSnapshot) Len() int { return len(s.rows) }

// PreviousCount returns the prior feature count for a key, if one was
// recorded. The two-value form keeps "no prior data" distinct from zero.
func (s *PreviousSnapshot) PreviousCount(k audit.Key) (int64, bool) {
	row, ok := s.rows[k]
	if !ok || row.TotalFeatures == nil {
		return 0, false
	}
	return *row.TotalFeatures, true
}

// EmptySnapshot is the first-run baseline.
func EmptySnapshot() *PreviousSnapshot {
	return &PreviousSnapshot{rows: make(map[audit.Key]SnapshotRow)}
}

// SnapshotFromRows builds a snapshot directly from rows, keeping the latest
// entry per key. Rows already deduplicated pass through unchanged.
func SnapshotFromRows(rows []SnapshotRow) *PreviousSnapshot {
	snap := EmptySnapshot()
	for _, row := range rows {
		if prev, ok := snap.rows[row.Key]; ok && prev.RunTimestampMs >= row.RunTimestampMs {
			continue
		}
		snap.rows[row.Key] = row
	}
	return snap
}

// SnapshotQuerier is the slice of the sink consulted by LoadSnapshot. Rows may
// contain multiple entries per key (historical data).
type SnapshotQuerier interface {
	SnapshotRows(ctx context.Context, beforeMs int64) ([]SnapshotRow, error)
}

// LoadSnapshot reads the most recent prior record per key, considering only
// rows older than beforeMs. An empty table is a first run, not an error; a
// query failure also degrades to first-run semantics with a warning, because
// an aborted audit is worse than a full re-baseline.
func LoadSnapshot(ctx context.Context, q SnapshotQuerier, beforeMs int64, logger zerolog.Logger) *PreviousSnapshot {
	rows, err := q.SnapshotRows(ctx, beforeMs)
	if err != nil {
		logger.Warn().Err(err).Msg("could not load previous snapshot, treating as first run")
		return EmptySnapshot()
	}
	snap := SnapshotFromRows(rows)

	if snap.Empty() {
		logger.Info().Msg("no previous audit records found")
	} else {
		logger.Info().Int("layers", snap.Len()).Msg("loaded previous snapshot")
	}
	return snap
}
