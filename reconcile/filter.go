// Package reconcile classifies collected records as changed or unchanged
// against the previous snapshot and normalizes the changed set to the sink's
// field contract.
package reconcile

import (
	"fmt"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/sink"
)

// Mode selects the rule deciding whether a record counts as changed.
type Mode string

const (
	// ModeDeltaOnly: changed iff the feature-count delta is non-zero or the
	// key is new.
	ModeDeltaOnly Mode = "delta"

	// ModeDateOrDelta: changed additionally when any of the four timestamps
	// differs from the snapshot.
	ModeDateOrDelta Mode = "date-or-delta"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDeltaOnly, ModeDateOrDelta:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown reconcile mode %q", s)
}

// Partition splits records into (changed, unchanged). firstRun forces every
// record changed regardless of the snapshot; an empty baseline must never be
// read as "everything unchanged". Deterministic: same inputs, same partitions.
func Partition(records []audit.LayerRecord, prev *sink.PreviousSnapshot, mode Mode, firstRun bool) (changed, unchanged []audit.LayerRecord) {
	if firstRun {
		return append([]audit.LayerRecord{}, records...), nil
	}

	for i := range records {
		if isChanged(&records[i], prev, mode) {
			changed = append(changed, records[i])
		} else {
			unchanged = append(unchanged, records[i])
		}
	}
	return changed, unchanged
}

func isChanged(rec *audit.LayerRecord, prev *sink.PreviousSnapshot, mode Mode) bool {
	if prev == nil {
		return true
	}
	prevRow, existed := prev.Lookup(rec.Key())
	if !existed {
		return true
	}

	// A nil delta against an existing key means the current or prior count is
	// unknown; we cannot claim "unchanged", so it stays in.
	deltaChanged := rec.DeltaFeatures == nil || *rec.DeltaFeatures != 0
	if deltaChanged {
		return true
	}
	if mode == ModeDeltaOnly {
		return false
	}

	return timestampDiffers(rec.ItemCreatedMs, prevRow.ItemCreatedMs) ||
		timestampDiffers(rec.ItemUpdatedMs, prevRow.ItemUpdatedMs) ||
		timestampDiffers(rec.DataUpdatedMs, prevRow.DataUpdatedMs) ||
		timestampDiffers(rec.SchemaUpdatedMs, prevRow.SchemaUpdatedMs)
}

// timestampDiffers treats a value present on one side only as a change. Seeing
// a timestamp appear (or vanish) is as much a schema/data event as seeing it
// move.
func timestampDiffers(cur, prev *int64) bool {
	switch {
	case cur == nil && prev == nil:
		return false
	case cur == nil || prev == nil:
		return true
	default:
		return *cur != *prev
	}
}
