package config

import (
	"time"

	"github.com/google/uuid"
)

// RunContext carries the identity and start time of one audit run. It is
// immutable and threaded explicitly through collectors and transformers so the
// same run metadata lands on every record.
type RunContext struct {
	RunID      string
	StartedUTC time.Time
	Location   *time.Location
}

func NewRunContext(loc *time.Location) RunContext {
	if loc == nil {
		loc = time.UTC
	}
	return RunContext{
		RunID:      uuid.New().String(),
		StartedUTC: time.Now().UTC(),
		Location:   loc,
	}
}

// LocalNow is the run start in the configured timezone.
func (rc RunContext) LocalNow() time.Time {
	return rc.StartedUTC.In(rc.Location)
}

// Label is the human-readable run stamp written to every record.
func (rc RunContext) Label() string {
	return rc.LocalNow().Format("2006-01-02 03:04 PM MST")
}

// TimestampMs is the run start as epoch milliseconds.
func (rc RunContext) TimestampMs() int64 {
	return rc.StartedUTC.UnixMilli()
}
