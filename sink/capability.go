package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnwritable means the audit table does not allow inserts. This is the one
// condition that aborts a run before any collection work starts.
var ErrUnwritable = errors.New("audit table is not writable")

// Optional column names probed on the sink. Records only carry these values
// when the column actually exists downstream.
const (
	colSublayerID    = "sub_layer_id"
	colSublayerName  = "sub_layer_name"
	colOwner         = "owner"
	colItemURL       = "item_url"
	colServiceURL    = "service_url"
	colDeltaFeatures = "delta_features"
)

// Capability describes what the sink supports. Computed once per run by Probe
// and shared read-only by every downstream stage.
type Capability struct {
	CanCreate bool

	SublayerID    bool
	SublayerName  bool
	Owner         bool
	ItemURL       bool
	ServiceURL    bool
	DeltaFeatures bool

	fields map[string]struct{}
}

// Has reports whether the sink declares a column with this exact name
// (case-insensitive).
func (c Capability) Has(name string) bool {
	_, ok := c.fields[strings.ToLower(name)]
	return ok
}

// SchemaInspector is the slice of the sink consulted by Probe.
type SchemaInspector interface {
	Fields(ctx context.Context) ([]string, error)
	CanCreate(ctx context.Context) (bool, error)
}

// Probe inspects the sink's field list and edit capability. Optional-field
// detection is exact name membership, no heuristics. A sink without create
// capability fails with ErrUnwritable.
func Probe(ctx context.Context, ins SchemaInspector) (Capability, error) {
	canCreate, err := ins.CanCreate(ctx)
	if err != nil {
		return Capability{}, fmt.Errorf("probing create capability: %w", err)
	}
	if !canCreate {
		return Capability{}, ErrUnwritable
	}

	names, err := ins.Fields(ctx)
	if err != nil {
		return Capability{}, fmt.Errorf("probing field list: %w", err)
	}

	fields := make(map[string]struct{}, len(names))
	for _, n := range names {
		fields[strings.ToLower(n)] = struct{}{}
	}

	cap := Capability{CanCreate: true, fields: fields}
	cap.SublayerID = cap.Has(colSublayerID)
	cap.SublayerName = cap.Has(colSublayerName)
	cap.Owner = cap.Has(colOwner)
	cap.ItemURL = cap.Has(colItemURL)
	cap.ServiceURL = cap.Has(colServiceURL)
	cap.DeltaFeatures = cap.Has(colDeltaFeatures)
	return cap, nil
}
