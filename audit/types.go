package audit

// Source identifies which portal environment a record was collected from.
type Source string

const (
	SourceEnterprise Source = "ArcGIS Enterprise"
	SourceOnline     Source = "ArcGIS Online"
)

// Key uniquely identifies one audited sublayer within a single run.
type Key struct {
	Source     Source
	ItemID     string
	SublayerID int64
}

// LayerRecord is one audited sublayer at one point in time. Nullable sink
// columns are pointer fields; nil means the value could not be determined and
// must be written as NULL, never as zero.
type LayerRecord struct {
	Source     Source
	ItemID     string
	LayerTitle string

	SublayerID   *int64
	SublayerName *string
	Owner        string

	ItemCreatedMs   *int64
	ItemUpdatedMs   *int64
	DataUpdatedMs   *int64
	SchemaUpdatedMs *int64

	// Tracking users are populated only when the layer has verified editor
	// tracking. They never fall back to the item owner.
	LastEditor  *string
	LastCreator *string

	TotalFeatures *int64
	DeltaFeatures *int64

	IsAuthoritative bool

	ServiceURL string
	ItemURL    string

	FiscalYear  string
	ReportMonth string

	RunID          string
	RunTimestampMs int64
	RunLabel       string
	TimeZone       string
}

// Key returns the record's uniqueness key. A nil sublayer id normalizes to 0
// so NULL and 0 cannot alias two rows for the same layer.
func (r *LayerRecord) Key() Key {
	var sub int64
	if r.SublayerID != nil {
		sub = *r.SublayerID
	}
	return Key{Source: r.Source, ItemID: r.ItemID, SublayerID: sub}
}

// ItemFailure records one item (or sublayer) that could not be collected. The
// run continues past these; they surface in the run summary.
type ItemFailure struct {
	Source Source
	ItemID string
	Title  string
	Reason string
}

func Int64(v int64) *int64 { return &v }

func String(s string) *string { return &s }
