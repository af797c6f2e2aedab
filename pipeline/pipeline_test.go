package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/collector"
	"prakashmadai10/gisaudit/config"
	"prakashmadai10/gisaudit/pipeline"
	"prakashmadai10/gisaudit/portal"
	"prakashmadai10/gisaudit/reconcile"
	"prakashmadai10/gisaudit/sink"
)

// fakeStore records every interaction so tests can assert call ordering and
// the rows that reached the sink.
type fakeStore struct {
	canCreate bool
	fields    []string
	snapshot  []sink.SnapshotRow

	capability sink.Capability
	inserted   []audit.LayerRecord
	probed     bool
}

func (s *fakeStore) Fields(context.Context) ([]string, error) {
	s.probed = true
	return s.fields, nil
}

func (s *fakeStore) CanCreate(context.Context) (bool, error) {
	s.probed = true
	return s.canCreate, nil
}

func (s *fakeStore) UseCapability(cap sink.Capability) { s.capability = cap }

func (s *fakeStore) SnapshotRows(context.Context, int64) ([]sink.SnapshotRow, error) {
	return s.snapshot, nil
}

func (s *fakeStore) InsertRows(_ context.Context, records []audit.LayerRecord) ([]sink.RowResult, error) {
	s.inserted = append(s.inserted, records...)
	results := make([]sink.RowResult, len(records))
	for i := range results {
		results[i] = sink.RowResult{OK: true}
	}
	return results, nil
}

func allFields() []string {
	return []string{"sub_layer_id", "sub_layer_name", "owner", "item_url", "service_url", "delta_features"}
}

// fixedPortal serves a single hosted service with a configurable feature
// count and records whether any call reached it.
type fixedPortal struct {
	source audit.Source
	count  int64
	called bool
}

const fixedSvcURL = "https://services.arcgis.com/org/arcgis/rest/services/Roads/FeatureServer"

func (p *fixedPortal) Source() audit.Source { return p.source }
func (p *fixedPortal) BaseURL() string      { return "https://portal.example.com" }

func (p *fixedPortal) Search(context.Context, string, int) ([]portal.Item, error) {
	p.called = true
	return []portal.Item{{
		ID: "road-item", Title: "Roads", Owner: "gisadmin",
		URL: fixedSvcURL, Created: 1600000000000, Modified: 1700000000000,
		TypeKeywords: []string{"Hosted Service"},
	}}, nil
}

func (p *fixedPortal) Item(context.Context, string) (*portal.Item, error) {
	p.called = true
	return nil, errors.New("not used")
}

func (p *fixedPortal) Service(context.Context, string) (*portal.ServiceInfo, error) {
	p.called = true
	return &portal.ServiceInfo{Layers: []portal.LayerRef{{ID: 0, Name: "Centerlines"}}}, nil
}

func (p *fixedPortal) Layer(context.Context, string, int64) (*portal.LayerInfo, error) {
	p.called = true
	return &portal.LayerInfo{
		Name:        "Centerlines",
		Fields:      []portal.Field{{Name: "OBJECTID"}},
		EditingInfo: &portal.EditingInfo{DataLastEditDate: 1710000000000, SchemaLastEditDate: 1705000000000},
	}, nil
}

func (p *fixedPortal) FeatureCount(context.Context, string) (int64, error) {
	p.called = true
	return p.count, nil
}

func (p *fixedPortal) LatestUserValue(context.Context, string, string, string) (string, bool, error) {
	p.called = true
	return "", false, nil
}

func (p *fixedPortal) LatestEditDateMs(context.Context, string, string) (int64, bool, error) {
	p.called = true
	return 0, false, nil
}

func testRun() config.RunContext {
	return config.RunContext{
		RunID:      "run-p",
		StartedUTC: time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC),
		Location:   time.UTC,
	}
}

func defaultOptions() pipeline.Options {
	return pipeline.Options{
		MaxItems:   100,
		MaxWorkers: 2,
		BatchSize:  2000,
		Mode:       reconcile.ModeDeltaOnly,
		ExcludeTag: "collab",
		URLs: reconcile.URLTemplates{
			Enterprise: "https://maps.example.com/portal",
			Online:     "https://org.maps.arcgis.com",
		},
	}
}

func TestRun_UnwritableSinkAbortsBeforeCollection(t *testing.T) {
	store := &fakeStore{canCreate: false, fields: allFields()}
	p := &fixedPortal{source: audit.SourceOnline, count: 10}

	_, err := pipeline.Run(context.Background(), store, []collector.Portal{p},
		testRun(), defaultOptions(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if !errors.Is(err, sink.ErrUnwritable) {
		t.Errorf("error should wrap ErrUnwritable, got: %v", err)
	}
	if p.called {
		t.Error("portal must not be contacted when the sink is unwritable")
	}
	if len(store.inserted) != 0 {
		t.Error("no rows may reach an unwritable sink")
	}
}

func TestRun_FirstRunCommitsEverything(t *testing.T) {
	store := &fakeStore{canCreate: true, fields: allFields()}
	portals := []collector.Portal{
		&fixedPortal{source: audit.SourceEnterprise, count: 10},
		&fixedPortal{source: audit.SourceOnline, count: 20},
	}

	opts := defaultOptions()
	opts.FirstRun = true

	summary, err := pipeline.Run(context.Background(), store, portals,
		testRun(), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Processed != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Errorf("summary: processed=%d succeeded=%d failed=%d, want 2/2/0",
			summary.Processed, summary.Succeeded, summary.Failed)
	}
	if len(summary.Unchanged) != 0 {
		t.Errorf("first run must treat every record as changed, got %d unchanged", len(summary.Unchanged))
	}
	if summary.PortalCounts[audit.SourceEnterprise] != 1 || summary.PortalCounts[audit.SourceOnline] != 1 {
		t.Errorf("portal counts: %+v", summary.PortalCounts)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("sink received %d rows, want 2", len(store.inserted))
	}
	for _, rec := range store.inserted {
		if rec.ReportMonth != "2026-08" {
			t.Errorf("report month stamped from run timestamp: got %q", rec.ReportMonth)
		}
		if rec.RunID != "run-p" {
			t.Errorf("run id: got %q", rec.RunID)
		}
	}
}

func TestRun_UnchangedRecordsAreFilteredNotCommitted(t *testing.T) {
	// Prior snapshot matches the enterprise layer exactly; the online layer's
	// count moved from 15 to 20.
	store := &fakeStore{
		canCreate: true,
		fields:    allFields(),
		snapshot: []sink.SnapshotRow{
			{
				Key:            audit.Key{Source: audit.SourceEnterprise, ItemID: "road-item", SublayerID: 0},
				TotalFeatures:  audit.Int64(10),
				DataUpdatedMs:  audit.Int64(1710000000000),
				RunTimestampMs: 1,
			},
			{
				Key:            audit.Key{Source: audit.SourceOnline, ItemID: "road-item", SublayerID: 0},
				TotalFeatures:  audit.Int64(15),
				DataUpdatedMs:  audit.Int64(1710000000000),
				RunTimestampMs: 1,
			},
		},
	}
	portals := []collector.Portal{
		&fixedPortal{source: audit.SourceEnterprise, count: 10},
		&fixedPortal{source: audit.SourceOnline, count: 20},
	}

	summary, err := pipeline.Run(context.Background(), store, portals,
		testRun(), defaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Processed != 1 {
		t.Fatalf("processed: got %d, want 1 (only the changed record)", summary.Processed)
	}
	if len(summary.Unchanged) != 1 {
		t.Fatalf("unchanged: got %d, want 1", len(summary.Unchanged))
	}
	if summary.Unchanged[0].Source != audit.SourceEnterprise {
		t.Errorf("unchanged record source: got %s", summary.Unchanged[0].Source)
	}
	if len(store.inserted) != 1 || store.inserted[0].Source != audit.SourceOnline {
		t.Fatalf("sink rows: %+v", store.inserted)
	}
	if d := store.inserted[0].DeltaFeatures; d == nil || *d != 5 {
		t.Errorf("delta: got %v, want 5", d)
	}
}

func TestRun_ItemURLStampedPerPortal(t *testing.T) {
	store := &fakeStore{canCreate: true, fields: allFields()}
	opts := defaultOptions()
	opts.FirstRun = true

	summary, err := pipeline.Run(context.Background(), store,
		[]collector.Portal{&fixedPortal{source: audit.SourceOnline, count: 3}},
		testRun(), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("succeeded: got %d", summary.Succeeded)
	}

	want := "https://org.maps.arcgis.com/home/item.html?id=road-item&sublayer=0"
	if got := store.inserted[0].ItemURL; got != want {
		t.Errorf("item url:\n got %s\nwant %s", got, want)
	}
}
