// Package collector enumerates eligible feature services on one portal and
// expands each into per-sublayer audit records. Collection is parallel across
// services with a bounded worker pool; any single item's failure degrades to a
// recorded ItemFailure and never cancels sibling work.
package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/config"
	"prakashmadai10/gisaudit/portal"
	"prakashmadai10/gisaudit/sink"
	"prakashmadai10/gisaudit/timeutil"
	"prakashmadai10/gisaudit/tracking"
)

// Query excludes hosted tables; those are audited through the service that
// owns them.
const searchQuery = `type:"Feature Service" -type:"Hosted Table"`

// Portal is the slice of the portal client the collector consumes.
// *portal.Client satisfies it.
type Portal interface {
	Source() audit.Source
	BaseURL() string
	Search(ctx context.Context, query string, maxItems int) ([]portal.Item, error)
	Item(ctx context.Context, id string) (*portal.Item, error)
	Service(ctx context.Context, serviceURL string) (*portal.ServiceInfo, error)
	Layer(ctx context.Context, serviceURL string, id int64) (*portal.LayerInfo, error)
	FeatureCount(ctx context.Context, layerURL string) (int64, error)
	LatestUserValue(ctx context.Context, layerURL, outField, dateField string) (string, bool, error)
	LatestEditDateMs(ctx context.Context, layerURL, dateField string) (int64, bool, error)
}

// Options bound and shape one portal's collection.
type Options struct {
	MaxItems   int
	MaxWorkers int
	ExcludeTag string
	TestMode   bool
	TestItemID string
}

// Collector builds LayerRecords for one portal. The capability, snapshot and
// tracker it holds are read-only during collection and shared across workers.
type Collector struct {
	portal  Portal
	cap     sink.Capability
	prev    *sink.PreviousSnapshot
	tracker *tracking.Resolver
	run     config.RunContext
	opts    Options
	log     zerolog.Logger
}

func New(p Portal, cap sink.Capability, prev *sink.PreviousSnapshot, tracker *tracking.Resolver,
	run config.RunContext, opts Options, logger zerolog.Logger) *Collector {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	return &Collector{
		portal:  p,
		cap:     cap,
		prev:    prev,
		tracker: tracker,
		run:     run,
		opts:    opts,
		log:     logger.With().Str("portal", string(p.Source())).Logger(),
	}
}

// Collect enumerates eligible services and expands them into records, one
// worker per item up to MaxWorkers. Records and failures may arrive in any
// order; identity, not order, is the uniqueness guarantee.
func (c *Collector) Collect(ctx context.Context) ([]audit.LayerRecord, []audit.ItemFailure) {
	items, err := c.searchItems(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("item search failed")
		return nil, []audit.ItemFailure{{
			Source: c.portal.Source(),
			Reason: fmt.Sprintf("item search failed: %v", err),
		}}
	}
	c.log.Info().Int("items", len(items)).Msg("searching feature services")

	var (
		mu       sync.Mutex
		records  []audit.LayerRecord
		failures []audit.ItemFailure
		wg       sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(c.opts.MaxWorkers))

	for i := range items {
		item := items[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					failures = append(failures, audit.ItemFailure{
						Source: c.portal.Source(),
						ItemID: item.ID,
						Title:  item.Title,
						Reason: fmt.Sprintf("panic during collection: %v", r),
					})
					mu.Unlock()
				}
			}()

			recs, fails := c.collectItem(ctx, item)

			mu.Lock()
			records = append(records, recs...)
			failures = append(failures, fails...)
			mu.Unlock()

			c.log.Info().
				Str("item", item.Title).
				Int("sublayers", len(recs)).
				Str("delta", deltaSummary(recs)).
				Msg("collected")
		}()
	}
	wg.Wait()

	c.log.Info().Int("records", len(records)).Int("failures", len(failures)).Msg("portal collection complete")
	return records, failures
}

func (c *Collector) searchItems(ctx context.Context) ([]portal.Item, error) {
	if c.opts.TestMode {
		item, err := c.portal.Item(ctx, c.opts.TestItemID)
		if err != nil {
			return nil, fmt.Errorf("test item %s: %w", c.opts.TestItemID, err)
		}
		c.log.Info().Str("item", item.Title).Msg("test mode: auditing single item")
		return []portal.Item{*item}, nil
	}

	items, err := c.portal.Search(ctx, searchQuery, c.opts.MaxItems)
	if err != nil {
		return nil, err
	}

	if c.portal.Source() == audit.SourceOnline {
		kept := items[:0]
		for _, it := range items {
			if isHostedSourceService(it) {
				kept = append(kept, it)
			}
		}
		c.log.Info().Int("found", len(items)).Int("hosted_sources", len(kept)).Msg("filtered view services")
		return kept, nil
	}
	return items, nil
}

// collectItem expands one service item into records. A nil, nil return means
// the item was skipped by an eligibility rule.
func (c *Collector) collectItem(ctx context.Context, item portal.Item) ([]audit.LayerRecord, []audit.ItemFailure) {
	serviceURL := strings.TrimRight(item.URL, "/")
	online := c.portal.Source() == audit.SourceOnline

	if online && isReferencedService(serviceURL) {
		c.log.Info().Str("item", item.Title).Msg("skipping referenced service")
		return nil, nil
	}
	if online && item.HasTag(c.opts.ExcludeTag) {
		c.log.Info().Str("item", item.Title).Str("tag", c.opts.ExcludeTag).Msg("skipping tagged item")
		return nil, nil
	}
	if online && !isHostedSourceService(item) {
		return nil, nil
	}

	svc, err := c.portal.Service(ctx, serviceURL)
	if err != nil {
		return nil, []audit.ItemFailure{{
			Source: c.portal.Source(),
			ItemID: item.ID,
			Title:  item.Title,
			Reason: fmt.Sprintf("service unreachable: %v", err),
		}}
	}

	itemCreatedMs := timeutil.EpochMs(item.Created)
	itemUpdatedMs := c.itemUpdatedMs(item, svc)
	isAuthoritative := strings.Contains(strings.ToLower(item.ContentStatus), "authoritative")

	var (
		records  []audit.LayerRecord
		failures []audit.ItemFailure
	)
	sublayers := append(append([]portal.LayerRef{}, svc.Layers...), svc.Tables...)
	for _, ref := range sublayers {
		rec, fail := c.collectSublayer(ctx, item, svc, serviceURL, ref,
			itemCreatedMs, itemUpdatedMs, isAuthoritative)
		if fail != nil {
			failures = append(failures, *fail)
			continue
		}
		records = append(records, *rec)
	}
	return records, failures
}

// itemUpdatedMs resolves the item-level updated timestamp through the fallback
// chain: service last edit, service editing info, item modified, run start.
func (c *Collector) itemUpdatedMs(item portal.Item, svc *portal.ServiceInfo) *int64 {
	if ms := timeutil.EpochMs(svc.ServiceLastEditDate); ms != nil {
		return ms
	}
	if svc.EditingInfo != nil {
		if ms := timeutil.EpochMs(svc.EditingInfo.DataLastEditDate); ms != nil {
			return ms
		}
	}
	if ms := timeutil.EpochMs(item.Modified); ms != nil {
		return ms
	}
	return audit.Int64(c.run.TimestampMs())
}

func (c *Collector) collectSublayer(ctx context.Context, item portal.Item, svc *portal.ServiceInfo,
	serviceURL string, ref portal.LayerRef, itemCreatedMs, itemUpdatedMs *int64,
	isAuthoritative bool) (*audit.LayerRecord, *audit.ItemFailure) {

	layerURL := fmt.Sprintf("%s/%d", serviceURL, ref.ID)

	info, err := c.portal.Layer(ctx, serviceURL, ref.ID)
	if err != nil {
		return nil, &audit.ItemFailure{
			Source: c.portal.Source(),
			ItemID: item.ID,
			Title:  item.Title,
			Reason: fmt.Sprintf("sublayer %d schema unreachable: %v", ref.ID, err),
		}
	}

	dataMs, schemaMs := editDates(info, svc)
	if dataMs == nil {
		dataMs = c.editDateFallback(ctx, layerURL, info)
	}
	if dataMs == nil {
		dataMs = itemUpdatedMs
	}

	// Count fetch degrades independently; a failed count must not drop the
	// record or its siblings.
	var totalFeatures *int64
	if count, err := c.portal.FeatureCount(ctx, layerURL); err != nil {
		c.log.Warn().Err(err).Str("layer", layerURL).Msg("feature count unavailable")
	} else {
		totalFeatures = audit.Int64(count)
	}

	rec := audit.LayerRecord{
		Source:          c.portal.Source(),
		ItemID:          item.ID,
		LayerTitle:      item.Title,
		Owner:           owner(item),
		ItemCreatedMs:   itemCreatedMs,
		ItemUpdatedMs:   itemUpdatedMs,
		DataUpdatedMs:   dataMs,
		SchemaUpdatedMs: schemaMs,
		TotalFeatures:   totalFeatures,
		IsAuthoritative: isAuthoritative,
		ServiceURL:      serviceURL,
		FiscalYear:      c.fiscalYear(dataMs),
		TimeZone:        c.timeZoneFlag(),
		RunID:           c.run.RunID,
		RunTimestampMs:  c.run.TimestampMs(),
		RunLabel:        c.run.Label(),
	}

	if c.tracker.HasTracking(layerURL, info) {
		rec.LastEditor = c.tracker.LastEditor(ctx, c.portal, layerURL, info)
		rec.LastCreator = c.tracker.LastCreator(ctx, c.portal, layerURL, info)
	}

	// Optional fields only when the sink can store them.
	if c.cap.SublayerID {
		rec.SublayerID = audit.Int64(ref.ID)
	}
	if c.cap.SublayerName {
		name := info.Name
		if name == "" {
			name = fmt.Sprintf("Layer %d", ref.ID)
		}
		rec.SublayerName = audit.String(name)
	}
	if c.cap.DeltaFeatures {
		rec.DeltaFeatures = c.delta(rec.Key(), totalFeatures)
	}

	return &rec, nil
}

// editDates extracts data/schema last-edit timestamps, layer-level editing
// info first, then the service's, then the bare lastSchemaEditDate property.
func editDates(info *portal.LayerInfo, svc *portal.ServiceInfo) (dataMs, schemaMs *int64) {
	if info.EditingInfo != nil {
		dataMs = timeutil.EpochMs(info.EditingInfo.DataLastEditDate)
		schemaMs = timeutil.EpochMs(info.EditingInfo.SchemaLastEditDate)
	}
	if svc.EditingInfo != nil {
		if dataMs == nil {
			dataMs = timeutil.EpochMs(svc.EditingInfo.DataLastEditDate)
		}
		if schemaMs == nil {
			schemaMs = timeutil.EpochMs(svc.EditingInfo.SchemaLastEditDate)
		}
	}
	if schemaMs == nil {
		schemaMs = timeutil.EpochMs(info.LastSchemaEditDate)
	}
	return dataMs, schemaMs
}

// editDateFallback queries the newest edit-date feature value when the layer
// exposes a tracking edit-date field but no editing info. Enterprise services
// sometimes report dates only this way.
func (c *Collector) editDateFallback(ctx context.Context, layerURL string, info *portal.LayerInfo) *int64 {
	m := c.tracker.Resolve(layerURL, info)
	if m.EditDateField == "" {
		return nil
	}
	ms, ok, err := c.portal.LatestEditDateMs(ctx, layerURL, m.EditDateField)
	if err != nil {
		c.log.Warn().Err(err).Str("layer", layerURL).Msg("edit date fallback query failed")
		return nil
	}
	if !ok {
		return nil
	}
	c.log.Debug().Str("layer", layerURL).Int64("edit_date_ms", ms).Msg("using edit date field fallback")
	return audit.Int64(ms)
}

// delta is current minus previous count for the same key. Nil when either
// side is unknown, so "no prior data" never masquerades as "no change".
func (c *Collector) delta(key audit.Key, totalFeatures *int64) *int64 {
	if totalFeatures == nil || c.prev == nil {
		return nil
	}
	prev, ok := c.prev.PreviousCount(key)
	if !ok {
		return nil
	}
	return audit.Int64(*totalFeatures - prev)
}

func (c *Collector) fiscalYear(dataMs *int64) string {
	if dataMs != nil {
		if t, ok := timeutil.MsToTime(*dataMs, c.run.Location); ok {
			return timeutil.FiscalYear(t)
		}
	}
	return timeutil.FiscalYear(c.run.LocalNow())
}

func (c *Collector) timeZoneFlag() string {
	if c.portal.Source() == audit.SourceOnline {
		return "AGOL_LOCAL"
	}
	return "CST"
}

func owner(item portal.Item) string {
	if item.Owner == "" {
		return "Unknown"
	}
	return item.Owner
}

func deltaSummary(records []audit.LayerRecord) string {
	var parts []string
	for i := range records {
		if d := records[i].DeltaFeatures; d != nil && *d != 0 {
			parts = append(parts, fmt.Sprintf("%+d", *d))
		}
	}
	return strings.Join(parts, ", ")
}

// Merge combines per-portal outputs, enforcing key uniqueness: the first
// record for a key wins and duplicates are dropped with a warning.
func Merge(logger zerolog.Logger, sets ...[]audit.LayerRecord) []audit.LayerRecord {
	total := 0
	for _, s := range sets {
		total += len(s)
	}
	merged := make([]audit.LayerRecord, 0, total)
	seen := make(map[audit.Key]struct{}, total)

	for _, s := range sets {
		for i := range s {
			key := s[i].Key()
			if _, dup := seen[key]; dup {
				logger.Warn().
					Str("portal", string(key.Source)).
					Str("item", key.ItemID).
					Int64("sublayer", key.SublayerID).
					Msg("duplicate layer key dropped")
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, s[i])
		}
	}
	return merged
}
