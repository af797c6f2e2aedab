package reconcile

import (
	"fmt"
	"strings"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/config"
	"prakashmadai10/gisaudit/sink"
	"prakashmadai10/gisaudit/timeutil"
)

// URLTemplates holds the portal roots used to synthesize item page URLs.
type URLTemplates struct {
	Enterprise string
	Online     string
}

// ItemURL renders the portal item page URL for a record's key.
func (u URLTemplates) ItemURL(source audit.Source, itemID string, sublayerID int64) string {
	base := u.Enterprise
	if source == audit.SourceOnline {
		base = u.Online
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/home/item.html?id=%s&sublayer=%d",
		strings.TrimRight(base, "/"), itemID, sublayerID)
}

// Normalize returns a copy of rec shaped to the sink's field contract. Pure:
// same record, capability and run context always produce the same output.
//
// Report month derives from the run timestamp floored to month granularity in
// the run's timezone. URL fields are synthesized only when the sink has the
// column; optional fields the sink lacks are cleared so no stage downstream
// has to re-check the capability.
func Normalize(rec audit.LayerRecord, cap sink.Capability, run config.RunContext, urls URLTemplates) audit.LayerRecord {
	out := rec

	out.ReportMonth = timeutil.ReportMonth(out.RunTimestampMs, run.Location)

	if cap.ItemURL {
		out.ItemURL = urls.ItemURL(out.Source, out.ItemID, out.Key().SublayerID)
	} else {
		out.ItemURL = ""
	}
	if !cap.ServiceURL {
		out.ServiceURL = ""
	}

	if !cap.SublayerID {
		out.SublayerID = nil
	}
	if !cap.SublayerName {
		out.SublayerName = nil
	}
	if !cap.DeltaFeatures {
		out.DeltaFeatures = nil
	}

	return out
}

// NormalizeAll maps Normalize over a record set, preserving order.
func NormalizeAll(records []audit.LayerRecord, cap sink.Capability, run config.RunContext, urls URLTemplates) []audit.LayerRecord {
	out := make([]audit.LayerRecord, len(records))
	for i := range records {
		out[i] = Normalize(records[i], cap, run, urls)
	}
	return out
}
