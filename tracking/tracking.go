// Package tracking resolves which schema fields on a layer record editor and
// creator identity, if any. Resolution is a fetch per layer, so results are
// memoized by layer URL for the lifetime of a Resolver; the pipeline builds a
// fresh Resolver each run because layer schemas can change out-of-band.
package tracking

import (
	"context"
	"strings"
	"sync"

	"prakashmadai10/gisaudit/portal"
)

// Mapping names the four tracking fields on one layer. Empty strings mean the
// role could not be resolved.
type Mapping struct {
	CreatorField    string
	CreateDateField string
	EditorField     string
	EditDateField   string
}

// Absent reports that no tracking role resolved at all.
func (m Mapping) Absent() bool {
	return m.CreatorField == "" && m.CreateDateField == "" &&
		m.EditorField == "" && m.EditDateField == ""
}

// Complete reports that all four roles resolved.
func (m Mapping) Complete() bool {
	return m.CreatorField != "" && m.CreateDateField != "" &&
		m.EditorField != "" && m.EditDateField != ""
}

// Known field-name variants per role, checked case-insensitively when a layer
// does not declare an explicit edit-fields descriptor.
var fieldCandidates = map[string][]string{
	"creator":    {"Creator", "Creator_1", "created_user", "createdby"},
	"createDate": {"CreationDate", "CreationDate_1", "created_date", "date_created", "CreateDate"},
	"editor":     {"Editor", "Editor_1", "last_edited_user", "editedby", "edit_user"},
	"editDate":   {"EditDate", "EditDate_1", "last_edited_date", "last_edit_date", "LastEditDate"},
}

// LayerQuerier retrieves the attribute value carried by the feature with the
// newest date in dateField. *portal.Client satisfies it.
type LayerQuerier interface {
	LatestUserValue(ctx context.Context, layerURL, outField, dateField string) (string, bool, error)
}

// Resolver memoizes tracking mappings by layer URL. Safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]Mapping
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]Mapping)}
}

// Resolve returns the tracking mapping for a layer, from cache when available.
// Strategy order: the layer's declared edit-fields descriptor, then a
// case-insensitive scan of the physical field list, then absent.
func (r *Resolver) Resolve(layerURL string, info *portal.LayerInfo) Mapping {
	r.mu.Lock()
	if m, ok := r.cache[layerURL]; ok {
		r.mu.Unlock()
		return m
	}
	r.mu.Unlock()

	m := resolveMapping(info)

	r.mu.Lock()
	r.cache[layerURL] = m
	r.mu.Unlock()
	return m
}

func resolveMapping(info *portal.LayerInfo) Mapping {
	var m Mapping
	if info == nil {
		return m
	}

	if efi := info.EditFieldsInfo; efi != nil {
		m.CreatorField = efi.CreatorField
		m.CreateDateField = efi.CreationDateField
		m.EditorField = efi.EditorField
		m.EditDateField = efi.EditDateField
	}

	if m.Complete() {
		return m
	}

	// Fill unresolved roles from the physical field list.
	existing := make(map[string]string, len(info.Fields))
	for _, f := range info.Fields {
		existing[strings.ToLower(f.Name)] = f.Name
	}
	pick := func(role string) string {
		for _, cand := range fieldCandidates[role] {
			if name, ok := existing[strings.ToLower(cand)]; ok {
				return name
			}
		}
		return ""
	}

	if m.CreatorField == "" {
		m.CreatorField = pick("creator")
	}
	if m.CreateDateField == "" {
		m.CreateDateField = pick("createDate")
	}
	if m.EditorField == "" {
		m.EditorField = pick("editor")
	}
	if m.EditDateField == "" {
		m.EditDateField = pick("editDate")
	}
	return m
}

// HasTracking reports whether the layer carries verified editor tracking: the
// resolved mapping must be complete AND every resolved name must exist in the
// physical field list. The re-check guards against stale or malformed
// edit-field metadata claiming fields the schema no longer has.
func (r *Resolver) HasTracking(layerURL string, info *portal.LayerInfo) bool {
	m := r.Resolve(layerURL, info)
	if !m.Complete() || info == nil {
		return false
	}

	present := make(map[string]bool, len(info.Fields))
	for _, f := range info.Fields {
		present[strings.ToLower(f.Name)] = true
	}
	for _, name := range []string{m.CreatorField, m.CreateDateField, m.EditorField, m.EditDateField} {
		if !present[strings.ToLower(name)] {
			return false
		}
	}
	return true
}

// LastEditor returns the identity on the most recent edit, or nil when the
// layer has no verified tracking or the lookup fails. It never substitutes the
// item owner; owner and last editor are different facts.
func (r *Resolver) LastEditor(ctx context.Context, q LayerQuerier, layerURL string, info *portal.LayerInfo) *string {
	if !r.HasTracking(layerURL, info) {
		return nil
	}
	m := r.Resolve(layerURL, info)
	return latestUser(ctx, q, layerURL, m.EditorField, m.EditDateField)
}

// LastCreator returns the identity on the most recent feature creation, with
// the same nil semantics as LastEditor.
func (r *Resolver) LastCreator(ctx context.Context, q LayerQuerier, layerURL string, info *portal.LayerInfo) *string {
	if !r.HasTracking(layerURL, info) {
		return nil
	}
	m := r.Resolve(layerURL, info)
	return latestUser(ctx, q, layerURL, m.CreatorField, m.CreateDateField)
}

func latestUser(ctx context.Context, q LayerQuerier, layerURL, userField, dateField string) *string {
	if userField == "" || dateField == "" {
		return nil
	}
	v, ok, err := q.LatestUserValue(ctx, layerURL, userField, dateField)
	if err != nil || !ok {
		return nil
	}
	return &v
}
