package portal

import "strings"

// Item is a portal content item as returned by the sharing REST API search
// and item endpoints. Timestamps are epoch milliseconds; the portal reports 0
// or omits them when unknown.
type Item struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Owner         string   `json:"owner"`
	Type          string   `json:"type"`
	URL           string   `json:"url"`
	Created       float64  `json:"created"`
	Modified      float64  `json:"modified"`
	Tags          []string `json:"tags"`
	TypeKeywords  []string `json:"typeKeywords"`
	ContentStatus string   `json:"contentStatus"`
}

// HasTag reports whether the item carries tag, ignoring case and surrounding
// whitespace.
func (it Item) HasTag(tag string) bool {
	for _, t := range it.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// HasTypeKeyword reports whether the item carries the exact type keyword.
func (it Item) HasTypeKeyword(kw string) bool {
	for _, k := range it.TypeKeywords {
		if k == kw {
			return true
		}
	}
	return false
}

// EditFieldsInfo is the service-declared editor tracking descriptor.
type EditFieldsInfo struct {
	CreatorField      string `json:"creatorField"`
	CreationDateField string `json:"creationDateField"`
	EditorField       string `json:"editorField"`
	EditDateField     string `json:"editDateField"`
}

// EditingInfo carries the service/layer level last-edit timestamps.
type EditingInfo struct {
	DataLastEditDate   float64 `json:"dataLastEditDate"`
	SchemaLastEditDate float64 `json:"schemaLastEditDate"`
}

// Field is one schema field of a layer.
type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Alias string `json:"alias"`
}

// LayerRef is a sublayer or table entry in a service definition.
type LayerRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ServiceInfo is the feature-service root definition.
type ServiceInfo struct {
	Capabilities        string       `json:"capabilities"`
	ServiceLastEditDate float64      `json:"serviceLastEditDate"`
	EditingInfo         *EditingInfo `json:"editingInfo"`
	Layers              []LayerRef   `json:"layers"`
	Tables              []LayerRef   `json:"tables"`
}

// LayerInfo is one sublayer's definition, including its schema.
type LayerInfo struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Fields             []Field         `json:"fields"`
	EditFieldsInfo     *EditFieldsInfo `json:"editFieldsInfo"`
	EditingInfo        *EditingInfo    `json:"editingInfo"`
	LastSchemaEditDate float64         `json:"lastSchemaEditDate"`
}

type searchResponse struct {
	Total     int    `json:"total"`
	NextStart int    `json:"nextStart"`
	Results   []Item `json:"results"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type feature struct {
	Attributes map[string]interface{} `json:"attributes"`
}

type queryResponse struct {
	Features []feature `json:"features"`
}

// restError is the error envelope the REST API returns inside an HTTP 200.
type restError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
