package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"prakashmadai10/gisaudit/audit"
)

const searchPageSize = 100

// Client talks to one portal's sharing REST API and the feature services it
// hosts. Authentication is external: the client is handed a pre-issued token.
type Client struct {
	source  audit.Source
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(source audit.Source, baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		source:  source,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     logger.With().Str("portal", string(source)).Logger(),
	}
}

func (c *Client) Source() audit.Source { return c.source }

// BaseURL is the portal root, used to synthesize item page URLs.
func (c *Client) BaseURL() string { return c.baseURL }

// Search pages through the sharing search endpoint until maxItems results are
// collected or the portal reports no next page.
func (c *Client) Search(ctx context.Context, query string, maxItems int) ([]Item, error) {
	var items []Item
	start := 1

	for start > 0 && (maxItems <= 0 || len(items) < maxItems) {
		params := url.Values{}
		params.Set("q", query)
		params.Set("num", strconv.Itoa(searchPageSize))
		params.Set("start", strconv.Itoa(start))

		var page searchResponse
		if err := c.getJSON(ctx, c.baseURL+"/sharing/rest/search", params, &page); err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}

		items = append(items, page.Results...)
		start = page.NextStart
		if len(page.Results) == 0 {
			break
		}
	}

	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// Item fetches a single content item by id.
func (c *Client) Item(ctx context.Context, id string) (*Item, error) {
	var it Item
	if err := c.getJSON(ctx, c.baseURL+"/sharing/rest/content/items/"+url.PathEscape(id), nil, &it); err != nil {
		return nil, fmt.Errorf("item %s: %w", id, err)
	}
	if it.ID == "" {
		it.ID = id
	}
	return &it, nil
}

// Service fetches the feature-service root definition.
func (c *Client) Service(ctx context.Context, serviceURL string) (*ServiceInfo, error) {
	var svc ServiceInfo
	if err := c.getJSON(ctx, serviceURL, nil, &svc); err != nil {
		return nil, fmt.Errorf("service %s: %w", serviceURL, err)
	}
	return &svc, nil
}

// Layer fetches one sublayer's definition, including its field list.
func (c *Client) Layer(ctx context.Context, serviceURL string, id int64) (*LayerInfo, error) {
	layerURL := fmt.Sprintf("%s/%d", strings.TrimRight(serviceURL, "/"), id)
	var info LayerInfo
	if err := c.getJSON(ctx, layerURL, nil, &info); err != nil {
		return nil, fmt.Errorf("layer %s: %w", layerURL, err)
	}
	return &info, nil
}

// FeatureCount returns the layer's total feature count.
func (c *Client) FeatureCount(ctx context.Context, layerURL string) (int64, error) {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("returnCountOnly", "true")

	var res countResponse
	if err := c.getJSON(ctx, strings.TrimRight(layerURL, "/")+"/query", params, &res); err != nil {
		return 0, fmt.Errorf("feature count %s: %w", layerURL, err)
	}
	return res.Count, nil
}

// LatestUserValue returns outField from the feature with the newest non-null
// dateField, i.e. the identity on the most recent edit or creation.
func (c *Client) LatestUserValue(ctx context.Context, layerURL, outField, dateField string) (string, bool, error) {
	attrs, err := c.latestFeature(ctx, layerURL, outField, dateField)
	if err != nil || attrs == nil {
		return "", false, err
	}
	v, ok := attrs[outField]
	if !ok || v == nil {
		return "", false, nil
	}
	return fmt.Sprint(v), true, nil
}

// LatestEditDateMs returns the newest non-null value of dateField as epoch
// milliseconds.
func (c *Client) LatestEditDateMs(ctx context.Context, layerURL, dateField string) (int64, bool, error) {
	attrs, err := c.latestFeature(ctx, layerURL, dateField, dateField)
	if err != nil || attrs == nil {
		return 0, false, err
	}
	v, ok := attrs[dateField].(float64)
	if !ok {
		return 0, false, nil
	}
	return int64(v), true, nil
}

func (c *Client) latestFeature(ctx context.Context, layerURL, outField, dateField string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("where", fmt.Sprintf("%s IS NOT NULL AND %s IS NOT NULL", outField, dateField))
	params.Set("outFields", outField+","+dateField)
	params.Set("orderByFields", dateField+" DESC")
	params.Set("resultRecordCount", "1")
	params.Set("returnGeometry", "false")

	var res queryResponse
	if err := c.getJSON(ctx, strings.TrimRight(layerURL, "/")+"/query", params, &res); err != nil {
		return nil, fmt.Errorf("latest %s by %s on %s: %w", outField, dateField, layerURL, err)
	}
	if len(res.Features) == 0 {
		return nil, nil
	}
	return res.Features[0].Attributes, nil
}

// getJSON performs a GET with f=json and the session token, decodes out, and
// surfaces the REST error envelope (which arrives inside an HTTP 200).
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")
	if c.token != "" {
		params.Set("token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope restError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return fmt.Errorf("portal error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
