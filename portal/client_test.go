package portal_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"prakashmadai10/gisaudit/audit"
	"prakashmadai10/gisaudit/portal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*portal.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return portal.NewClient(audit.SourceOnline, srv.URL, "tok-123", zerolog.Nop()), srv
}

func TestSearch_PagesUntilExhausted(t *testing.T) {
	var tokens []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sharing/rest/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		tokens = append(tokens, r.URL.Query().Get("token"))

		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		switch start {
		case 1:
			fmt.Fprint(w, `{"results":[{"id":"a"},{"id":"b"}],"nextStart":3}`)
		case 3:
			fmt.Fprint(w, `{"results":[{"id":"c"}],"nextStart":-1}`)
		default:
			t.Errorf("unexpected start %d", start)
			fmt.Fprint(w, `{"results":[],"nextStart":-1}`)
		}
	})

	items, err := client.Search(context.Background(), `type:"Feature Service"`, 1000)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[2].ID != "c" {
		t.Errorf("last item: got %s, want c", items[2].ID)
	}
	for _, tok := range tokens {
		if tok != "tok-123" {
			t.Errorf("token not sent: got %q", tok)
		}
	}
}

func TestSearch_CapsAtMaxItems(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		results := make([]map[string]string, 100)
		for i := range results {
			results[i] = map[string]string{"id": fmt.Sprintf("item-%d", start+i)}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": results, "nextStart": start + 100,
		})
	})

	items, err := client.Search(context.Background(), "q", 150)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 150 {
		t.Fatalf("got %d items, want cap of 150", len(items))
	}
}

func TestGetJSON_SurfacesRESTErrorEnvelope(t *testing.T) {
	// ArcGIS reports auth failures as an error body inside an HTTP 200.
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":498,"message":"Invalid token."}}`)
	})

	_, err := client.Item(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error from REST envelope")
	}
	if !strings.Contains(err.Error(), "498") || !strings.Contains(err.Error(), "Invalid token") {
		t.Errorf("error should carry portal code and message, got: %v", err)
	}
}

func TestGetJSON_RejectsNon200(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	})

	_, err := client.Service(context.Background(), srv.URL+"/svc/FeatureServer")
	if err == nil || !strings.Contains(err.Error(), "504") {
		t.Errorf("expected status error, got: %v", err)
	}
}

func TestFeatureCount(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/query") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("returnCountOnly") != "true" {
			t.Error("returnCountOnly not requested")
		}
		fmt.Fprint(w, `{"count":4211}`)
	})

	n, err := client.FeatureCount(context.Background(), srv.URL+"/svc/FeatureServer/0")
	if err != nil {
		t.Fatalf("feature count: %v", err)
	}
	if n != 4211 {
		t.Errorf("count: got %d, want 4211", n)
	}
}

func TestLatestUserValue(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("orderByFields"); got != "EditDate DESC" {
			t.Errorf("orderByFields: got %q", got)
		}
		if got := q.Get("resultRecordCount"); got != "1" {
			t.Errorf("resultRecordCount: got %q", got)
		}
		if !strings.Contains(q.Get("where"), "Editor IS NOT NULL") {
			t.Errorf("where should null-filter both fields, got %q", q.Get("where"))
		}
		fmt.Fprint(w, `{"features":[{"attributes":{"Editor":"jdoe","EditDate":1710000000000}}]}`)
	})

	v, ok, err := client.LatestUserValue(context.Background(), srv.URL+"/svc/FeatureServer/0", "Editor", "EditDate")
	if err != nil {
		t.Fatalf("latest user: %v", err)
	}
	if !ok || v != "jdoe" {
		t.Errorf("got %q (ok=%v), want jdoe", v, ok)
	}
}

func TestLatestUserValue_NoRows(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[]}`)
	})

	_, ok, err := client.LatestUserValue(context.Background(), srv.URL+"/svc/FeatureServer/0", "Editor", "EditDate")
	if err != nil {
		t.Fatalf("latest user: %v", err)
	}
	if ok {
		t.Error("empty result set should report not found, not an error")
	}
}

func TestLatestEditDateMs(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[{"attributes":{"EditDate":1710000000000}}]}`)
	})

	ms, ok, err := client.LatestEditDateMs(context.Background(), srv.URL+"/svc/FeatureServer/0", "EditDate")
	if err != nil {
		t.Fatalf("latest edit date: %v", err)
	}
	if !ok || ms != 1710000000000 {
		t.Errorf("got %d (ok=%v), want 1710000000000", ms, ok)
	}
}

func TestLayer_BuildsSublayerURL(t *testing.T) {
	var gotPath string
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"name":"Mains","fields":[{"name":"OBJECTID","type":"esriFieldTypeOID"}]}`)
	})

	info, err := client.Layer(context.Background(), srv.URL+"/svc/FeatureServer/", 3)
	if err != nil {
		t.Fatalf("layer: %v", err)
	}
	if gotPath != "/svc/FeatureServer/3" {
		t.Errorf("path: got %s", gotPath)
	}
	if info.Name != "Mains" || len(info.Fields) != 1 {
		t.Errorf("decoded layer: %+v", info)
	}
}

func TestItem_FillsMissingID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"title":"Water Network","owner":"gisadmin","typeKeywords":["Hosted Service"]}`)
	})

	it, err := client.Item(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if it.ID != "abc123" {
		t.Errorf("id should default to the requested id, got %q", it.ID)
	}
	if !it.HasTypeKeyword("Hosted Service") {
		t.Error("type keyword lost in decode")
	}
}
