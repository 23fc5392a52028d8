package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAPIDocsTitle(t *testing.T) {
	a := &App{}
	rec := httptest.NewRecorder()
	a.OpenAPIDocs(rec, httptest.NewRequest(http.MethodGet, "/v1/docs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<title>Career Catalyst API v1.0.0</title>") {
		t.Fatalf("unexpected page title in %s", rec.Body.String())
	}
}

func TestOpenAPIJSONConditional(t *testing.T) {
	a := &App{}
	rec := httptest.NewRecorder()
	a.OpenAPIJSON(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("spec is not json: %v", err)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	a.OpenAPIJSON(rec, req)
	if rec.Code != http.StatusNotModified || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 304, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestRenderDocsEscapesTitle(t *testing.T) {
	page := string(renderDocs([]byte(`{"info":{"title":"<Coach>","version":"2"}}`)))
	if !strings.Contains(page, "<title>&lt;Coach&gt; v2</title>") {
		t.Fatalf("title not escaped: %s", page)
	}
	page = string(renderDocs([]byte(`not json`)))
	if !strings.Contains(page, "<title>Career Catalyst API</title>") {
		t.Fatalf("expected fallback title: %s", page)
	}
}
