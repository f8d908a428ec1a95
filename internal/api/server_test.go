package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipeharvest/internal/extract"
	"recipeharvest/internal/fetcher"
	"recipeharvest/internal/pipeline"
	"recipeharvest/internal/textai"
	"recipeharvest/pkg/types"
)

// stubEngine plays back scripted results per entry point.
type stubEngine struct {
	urlResult  *pipeline.Result
	urlErr     error
	textResult *pipeline.Result
	textErr    error

	gotURL     string
	gotOptions pipeline.URLOptions
	gotText    string
	gotVariant textai.Context
}

func (s *stubEngine) ParseFromURL(_ context.Context, rawURL string, opts pipeline.URLOptions) (*pipeline.Result, error) {
	s.gotURL = rawURL
	s.gotOptions = opts
	return s.urlResult, s.urlErr
}

func (s *stubEngine) ParseFromText(_ context.Context, text string, variant textai.Context, _ string) (*pipeline.Result, error) {
	s.gotText = text
	s.gotVariant = variant
	return s.textResult, s.textErr
}

func postJSON(t *testing.T, srv http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestParseURLSuccess(t *testing.T) {
	engine := &stubEngine{urlResult: &pipeline.Result{
		Draft: &types.RecipeDraft{
			Name:         "Stub Soup",
			Instructions: "1. Simmer",
			SourceURL:    "https://example.com/soup",
		},
		Tier:     "jsonld",
		Attempts: []types.ParseAttempt{{AttemptNumber: 1, Outcome: types.AttemptSuccess}},
		Duration: 1200 * time.Millisecond,
	}}
	srv := NewServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/recipes/parse-url", ParseURLRequest{
		URL:           "https://example.com/soup",
		IncludeImages: true,
		MaxImages:     5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ParseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Recipe.Name != "Stub Soup" || resp.Tier != "jsonld" || resp.Attempts != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.DurationMS != 1200 {
		t.Errorf("duration_ms = %d", resp.DurationMS)
	}
	if !engine.gotOptions.IncludeImages || engine.gotOptions.MaxImages != 5 {
		t.Errorf("options not forwarded: %+v", engine.gotOptions)
	}
}

func TestParseURLErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{fmt.Errorf("bad: %w", pipeline.ErrInvalidURL), http.StatusBadRequest, "invalidUrl"},
		{fmt.Errorf("example.com/x: %w", extract.ErrUnrecognizedFormat), http.StatusUnprocessableEntity, "unrecognizedFormat"},
		{&fetcher.FetchError{Kind: fetcher.FailFatal, URL: "https://example.com/gone", Err: errors.New("http status 404")}, http.StatusBadGateway, "fetchFatal"},
		{fmt.Errorf("all 3 fetch attempts failed: %w", &fetcher.FetchError{Kind: fetcher.FailRetryable, Err: errors.New("timeout")}), http.StatusGatewayTimeout, "fetchExhausted"},
	}

	for _, tc := range cases {
		engine := &stubEngine{urlErr: tc.err}
		srv := NewServer(engine, nil, nil)
		rec := postJSON(t, srv, "/api/recipes/parse-url", ParseURLRequest{URL: "https://example.com/x"})
		if rec.Code != tc.wantStatus {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.wantStatus)
			continue
		}
		if body := decodeError(t, rec); body.Kind != tc.wantKind {
			t.Errorf("%v: kind = %q, want %q", tc.err, body.Kind, tc.wantKind)
		}
	}
}

func TestUnrecognizedFormatSuggestsTextPath(t *testing.T) {
	engine := &stubEngine{urlErr: extract.ErrUnrecognizedFormat}
	srv := NewServer(engine, nil, nil)
	rec := postJSON(t, srv, "/api/recipes/parse-url", ParseURLRequest{URL: "https://example.com/x"})

	body := decodeError(t, rec)
	if body.Suggestion == "" {
		t.Error("expected a suggestion pointing at the text endpoint")
	}
}

func TestParseTextSuccess(t *testing.T) {
	conf := 0.75
	engine := &stubEngine{textResult: &pipeline.Result{
		Draft: &types.RecipeDraft{
			Name:         "Caption Pasta",
			Instructions: "1. Boil\n2. Toss",
			Confidence:   &conf,
		},
		Tier: "textai",
	}}
	srv := NewServer(engine, nil, nil)

	rec := postJSON(t, srv, "/api/recipes/parse-text", ParseTextRequest{
		Text:    "pasta caption here",
		Context: "social_media",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if engine.gotVariant != textai.ContextSocialMedia {
		t.Errorf("variant = %q", engine.gotVariant)
	}

	var resp ParseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Recipe.Confidence == nil || *resp.Recipe.Confidence != 0.75 {
		t.Errorf("confidence = %v", resp.Recipe.Confidence)
	}
}

func TestParseTextErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{&textai.Error{Kind: textai.FailTooLong, Err: errors.New("too big")}, http.StatusRequestEntityTooLarge, "tooLong"},
		{&textai.Error{Kind: textai.FailUnparseable, Err: errors.New("prose reply")}, http.StatusUnprocessableEntity, "unparseable"},
		{&textai.Error{Kind: textai.FailProvider, Err: errors.New("quota")}, http.StatusBadGateway, "providerError"},
	}

	for _, tc := range cases {
		engine := &stubEngine{textErr: tc.err}
		srv := NewServer(engine, nil, nil)
		rec := postJSON(t, srv, "/api/recipes/parse-text", ParseTextRequest{Text: "hello"})
		if rec.Code != tc.wantStatus {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.wantStatus)
			continue
		}
		body := decodeError(t, rec)
		if body.Kind != tc.wantKind {
			t.Errorf("%v: kind = %q, want %q", tc.err, body.Kind, tc.wantKind)
		}
		if tc.wantKind == "tooLong" && body.Limit != textai.MaxTextLength {
			t.Errorf("tooLong response missing limit: %+v", body)
		}
	}
}

func TestRequestValidation(t *testing.T) {
	srv := NewServer(&stubEngine{}, nil, nil)

	rec := postJSON(t, srv, "/api/recipes/parse-url", ParseURLRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty url: status = %d", rec.Code)
	}

	rec = postJSON(t, srv, "/api/recipes/parse-text", ParseTextRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/recipes/parse-url", bytes.NewReader([]byte("{broken")))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken json: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/recipes/parse-url", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET parse-url: status = %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(&stubEngine{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestDocsEndpoints(t *testing.T) {
	srv := NewServer(&stubEngine{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("docs status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("docs content-type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "RecipeHarvest API") {
		t.Error("docs page missing project heading")
	}

	req = httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("openapi status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "openapi:") {
		t.Error("embedded contract not served")
	}
}

func TestLogEndpointWithoutStore(t *testing.T) {
	srv := NewServer(&stubEngine{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/recipes/log", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no store is configured", rec.Code)
	}
}
