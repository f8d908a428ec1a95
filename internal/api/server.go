// Package api exposes the extraction engine over HTTP. Handlers translate
// the engine's failure taxonomy into status codes and a uniform JSON error
// envelope; no extraction logic lives here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recipeharvest/internal/extract"
	"recipeharvest/internal/fetcher"
	"recipeharvest/internal/pipeline"
	"recipeharvest/internal/robots"
	"recipeharvest/internal/storage"
	"recipeharvest/internal/textai"
)

// Engine is the extraction boundary the server depends on.
type Engine interface {
	ParseFromURL(ctx context.Context, rawURL string, opts pipeline.URLOptions) (*pipeline.Result, error)
	ParseFromText(ctx context.Context, text string, variant textai.Context, sourceURL string) (*pipeline.Result, error)
}

// Server routes extraction requests to the engine and records outcomes in
// the optional parse log.
type Server struct {
	engine Engine
	log    *storage.ParseLogStore
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux. store may be nil.
func NewServer(engine Engine, store *storage.ParseLogStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		log:    store,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/recipes/parse-url", s.handleParseURL)
	s.mux.HandleFunc("/api/recipes/parse-text", s.handleParseText)
	s.mux.HandleFunc("/api/recipes/log", s.handleLog)
	s.mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	s.mux.HandleFunc("/docs", s.handleDocs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleParseURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req ParseURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid json payload: %v", err)})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "url is required"})
		return
	}

	started := time.Now()
	res, err := s.engine.ParseFromURL(r.Context(), req.URL, pipeline.URLOptions{
		IncludeImages: req.IncludeImages,
		MaxImages:     req.MaxImages,
	})
	s.record(r.Context(), urlLogEntry(req.URL, res, err, time.Since(started)))
	if err != nil {
		status, body := classifyURLError(err)
		writeError(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, ParseResponse{
		Recipe:     res.Draft,
		Tier:       res.Tier,
		Attempts:   len(res.Attempts),
		DurationMS: res.Duration.Milliseconds(),
	})
}

func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req ParseTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid json payload: %v", err)})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "text is required"})
		return
	}

	variant := textai.ContextGeneral
	if req.Context == string(textai.ContextSocialMedia) {
		variant = textai.ContextSocialMedia
	}

	started := time.Now()
	res, err := s.engine.ParseFromText(r.Context(), req.Text, variant, req.SourceURL)
	s.record(r.Context(), textLogEntry(res, err, time.Since(started)))
	if err != nil {
		status, body := classifyTextError(err)
		writeError(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, ParseResponse{
		Recipe:     res.Draft,
		Tier:       res.Tier,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.log == nil {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "parse log is not configured"})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			writeError(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer"})
			return
		}
	}
	entries, err := s.log.Recent(r.Context(), r.URL.Query().Get("host"), limit)
	if err != nil {
		s.logger.Error("parse log query failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "parse log unavailable"})
		return
	}
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogEntry{
			ID:         e.ID,
			Source:     string(e.Source),
			Target:     e.Target,
			Host:       e.Host,
			Tier:       e.Tier,
			Succeeded:  e.Succeeded,
			ErrorKind:  e.ErrorKind,
			Attempts:   e.Attempts,
			DurationMS: e.Duration.Milliseconds(),
			Confidence: e.Confidence,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// record writes a parse-log entry without letting storage trouble affect the
// response. The request context may already be cancelled by the time the
// handler returns, so a short detached timeout is used.
func (s *Server) record(_ context.Context, entry storage.Entry) {
	if s.log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.log.Record(ctx, entry); err != nil {
		s.logger.Warn("parse log write failed", "error", err)
	}
}

func urlLogEntry(rawURL string, res *pipeline.Result, err error, elapsed time.Duration) storage.Entry {
	entry := storage.Entry{
		Source:   storage.SourceURL,
		Target:   rawURL,
		Duration: elapsed,
	}
	if u, perr := url.Parse(rawURL); perr == nil {
		entry.Host = strings.ToLower(u.Hostname())
	}
	if res != nil {
		entry.Tier = res.Tier
		entry.Attempts = len(res.Attempts)
		if res.Duration > 0 {
			entry.Duration = res.Duration
		}
		if res.Draft != nil {
			entry.Confidence = res.Draft.Confidence
		}
	}
	if err != nil {
		entry.ErrorKind = errorKind(err)
	} else {
		entry.Succeeded = true
	}
	return entry
}

func textLogEntry(res *pipeline.Result, err error, elapsed time.Duration) storage.Entry {
	entry := storage.Entry{
		Source:   storage.SourceText,
		Tier:     "textai",
		Duration: elapsed,
	}
	if res != nil {
		if res.Duration > 0 {
			entry.Duration = res.Duration
		}
		if res.Draft != nil {
			entry.Confidence = res.Draft.Confidence
		}
	}
	if err != nil {
		entry.ErrorKind = errorKind(err)
	} else {
		entry.Succeeded = true
	}
	return entry
}

// classifyURLError maps URL-path failures onto HTTP statuses.
func classifyURLError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidURL):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalidUrl"}
	case errors.Is(err, robots.ErrDisallowed):
		return http.StatusForbidden, ErrorResponse{Error: err.Error(), Kind: "robotsDisallowed"}
	case errors.Is(err, extract.ErrUnrecognizedFormat):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:      err.Error(),
			Kind:       "unrecognizedFormat",
			Suggestion: "copy the page text and retry via /api/recipes/parse-text",
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Kind: "timeout"}
	}

	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		if fe.Kind == fetcher.FailFatal {
			return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Kind: "fetchFatal"}
		}
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Kind: "fetchExhausted"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: err.Error()}
}

// classifyTextError maps text-path failures onto HTTP statuses.
func classifyTextError(err error) (int, ErrorResponse) {
	var terr *textai.Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case textai.FailTooLong:
			return http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: err.Error(),
				Kind:  string(terr.Kind),
				Limit: textai.MaxTextLength,
			}
		case textai.FailUnparseable:
			return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: string(terr.Kind)}
		case textai.FailProvider:
			return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Kind: string(terr.Kind)}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Kind: "timeout"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: err.Error()}
}

func errorKind(err error) string {
	_, body := classifyURLError(err)
	if body.Kind != "" {
		return body.Kind
	}
	var terr *textai.Error
	if errors.As(err, &terr) {
		return string(terr.Kind)
	}
	return "internal"
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
