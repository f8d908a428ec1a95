package api

import (
	"time"

	"recipeharvest/pkg/types"
)

// ParseURLRequest is the payload for URL-based extraction.
type ParseURLRequest struct {
	URL           string `json:"url"`
	IncludeImages bool   `json:"include_images"`
	MaxImages     int    `json:"max_images,omitempty"`
}

// ParseTextRequest is the payload for AI-assisted text extraction. Context is
// "general" or "social_media"; anything else falls back to general.
type ParseTextRequest struct {
	Text      string `json:"text"`
	Context   string `json:"context,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// ParseResponse wraps a successful extraction.
type ParseResponse struct {
	Recipe     *types.RecipeDraft `json:"recipe"`
	Tier       string             `json:"tier"`
	Attempts   int                `json:"attempts,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// ErrorResponse is the uniform error envelope. Kind mirrors the engine's
// failure taxonomy so API consumers can branch without parsing messages.
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// LogEntry is one parse-log row as exposed by the API.
type LogEntry struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	Target     string    `json:"target,omitempty"`
	Host       string    `json:"host,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
