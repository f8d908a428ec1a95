package types

import (
	"net/url"
	"strings"
	"time"
)

// ImageClass categorises where on the page an image candidate was found.
type ImageClass string

const (
	ImageHero       ImageClass = "hero"
	ImageStep       ImageClass = "step"
	ImageIngredient ImageClass = "ingredient"
	ImageGallery    ImageClass = "gallery"
)

// Ingredient is a single recipe ingredient line after parsing.
// Name is never empty in a returned ingredient; malformed lines are dropped
// by the extractors instead of producing blank entries.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// ScoredImage is a ranked recipe image candidate. URL is always absolute;
// the extraction pipeline resolves relative and protocol-relative sources
// against the page base before a draft is returned.
type ScoredImage struct {
	URL            string     `json:"url"`
	AltText        string     `json:"altText,omitempty"`
	Score          int        `json:"score"`
	Classification ImageClass `json:"classification"`
}

// RecipeDraft is the engine's output contract, prior to identity assignment
// and persistence by the host application. Optional fields stay absent when
// the source did not provide them so callers can distinguish "unknown" from
// "empty".
type RecipeDraft struct {
	Name            string        `json:"name"`
	Ingredients     []Ingredient  `json:"ingredients"`
	Instructions    string        `json:"instructions"`
	SourceURL       string        `json:"sourceUrl,omitempty"`
	PrepTime        string        `json:"prepTime,omitempty"`
	CookTime        string        `json:"cookTime,omitempty"`
	Servings        *int          `json:"servings,omitempty"`
	Cuisine         string        `json:"cuisine,omitempty"`
	CandidateImages []ScoredImage `json:"candidateImages,omitempty"`

	// Confidence is set only by the AI-assisted text path. Deterministic HTML
	// extraction leaves it nil: success there is implicitly full confidence.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Usable reports whether the draft carries the minimum fields the engine
// requires to commit to an extraction result.
func (d *RecipeDraft) Usable() bool {
	if d == nil {
		return false
	}
	return strings.TrimSpace(d.Name) != "" && strings.TrimSpace(d.Instructions) != ""
}

// Page represents a fetched, rendered document.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	StatusCode      int
	FetchedAt       time.Time
	Rendered        bool
	ResponseLatency time.Duration
}

// Base returns the URL candidate image and link resolution should use.
func (p *Page) Base() *url.URL {
	if p == nil {
		return nil
	}
	if p.FinalURL != nil {
		return p.FinalURL
	}
	return p.URL
}

// AttemptOutcome classifies the result of one fetch attempt.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptRetryableFailure AttemptOutcome = "retryableFailure"
	AttemptFatalFailure     AttemptOutcome = "fatalFailure"
)

// ParseAttempt records one fetch cycle of a retried extraction. It exists for
// backoff decisions and logging only and is never persisted.
type ParseAttempt struct {
	AttemptNumber int
	UserAgent     string
	DelayBefore   time.Duration
	Outcome       AttemptOutcome
	ErrorKind     string
}
