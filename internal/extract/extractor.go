// Package extract recovers structured recipe data from rendered HTML. Four
// tiers run in strict priority order (JSON-LD, microdata, site-specific
// selectors, generic heuristics); the pipeline commits to the first tier that
// yields a usable draft. An incomplete draft is acceptable; a draft without a
// name and instructions is not.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/pkg/types"
)

// ErrUnrecognizedFormat is returned when every tier fails to produce a
// usable draft. This is a parsing outcome, not a transient fault: retrying
// the same page cannot change it.
var ErrUnrecognizedFormat = errors.New("unrecognized recipe format")

// Tier is one strategy in the ordered extraction sequence. TryExtract
// returns nil when the page is not usable by this strategy; it must be
// deterministic for a fixed document and URL.
type Tier interface {
	Name() string
	TryExtract(doc *goquery.Document, pageURL *url.URL) *types.RecipeDraft
}

// Pipeline iterates tiers in priority order.
type Pipeline struct {
	tiers  []Tier
	logger *slog.Logger
}

// NewPipeline builds an extraction pipeline. Pass DefaultTiers() for the
// production ordering.
func NewPipeline(logger *slog.Logger, tiers ...Tier) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{tiers: tiers, logger: logger}
}

// DefaultTiers returns the production tier ordering.
func DefaultTiers() []Tier {
	return []Tier{
		&JSONLDTier{},
		&MicrodataTier{},
		NewSiteTier(DefaultSiteRegistry()),
		&GenericTier{},
	}
}

// Extract parses the HTML once and walks the tiers until one produces a
// usable draft. The winning tier's name is returned for logging. Lower tiers
// are never consulted after a hit, even if the result is missing optional
// fields.
func (p *Pipeline) Extract(html []byte, pageURL *url.URL) (*types.RecipeDraft, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}
	return p.ExtractDoc(doc, pageURL)
}

// ExtractDoc walks the tiers over an already-parsed document.
func (p *Pipeline) ExtractDoc(doc *goquery.Document, pageURL *url.URL) (*types.RecipeDraft, string, error) {
	for _, tier := range p.tiers {
		draft := tier.TryExtract(doc, pageURL)
		if draft == nil {
			continue
		}
		if !draft.Usable() {
			p.logger.Debug("tier produced unusable draft", "tier", tier.Name())
			continue
		}
		Normalize(draft, pageURL)
		p.logger.Debug("extraction committed", "tier", tier.Name(), "name", draft.Name)
		return draft, tier.Name(), nil
	}
	host := ""
	if pageURL != nil {
		host = pageURL.Hostname()
	}
	return nil, "", fmt.Errorf("%s: %w", host, ErrUnrecognizedFormat)
}
