// Package pipeline wires the extraction stages into the engine's two entry
// points: URL-based extraction (limit, fetch, tiered parse, image discovery)
// and AI-assisted text extraction. Each request runs its stages sequentially
// and short-circuits on the first failure.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/internal/extract"
	"recipeharvest/internal/fetcher"
	"recipeharvest/internal/limiter"
	"recipeharvest/internal/textai"
	"recipeharvest/pkg/types"
)

// ErrInvalidURL is returned for targets that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid target url")

// RobotsGate is the robots.txt boundary. A nil gate allows everything.
type RobotsGate interface {
	Check(ctx context.Context, target *url.URL) error
}

// TextExtractor is the AI-assisted text path boundary.
type TextExtractor interface {
	ExtractFromText(ctx context.Context, text string, variant textai.Context, sourceURL string) (*types.RecipeDraft, error)
}

// URLOptions tunes one URL extraction request.
type URLOptions struct {
	IncludeImages bool
	// MaxImages overrides the engine default when > 0.
	MaxImages int
}

// Result carries the draft plus the request metadata callers log.
type Result struct {
	Draft    *types.RecipeDraft
	Tier     string
	Attempts []types.ParseAttempt
	Duration time.Duration
}

// Engine is the extraction engine facade. It owns no cross-request state
// besides the shared limiter and robots cache inside its dependencies.
type Engine struct {
	limiter   *limiter.DomainLimiter
	robots    RobotsGate
	pages     fetcher.PageFetcher
	retrier   *fetcher.Retrier
	extractor *extract.Pipeline
	images    *extract.ImageFinder
	text      TextExtractor
	logger    *slog.Logger

	now func() time.Time
}

// Options collects the engine's dependencies. Limiter, Pages, Retrier, and
// Extractor are required for the URL path; Text is required for the text
// path. Robots and Images may be nil.
type Options struct {
	Limiter   *limiter.DomainLimiter
	Robots    RobotsGate
	Pages     fetcher.PageFetcher
	Retrier   *fetcher.Retrier
	Extractor *extract.Pipeline
	Images    *extract.ImageFinder
	Text      TextExtractor
	Logger    *slog.Logger
}

// NewEngine builds the engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		limiter:   opts.Limiter,
		robots:    opts.Robots,
		pages:     opts.Pages,
		retrier:   opts.Retrier,
		extractor: opts.Extractor,
		images:    opts.Images,
		text:      opts.Text,
		logger:    logger,
		now:       time.Now,
	}
}

// ParseFromURL runs the full URL pipeline: validate, robots check, rate-limit
// acquisition, fetch with retries, tiered extraction, and optional image
// discovery. The permit is released on every exit path.
func (e *Engine) ParseFromURL(ctx context.Context, rawURL string, opts URLOptions) (*Result, error) {
	started := e.now()

	target, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	if e.robots != nil {
		if err := e.robots.Check(ctx, target); err != nil {
			return nil, err
		}
	}

	permit, err := e.limiter.Acquire(ctx, target.Hostname())
	if err != nil {
		return nil, fmt.Errorf("acquire rate limit for %s: %w", target.Hostname(), err)
	}
	defer permit.Release()

	page, attempts, err := e.retrier.Fetch(ctx, e.pages, target.String())
	res := &Result{Attempts: attempts}
	if err != nil {
		res.Duration = e.now().Sub(started)
		return res, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		res.Duration = e.now().Sub(started)
		return res, fmt.Errorf("parse html: %w", err)
	}

	base := page.Base()
	draft, tier, err := e.extractor.ExtractDoc(doc, base)
	if err != nil {
		res.Duration = e.now().Sub(started)
		return res, err
	}

	draft.SourceURL = base.String()
	if opts.IncludeImages && e.images != nil {
		finder := e.images
		if opts.MaxImages > 0 && opts.MaxImages != finder.MaxImages {
			finder = extract.NewImageFinder(opts.MaxImages, finder.ScoreFloor, finder.ScoreCeil)
		}
		if discovered := finder.Discover(doc, base); len(discovered) > 0 {
			draft.CandidateImages = discovered
		}
	} else if !opts.IncludeImages {
		draft.CandidateImages = nil
	}

	res.Draft = draft
	res.Tier = tier
	res.Duration = e.now().Sub(started)

	e.logger.Info("url extraction done",
		"url", target.String(),
		"tier", tier,
		"attempts", len(attempts),
		"images", len(draft.CandidateImages),
		"duration", res.Duration)
	return res, nil
}

// ParseFromText runs the AI-assisted path. No fetching, rate limiting, or
// image discovery happens here even when sourceURL is set; the URL is carried
// through for provenance only.
func (e *Engine) ParseFromText(ctx context.Context, text string, variant textai.Context, sourceURL string) (*Result, error) {
	started := e.now()

	draft, err := e.text.ExtractFromText(ctx, text, variant, sourceURL)
	if err != nil {
		return &Result{Duration: e.now().Sub(started)}, err
	}
	return &Result{
		Draft:    draft,
		Tier:     "textai",
		Duration: e.now().Sub(started),
	}, nil
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}
