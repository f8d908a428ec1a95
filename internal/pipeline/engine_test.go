package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"recipeharvest/internal/config"
	"recipeharvest/internal/extract"
	"recipeharvest/internal/fetcher"
	"recipeharvest/internal/limiter"
	"recipeharvest/internal/textai"
	"recipeharvest/pkg/types"
)

const recipePage = `<html><head>
<script type="application/ld+json">
{
  "@type": "Recipe",
  "name": "Engine Test Curry",
  "recipeIngredient": ["2 cups coconut milk", "1 tbsp curry paste"],
  "recipeInstructions": [
    {"@type": "HowToStep", "text": "Fry the paste."},
    {"@type": "HowToStep", "text": "Add coconut milk and simmer."}
  ]
}
</script></head><body>
<div class="hero"><img src="/img/curry-1400x900.webp" alt="A bowl of fragrant curry"></div>
</body></html>`

// fixturePages serves canned HTML per URL and counts fetches.
type fixturePages struct {
	body  string
	err   error
	calls int
}

func (f *fixturePages) Fetch(_ context.Context, rawURL string, _ fetcher.Fingerprint) (*types.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, _ := url.Parse(rawURL)
	return &types.Page{URL: u, FinalURL: u, Body: []byte(f.body), StatusCode: 200, FetchedAt: time.Now()}, nil
}

type denyAllGate struct{ calls int }

func (g *denyAllGate) Check(_ context.Context, target *url.URL) error {
	g.calls++
	return fmt.Errorf("%s: %w", target.Hostname(), errDenied)
}

var errDenied = errors.New("denied for test")

type stubText struct {
	draft *types.RecipeDraft
	err   error
}

func (s *stubText) ExtractFromText(_ context.Context, _ string, _ textai.Context, sourceURL string) (*types.RecipeDraft, error) {
	if s.err != nil {
		return nil, s.err
	}
	d := *s.draft
	d.SourceURL = sourceURL
	return &d, nil
}

func fastLimiter() *limiter.DomainLimiter {
	cfg := config.LimiterConfig{
		Window:      config.DurationFrom(time.Minute),
		High:        config.TierConfig{MaxConcurrent: 1, Burst: 1000},
		Medium:      config.TierConfig{MaxConcurrent: 4, Burst: 1000},
		Low:         config.TierConfig{MaxConcurrent: 4, Burst: 1000},
		HighTraffic: []string{"allrecipes.com"},
	}
	return limiter.New(cfg)
}

func newTestEngine(pages fetcher.PageFetcher, gate RobotsGate, text TextExtractor) *Engine {
	return NewEngine(Options{
		Limiter:   fastLimiter(),
		Robots:    gate,
		Pages:     pages,
		Retrier:   fetcher.NewRetrier(fetcher.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, fetcher.NewRotator(1), nil, 1),
		Extractor: extract.NewPipeline(nil, extract.DefaultTiers()...),
		Images:    extract.NewImageFinder(10, 0, 100),
		Text:      text,
	})
}

func TestParseFromURLHappyPath(t *testing.T) {
	pages := &fixturePages{body: recipePage}
	e := newTestEngine(pages, nil, nil)

	res, err := e.ParseFromURL(context.Background(), "https://example.com/curry", URLOptions{IncludeImages: true})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Draft.Name != "Engine Test Curry" {
		t.Errorf("name = %q", res.Draft.Name)
	}
	if res.Tier != "jsonld" {
		t.Errorf("tier = %q", res.Tier)
	}
	if res.Draft.SourceURL != "https://example.com/curry" {
		t.Errorf("sourceUrl = %q", res.Draft.SourceURL)
	}
	if len(res.Draft.CandidateImages) == 0 {
		t.Fatal("expected discovered images")
	}
	if got := res.Draft.CandidateImages[0].URL; got != "https://example.com/img/curry-1400x900.webp" {
		t.Errorf("image url = %q", got)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Outcome != types.AttemptSuccess {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestParseFromURLWithoutImages(t *testing.T) {
	e := newTestEngine(&fixturePages{body: recipePage}, nil, nil)
	res, err := e.ParseFromURL(context.Background(), "https://example.com/curry", URLOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Draft.CandidateImages) != 0 {
		t.Errorf("images returned despite includeImages=false: %+v", res.Draft.CandidateImages)
	}
}

func TestParseFromURLRejectsInvalidTargets(t *testing.T) {
	e := newTestEngine(&fixturePages{body: recipePage}, nil, nil)
	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "/relative/path"} {
		_, err := e.ParseFromURL(context.Background(), raw, URLOptions{})
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("%q: err = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestParseFromURLHonoursRobots(t *testing.T) {
	pages := &fixturePages{body: recipePage}
	gate := &denyAllGate{}
	e := newTestEngine(pages, gate, nil)

	_, err := e.ParseFromURL(context.Background(), "https://example.com/curry", URLOptions{})
	if !errors.Is(err, errDenied) {
		t.Fatalf("err = %v, want robots denial", err)
	}
	if pages.calls != 0 {
		t.Errorf("fetcher called %d times for a robots-denied URL", pages.calls)
	}
}

func TestParseFromURLUnrecognizedFormat(t *testing.T) {
	e := newTestEngine(&fixturePages{body: "<html><body><p>Just a blog post.</p></body></html>"}, nil, nil)

	res, err := e.ParseFromURL(context.Background(), "https://example.com/post", URLOptions{})
	if !errors.Is(err, extract.ErrUnrecognizedFormat) {
		t.Fatalf("err = %v, want ErrUnrecognizedFormat", err)
	}
	if len(res.Attempts) != 1 {
		t.Errorf("attempts = %+v, fetch metadata should survive extraction failure", res.Attempts)
	}
}

func TestParseFromURLReleasesPermitOnFailure(t *testing.T) {
	// High tier caps example.com-equivalent hosts at one in-flight request;
	// a leaked permit would deadlock the second call.
	e := newTestEngine(&fixturePages{err: &fetcher.FetchError{Kind: fetcher.FailFatal, Err: errors.New("gone")}}, nil, nil)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := e.ParseFromURL(ctx, "https://allrecipes.com/recipe/1", URLOptions{})
		cancel()
		if err == nil {
			t.Fatal("expected fetch failure")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("call %d blocked on a leaked permit", i)
		}
	}
}

func TestParseFromTextDelegates(t *testing.T) {
	conf := 0.8
	text := &stubText{draft: &types.RecipeDraft{
		Name:         "Text Path Stew",
		Instructions: "1. Stir\n2. Serve",
		Confidence:   &conf,
	}}
	e := newTestEngine(&fixturePages{}, nil, text)

	res, err := e.ParseFromText(context.Background(), "some caption", textai.ContextSocialMedia, "https://social.example/post/9")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Tier != "textai" {
		t.Errorf("tier = %q", res.Tier)
	}
	if res.Draft.SourceURL != "https://social.example/post/9" {
		t.Errorf("sourceUrl = %q", res.Draft.SourceURL)
	}
	if res.Draft.Confidence == nil || *res.Draft.Confidence != 0.8 {
		t.Errorf("confidence = %v", res.Draft.Confidence)
	}
}

func TestParseFromTextPropagatesErrors(t *testing.T) {
	boom := &textai.Error{Kind: textai.FailTooLong, Err: errors.New("too big")}
	e := newTestEngine(&fixturePages{}, nil, &stubText{err: boom})

	_, err := e.ParseFromText(context.Background(), "x", textai.ContextGeneral, "")
	var terr *textai.Error
	if !errors.As(err, &terr) || terr.Kind != textai.FailTooLong {
		t.Fatalf("err = %v, want textai tooLong", err)
	}
}
