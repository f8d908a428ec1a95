package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"recipeharvest/pkg/types"
)

// stealthScript masks the properties recipe sites commonly probe to detect
// headless automation before any page script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
const origQuery = window.navigator.permissions && window.navigator.permissions.query;
if (origQuery) {
  window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : origQuery(parameters)
  );
}
`

// RenderOptions configures the headless rendering pipeline.
type RenderOptions struct {
	Timeout            time.Duration
	MaxBodyBytes       int64
	DisableHeadless    bool
	ConcurrentSessions int
	MinReadPause       time.Duration
	MaxReadPause       time.Duration
	Seed               int64
}

// ChromeRenderer drives headless Chrome sessions with stealth
// countermeasures and human-like reading behaviour. Browser instances are a
// bounded pool: the semaphore slot is the scoped resource and is released on
// every exit path, including timeout and cancellation.
type ChromeRenderer struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewChromeRenderer constructs a renderer with bounded concurrency.
func NewChromeRenderer(opts RenderOptions, logger *slog.Logger) *ChromeRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if opts.MinReadPause <= 0 {
		opts.MinReadPause = time.Second
	}
	if opts.MaxReadPause < opts.MinReadPause {
		opts.MaxReadPause = opts.MinReadPause + 2*time.Second
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Fetch navigates to the target URL under the given fingerprint, scrolls the
// page like a reader, and exports the final DOM outer HTML.
func (r *ChromeRenderer) Fetch(parentCtx context.Context, rawURL string, fp Fingerprint) (*types.Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{Kind: FailFatal, URL: rawURL, Err: err}
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return nil, &FetchError{Kind: FailRetryable, URL: rawURL, Err: parentCtx.Err()}
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(fp.UserAgent),
		chromedp.WindowSize(fp.ViewportWidth, fp.ViewportHeight),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	var docStatus int64
	chromedp.ListenTarget(chromeCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && docStatus == 0 {
				docStatus = resp.Response.Status
			}
		}
	})

	start := time.Now()
	var html string
	var finalURL string

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			headers := network.Headers{"Accept-Language": fp.AcceptLanguage}
			return network.SetExtraHTTPHeaders(headers).Do(ctx)
		}),
		chromedp.Navigate(target.String()),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	actions = append(actions, r.readingActions(fp)...)
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		r.logger.Warn("chromedp run failed", "url", rawURL, "error", err)
		return nil, &FetchError{Kind: FailRetryable, URL: rawURL, Err: err}
	}

	if kind, bad := classifyStatus(int(docStatus)); bad && docStatus != 0 {
		return nil, &FetchError{Kind: kind, URL: rawURL, Err: fmt.Errorf("http status %d", docStatus)}
	}

	if int64(len(html)) > r.opts.MaxBodyBytes {
		html = html[:r.opts.MaxBodyBytes]
	}

	parsedFinal := target
	if finalURL != "" {
		if u, err := url.Parse(finalURL); err == nil {
			parsedFinal = u
		}
	}

	return &types.Page{
		URL:             target,
		FinalURL:        parsedFinal,
		Body:            []byte(html),
		StatusCode:      int(docStatus),
		FetchedAt:       time.Now(),
		Rendered:        true,
		ResponseLatency: time.Since(start),
	}, nil
}

// readingActions produces one or two randomized scrolls with randomized
// pauses, mimicking a human skimming the page before the DOM is captured.
func (r *ChromeRenderer) readingActions(fp Fingerprint) []chromedp.Action {
	vh := fp.ViewportHeight
	if vh <= 0 {
		vh = 900
	}

	r.mu.Lock()
	scrolls := 1 + r.rng.Intn(2)
	type step struct {
		distance int
		pause    time.Duration
	}
	steps := make([]step, 0, scrolls)
	span := r.opts.MaxReadPause - r.opts.MinReadPause
	for i := 0; i < scrolls; i++ {
		pause := r.opts.MinReadPause
		if span > 0 {
			pause += time.Duration(r.rng.Int63n(int64(span)))
		}
		steps = append(steps, step{
			distance: vh/2 + r.rng.Intn(vh),
			pause:    pause,
		})
	}
	r.mu.Unlock()

	actions := make([]chromedp.Action, 0, 2*len(steps))
	for _, s := range steps {
		js := fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'smooth'})`, s.distance)
		actions = append(actions,
			chromedp.Evaluate(js, nil),
			chromedp.Sleep(s.pause),
		)
	}
	return actions
}
