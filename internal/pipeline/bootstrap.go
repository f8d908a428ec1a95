package pipeline

import (
	"fmt"
	"log/slog"
	"os"

	"recipeharvest/internal/config"
	"recipeharvest/internal/extract"
	"recipeharvest/internal/fetcher"
	"recipeharvest/internal/limiter"
	"recipeharvest/internal/robots"
	"recipeharvest/internal/textai"
)

// FromConfig assembles a production engine: headless rendering when enabled,
// plain HTTP otherwise, with the robots gate sharing the HTTP fetcher's
// client. The text-AI key is read from the environment variable the config
// names; when absent the text path still works until the provider rejects
// the request, which surfaces as a providerError.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		Timeout:      cfg.Fetch.Timeout.Duration,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		ProxyURL:     cfg.Fetch.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init http fetcher: %w", err)
	}

	var pages fetcher.PageFetcher = httpFetcher
	if cfg.Fetch.RenderEnabled {
		pages = fetcher.NewChromeRenderer(fetcher.RenderOptions{
			Timeout:            cfg.Fetch.Timeout.Duration,
			MaxBodyBytes:       cfg.Fetch.MaxBodyBytes,
			DisableHeadless:    cfg.Fetch.DisableHeadless,
			ConcurrentSessions: cfg.Fetch.ConcurrentSessions,
			MinReadPause:       cfg.Fetch.MinReadPause.Duration,
			MaxReadPause:       cfg.Fetch.MaxReadPause.Duration,
		}, logger)
	}

	retrier := fetcher.NewRetrier(fetcher.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Duration,
		MaxJitter:   cfg.Retry.MaxJitter.Duration,
	}, fetcher.NewRotator(0), logger, 0)

	apiKey := ""
	if cfg.TextAI.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.TextAI.APIKeyEnv)
		if apiKey == "" {
			logger.Warn("text-ai api key env is empty", "env", cfg.TextAI.APIKeyEnv)
		}
	}
	client := textai.NewClient(cfg.TextAI.Endpoint, apiKey, logger,
		textai.WithModel(cfg.TextAI.Model),
		textai.WithTemperature(cfg.TextAI.Temperature),
		textai.WithMaxTokens(cfg.TextAI.MaxTokens),
		textai.WithHTTPTimeout(cfg.TextAI.Timeout.Duration),
	)

	return NewEngine(Options{
		Limiter:   limiter.New(cfg.Limiter),
		Robots:    robots.NewGate(cfg.Robots, httpFetcher.Client(), logger),
		Pages:     pages,
		Retrier:   retrier,
		Extractor: extract.NewPipeline(logger, extract.DefaultTiers()...),
		Images:    extract.NewImageFinder(cfg.Images.MaxImages, cfg.Images.ScoreFloor, cfg.Images.ScoreCeil),
		Text:      textai.NewExtractor(client, logger),
		Logger:    logger,
	}), nil
}
