// Command recipeharvest runs a single extraction from the command line and
// prints the resulting recipe draft as JSON. Useful for smoke-testing
// selectors against a live page without standing up the API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"recipeharvest/internal/config"
	"recipeharvest/internal/pipeline"
	"recipeharvest/internal/textai"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to engine configuration")
	target := flag.String("url", "", "Recipe page URL to extract")
	text := flag.String("text", "", "Free-form recipe text to extract (reads stdin when '-')")
	variant := flag.String("context", "general", "Text context: general or social_media")
	sourceURL := flag.String("source-url", "", "Provenance URL attached to text extraction")
	images := flag.Bool("images", false, "Discover and score candidate images (URL mode)")
	maxImages := flag.Int("max-images", 0, "Override the configured image cap")
	noRender := flag.Bool("no-render", false, "Fetch with plain HTTP instead of headless Chrome")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	if (*target == "") == (*text == "") {
		log.Fatal("exactly one of -url or -text is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *noRender {
		cfg.Fetch.RenderEnabled = false
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	engine, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res *pipeline.Result
	if *target != "" {
		res, err = engine.ParseFromURL(ctx, *target, pipeline.URLOptions{
			IncludeImages: *images,
			MaxImages:     *maxImages,
		})
	} else {
		input, readErr := readText(*text)
		if readErr != nil {
			log.Fatalf("failed to read text input: %v", readErr)
		}
		res, err = engine.ParseFromText(ctx, input, textai.Context(*variant), *sourceURL)
	}
	if err != nil {
		if res != nil && len(res.Attempts) > 0 {
			logger.Warn("extraction failed", "attempts", len(res.Attempts))
		}
		log.Fatalf("extraction failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Draft); err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Fprintf(os.Stderr, "tier=%s attempts=%d duration=%s\n", res.Tier, len(res.Attempts), res.Duration)
}

func readText(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(errors.Unwrap(err)) && path == "configs/config.yaml" {
		defaults := config.Default()
		return &defaults, nil
	}
	return nil, err
}
