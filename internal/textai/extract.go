package textai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"recipeharvest/internal/extract"
	"recipeharvest/pkg/types"
)

// MaxTextLength is the input ceiling in runes. Longer input fails fast with
// ErrTooLong before any provider call; truncating instead would silently
// drop recipe content.
const MaxTextLength = 10000

// FailKind classifies a text-extraction failure.
type FailKind string

const (
	FailTooLong     FailKind = "tooLong"
	FailUnparseable FailKind = "unparseable"
	FailProvider    FailKind = "providerError"
)

// Error is a classified text-extraction failure.
type Error struct {
	Kind FailKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("text extraction (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor drives the AI-assisted text path. The provider call is never
// retried here; each attempt has real monetary and latency cost, so retrying
// is a caller decision.
type Extractor struct {
	client ChatClient
	logger *slog.Logger
}

func NewExtractor(client ChatClient, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, logger: logger}
}

// modelResponse tolerates the looser shapes models actually produce:
// instructions as an array or a single string, ingredients as objects or
// bare strings.
type modelResponse struct {
	Name         string            `json:"name"`
	Ingredients  []json.RawMessage `json:"ingredients"`
	Instructions json.RawMessage   `json:"instructions"`
	PrepTime     string            `json:"prepTime"`
	CookTime     string            `json:"cookTime"`
	Servings     int               `json:"servings"`
	Cuisine      string            `json:"cuisine"`
}

type modelIngredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Notes  string `json:"notes"`
}

// ExtractFromText validates the input, calls the provider once, parses the
// reply, and attaches a deterministic confidence score. sourceURL is carried
// through for provenance only; no fetch happens on this path.
func (e *Extractor) ExtractFromText(ctx context.Context, text string, variant Context, sourceURL string) (*types.RecipeDraft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &Error{Kind: FailUnparseable, Err: fmt.Errorf("empty input text")}
	}
	if n := utf8.RuneCountInString(text); n > MaxTextLength {
		return nil, &Error{Kind: FailTooLong, Err: fmt.Errorf("input is %d characters, limit is %d", n, MaxTextLength)}
	}

	reply, err := e.client.Chat(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt(variant)},
		{Role: RoleUser, Content: text},
	})
	if err != nil {
		return nil, &Error{Kind: FailProvider, Err: err}
	}

	draft, err := parseReply(reply)
	if err != nil {
		e.logger.Warn("unparseable model reply", "error", err, "reply_chars", len(reply))
		return nil, &Error{Kind: FailUnparseable, Err: err}
	}

	draft.SourceURL = sourceURL
	extract.Normalize(draft, nil)

	conf := Confidence(draft, utf8.RuneCountInString(text))
	draft.Confidence = &conf

	e.logger.Info("text extraction done",
		"context", string(variant),
		"name", draft.Name,
		"ingredients", len(draft.Ingredients),
		"confidence", conf)
	return draft, nil
}

// parseReply decodes the model's JSON into a draft. A reply missing name or
// instructions is rejected outright rather than returned as a partial guess.
func parseReply(reply string) (*types.RecipeDraft, error) {
	var resp modelResponse
	if err := json.Unmarshal([]byte(stripFences(reply)), &resp); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}

	draft := &types.RecipeDraft{
		Name:     strings.TrimSpace(resp.Name),
		PrepTime: strings.TrimSpace(resp.PrepTime),
		CookTime: strings.TrimSpace(resp.CookTime),
		Cuisine:  strings.TrimSpace(resp.Cuisine),
	}
	if resp.Servings > 0 {
		draft.Servings = &resp.Servings
	}

	for _, raw := range resp.Ingredients {
		var obj modelIngredient
		if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Name) != "" {
			draft.Ingredients = append(draft.Ingredients, types.Ingredient{
				Name:   strings.TrimSpace(obj.Name),
				Amount: strings.TrimSpace(obj.Amount),
				Unit:   strings.TrimSpace(obj.Unit),
				Notes:  strings.TrimSpace(obj.Notes),
			})
			continue
		}
		var line string
		if err := json.Unmarshal(raw, &line); err == nil {
			if ing, ok := extract.ParseIngredientLine(line); ok {
				draft.Ingredients = append(draft.Ingredients, ing)
			}
		}
	}

	draft.Instructions = extract.NumberSteps(instructionList(resp.Instructions))

	if draft.Name == "" {
		return nil, fmt.Errorf("reply has no recipe name")
	}
	if draft.Instructions == "" {
		return nil, fmt.Errorf("reply has no instructions")
	}
	return draft, nil
}

func instructionList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return extract.SplitSteps(single)
	}
	return nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
