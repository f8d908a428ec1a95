package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/pkg/types"
)

// JSONLDTier reads Schema.org Recipe objects embedded in
// <script type="application/ld+json"> blocks. This is the highest-fidelity
// tier: publishers that emit JSON-LD curate the data themselves.
type JSONLDTier struct{}

func (t *JSONLDTier) Name() string { return "jsonld" }

// TryExtract scans every JSON-LD block on the page. A malformed block is
// skipped, never aborts the scan.
func (t *JSONLDTier) TryExtract(doc *goquery.Document, pageURL *url.URL) *types.RecipeDraft {
	var draft *types.RecipeDraft
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		node := findRecipeNode(raw)
		if node == nil {
			return true
		}
		if d := mapRecipeNode(node); d.Usable() {
			draft = d
			return false
		}
		return true
	})
	return draft
}

// findRecipeNode walks a decoded JSON-LD value looking for an object whose
// @type is Recipe. Handles top-level arrays and @graph nesting.
func findRecipeNode(v any) map[string]any {
	switch node := v.(type) {
	case map[string]any:
		if isRecipeType(node["@type"]) {
			return node
		}
		if graph, ok := node["@graph"].([]any); ok {
			for _, item := range graph {
				if found := findRecipeNode(item); found != nil {
					return found
				}
			}
		}
	case []any:
		for _, item := range node {
			if found := findRecipeNode(item); found != nil {
				return found
			}
		}
	}
	return nil
}

// isRecipeType accepts "Recipe" as a bare string or inside a type array,
// case-insensitively.
func isRecipeType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "Recipe")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Recipe") {
				return true
			}
		}
	}
	return false
}

func mapRecipeNode(node map[string]any) *types.RecipeDraft {
	draft := &types.RecipeDraft{
		Name:         asString(node["name"]),
		Instructions: NumberSteps(instructionSteps(node["recipeInstructions"])),
		// ISO 8601 durations pass through untouched; source pages are too
		// inconsistent to normalise further.
		PrepTime: asString(node["prepTime"]),
		CookTime: asString(node["cookTime"]),
		Cuisine:  firstString(node["recipeCuisine"]),
	}

	if servings, ok := parseServings(node["recipeYield"]); ok {
		draft.Servings = &servings
	}

	for _, line := range stringSlice(node["recipeIngredient"]) {
		if ing, ok := ParseIngredientLine(line); ok {
			draft.Ingredients = append(draft.Ingredients, ing)
		}
	}

	return draft
}

// instructionSteps flattens recipeInstructions into ordered step strings.
// Schema.org allows a plain string, an array of strings, an array of
// HowToStep objects, or HowToSection objects nesting further steps.
func instructionSteps(v any) []string {
	switch node := v.(type) {
	case string:
		return SplitSteps(node)
	case []any:
		var steps []string
		for _, item := range node {
			steps = append(steps, instructionSteps(item)...)
		}
		return steps
	case map[string]any:
		typ := asString(node["@type"])
		if strings.EqualFold(typ, "HowToSection") {
			var steps []string
			if items, ok := node["itemListElement"].([]any); ok {
				for _, item := range items {
					steps = append(steps, instructionSteps(item)...)
				}
			}
			return steps
		}
		if text := strings.TrimSpace(asString(node["text"])); text != "" {
			return []string{FlattenHTML(text)}
		}
		if name := strings.TrimSpace(asString(node["name"])); name != "" {
			return []string{name}
		}
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// firstString accepts a string or the first string of an array.
func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// parseServings extracts a positive integer from recipeYield, which appears
// in the wild as a number, a numeric string ("4"), a phrase ("4 servings"),
// or an array of the above.
func parseServings(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int(t), true
		}
	case string:
		return leadingInt(t)
	case []any:
		for _, item := range t {
			if n, ok := parseServings(item); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	n := 0
	seen := false
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		seen = true
	}
	if !seen || n <= 0 {
		return 0, false
	}
	return n, true
}
