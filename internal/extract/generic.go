package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/pkg/types"
)

// GenericTier is the last-resort heuristic pass: class/id substring matches
// for recipe-ish containers. Lowest precision, so it demands both a name and
// instructions before committing.
type GenericTier struct{}

func (t *GenericTier) Name() string { return "generic" }

var (
	genericNameSelectors = []string{
		`[class*="recipe-title"]`, `[class*="recipe-name"]`,
		`[itemprop="name"]`, "h1",
	}
	genericIngredientSelectors = []string{
		`[class*="ingredient"] li`, `ul[class*="ingredient"] li`,
		`li[class*="ingredient"]`,
	}
	genericInstructionSelectors = []string{
		`[class*="instruction"] li`, `[class*="direction"] li`,
		`[class*="method"] li`, `ol[class*="step"] li`, `li[class*="step"]`,
	}
)

func (t *GenericTier) TryExtract(doc *goquery.Document, pageURL *url.URL) *types.RecipeDraft {
	draft := &types.RecipeDraft{}

	for _, sel := range genericNameSelectors {
		if name := norm(doc.Find(sel).First().Text()); name != "" {
			draft.Name = name
			break
		}
	}

	for _, sel := range genericIngredientSelectors {
		var found []types.Ingredient
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if ing, ok := ParseIngredientLine(s.Text()); ok {
				found = append(found, ing)
			}
		})
		if len(found) >= 2 {
			draft.Ingredients = found
			break
		}
	}

	for _, sel := range genericInstructionSelectors {
		var steps []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := norm(s.Text()); text != "" {
				steps = append(steps, text)
			}
		})
		if len(steps) > 0 {
			draft.Instructions = NumberSteps(steps)
			break
		}
	}

	// A bare heading is not evidence of a recipe. Only commit when
	// instruction content was actually found alongside the name.
	if !draft.Usable() {
		return nil
	}
	return draft
}
