package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/pkg/types"
)

// MicrodataTier reads Schema.org Recipe markup expressed through itemtype/
// itemprop attributes. Second priority: still publisher-curated, but noisier
// than JSON-LD in practice.
type MicrodataTier struct{}

func (t *MicrodataTier) Name() string { return "microdata" }

func (t *MicrodataTier) TryExtract(doc *goquery.Document, pageURL *url.URL) *types.RecipeDraft {
	var scope *goquery.Selection
	doc.Find("[itemtype]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		itemtype, _ := s.Attr("itemtype")
		if strings.Contains(strings.ToLower(itemtype), "schema.org/recipe") {
			scope = s
			return false
		}
		return true
	})
	if scope == nil {
		return nil
	}

	draft := &types.RecipeDraft{
		Name:     itempropText(scope, "name"),
		PrepTime: itempropValue(scope, "prepTime"),
		CookTime: itempropValue(scope, "cookTime"),
		Cuisine:  itempropText(scope, "recipeCuisine"),
	}

	if servings, ok := leadingInt(itempropText(scope, "recipeYield")); ok {
		draft.Servings = &servings
	}

	scope.Find(`[itemprop="recipeIngredient"], [itemprop="ingredients"]`).Each(func(_ int, s *goquery.Selection) {
		if ing, ok := ParseIngredientLine(s.Text()); ok {
			draft.Ingredients = append(draft.Ingredients, ing)
		}
	})

	var steps []string
	scope.Find(`[itemprop="recipeInstructions"]`).Each(func(_ int, s *goquery.Selection) {
		// Instructions appear either as one container with list items or as
		// repeated itemprop elements, one per step.
		items := s.Find("li")
		if items.Length() > 0 {
			items.Each(func(_ int, li *goquery.Selection) {
				if text := norm(li.Text()); text != "" {
					steps = append(steps, text)
				}
			})
			return
		}
		if text := norm(s.Text()); text != "" {
			steps = append(steps, SplitSteps(text)...)
		}
	})
	draft.Instructions = NumberSteps(steps)

	if !draft.Usable() {
		return nil
	}
	return draft
}

// itempropText returns the trimmed text of the first matching itemprop.
func itempropText(scope *goquery.Selection, prop string) string {
	sel := scope.Find(`[itemprop="` + prop + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return norm(content)
	}
	return norm(sel.Text())
}

// itempropValue prefers machine-readable attributes (content, datetime) over
// display text, which matters for ISO 8601 durations.
func itempropValue(scope *goquery.Selection, prop string) string {
	sel := scope.Find(`[itemprop="` + prop + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"content", "datetime"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return norm(v)
		}
	}
	return norm(sel.Text())
}
