package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/pkg/types"
)

// SiteSelectors is a hand-tuned selector set for one publisher. Selectors are
// comma-separated goquery expressions so a site can carry fallbacks for old
// and new page templates.
type SiteSelectors struct {
	Name         string
	Ingredients  string
	Instructions string
	Image        string
}

// SiteTier applies per-domain selector sets. It only fires when the page's
// hostname matches a registered entry, so it sits between the structured-data
// tiers and the generic fallback.
type SiteTier struct {
	registry map[string]SiteSelectors
}

func NewSiteTier(registry map[string]SiteSelectors) *SiteTier {
	return &SiteTier{registry: registry}
}

func (t *SiteTier) Name() string { return "site" }

// DefaultSiteRegistry covers the major recipe publishers. Keys are canonical
// hostnames without the www prefix.
func DefaultSiteRegistry() map[string]SiteSelectors {
	return map[string]SiteSelectors{
		"allrecipes.com": {
			Name:         "h1.article-heading, h1#article-heading_1-0",
			Ingredients:  "ul.mm-recipes-structured-ingredients__list li, span.ingredients-item-name",
			Instructions: "div.mm-recipes-steps ol li, ul.instructions-section li .paragraph p",
			Image:        "div.primary-image img, div.img-placeholder img",
		},
		"foodnetwork.com": {
			Name:         "h1.o-AssetTitle__a-Headline span, h1.o-AssetTitle__a-Headline",
			Ingredients:  "p.o-Ingredients__a-Ingredient span.o-Ingredients__a-Ingredient--CheckboxLabel, p.o-Ingredients__a-Ingredient",
			Instructions: "li.o-Method__m-Step",
			Image:        "div.m-MediaBlock__m-MediaWrap img",
		},
		"bbcgoodfood.com": {
			Name:         "h1.heading-1, h1.post-header__title",
			Ingredients:  "section.recipe__ingredients li, ul.ingredients-list__group li",
			Instructions: "section.recipe__method-steps li p, ol.method-steps__list li p",
			Image:        "div.post-header__image-container img, img.image__img",
		},
		"delish.com": {
			Name:         "h1.content-hed, h1.recipe-hed",
			Ingredients:  "div.ingredient-item, div.ingredients-body li",
			Instructions: "div.direction-lists ol li, ul.directions li ol li",
			Image:        "div.content-lede-image img, picture.recipe-lede-image img",
		},
		"tasty.co": {
			Name:         "h1.recipe-name",
			Ingredients:  "div.ingredients__section li.ingredient",
			Instructions: "ol.prep-steps li.xs-mb2",
			Image:        "div.recipe-video-or-image img, picture.photo img",
		},
		"seriouseats.com": {
			Name:         "h1.heading__title, h1.article-heading",
			Ingredients:  "li.structured-ingredients__list-item, div.ingredient",
			Instructions: "div.structured-project__steps ol li p, ol.structured-project li",
			Image:        "div.primary-image img, figure.primary-image__media img",
		},
		"simplyrecipes.com": {
			Name:         "h1.heading__title, h1.article-heading",
			Ingredients:  "ul.structured-ingredients__list li",
			Instructions: "div.structured-project__steps ol > li p",
			Image:        "div.primary-image img",
		},
	}
}

func (t *SiteTier) TryExtract(doc *goquery.Document, pageURL *url.URL) *types.RecipeDraft {
	if pageURL == nil {
		return nil
	}
	host := strings.TrimPrefix(strings.ToLower(pageURL.Hostname()), "www.")
	sels, ok := t.registry[host]
	if !ok {
		return nil
	}

	draft := &types.RecipeDraft{
		Name: norm(doc.Find(sels.Name).First().Text()),
	}

	doc.Find(sels.Ingredients).Each(func(_ int, s *goquery.Selection) {
		if ing, ok := ParseIngredientLine(s.Text()); ok {
			draft.Ingredients = append(draft.Ingredients, ing)
		}
	})

	var steps []string
	doc.Find(sels.Instructions).Each(func(_ int, s *goquery.Selection) {
		if text := norm(s.Text()); text != "" {
			steps = append(steps, text)
		}
	})
	draft.Instructions = NumberSteps(steps)

	if sels.Image != "" {
		if src, ok := doc.Find(sels.Image).First().Attr("src"); ok && strings.TrimSpace(src) != "" {
			draft.CandidateImages = append(draft.CandidateImages, types.ScoredImage{
				URL:            strings.TrimSpace(src),
				Classification: types.ImageHero,
			})
		}
	}

	if !draft.Usable() {
		return nil
	}
	return draft
}
