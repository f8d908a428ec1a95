package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

const jsonldFixture = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Recipe",
  "name": "Weeknight Chicken Tacos",
  "prepTime": "PT10M",
  "cookTime": "PT20M",
  "recipeYield": "4 servings",
  "recipeCuisine": ["Mexican"],
  "recipeIngredient": ["2 cups shredded chicken", "8 corn tortillas"],
  "recipeInstructions": [
    {"@type": "HowToStep", "text": "Warm the tortillas in a dry skillet."},
    {"@type": "HowToStep", "text": "Fill with chicken and serve."}
  ]
}
</script>
</head><body><h1>Weeknight Chicken Tacos</h1></body></html>`

func TestJSONLDExtractsRecipe(t *testing.T) {
	tier := &JSONLDTier{}
	draft := tier.TryExtract(mustDoc(t, jsonldFixture), mustURL(t, "https://example.com/tacos"))
	if draft == nil {
		t.Fatal("expected a draft")
	}
	if draft.Name != "Weeknight Chicken Tacos" {
		t.Errorf("name = %q", draft.Name)
	}
	if len(draft.Ingredients) != 2 {
		t.Fatalf("ingredients = %d, want 2", len(draft.Ingredients))
	}
	if draft.Ingredients[0].Name != "shredded chicken" || draft.Ingredients[0].Amount != "2" {
		t.Errorf("first ingredient = %+v", draft.Ingredients[0])
	}
	want := "1. Warm the tortillas in a dry skillet.\n2. Fill with chicken and serve."
	if draft.Instructions != want {
		t.Errorf("instructions = %q, want %q", draft.Instructions, want)
	}
	if draft.PrepTime != "PT10M" || draft.CookTime != "PT20M" {
		t.Errorf("durations = %q / %q, expected ISO 8601 passthrough", draft.PrepTime, draft.CookTime)
	}
	if draft.Servings == nil || *draft.Servings != 4 {
		t.Errorf("servings = %v, want 4", draft.Servings)
	}
	if draft.Cuisine != "Mexican" {
		t.Errorf("cuisine = %q", draft.Cuisine)
	}
	if draft.Confidence != nil {
		t.Error("structured extraction must not set a confidence score")
	}
}

func TestJSONLDSkipsMalformedBlocks(t *testing.T) {
	html := `<html><head>
<script type="application/ld+json">{not valid json</script>
` + strings.TrimPrefix(jsonldFixture, "<html><head>")
	draft := (&JSONLDTier{}).TryExtract(mustDoc(t, html), nil)
	if draft == nil {
		t.Fatal("malformed first block must not abort the scan")
	}
	if draft.Name != "Weeknight Chicken Tacos" {
		t.Errorf("name = %q", draft.Name)
	}
}

func TestJSONLDFindsRecipeInGraph(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {"@type": "WebPage", "name": "Some page"},
    {
      "@type": ["Thing", "recipe"],
      "name": "Graph Brownies",
      "recipeInstructions": "Mix the batter\nBake at 180C for 25 minutes"
    }
  ]
}
</script></head><body></body></html>`
	draft := (&JSONLDTier{}).TryExtract(mustDoc(t, html), nil)
	if draft == nil {
		t.Fatal("expected draft from @graph")
	}
	if draft.Name != "Graph Brownies" {
		t.Errorf("name = %q", draft.Name)
	}
	want := "1. Mix the batter\n2. Bake at 180C for 25 minutes"
	if draft.Instructions != want {
		t.Errorf("instructions = %q", draft.Instructions)
	}
}

func TestJSONLDHowToSections(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
{
  "@type": "Recipe",
  "name": "Layered Lasagna",
  "recipeInstructions": [
    {"@type": "HowToSection", "name": "Sauce", "itemListElement": [
      {"@type": "HowToStep", "text": "Simmer the tomatoes."}
    ]},
    {"@type": "HowToSection", "name": "Assembly", "itemListElement": [
      {"@type": "HowToStep", "text": "Layer pasta and sauce."},
      {"@type": "HowToStep", "text": "Bake until bubbling."}
    ]}
  ]
}
</script></head><body></body></html>`
	draft := (&JSONLDTier{}).TryExtract(mustDoc(t, html), nil)
	if draft == nil {
		t.Fatal("expected draft")
	}
	want := "1. Simmer the tomatoes.\n2. Layer pasta and sauce.\n3. Bake until bubbling."
	if draft.Instructions != want {
		t.Errorf("instructions = %q", draft.Instructions)
	}
}

func TestJSONLDIgnoresNonRecipeObjects(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
{"@type": "NewsArticle", "name": "Election results", "articleBody": "..."}
</script></head><body></body></html>`
	if draft := (&JSONLDTier{}).TryExtract(mustDoc(t, html), nil); draft != nil {
		t.Fatalf("expected nil, got %+v", draft)
	}
}
