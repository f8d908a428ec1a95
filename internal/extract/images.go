package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"recipeharvest/pkg/types"
)

// ImageFinder discovers recipe-related images on a page and ranks them with a
// deterministic quality heuristic. Scores are a pure function of each image's
// attributes, so the same page always yields the same ordering.
type ImageFinder struct {
	MaxImages  int
	ScoreFloor int
	ScoreCeil  int
}

func NewImageFinder(maxImages, floor, ceil int) *ImageFinder {
	if maxImages <= 0 {
		maxImages = 10
	}
	if ceil <= floor {
		floor, ceil = 0, 100
	}
	return &ImageFinder{MaxImages: maxImages, ScoreFloor: floor, ScoreCeil: ceil}
}

// imageContext ties a selector to the classification its matches receive.
// Order matters: the first context to claim a URL wins, so hero selectors run
// before the broad gallery fallback.
type imageContext struct {
	selector string
	class    types.ImageClass
}

var imageContexts = []imageContext{
	{`[class*="hero"] img, [class*="lede"] img, [class*="primary-image"] img, figure[class*="recipe"] img, [class*="featured"] img`, types.ImageHero},
	{`[class*="step"] img, [class*="instruction"] img, [class*="direction"] img, [class*="method"] img`, types.ImageStep},
	{`[class*="ingredient"] img`, types.ImageIngredient},
	{`[class*="gallery"] img, [class*="recipe"] img, article img`, types.ImageGallery},
}

var (
	// dimensionHintRe finds "1200x800"-style dimension pairs embedded in a
	// filename or CDN path.
	dimensionHintRe = regexp.MustCompile(`(\d{3,5})[xX](\d{3,5})`)

	qualityKeywords = []string{"hd", "high-res", "highres", "hi-res", "hires", "large", "full"}
	foodKeywords    = []string{
		"recipe", "food", "dish", "meal", "cook", "bake", "plate",
		"ingredient", "serving", "delicious",
	}
	thumbnailHints = []string{"thumb", "thumbnail", "icon", "avatar", "logo", "sprite", "-small", "_small"}
)

// Discover scans the document for recipe image candidates, resolves every
// URL against pageURL, deduplicates, scores, and returns the candidates in
// descending score order. Ties keep document order.
func (f *ImageFinder) Discover(doc *goquery.Document, pageURL *url.URL) []types.ScoredImage {
	seen := make(map[string]struct{})
	var out []types.ScoredImage

	add := func(raw, alt, class, context string, width, height int, imgClass types.ImageClass) {
		resolved := ResolveURL(pageURL, raw)
		if !isHTTPURL(resolved) {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, types.ScoredImage{
			URL:            resolved,
			AltText:        alt,
			Score:          f.score(resolved, alt, class, context, width, height),
			Classification: imgClass,
		})
	}

	// og:image is the publisher's own pick for the page, treat it as hero.
	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		add(og, "", "", "", 0, 0, types.ImageHero)
	}

	for _, ctx := range imageContexts {
		doc.Find(ctx.selector).Each(func(_ int, s *goquery.Selection) {
			alt, _ := s.Attr("alt")
			class, _ := s.Attr("class")
			width := attrInt(s, "width")
			height := attrInt(s, "height")
			surrounding := parentText(s)

			for _, candidate := range srcCandidates(s) {
				add(candidate, strings.TrimSpace(alt), class, surrounding, width, height, ctx.class)
			}
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > f.MaxImages {
		out = out[:f.MaxImages]
	}
	return out
}

// score implements the quality heuristic. Bonuses are additive except the
// format preference, where only the best-matching format counts.
func (f *ImageFinder) score(resolved, alt, class, context string, width, height int) int {
	score := 50
	lowerURL := strings.ToLower(resolved)
	lowerAlt := strings.ToLower(alt)

	if longEdge(lowerURL, width, height) >= 1200 {
		score += 30
	}
	if containsAny(lowerAlt, qualityKeywords) || containsAny(lowerURL, qualityKeywords) {
		score += 15
	}
	if utf8.RuneCountInString(alt) >= 10 {
		score += 10
	}
	if containsAny(lowerAlt, foodKeywords) || containsAny(strings.ToLower(context), foodKeywords) {
		score += 5
	}
	switch {
	case strings.Contains(lowerURL, ".webp"):
		score += 10
	case strings.Contains(lowerURL, ".jpg"), strings.Contains(lowerURL, ".jpeg"):
		score += 5
	}
	if containsAny(lowerURL, thumbnailHints) || containsAny(strings.ToLower(class), thumbnailHints) {
		score -= 20
	}

	if score < f.ScoreFloor {
		return f.ScoreFloor
	}
	if score > f.ScoreCeil {
		return f.ScoreCeil
	}
	return score
}

// longEdge resolves the larger dimension from explicit width/height
// attributes, falling back to a "WxH" hint in the URL.
func longEdge(lowerURL string, width, height int) int {
	edge := width
	if height > edge {
		edge = height
	}
	if edge > 0 {
		return edge
	}
	if m := dimensionHintRe.FindStringSubmatch(lowerURL); m != nil {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if h > w {
			return h
		}
		return w
	}
	return 0
}

// srcCandidates collects every URL an img element advertises: src, lazy-load
// attributes, and each entry of srcset.
func srcCandidates(s *goquery.Selection) []string {
	var out []string
	for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	if srcset, ok := s.Attr("srcset"); ok {
		out = append(out, parseSrcset(srcset)...)
	}
	return out
}

// parseSrcset pulls the URL out of each "url descriptor" pair.
func parseSrcset(srcset string) []string {
	var out []string
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(entry))
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// parentText returns nearby text used for keyword context, capped so a huge
// ancestor block cannot dominate.
func parentText(s *goquery.Selection) string {
	parent := s.Parent()
	if parent.Length() == 0 {
		return ""
	}
	text := norm(parent.Text())
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}

func attrInt(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
