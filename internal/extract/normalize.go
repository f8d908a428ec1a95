package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"recipeharvest/pkg/types"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	// stepNumberRe strips a leading "1.", "2)", "Step 3:" marker so steps can
	// be renumbered consistently.
	stepNumberRe = regexp.MustCompile(`(?i)^(step\s+)?\d+\s*[.):]\s*`)
	// amountRe captures a leading quantity: digits, fractions (including
	// unicode vulgar fractions), ranges, and decimals.
	amountRe = regexp.MustCompile(`^([\d¼½¾⅓⅔⅛/.,\s]*\d[\d¼½¾⅓⅔⅛/.,\s]*|[¼½¾⅓⅔⅛])\s*(?:-\s*[\d/.]+\s*)?`)
)

// units recognised between the quantity and the ingredient name.
var units = map[string]struct{}{
	"cup": {}, "cups": {}, "c": {},
	"tablespoon": {}, "tablespoons": {}, "tbsp": {}, "tbs": {},
	"teaspoon": {}, "teaspoons": {}, "tsp": {},
	"ounce": {}, "ounces": {}, "oz": {},
	"pound": {}, "pounds": {}, "lb": {}, "lbs": {},
	"gram": {}, "grams": {}, "g": {}, "kg": {}, "kilogram": {}, "kilograms": {},
	"ml": {}, "l": {}, "liter": {}, "liters": {}, "litre": {}, "litres": {},
	"clove": {}, "cloves": {}, "can": {}, "cans": {}, "slice": {}, "slices": {},
	"stick": {}, "sticks": {}, "bunch": {}, "bunches": {}, "package": {}, "packages": {},
	"pinch": {}, "dash": {}, "handful": {}, "sprig": {}, "sprigs": {},
}

// qualitative quantity phrases that stand in for a numeric amount.
var qualitativeAmounts = []string{
	"a pinch of", "a pinch", "a dash of", "a dash", "a handful of", "a handful",
	"a splash of", "a splash", "to taste", "a few",
}

// norm trims and collapses internal whitespace.
func norm(s string) string {
	return spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Normalize puts a draft extracted by any tier into the canonical shape:
// trimmed strings, no blank-name ingredients, numbered newline-joined
// instructions, absolute image URLs. Optional fields that are absent stay
// absent. It is a pure transformation of its inputs.
func Normalize(draft *types.RecipeDraft, base *url.URL) {
	if draft == nil {
		return
	}
	draft.Name = norm(draft.Name)
	draft.PrepTime = norm(draft.PrepTime)
	draft.CookTime = norm(draft.CookTime)
	draft.Cuisine = norm(draft.Cuisine)

	kept := draft.Ingredients[:0]
	for _, ing := range draft.Ingredients {
		ing.Name = norm(ing.Name)
		ing.Amount = norm(ing.Amount)
		ing.Unit = norm(ing.Unit)
		ing.Notes = norm(ing.Notes)
		if ing.Name == "" {
			continue
		}
		kept = append(kept, ing)
	}
	draft.Ingredients = kept

	if draft.Instructions != "" && !isNumbered(draft.Instructions) {
		draft.Instructions = NumberSteps(SplitSteps(draft.Instructions))
	}
	draft.Instructions = strings.TrimSpace(draft.Instructions)

	for i := range draft.CandidateImages {
		draft.CandidateImages[i].URL = ResolveURL(base, draft.CandidateImages[i].URL)
	}
}

func isNumbered(instructions string) bool {
	for _, line := range strings.Split(instructions, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !stepNumberRe.MatchString(line) {
			return false
		}
	}
	return true
}

// SplitSteps breaks a free-form instruction blob into individual steps,
// honouring existing newlines first and numbered markers second.
func SplitSteps(instructions string) []string {
	instructions = strings.ReplaceAll(instructions, "\r\n", "\n")
	var parts []string
	if strings.Contains(instructions, "\n") {
		parts = strings.Split(instructions, "\n")
	} else {
		parts = []string{instructions}
	}

	var steps []string
	for _, part := range parts {
		part = norm(stepNumberRe.ReplaceAllString(strings.TrimSpace(part), ""))
		if part == "" {
			continue
		}
		steps = append(steps, part)
	}
	return steps
}

// NumberSteps joins steps into one sequentially numbered, newline-separated
// instructions string.
func NumberSteps(steps []string) string {
	var b strings.Builder
	n := 0
	for _, step := range steps {
		step = norm(stepNumberRe.ReplaceAllString(step, ""))
		if step == "" {
			continue
		}
		n++
		if n > 1 {
			b.WriteByte('\n')
		}
		b.WriteString(itoa(n))
		b.WriteString(". ")
		b.WriteString(step)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ParseIngredientLine splits a source line such as "2 cups flour, sifted"
// into amount, unit, name, and notes. Lines that yield no name are reported
// unusable so extractors can drop them instead of emitting blanks.
func ParseIngredientLine(line string) (types.Ingredient, bool) {
	line = norm(line)
	if line == "" {
		return types.Ingredient{}, false
	}

	lower := strings.ToLower(line)
	for _, q := range qualitativeAmounts {
		if strings.HasPrefix(lower, q) {
			name := norm(line[len(q):])
			if name == "" {
				return types.Ingredient{}, false
			}
			return types.Ingredient{Name: name, Amount: strings.TrimSuffix(q, " of")}, true
		}
	}

	rest := line
	amount := ""
	if m := amountRe.FindString(line); strings.TrimSpace(m) != "" {
		amount = norm(m)
		rest = norm(line[len(m):])
	}

	unit := ""
	if rest != "" {
		fields := strings.SplitN(rest, " ", 2)
		candidate := strings.ToLower(strings.Trim(fields[0], "."))
		if _, ok := units[candidate]; ok && len(fields) == 2 {
			unit = candidate
			rest = norm(fields[1])
		}
	}

	rest = strings.TrimPrefix(rest, "of ")

	name := rest
	notes := ""
	if idx := strings.Index(rest, ","); idx >= 0 {
		name = norm(rest[:idx])
		notes = norm(rest[idx+1:])
	} else if open := strings.Index(rest, "("); open >= 0 {
		if end := strings.Index(rest[open:], ")"); end > 0 {
			notes = norm(rest[open+1 : open+end])
			name = norm(rest[:open] + rest[open+end+1:])
		}
	}

	if name == "" {
		return types.Ingredient{}, false
	}
	return types.Ingredient{Name: name, Amount: amount, Unit: unit, Notes: notes}, true
}

// FlattenHTML strips markup from a fragment, returning its visible text.
// JSON-LD HowToStep text occasionally embeds tags.
func FlattenHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return norm(fragment)
	}
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return norm(fragment)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := norm(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return b.String()
}

// ResolveURL makes raw absolute against base. Protocol-relative and
// relative references are resolved; already-absolute URLs pass through.
func ResolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() {
		return ref.String()
	}
	if base == nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
