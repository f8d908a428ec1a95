package textai

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"recipeharvest/pkg/types"
)

// minRecipeTextLength is the input size below which the source text is
// unlikely to describe a full recipe.
const minRecipeTextLength = 150

var quantityRe = regexp.MustCompile(`\d|[¼½¾⅓⅔⅛]`)

// Confidence estimates extraction reliability in [0,1] from the parsed draft
// and the source text length. It is computed here, never taken from the
// model, so the same parse always yields the same score. The score is
// advisory: low-confidence drafts are still returned to the caller.
//
// Components:
//   - 0.30 when at least two ingredients were recovered
//   - 0.25 when the instructions contain clear step delimiters
//   - 0.25 when any ingredient carries a quantity
//   - 0.20 when the source text is long enough to plausibly hold a recipe
func Confidence(draft *types.RecipeDraft, textLength int) float64 {
	if draft == nil {
		return 0
	}
	score := 0.0
	if len(draft.Ingredients) >= 2 {
		score += 0.30
	}
	if hasStepDelimiters(draft.Instructions) {
		score += 0.25
	}
	if hasQuantities(draft.Ingredients) {
		score += 0.25
	}
	if textLength >= minRecipeTextLength {
		score += 0.20
	}
	if score > 1 {
		score = 1
	}
	return score
}

// hasStepDelimiters reports whether the instructions read as discrete steps
// rather than one undifferentiated blob.
func hasStepDelimiters(instructions string) bool {
	if strings.Contains(instructions, "\n") {
		return true
	}
	// A single step still counts when it is meaningfully numbered.
	return strings.HasPrefix(instructions, "1. ") && utf8.RuneCountInString(instructions) > 3
}

func hasQuantities(ingredients []types.Ingredient) bool {
	for _, ing := range ingredients {
		if quantityRe.MatchString(ing.Amount) {
			return true
		}
	}
	return false
}
