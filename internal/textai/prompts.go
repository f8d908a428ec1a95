package textai

// Prompts live here so wording changes are a single-file edit. Both variants
// demand the same JSON schema; only the framing of the input differs.

// Context selects the prompt variant for the input's origin.
type Context string

const (
	ContextGeneral     Context = "general"
	ContextSocialMedia Context = "social_media"
)

const responseSchema = `Respond with a single JSON object and nothing else: no markdown fences, no commentary.

Schema:
{
  "name": "Recipe title",
  "ingredients": [
    {"name": "flour", "amount": "2", "unit": "cups", "notes": "sifted"}
  ],
  "instructions": ["First step", "Second step"],
  "prepTime": "PT10M",
  "cookTime": "PT25M",
  "servings": 4,
  "cuisine": "Mexican"
}

Rules:
- "name" and "instructions" are required. Omit any other field you cannot determine; never invent values.
- "instructions" is an array of step strings in order, one action per step.
- "amount" and "unit" stay as written in the source; do not convert units.
- Durations use ISO 8601 (PT10M). Omit them if the source gives no timing.
- "servings" is a positive integer.`

const promptGeneral = `You extract structured recipes from free-form text: pasted articles, emails, scanned cookbook pages, or personal notes.

Extract only what the text actually says. If the text contains no recipe, return {"name": "", "instructions": []}.

` + responseSchema

const promptSocialMedia = `You extract structured recipes from social-media captions and posts. Expect informal style: emoji, hashtags, ALL-CAPS section markers, loose punctuation, quantities written as words, and steps separated by line breaks or emoji bullets.

Ignore hashtags, mentions, and promotional lines. Reconstruct the step order from the caption's flow. If the caption contains no recipe, return {"name": "", "instructions": []}.

` + responseSchema

// systemPrompt returns the variant for ctx, defaulting to the general one.
func systemPrompt(ctx Context) string {
	if ctx == ContextSocialMedia {
		return promptSocialMedia
	}
	return promptGeneral
}
