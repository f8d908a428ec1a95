package textai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"recipeharvest/pkg/types"
)

// scriptedClient records the request and plays back a fixed reply.
type scriptedClient struct {
	reply     string
	err       error
	calls     int
	gotSystem string
	gotUser   string
}

func (c *scriptedClient) Chat(_ context.Context, messages []Message) (string, error) {
	c.calls++
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			c.gotSystem = m.Content
		case RoleUser:
			c.gotUser = m.Content
		}
	}
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

const tacosReply = `{
  "name": "Easy Tacos",
  "ingredients": [
    {"name": "ground beef", "amount": "1", "unit": "lb"},
    {"name": "corn tortillas", "amount": "8"},
    {"name": "salsa", "amount": "1", "unit": "cup"}
  ],
  "instructions": ["Brown the beef in a skillet", "Warm the tortillas", "Assemble with salsa"],
  "servings": 4
}`

const tacosCaption = "Easy Tacos! 1 lb ground beef, 8 corn tortillas, salsa. " +
	"Brown the beef, warm the tortillas, assemble and enjoy. Weeknight dinner sorted!"

func TestExtractFromCaption(t *testing.T) {
	client := &scriptedClient{reply: tacosReply}
	ex := NewExtractor(client, nil)

	draft, err := ex.ExtractFromText(context.Background(), tacosCaption, ContextSocialMedia, "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(draft.Name, "Tacos") {
		t.Errorf("name = %q", draft.Name)
	}
	if len(draft.Ingredients) < 2 {
		t.Errorf("ingredients = %d, want at least 2", len(draft.Ingredients))
	}
	want := "1. Brown the beef in a skillet\n2. Warm the tortillas\n3. Assemble with salsa"
	if draft.Instructions != want {
		t.Errorf("instructions = %q", draft.Instructions)
	}
	if draft.Servings == nil || *draft.Servings != 4 {
		t.Errorf("servings = %v", draft.Servings)
	}
	if draft.Confidence == nil {
		t.Fatal("text extraction must set a confidence score")
	}
	if *draft.Confidence <= 0 || *draft.Confidence > 1 {
		t.Errorf("confidence = %v, want (0,1]", *draft.Confidence)
	}
}

func TestTooLongFailsBeforeProviderCall(t *testing.T) {
	client := &scriptedClient{reply: tacosReply}
	ex := NewExtractor(client, nil)

	_, err := ex.ExtractFromText(context.Background(), strings.Repeat("a", MaxTextLength+1), ContextGeneral, "")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != FailTooLong {
		t.Fatalf("err = %v, want kind tooLong", err)
	}
	if client.calls != 0 {
		t.Errorf("provider called %d times for oversized input", client.calls)
	}
}

func TestExactLimitIsAccepted(t *testing.T) {
	client := &scriptedClient{reply: tacosReply}
	ex := NewExtractor(client, nil)

	if _, err := ex.ExtractFromText(context.Background(), strings.Repeat("b", MaxTextLength), ContextGeneral, ""); err != nil {
		t.Fatalf("input at the limit must be accepted: %v", err)
	}
	if client.calls != 1 {
		t.Errorf("provider calls = %d, want 1", client.calls)
	}
}

func TestUnparseableReplies(t *testing.T) {
	cases := []struct {
		label string
		reply string
	}{
		{"prose", "Sorry, I could not find a recipe in that text."},
		{"missing name", `{"instructions": ["Do the thing"]}`},
		{"missing instructions", `{"name": "Mystery Dish"}`},
	}
	for _, tc := range cases {
		ex := NewExtractor(&scriptedClient{reply: tc.reply}, nil)
		_, err := ex.ExtractFromText(context.Background(), tacosCaption, ContextGeneral, "")
		var terr *Error
		if !errors.As(err, &terr) || terr.Kind != FailUnparseable {
			t.Errorf("%s: err = %v, want kind unparseable", tc.label, err)
		}
	}
}

func TestProviderErrorIsClassified(t *testing.T) {
	boom := errors.New("quota exceeded")
	ex := NewExtractor(&scriptedClient{err: boom}, nil)

	_, err := ex.ExtractFromText(context.Background(), tacosCaption, ContextGeneral, "")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != FailProvider {
		t.Fatalf("err = %v, want kind providerError", err)
	}
	if !errors.Is(err, boom) {
		t.Error("underlying provider error must be wrapped")
	}
}

func TestFencedReplyIsAccepted(t *testing.T) {
	ex := NewExtractor(&scriptedClient{reply: "```json\n" + tacosReply + "\n```"}, nil)
	draft, err := ex.ExtractFromText(context.Background(), tacosCaption, ContextGeneral, "")
	if err != nil {
		t.Fatalf("fenced reply rejected: %v", err)
	}
	if draft.Name != "Easy Tacos" {
		t.Errorf("name = %q", draft.Name)
	}
}

func TestPromptVariantSelection(t *testing.T) {
	social := &scriptedClient{reply: tacosReply}
	general := &scriptedClient{reply: tacosReply}

	if _, err := NewExtractor(social, nil).ExtractFromText(context.Background(), tacosCaption, ContextSocialMedia, ""); err != nil {
		t.Fatalf("social: %v", err)
	}
	if _, err := NewExtractor(general, nil).ExtractFromText(context.Background(), tacosCaption, ContextGeneral, ""); err != nil {
		t.Fatalf("general: %v", err)
	}

	if social.gotSystem == general.gotSystem {
		t.Error("social-media context must select a different system prompt")
	}
	if !strings.Contains(social.gotSystem, "hashtags") {
		t.Error("social prompt should address caption style")
	}
	if social.gotUser != tacosCaption {
		t.Errorf("user message = %q", social.gotUser)
	}
}

func TestStringIngredientsAreParsed(t *testing.T) {
	reply := `{
  "name": "Rustic Bread",
  "ingredients": ["500 g bread flour", "2 tsp salt"],
  "instructions": "Mix the dough\nProve overnight\nBake at 230C"
}`
	ex := NewExtractor(&scriptedClient{reply: reply}, nil)
	draft, err := ex.ExtractFromText(context.Background(), tacosCaption, ContextGeneral, "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(draft.Ingredients) != 2 {
		t.Fatalf("ingredients = %+v", draft.Ingredients)
	}
	if draft.Ingredients[0].Name != "bread flour" || draft.Ingredients[0].Unit != "g" {
		t.Errorf("first ingredient = %+v", draft.Ingredients[0])
	}
	if !strings.HasPrefix(draft.Instructions, "1. Mix the dough\n2. ") {
		t.Errorf("instructions = %q", draft.Instructions)
	}
}

func ptrFloat(f float64) *float64 { return &f }

func TestConfidenceComponents(t *testing.T) {
	full := &types.RecipeDraft{
		Name: "Full Marks",
		Ingredients: []types.Ingredient{
			{Name: "flour", Amount: "2"},
			{Name: "water", Amount: "300"},
		},
		Instructions: "1. Mix\n2. Bake",
	}
	cases := []struct {
		label   string
		draft   *types.RecipeDraft
		textLen int
		want    float64
	}{
		{"all components", full, 500, 1.0},
		{"short source text", full, 50, 0.80},
		{"single ingredient no amount", &types.RecipeDraft{
			Name:         "Sparse",
			Ingredients:  []types.Ingredient{{Name: "salt"}},
			Instructions: "1. Season\n2. Serve",
		}, 500, 0.45},
		{"blob instructions", &types.RecipeDraft{
			Name:         "Blob",
			Instructions: "mix everything and bake it until done",
		}, 50, 0},
		{"nil draft", nil, 500, 0},
	}

	for _, tc := range cases {
		got := Confidence(tc.draft, tc.textLen)
		if got != tc.want {
			t.Errorf("%s: confidence = %v, want %v", tc.label, got, tc.want)
		}
	}
}

func TestConfidenceIsDeterministic(t *testing.T) {
	draft := &types.RecipeDraft{
		Name:         "Same Every Time",
		Ingredients:  []types.Ingredient{{Name: "rice", Amount: "1"}, {Name: "stock", Amount: "2"}},
		Instructions: "1. Simmer\n2. Rest",
		Confidence:   ptrFloat(0.99),
	}
	first := Confidence(draft, 300)
	for i := 0; i < 5; i++ {
		if got := Confidence(draft, 300); got != first {
			t.Fatalf("confidence varied: %v then %v", first, got)
		}
	}
}
