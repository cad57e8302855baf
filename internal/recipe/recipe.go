// Package recipe suggests recipes that use up pantry items.
package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/pantry-tracker/internal/llmjson"
)

// Recipe is a generated recipe suggestion
type Recipe struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ServingSize  string    `json:"serving_size"`
	Ingredients  []string  `json:"ingredients"`
	Instructions []string  `json:"instructions"`
	CookTime     string    `json:"cook_time"`
	Difficulty   string    `json:"difficulty"`
	FunFact      string    `json:"fun_fact"`
	AIGenerated  bool      `json:"ai_generated"`
	CreatedAt    time.Time `json:"created_at"`
}

// Request describes what the suggestions should be built from
type Request struct {
	Ingredients        []string `json:"ingredients"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	HouseholdSize      int      `json:"household_size,omitempty"`
}

// Generator sends a prompt to a text model and returns its reply
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// styles nudge parallel generations apart so they do not all return the
// same dish
var styles = []string{
	"a quick weeknight meal",
	"a comforting one-pot dish",
	"something fresh and light",
	"a make-ahead dish that keeps well",
}

const promptTemplate = `You are a JSON-only recipe generator. Respond with ONLY valid JSON, no other text.

Create a detailed recipe using these ingredients: %s. %s
Aim for %s.

Respond with a single JSON object:
{
  "recipeName": "Creative and catchy recipe name",
  "description": "A brief, appetizing description of the dish",
  "servingSize": "%s",
  "ingredients": ["2 tomatoes", "1 onion", "2 cloves garlic"],
  "instructions": ["Step 1: detailed instruction", "Step 2: detailed instruction"],
  "cookTime": "25 minutes",
  "difficulty": "Easy",
  "funFact": "An interesting cooking tip or food fact related to this recipe"
}`

// BuildPrompt renders the prompt for the n-th suggestion of a request
func BuildPrompt(req Request, n int) string {
	ingredients := "common pantry ingredients"
	if len(req.Ingredients) > 0 {
		ingredients = strings.Join(req.Ingredients, ", ")
	}
	var diet string
	if len(req.DietaryPreferences) > 0 {
		diet = fmt.Sprintf("The recipe must be %s.", strings.Join(req.DietaryPreferences, ", "))
	}
	return fmt.Sprintf(promptTemplate, ingredients, diet, styles[n%len(styles)], servingSize(req))
}

func servingSize(req Request) string {
	if req.HouseholdSize > 0 {
		return fmt.Sprintf("Serves %d", req.HouseholdSize)
	}
	return "Serves 2-3"
}

// reply is the shape the model is asked for. List entries are kept raw
// because models sometimes answer with {"step": "..."} objects.
type reply struct {
	RecipeName   string            `json:"recipeName"`
	Description  string            `json:"description"`
	ServingSize  string            `json:"servingSize"`
	Ingredients  []json.RawMessage `json:"ingredients"`
	Instructions []json.RawMessage `json:"instructions"`
	CookTime     string            `json:"cookTime"`
	Difficulty   string            `json:"difficulty"`
	FunFact      string            `json:"funFact"`
}

// Parse turns a model reply into a Recipe. A reply without usable JSON
// becomes a placeholder recipe carrying the start of the text; missing
// fields get defaults.
func Parse(text string, req Request) Recipe {
	var r reply
	raw, err := llmjson.Extract(text)
	if err == nil {
		err = json.Unmarshal([]byte(raw), &r)
	}
	if err != nil {
		return placeholder(text, req)
	}

	recipe := Recipe{
		Name:         orDefault(r.RecipeName, "AI-Generated Recipe"),
		Description:  orDefault(r.Description, "A delicious recipe created just for you"),
		ServingSize:  orDefault(r.ServingSize, servingSize(req)),
		Ingredients:  flatten(r.Ingredients),
		Instructions: flatten(r.Instructions),
		CookTime:     orDefault(r.CookTime, "30 minutes"),
		Difficulty:   orDefault(r.Difficulty, "Medium"),
		FunFact:      orDefault(r.FunFact, "This recipe was personalized for your pantry and preferences!"),
		AIGenerated:  true,
	}
	if len(recipe.Ingredients) == 0 {
		recipe.Ingredients = []string{"Available ingredients"}
	}
	if len(recipe.Instructions) == 0 {
		recipe.Instructions = []string{"Follow the recipe instructions"}
	}
	return recipe
}

func placeholder(text string, req Request) Recipe {
	description := strings.TrimSpace(text)
	if len(description) > 200 {
		description = description[:200] + "..."
	}
	return Recipe{
		Name:         "AI-Generated Recipe",
		Description:  description,
		ServingSize:  servingSize(req),
		Ingredients:  []string{"Available ingredients", "Common pantry items"},
		Instructions: []string{"Follow the AI-generated instructions above"},
		CookTime:     "30 minutes",
		Difficulty:   "Medium",
		FunFact:      "This recipe was generated by AI using your pantry items!",
		AIGenerated:  true,
	}
}

// flatten converts list entries to strings: plain strings as-is, objects by
// their "step" or "text" field, anything else as its JSON text
func flatten(entries []json.RawMessage) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(e, &obj); err == nil {
			if step, ok := obj["step"].(string); ok {
				out = append(out, step)
				continue
			}
			if t, ok := obj["text"].(string); ok {
				out = append(out, t)
				continue
			}
		}
		out = append(out, string(e))
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
