package standardize

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are a grocery expert. Standardize these grocery receipt item names for a household pantry tracker.

Items:
%s

For each item return an object with:
- "originalName": the item name exactly as given above
- "standardizedName": a short common food name, e.g. "Whole Milk" or "Ground Beef"
- "shelfLifeDays": typical refrigerator or pantry shelf life in days, as an integer
- "category": one of Dairy, Fruits, Vegetables, Meat, Seafood, Bakery, Pantry, Condiments, Frozen, Beverages, Snacks, Herbs, Other

Skip anything that is not food. Respond with a JSON array only, no prose.`

// BuildPrompt renders the batched standardization prompt
func BuildPrompt(names []string) string {
	var b strings.Builder
	for i, n := range names {
		fmt.Fprintf(&b, "%d. %s\n", i+1, n)
	}
	return fmt.Sprintf(promptTemplate, strings.TrimRight(b.String(), "\n"))
}
