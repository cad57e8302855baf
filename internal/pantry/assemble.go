package pantry

import (
	"strings"
	"time"

	"github.com/zombor/pantry-tracker/internal/foodkb"
	"github.com/zombor/pantry-tracker/internal/resolver"
)

// Update is a merge of new stock into an existing item
type Update struct {
	ID      string `json:"id"`
	Changes Patch  `json:"changes"`
}

// Plan is what ingesting a batch of resolved items would write
type Plan struct {
	ToInsert []Item   `json:"to_insert"`
	ToUpdate []Update `json:"to_update"`
}

// Assembler converts resolved items into pantry writes
type Assembler struct {
	kb *foodkb.KB
}

// NewAssembler creates an Assembler
func NewAssembler(kb *foodkb.KB) *Assembler {
	return &Assembler{kb: kb}
}

// Assemble matches each resolved item case-insensitively by name against
// the existing inventory. A match is merged: quantities are summed and the
// later expiry date is kept, so merging never shortens shelf life. Anything
// else becomes a new item. Items earlier in the batch count as inventory
// for later ones, so repeated lines merge into one write.
func (a *Assembler) Assemble(items []resolver.Item, existing []*Item, today time.Time) Plan {
	type slot struct {
		item   Item
		insert int
		update int
	}

	byName := make(map[string]*slot, len(existing))
	for _, e := range existing {
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if _, ok := byName[key]; !ok {
			byName[key] = &slot{item: *e, insert: -1, update: -1}
		}
	}

	var plan Plan
	for _, ri := range items {
		expiry := AddDays(today, ri.ExpiresInDays)
		key := strings.ToLower(strings.TrimSpace(ri.Name))

		s, ok := byName[key]
		if !ok {
			item := Item{
				Name:       ri.Name,
				Category:   ri.Category,
				ExpiryDate: expiry,
				Quantity:   ri.Quantity,
				Unit:       a.unit(ri),
			}
			plan.ToInsert = append(plan.ToInsert, item)
			byName[key] = &slot{item: item, insert: len(plan.ToInsert) - 1, update: -1}
			continue
		}

		s.item.Quantity += ri.Quantity
		if expiry > s.item.ExpiryDate {
			s.item.ExpiryDate = expiry
		}

		if s.insert >= 0 {
			plan.ToInsert[s.insert] = s.item
			continue
		}
		changes := Patch{Quantity: ptr(s.item.Quantity), ExpiryDate: ptr(s.item.ExpiryDate)}
		if s.update >= 0 {
			plan.ToUpdate[s.update].Changes = changes
			continue
		}
		plan.ToUpdate = append(plan.ToUpdate, Update{ID: s.item.ID, Changes: changes})
		s.update = len(plan.ToUpdate) - 1
	}
	return plan
}

func (a *Assembler) unit(ri resolver.Item) string {
	if ri.CanonicalKey != "" {
		if u := a.kb.Unit(ri.CanonicalKey); u != foodkb.DefaultUnit {
			return u
		}
	}
	return a.kb.Unit(ri.Name)
}

// Freeze returns the patch that toggles an item's frozen state. Freezing
// keeps the current expiry as the original and extends the remaining
// shelf life by the category's freezer extension. Unfreezing restores the
// original expiry.
func (a *Assembler) Freeze(item *Item, today time.Time) (Patch, error) {
	if item.Frozen {
		restored := item.OriginalExpiryDate
		if restored == "" {
			restored = item.ExpiryDate
		}
		return Patch{Frozen: ptr(false), ExpiryDate: ptr(restored), OriginalExpiryDate: ptr("")}, nil
	}

	days, err := DaysUntil(item.ExpiryDate, today)
	if err != nil {
		return Patch{}, err
	}
	days = max(days, 0) + a.kb.FreezerExtensionDays(item.Category)
	return Patch{
		Frozen:             ptr(true),
		ExpiryDate:         ptr(AddDays(today, days)),
		OriginalExpiryDate: ptr(item.ExpiryDate),
	}, nil
}

// CanFreeze reports whether freezing makes sense for the item
func (a *Assembler) CanFreeze(item *Item) bool {
	return item.Frozen || a.kb.CanFreeze(item.Category, item.Name)
}
