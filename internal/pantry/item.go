// Package pantry stores household pantry items and turns resolved receipt
// items into inserts and merges against a user's inventory.
package pantry

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format of expiry dates
const DateLayout = "2006-01-02"

// ErrNotFound is returned when an item or recipe does not exist for the user
var ErrNotFound = errors.New("not found")

// Item is a pantry item owned by one user
type Item struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	ExpiryDate         string    `json:"expiry_date"`
	Quantity           int       `json:"quantity"`
	Unit               string    `json:"unit"`
	Frozen             bool      `json:"frozen"`
	OriginalExpiryDate string    `json:"original_expiry_date,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RecipeClick records that a user opened a suggested recipe
type RecipeClick struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Recipe    string    `json:"recipe"`
	RecipeID  string    `json:"recipe_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name               *string `json:"name,omitempty"`
	Category           *string `json:"category,omitempty"`
	ExpiryDate         *string `json:"expiry_date,omitempty"`
	Quantity           *int    `json:"quantity,omitempty"`
	Unit               *string `json:"unit,omitempty"`
	Frozen             *bool   `json:"frozen,omitempty"`
	OriginalExpiryDate *string `json:"original_expiry_date,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply merges the set fields of the patch into item
func (p Patch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.ExpiryDate != nil {
		item.ExpiryDate = *p.ExpiryDate
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.Frozen != nil {
		item.Frozen = *p.Frozen
	}
	if p.OriginalExpiryDate != nil {
		item.OriginalExpiryDate = *p.OriginalExpiryDate
	}
}

// Validate checks the values a patch would write
func (p Patch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if p.Quantity != nil && *p.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	for _, d := range []*string{p.ExpiryDate, p.OriginalExpiryDate} {
		if d == nil || *d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, *d); err != nil {
			return fmt.Errorf("invalid date %q: %w", *d, err)
		}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
