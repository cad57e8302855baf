package extract

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/zombor/pantry-tracker/internal/resolver"
	"github.com/zombor/pantry-tracker/internal/standardize"
)

// minNameLen is the shortest line-item name worth standardizing
const minNameLen = 2

// LineItem is one line of a structured receipt produced by an OCR service
// or the vision scanner
type LineItem struct {
	Description string  `json:"description"`
	Name        string  `json:"name,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Total       float64 `json:"total,omitempty"`
}

// StructuredReceipt is a receipt already split into line items
type StructuredReceipt struct {
	LineItems []LineItem `json:"line_items"`
}

// Standardizer maps a batch of names to pantry items
type Standardizer interface {
	Standardize(ctx context.Context, names []string) standardize.Result
}

// StructuredExtractor turns structured line items into pantry items
type StructuredExtractor struct {
	standardizer Standardizer
	resolver     *resolver.Resolver
}

// NewStructuredExtractor creates a StructuredExtractor. A nil standardizer
// resolves every name heuristically.
func NewStructuredExtractor(s Standardizer, r *resolver.Resolver) *StructuredExtractor {
	return &StructuredExtractor{standardizer: s, resolver: r}
}

type record struct {
	name     string
	quantity int
	used     bool
}

// Extract normalizes the line item names, standardizes them as one batch
// and joins each resulting item back to the quantity of its source line.
func (e *StructuredExtractor) Extract(ctx context.Context, lines []LineItem) standardize.Result {
	var (
		records []*record
		names   []string
	)
	for _, l := range lines {
		name := l.Description
		if strings.TrimSpace(name) == "" {
			name = l.Name
		}
		name = resolver.Normalize(name)
		if len(name) < minNameLen {
			continue
		}
		records = append(records, &record{name: name, quantity: RoundQuantity(l.Quantity)})
		names = append(names, name)
	}

	var res standardize.Result
	if e.standardizer != nil {
		res = e.standardizer.Standardize(ctx, names)
	} else {
		res = standardize.Heuristic(e.resolver, names)
	}

	for i := range res.Items {
		res.Items[i].Quantity = joinQuantity(records, res.Items[i].Original)
	}
	slog.Debug("Extracted items from structured receipt", "lines", len(lines), "items", len(res.Items), "source", string(res.Source))
	return res
}

// joinQuantity finds the source line for an original name. An unused
// exact match wins, so repeated names each keep their own quantity.
// Otherwise the first line whose name contains the original is used.
func joinQuantity(records []*record, original string) int {
	original = strings.ToLower(original)
	if original == "" {
		return 1
	}
	for _, r := range records {
		if !r.used && r.name == original {
			r.used = true
			return r.quantity
		}
	}
	for _, r := range records {
		if strings.Contains(r.name, original) {
			return r.quantity
		}
	}
	return 1
}

// RoundQuantity rounds a fractional line quantity to the nearest whole
// unit, never below one
func RoundQuantity(q float64) int {
	n := int(math.Round(q))
	if n < 1 {
		return 1
	}
	return n
}
