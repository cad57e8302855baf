// Package scanning reads grocery receipt images with a vision model and
// returns their line items.
package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/pantry-tracker/internal/extract"
	"github.com/zombor/pantry-tracker/internal/llmjson"
)

// Scanner turns a receipt image or PDF into a structured receipt
type Scanner interface {
	ScanReceipt(ctx context.Context, data []byte, contentType string) (*extract.StructuredReceipt, error)
	Close() error
}

// lineItemsPrompt is shared by every vision provider
const lineItemsPrompt = `You are reading a grocery store receipt. List every purchased product line.

For each product return:
- "description": the product text exactly as printed, without barcodes or prices
- "quantity": how many were bought, or the weight in pounds for weighed produce (default 1)
- "total": the line price as a number

Skip store details, subtotals, tax, totals, payment and change lines.

Return ONLY JSON in this format:
{"line_items": [{"description": "GV WHOLE MILK", "quantity": 1, "total": 3.28}]}`

// Parse reads a model reply into a structured receipt. Replies may be
// fenced or wrapped in prose, and may be a bare array of line items.
func Parse(reply string) (*extract.StructuredReceipt, error) {
	raw, err := llmjson.Extract(reply)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	var receipt extract.StructuredReceipt
	if strings.HasPrefix(raw, "[") {
		err = json.Unmarshal([]byte(raw), &receipt.LineItems)
	} else {
		err = json.Unmarshal([]byte(raw), &receipt)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshaling receipt data: %w", err)
	}

	items := receipt.LineItems[:0]
	for _, li := range receipt.LineItems {
		li.Description = strings.TrimSpace(li.Description)
		if li.Description == "" && strings.TrimSpace(li.Name) == "" {
			continue
		}
		items = append(items, li)
	}
	receipt.LineItems = items
	return &receipt, nil
}
