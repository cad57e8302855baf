package extract

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/zombor/pantry-tracker/internal/resolver"
)

// Markers are matched case-insensitively as substrings of a line
var (
	transactionMarkers = []string{"subtotal", "total", "visa", "mastercard", "amex", "discover", "debit", "balance due"}
	uiChromeMarkers    = []string{"current shelf", "extracted text", "skip day", "save money", "live better", "thank you"}
	storeMarkers       = []string{"mgr:", "manager", "st#", "op#", "te#", "tr#", "store #", "walmart", "mobile al"}
)

var (
	// short transactional words that also occur inside food names
	// ("cashews", "taxi"), so they only count as whole words
	transactionWords = regexp.MustCompile(`(?i)\b(tax|cash|change|tend|tendered)\b`)
	phoneNumber      = regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]\d{3}[-.]\d{4}\b`)

	// ITEM NAME 001234567890 F 5.48
	barcodeLine = regexp.MustCompile(`(?i)^([a-z][a-z\s]+?)\s+\d{10,}`)
	// 2.52 lb @ 1.28/lb ROMA TOMATO; the unit price is optional and the
	// name is the uppercase run after it
	weightedLine = regexp.MustCompile(`^\d+\.\d+\s*(?i:lbs?)(?:\s*@\s*\$?\d+(?:\.\d+)?\s*/\s*(?i:lbs?))?\s+([A-Z][A-Z\s]{2,})`)
	// BANANAS
	uppercaseLine = regexp.MustCompile(`^([A-Z][A-Z\s]{2,})`)

	weight = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*lb`)
)

// TextExtractor turns raw OCR receipt text into resolved items
type TextExtractor struct {
	resolver *resolver.Resolver
}

// NewTextExtractor creates a TextExtractor
func NewTextExtractor(r *resolver.Resolver) *TextExtractor {
	return &TextExtractor{resolver: r}
}

// Extract segments the text into lines, drops noise, pulls one candidate
// name per line and resolves it. Lines that yield no name or no match are
// skipped; a receipt has many of those.
func (e *TextExtractor) Extract(text string) []resolver.Item {
	items := make([]resolver.Item, 0)
	for _, line := range Lines(text) {
		if IsNoise(line) {
			slog.Debug("Skipping noise line", "line", line)
			continue
		}

		name, ok := ExtractName(line)
		if !ok {
			continue
		}

		item, ok := e.resolver.ResolveItem(name, WeightQuantity(line))
		if !ok {
			slog.Debug("No match for receipt line", "line", line, "name", name)
			continue
		}
		items = append(items, item)
	}
	slog.Debug("Extracted items from text", "count", len(items))
	return items
}

// Lines splits text into trimmed, non-empty lines
func Lines(text string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// IsNoise reports whether a line is a footer, UI or store-metadata line
func IsNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, group := range [][]string{transactionMarkers, uiChromeMarkers, storeMarkers} {
		for _, m := range group {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return transactionWords.MatchString(lower) || phoneNumber.MatchString(lower)
}

// ExtractName applies the barcode, weighted-produce and leading-uppercase
// patterns in that order and returns the normalized name of the first hit
func ExtractName(line string) (string, bool) {
	for _, re := range []*regexp.Regexp{barcodeLine, weightedLine, uppercaseLine} {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if name := resolver.Normalize(m[1]); name != "" {
			return name, true
		}
	}
	return "", false
}

// WeightQuantity reads "<number> lb" from a line, rounded up, defaulting to 1
func WeightQuantity(line string) int {
	m := weight.FindStringSubmatch(line)
	if m == nil {
		return 1
	}
	w, err := strconv.ParseFloat(m[1], 64)
	if err != nil || w <= 0 {
		return 1
	}
	return int(math.Ceil(w))
}
