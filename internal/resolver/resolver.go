package resolver

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/zombor/pantry-tracker/internal/foodkb"
)

// DefaultShelfLifeDays is the explicit default used when a caller has an
// item but no known shelf life for it
const DefaultShelfLifeDays = 7

// minWordLen and minSubstringLen guard the fuzzy steps against short-token
// collisions
const (
	minWordLen      = 3
	minSubstringLen = 4
)

var (
	tokenSplit = regexp.MustCompile(`[\s,\-]+`)
	nonAlpha   = regexp.MustCompile(`[^a-z]`)
)

// Strategy names the cascade step that produced a match
type Strategy string

const (
	StrategyAlias     Strategy = "alias"
	StrategyDirect    Strategy = "direct"
	StrategyWord      Strategy = "word"
	StrategySubstring Strategy = "substring"
)

// Match is a successful resolution of a raw name to a canonical food
type Match struct {
	foodkb.Food
	Strategy  Strategy
	Corrected string
}

// Item is a resolved food ready to become a pantry item
type Item struct {
	Name          string `json:"name"`
	Original      string `json:"original_name,omitempty"`
	CanonicalKey  string `json:"canonical_key,omitempty"`
	Quantity      int    `json:"quantity"`
	ExpiresInDays int    `json:"expires_in_days"`
	Category      string `json:"category"`
}

// Resolver maps noisy item descriptions onto the knowledge base. It holds
// no mutable state and is safe for concurrent use.
type Resolver struct {
	kb *foodkb.KB
}

// New creates a Resolver over a knowledge base
func New(kb *foodkb.KB) *Resolver {
	return &Resolver{kb: kb}
}

// KB returns the knowledge base the resolver reads from
func (r *Resolver) KB() *foodkb.KB {
	return r.kb
}

// Resolve runs the matching cascade: OCR correction, alias, exact key,
// per-word key, then longest substring. The first step that matches wins.
// It never invents a shelf life; ok is false when nothing matches.
func (r *Resolver) Resolve(raw string) (Match, bool) {
	name := Normalize(raw)
	if name == "" {
		return Match{}, false
	}

	corrected := r.kb.CorrectOCR(name)
	if corrected != name {
		slog.Debug("OCR correction applied", "raw", name, "corrected", corrected)
	}

	if key, ok := r.kb.Alias(corrected); ok {
		if e, ok := r.kb.Lookup(key); ok {
			return r.matched(e, StrategyAlias, corrected), true
		}
	}

	if e, ok := r.kb.Lookup(corrected); ok {
		return r.matched(e, StrategyDirect, corrected), true
	}
	if e, ok := r.kb.Lookup(strings.ReplaceAll(corrected, " ", "_")); ok {
		return r.matched(e, StrategyDirect, corrected), true
	}

	for _, word := range tokenSplit.Split(corrected, -1) {
		word = nonAlpha.ReplaceAllString(word, "")
		if len(word) < minWordLen {
			continue
		}
		if e, ok := r.kb.LookupWord(word); ok {
			return r.matched(e, StrategyWord, corrected), true
		}
	}

	if e, ok := r.kb.LookupSubstring(corrected, minSubstringLen); ok {
		return r.matched(e, StrategySubstring, corrected), true
	}

	slog.Debug("No match found", "name", corrected)
	return Match{}, false
}

func (r *Resolver) matched(e foodkb.Food, s Strategy, corrected string) Match {
	slog.Debug("Resolved item", "name", corrected, "key", e.Key, "strategy", string(s))
	return Match{Food: e, Strategy: s, Corrected: corrected}
}

// ResolveItem resolves a raw name and builds the Item for it
func (r *Resolver) ResolveItem(raw string, quantity int) (Item, bool) {
	m, ok := r.Resolve(raw)
	if !ok {
		return Item{}, false
	}
	name := Normalize(raw)
	item := NewItem(name, quantity, m.ShelfLifeDays, m.Category)
	item.Original = name
	item.CanonicalKey = m.Key
	return item, true
}

// NewItem builds an Item, enforcing quantity >= 1 and a positive shelf life
func NewItem(name string, quantity, expiresInDays int, category string) Item {
	if quantity < 1 {
		quantity = 1
	}
	if expiresInDays <= 0 {
		expiresInDays = DefaultShelfLifeDays
	}
	if category == "" {
		category = foodkb.DefaultCategory
	}
	return Item{
		Name:          DisplayName(name),
		Quantity:      quantity,
		ExpiresInDays: expiresInDays,
		Category:      category,
	}
}

// Normalize lowercases, strips diacritics and collapses whitespace
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// DisplayName turns a normalized name into the capitalized form shown to users
func DisplayName(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	return cases.Title(language.English).String(s)
}
