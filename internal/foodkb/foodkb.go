package foodkb

import (
	_ "embed"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/foods.yaml
var defaultData []byte

// DefaultCategory is used when nothing more specific is known about a food
const DefaultCategory = "Other"

// DefaultUnit is used for foods without an entry in the unit table
const DefaultUnit = "item"

// Food is a canonical food with its shelf life
type Food struct {
	Key           string `json:"key"`
	ShelfLifeDays int    `json:"shelf_life_days"`
	Category      string `json:"category"`
	Group         string `json:"group"`
}

// document mirrors the YAML layout of the knowledge base
type document struct {
	Groups []struct {
		Name     string         `yaml:"name"`
		Category string         `yaml:"category"`
		Foods    map[string]int `yaml:"foods"`
	} `yaml:"groups"`
	Aliases        map[string]string `yaml:"aliases"`
	OCRCorrections map[string]string `yaml:"ocr_corrections"`
	Categories     map[string]string `yaml:"categories"`
	Units          map[string]string `yaml:"units"`
	Freezing       struct {
		DefaultExtensionDays int            `yaml:"default_extension_days"`
		ExtensionDays        map[string]int `yaml:"extension_days"`
		FreezableCategories  []string       `yaml:"freezable_categories"`
		NeverFreeze          []string       `yaml:"never_freeze"`
	} `yaml:"freezing"`
	Defaults []string `yaml:"defaults"`
}

type correction struct {
	corrupt string
	correct string
}

// KB is the read-only food knowledge base. It is safe for concurrent use.
type KB struct {
	entries     map[string]Food
	keys        []string
	aliases     map[string]string
	corrections []correction
	categories  map[string]string
	// category keywords ordered longest first
	categoryKeys     []string
	units            map[string]string
	extensionDays    map[string]int
	defaultExtension int
	freezable        map[string]bool
	neverFreeze      []string
	defaults         []string
}

// LoadDefault loads the knowledge base compiled into the binary
func LoadDefault() (*KB, error) {
	return Load(bytes.NewReader(defaultData))
}

// Load parses and validates a knowledge base document
func Load(r io.Reader) (*KB, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding knowledge base: %w", err)
	}

	kb := &KB{
		entries:          make(map[string]Food),
		aliases:          make(map[string]string, len(doc.Aliases)),
		categories:       make(map[string]string, len(doc.Categories)),
		units:            make(map[string]string, len(doc.Units)),
		extensionDays:    make(map[string]int, len(doc.Freezing.ExtensionDays)),
		defaultExtension: doc.Freezing.DefaultExtensionDays,
		freezable:        make(map[string]bool, len(doc.Freezing.FreezableCategories)),
		defaults:         doc.Defaults,
	}

	var errs []error
	for _, g := range doc.Groups {
		category := g.Category
		if category == "" {
			category = DefaultCategory
		}
		for key, days := range g.Foods {
			if prev, ok := kb.entries[key]; ok {
				errs = append(errs, fmt.Errorf("duplicate key %q in groups %q and %q", key, prev.Group, g.Name))
				continue
			}
			kb.entries[key] = Food{Key: key, ShelfLifeDays: days, Category: category, Group: g.Name}
		}
	}
	for k := range kb.entries {
		kb.keys = append(kb.keys, k)
	}
	sort.Strings(kb.keys)

	for alias, target := range doc.Aliases {
		kb.aliases[strings.ToLower(strings.TrimSpace(alias))] = target
	}
	for corrupt, correct := range doc.OCRCorrections {
		kb.corrections = append(kb.corrections, correction{corrupt: corrupt, correct: correct})
	}
	// longer artifacts first so a short one never pre-empts a longer overlap
	sort.Slice(kb.corrections, func(i, j int) bool {
		if len(kb.corrections[i].corrupt) != len(kb.corrections[j].corrupt) {
			return len(kb.corrections[i].corrupt) > len(kb.corrections[j].corrupt)
		}
		return kb.corrections[i].corrupt < kb.corrections[j].corrupt
	})

	for k, v := range doc.Categories {
		kb.categories[k] = v
		kb.categoryKeys = append(kb.categoryKeys, k)
	}
	sort.Slice(kb.categoryKeys, func(i, j int) bool {
		if len(kb.categoryKeys[i]) != len(kb.categoryKeys[j]) {
			return len(kb.categoryKeys[i]) > len(kb.categoryKeys[j])
		}
		return kb.categoryKeys[i] < kb.categoryKeys[j]
	})

	for k, v := range doc.Units {
		kb.units[k] = v
	}
	for k, v := range doc.Freezing.ExtensionDays {
		kb.extensionDays[strings.ToLower(k)] = v
	}
	if kb.defaultExtension <= 0 {
		kb.defaultExtension = 90
	}
	for _, c := range doc.Freezing.FreezableCategories {
		kb.freezable[strings.ToLower(c)] = true
	}
	kb.neverFreeze = doc.Freezing.NeverFreeze

	errs = append(errs, kb.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("validating knowledge base: %w", err)
	}
	return kb, nil
}

// validate checks the data-integrity rules of the knowledge base
func (kb *KB) validate() error {
	var errs []error
	for _, key := range kb.keys {
		e := kb.entries[key]
		if e.ShelfLifeDays <= 0 {
			errs = append(errs, fmt.Errorf("key %q: shelf life must be positive, got %d", key, e.ShelfLifeDays))
		}
		if key != strings.ToLower(key) || strings.ContainsAny(key, " -") {
			errs = append(errs, fmt.Errorf("key %q: must be lowercase and underscore separated", key))
		}
	}
	for alias, target := range kb.aliases {
		if _, ok := kb.aliases[target]; ok {
			errs = append(errs, fmt.Errorf("alias %q points to another alias %q", alias, target))
			continue
		}
		if _, ok := kb.entries[target]; !ok {
			errs = append(errs, fmt.Errorf("alias %q points to unknown key %q", alias, target))
		}
	}
	for _, c := range kb.corrections {
		for _, key := range kb.keys {
			if strings.Contains(key, c.corrupt) {
				errs = append(errs, fmt.Errorf("ocr correction %q occurs inside key %q", c.corrupt, key))
			}
		}
		for alias := range kb.aliases {
			if strings.Contains(alias, c.corrupt) {
				errs = append(errs, fmt.Errorf("ocr correction %q occurs inside alias %q", c.corrupt, alias))
			}
		}
	}
	for category := range kb.extensionDays {
		if !kb.freezable[category] {
			errs = append(errs, fmt.Errorf("freezer extension for %q is unused: category is not freezable", category))
		}
	}
	for _, d := range kb.defaults {
		if _, ok := kb.entries[d]; !ok {
			errs = append(errs, fmt.Errorf("default item %q is not a known key", d))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the entry for an exact canonical key
func (kb *KB) Lookup(key string) (Food, bool) {
	e, ok := kb.entries[key]
	return e, ok
}

// Alias maps a compound or branded name to its canonical key
func (kb *KB) Alias(name string) (string, bool) {
	key, ok := kb.aliases[name]
	return key, ok
}

// Keys returns every canonical key in lexical order
func (kb *KB) Keys() []string {
	out := make([]string, len(kb.keys))
	copy(out, kb.keys)
	return out
}

// Aliases returns a copy of the alias table
func (kb *KB) Aliases() map[string]string {
	out := make(map[string]string, len(kb.aliases))
	for k, v := range kb.aliases {
		out[k] = v
	}
	return out
}

// CorrectOCR replaces every known corrupted substring with its correction
func (kb *KB) CorrectOCR(s string) string {
	for _, c := range kb.corrections {
		if strings.Contains(s, c.corrupt) {
			s = strings.ReplaceAll(s, c.corrupt, c.correct)
		}
	}
	return s
}

// LookupWord matches a single token against the canonical keys
func (kb *KB) LookupWord(word string) (Food, bool) {
	if strings.Contains(word, "_") {
		return Food{}, false
	}
	return kb.Lookup(word)
}

// LookupSubstring finds the longest canonical key (of at least minLen
// characters) that the candidate contains, or that contains the candidate.
// Keys are compared in both underscore and space-separated form. The
// reverse direction only applies when the candidate is itself at least
// minLen characters. Equal-length hits resolve to the lexically smaller key.
func (kb *KB) LookupSubstring(candidate string, minLen int) (Food, bool) {
	var best Food
	found := false
	for _, key := range kb.keys {
		if len(key) < minLen {
			continue
		}
		spaced := strings.ReplaceAll(key, "_", " ")
		hit := strings.Contains(candidate, key) || strings.Contains(candidate, spaced)
		if !hit && len(candidate) >= minLen {
			hit = strings.Contains(key, candidate) || strings.Contains(spaced, candidate)
		}
		if !hit {
			continue
		}
		if !found || len(key) > len(best.Key) {
			best = kb.entries[key]
			found = true
		}
	}
	return best, found
}

// CategoryFor infers a category for a free-form food name using the
// secondary keyword table. Canonical keys keep their group category.
func (kb *KB) CategoryFor(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultCategory
	}
	if c, ok := kb.categories[name]; ok {
		return c
	}
	if e, ok := kb.entries[strings.ReplaceAll(name, " ", "_")]; ok {
		return e.Category
	}
	for _, k := range kb.categoryKeys {
		if strings.Contains(name, k) {
			return kb.categories[k]
		}
	}
	return DefaultCategory
}

// Unit returns the default unit for a food name or canonical key
func (kb *KB) Unit(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if u, ok := kb.units[name]; ok {
		return u
	}
	if u, ok := kb.units[strings.ReplaceAll(name, " ", "_")]; ok {
		return u
	}
	return DefaultUnit
}

// FreezerExtensionDays is how long freezing extends shelf life for a category
func (kb *KB) FreezerExtensionDays(category string) int {
	if d, ok := kb.extensionDays[strings.ToLower(strings.TrimSpace(category))]; ok {
		return d
	}
	return kb.defaultExtension
}

// CanFreeze reports whether an item of the given category and name should
// be offered for freezing
func (kb *KB) CanFreeze(category, name string) bool {
	name = strings.ToLower(name)
	for _, n := range kb.neverFreeze {
		if strings.Contains(name, n) || (name != "" && strings.Contains(n, name)) {
			return false
		}
	}
	return kb.freezable[strings.ToLower(category)]
}

// Defaults returns the curated items used when a scan yields nothing
func (kb *KB) Defaults() []Food {
	out := make([]Food, 0, len(kb.defaults))
	for _, d := range kb.defaults {
		out = append(out, kb.entries[d])
	}
	return out
}
