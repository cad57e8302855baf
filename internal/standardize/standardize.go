// Package standardize normalizes batches of receipt item names through a
// generative language model, falling back to the heuristic resolver when
// the model is unavailable or misbehaves.
package standardize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zombor/pantry-tracker/internal/cache"
	"github.com/zombor/pantry-tracker/internal/llmjson"
	"github.com/zombor/pantry-tracker/internal/resolver"
)

var (
	// ErrNoProvider is recorded when no model credential is configured
	ErrNoProvider = errors.New("no standardization provider configured")
	// ErrMalformedResponse is recorded when the model reply does not match
	// the expected item schema
	ErrMalformedResponse = errors.New("malformed standardization response")
)

// Source tags which tier produced a Result
type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
	SourceEmpty     Source = "empty"
	// SourceDefaults marks the curated items used when nothing resolved
	SourceDefaults  Source = "defaults"
)

// Result is the outcome of a standardization. Items is never nil.
type Result struct {
	Source Source          `json:"source"`
	Items  []resolver.Item `json:"items"`
	Cached bool            `json:"cached,omitempty"`
	// Err is why the model tier was skipped, if it was
	Err error `json:"-"`
}

// ReplyItem is one element of the model's reply
type ReplyItem struct {
	OriginalName     string  `json:"originalName"`
	StandardizedName string  `json:"standardizedName"`
	ShelfLifeDays    float64 `json:"shelfLifeDays"`
	Category         string  `json:"category"`
}

// Provider sends a prompt to a generative model and returns its raw reply
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config tunes a Standardizer. Zero values select the defaults.
type Config struct {
	// MaxNames caps how many names are sent per call
	MaxNames int
	// TTL is how long a model reply stays cached
	TTL time.Duration
	// Timeout bounds a single model call, including rate limiting
	Timeout time.Duration
	// RatePerSecond limits model calls; zero disables limiting
	RatePerSecond float64
}

const (
	DefaultMaxNames = 10
	DefaultTTL      = time.Hour
	DefaultTimeout  = 10 * time.Second
)

// Standardizer maps names to pantry items, preferring the model
type Standardizer struct {
	provider Provider
	resolver *resolver.Resolver
	cache    cache.Cache
	limiter  *rate.Limiter
	maxNames int
	ttl      time.Duration
	timeout  time.Duration
}

// New creates a Standardizer. A nil provider always uses the heuristic path.
func New(p Provider, r *resolver.Resolver, c cache.Cache, cfg Config) *Standardizer {
	if cfg.MaxNames <= 0 {
		cfg.MaxNames = DefaultMaxNames
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Standardizer{
		provider: p,
		resolver: r,
		cache:    c,
		limiter:  rate.NewLimiter(limit, 1),
		maxNames: cfg.MaxNames,
		ttl:      cfg.TTL,
		timeout:  cfg.Timeout,
	}
}

// Standardize resolves a batch of names. Names are normalized first, so the
// cache key and the prompt ignore case and spacing. The first MaxNames go
// to the model; any overflow is resolved heuristically and appended. Every
// failure of the model tier degrades to the heuristic resolver for the
// whole batch and is reported in Result.Err, never returned.
func (s *Standardizer) Standardize(ctx context.Context, names []string) Result {
	names = normalizeAll(names)
	if len(names) == 0 {
		return Result{Source: SourceEmpty, Items: []resolver.Item{}}
	}

	batch, overflow := names, []string(nil)
	if len(names) > s.maxNames {
		batch, overflow = names[:s.maxNames], names[s.maxNames:]
	}

	entries, cached, err := s.entries(ctx, batch)
	if err != nil {
		if errors.Is(err, ErrNoProvider) {
			slog.Debug("Using heuristic resolver", "names", len(names))
		} else {
			slog.Warn("Falling back to heuristic resolver", "names", len(names), "error", err)
		}
		res := Heuristic(s.resolver, names)
		res.Err = err
		return res
	}

	items := make([]resolver.Item, 0, len(entries)+len(overflow))
	for _, e := range entries {
		items = append(items, s.toItem(e))
	}
	items = append(items, Heuristic(s.resolver, overflow).Items...)

	slog.Debug("Standardized names", "names", len(names), "items", len(items), "cached", cached)
	return Result{Source: SourceAI, Items: items, Cached: cached}
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = resolver.Normalize(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// entries returns the model reply for a batch, from cache when possible
func (s *Standardizer) entries(ctx context.Context, batch []string) ([]ReplyItem, bool, error) {
	key := cache.Key(batch)
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			var entries []ReplyItem
			if err := json.Unmarshal(data, &entries); err == nil {
				return entries, true, nil
			}
			_ = s.cache.Delete(key)
		}
	}

	if s.provider == nil {
		return nil, false, ErrNoProvider
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	reply, err := s.provider.Generate(ctx, BuildPrompt(batch))
	if err != nil {
		return nil, false, fmt.Errorf("calling %s: %w", s.provider.Name(), err)
	}

	entries, err := ParseEntries(reply)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		data, err := json.Marshal(entries)
		if err == nil {
			err = s.cache.Set(key, data, s.ttl)
		}
		if err != nil {
			slog.Warn("Failed to cache standardization", "error", err)
		}
	}
	return entries, false, nil
}

// toItem fills gaps in a model entry from the knowledge base
func (s *Standardizer) toItem(e ReplyItem) resolver.Item {
	name := resolver.Normalize(e.StandardizedName)
	days := int(math.Round(e.ShelfLifeDays))
	category := strings.TrimSpace(e.Category)

	var key string
	if m, ok := s.resolver.Resolve(name); ok {
		key = m.Key
		if days <= 0 {
			days = m.ShelfLifeDays
		}
		if category == "" {
			category = m.Category
		}
	}
	if category == "" {
		category = s.resolver.KB().CategoryFor(name)
	}

	item := resolver.NewItem(name, 1, days, resolver.DisplayName(strings.ToLower(category)))
	item.Original = resolver.Normalize(e.OriginalName)
	item.CanonicalKey = key
	return item
}

// ParseEntries validates a raw model reply. The reply may wrap the JSON in
// prose or code fences, and may be a bare array or an object with an
// "items" array.
func ParseEntries(reply string) ([]ReplyItem, error) {
	raw, err := llmjson.Extract(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var entries []ReplyItem
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		var wrapped struct {
			Items []ReplyItem `json:"items"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil || wrapped.Items == nil {
			return nil, fmt.Errorf("%w: expected an array of items", ErrMalformedResponse)
		}
		entries = wrapped.Items
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrMalformedResponse)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.StandardizedName) == "" {
			return nil, fmt.Errorf("%w: item %d has no standardizedName", ErrMalformedResponse, i)
		}
	}
	return entries, nil
}

// Heuristic resolves each name with the resolver cascade, dropping names
// that match nothing
func Heuristic(r *resolver.Resolver, names []string) Result {
	items := make([]resolver.Item, 0, len(names))
	for _, name := range names {
		if item, ok := r.ResolveItem(name, 1); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return Result{Source: SourceEmpty, Items: items}
	}
	return Result{Source: SourceHeuristic, Items: items}
}
