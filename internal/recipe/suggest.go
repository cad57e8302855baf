package recipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultCount is how many suggestions are generated per request
const DefaultCount = 3

// Suggester generates several recipes in parallel
type Suggester struct {
	generator Generator
	count     int
}

// NewSuggester creates a Suggester. A count below one uses DefaultCount.
func NewSuggester(g Generator, count int) *Suggester {
	if count < 1 {
		count = DefaultCount
	}
	return &Suggester{generator: g, count: count}
}

// Suggest issues every generation at once and waits for all of them.
// Failed generations are logged and left out; an error is returned only
// when none succeed.
func (s *Suggester) Suggest(ctx context.Context, req Request) ([]Recipe, error) {
	results := make([]*Recipe, s.count)
	errs := make([]error, s.count)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.count; i++ {
		g.Go(func() error {
			text, err := s.generator.Generate(ctx, BuildPrompt(req, i))
			if err != nil {
				slog.Warn("Recipe generation failed", "index", i, "error", err)
				errs[i] = err
				return nil
			}
			r := Parse(text, req)
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	recipes := make([]Recipe, 0, s.count)
	for _, r := range results {
		if r != nil {
			recipes = append(recipes, *r)
		}
	}
	if len(recipes) == 0 {
		return nil, fmt.Errorf("generating recipes: %w", errors.Join(errs...))
	}
	return recipes, nil
}
