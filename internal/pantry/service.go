package pantry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"

	"github.com/zombor/pantry-tracker/internal/extract"
	"github.com/zombor/pantry-tracker/internal/foodkb"
	"github.com/zombor/pantry-tracker/internal/recipe"
	"github.com/zombor/pantry-tracker/internal/resolver"
	"github.com/zombor/pantry-tracker/internal/scanning"
	"github.com/zombor/pantry-tracker/internal/standardize"
)

var (
	// ErrInvalid wraps every rejected user input
	ErrInvalid = errors.New("invalid request")
	// ErrUnavailable is returned when an optional collaborator is not configured
	ErrUnavailable = errors.New("not available")
)

const (
	readAttempts         = 3
	recipeHistory        = 20
	maxRecipeIngredients = 10
)

// IDGenerator generates unique IDs for items and recipes
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// RecipeSuggester generates recipe ideas
type RecipeSuggester interface {
	Suggest(ctx context.Context, req recipe.Request) ([]recipe.Recipe, error)
}

// Service runs pantry operations for users
type Service struct {
	store       Store
	kb          *foodkb.KB
	resolver    *resolver.Resolver
	text        *extract.TextExtractor
	structured  *extract.StructuredExtractor
	scanner     scanning.Scanner
	suggester   RecipeSuggester
	assembler   *Assembler
	idGenerator IDGenerator
	timeSource  TimeSource
	backoff     gax.Backoff
}

// NewService creates a Service with UUID ids and the system clock. The
// scanner and suggester may be nil; the operations needing them then
// degrade or report ErrUnavailable.
func NewService(store Store, kb *foodkb.KB, std extract.Standardizer, scanner scanning.Scanner, suggester RecipeSuggester) *Service {
	return NewServiceWithDeps(store, kb, std, scanner, suggester, uuidGenerator{}, systemClock{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(store Store, kb *foodkb.KB, std extract.Standardizer, scanner scanning.Scanner, suggester RecipeSuggester, idGen IDGenerator, timeSrc TimeSource) *Service {
	r := resolver.New(kb)
	return &Service{
		store:       store,
		kb:          kb,
		resolver:    r,
		text:        extract.NewTextExtractor(r),
		structured:  extract.NewStructuredExtractor(std, r),
		scanner:     scanner,
		suggester:   suggester,
		assembler:   NewAssembler(kb),
		idGenerator: idGen,
		timeSource:  timeSrc,
		backoff:     gax.Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2},
	}
}

// IngestResult reports what a receipt added to the pantry
type IngestResult struct {
	Source   standardize.Source `json:"source"`
	Inserted []*Item            `json:"inserted"`
	Updated  []*Item            `json:"updated"`
}

// IngestText extracts items from OCR text and adds them to the pantry
func (s *Service) IngestText(ctx context.Context, userID, text string) (*IngestResult, error) {
	items := s.text.Extract(text)
	res := standardize.Result{Source: standardize.SourceHeuristic, Items: items}
	if len(items) == 0 {
		res.Source = standardize.SourceEmpty
	}
	return s.ingest(ctx, userID, res)
}

// IngestStructured adds the line items of a structured receipt
func (s *Service) IngestStructured(ctx context.Context, userID string, receipt extract.StructuredReceipt) (*IngestResult, error) {
	return s.ingest(ctx, userID, s.structured.Extract(ctx, receipt.LineItems))
}

// IngestScan reads a receipt image with the scanner and adds its items. A
// failed or unconfigured scan still yields the default items.
func (s *Service) IngestScan(ctx context.Context, userID string, data []byte, contentType string) (*IngestResult, error) {
	var receipt extract.StructuredReceipt
	if s.scanner == nil {
		slog.Warn("No receipt scanner configured", "user_id", userID)
	} else if scanned, err := s.scanner.ScanReceipt(ctx, data, contentType); err != nil {
		slog.Error("Failed to scan receipt", "user_id", userID, "content_type", contentType, "file_size", len(data), "error", err)
	} else {
		receipt = *scanned
	}
	return s.IngestStructured(ctx, userID, receipt)
}

// defaults is the curated set used when a receipt yields nothing
func (s *Service) defaults() standardize.Result {
	entries := s.kb.Defaults()
	items := make([]resolver.Item, 0, len(entries))
	for _, e := range entries {
		item := resolver.NewItem(e.Key, 1, e.ShelfLifeDays, e.Category)
		item.CanonicalKey = e.Key
		items = append(items, item)
	}
	return standardize.Result{Source: standardize.SourceDefaults, Items: items}
}

func (s *Service) ingest(ctx context.Context, userID string, res standardize.Result) (*IngestResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	if len(res.Items) == 0 {
		slog.Info("No items found, using defaults", "user_id", userID)
		res = s.defaults()
	}
	return s.apply(ctx, userID, res.Source, res.Items, nil)
}

// apply assembles items against the user's inventory and writes the plan.
// Writes are not retried; the first failure is returned.
func (s *Service) apply(ctx context.Context, userID string, source standardize.Source, items []resolver.Item, adjust func(*Plan)) (*IngestResult, error) {
	existing, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	plan := s.assembler.Assemble(items, existing, now)
	if adjust != nil {
		adjust(&plan)
	}

	result := &IngestResult{Source: source, Inserted: make([]*Item, 0, len(plan.ToInsert)), Updated: make([]*Item, 0, len(plan.ToUpdate))}
	for _, item := range plan.ToInsert {
		item.ID = s.idGenerator.Generate()
		item.UserID = userID
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := s.store.Insert(&item); err != nil {
			return nil, fmt.Errorf("inserting item %q: %w", item.Name, err)
		}
		result.Inserted = append(result.Inserted, &item)
	}
	for _, u := range plan.ToUpdate {
		updated, err := s.store.Update(u.ID, u.Changes)
		if err != nil {
			return nil, fmt.Errorf("updating item %s: %w", u.ID, err)
		}
		result.Updated = append(result.Updated, updated)
	}

	slog.Info("Added items to pantry", "user_id", userID, "source", string(source), "inserted", len(result.Inserted), "updated", len(result.Updated))
	return result, nil
}

// NewItemRequest is a manually entered pantry item
type NewItemRequest struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Category   string `json:"category,omitempty"`
	Unit       string `json:"unit,omitempty"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

// AddItem adds a manually entered item, merging with an item of the same
// name like receipt items do. Missing shelf life and category are taken
// from the knowledge base.
func (s *Service) AddItem(ctx context.Context, userID string, req NewItemRequest) (*IngestResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	name := resolver.Normalize(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}

	item, ok := s.resolver.ResolveItem(name, req.Quantity)
	if !ok {
		item = resolver.NewItem(name, req.Quantity, 0, s.kb.CategoryFor(name))
	}
	if req.Category != "" {
		item.Category = req.Category
	}
	if req.ExpiryDate != "" {
		days, err := DaysUntil(req.ExpiryDate, s.timeSource.Now())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if days < 0 {
			return nil, fmt.Errorf("%w: expiry date %s is in the past", ErrInvalid, req.ExpiryDate)
		}
		item.ExpiresInDays = days
	}

	var adjust func(*Plan)
	if req.Unit != "" {
		adjust = func(p *Plan) {
			for i := range p.ToInsert {
				p.ToInsert[i].Unit = req.Unit
			}
		}
	}
	return s.apply(ctx, userID, standardize.SourceHeuristic, []resolver.Item{item}, adjust)
}

// ItemView is an item with its freshness computed for today
type ItemView struct {
	*Item
	Status          Status `json:"status"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
	CanFreeze       bool   `json:"can_freeze"`
	ThrowAway       bool   `json:"throw_away"`
}

// List returns a user's items, soonest expiry first
func (s *Service) List(ctx context.Context, userID string) ([]ItemView, error) {
	items, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.timeSource.Now()
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		days, err := DaysUntil(item.ExpiryDate, today)
		if err != nil {
			slog.Warn("Skipping item with bad expiry date", "id", item.ID, "expiry_date", item.ExpiryDate, "error", err)
			continue
		}
		views = append(views, ItemView{
			Item:            item,
			Status:          StatusFor(days),
			DaysUntilExpiry: days,
			CanFreeze:       s.assembler.CanFreeze(item),
			ThrowAway:       ShouldThrowAway(days),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].DaysUntilExpiry != views[j].DaysUntilExpiry {
			return views[i].DaysUntilExpiry < views[j].DaysUntilExpiry
		}
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
	return views, nil
}

// Expiring returns items that are critical or expiring, not yet expired
func (s *Service) Expiring(ctx context.Context, userID string) ([]ItemView, error) {
	views, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0)
	for _, v := range views {
		if v.Status == StatusCritical || v.Status == StatusExpiring {
			out = append(out, v)
		}
	}
	return out, nil
}

// Update applies a partial update to one of the user's items
func (s *Service) Update(ctx context.Context, userID, id string, patch Patch) (*Item, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := s.get(ctx, userID, id); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.get(ctx, userID, id)
	}
	item, err := s.store.Update(id, patch)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	return item, nil
}

// MarkUsed removes an item the user has used up
func (s *Service) MarkUsed(ctx context.Context, userID, id string) error {
	if _, err := s.get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// ToggleFreeze freezes or unfreezes one of the user's items
func (s *Service) ToggleFreeze(ctx context.Context, userID, id string) (*Item, error) {
	item, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !s.assembler.CanFreeze(item) {
		return nil, fmt.Errorf("%w: %s should not be frozen", ErrInvalid, item.Name)
	}

	patch, err := s.assembler.Freeze(item, s.timeSource.Now())
	if err != nil {
		return nil, fmt.Errorf("freezing item: %w", err)
	}
	updated, err := s.store.Update(id, patch)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	slog.Info("Toggled freezer state", "user_id", userID, "id", id, "frozen", updated.Frozen, "expiry_date", updated.ExpiryDate)
	return updated, nil
}

// ClearExpired deletes every expired item and returns how many were removed
func (s *Service) ClearExpired(ctx context.Context, userID string) (int, error) {
	views, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, v := range views {
		if v.Status != StatusExpired {
			continue
		}
		if err := s.store.Delete(v.ID); err != nil {
			return removed, fmt.Errorf("deleting item %s: %w", v.ID, err)
		}
		removed++
	}
	slog.Info("Cleared expired items", "user_id", userID, "removed", removed)
	return removed, nil
}

// RecipePreferences tailors recipe suggestions
type RecipePreferences struct {
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	HouseholdSize      int      `json:"household_size,omitempty"`
}

// SuggestRecipes generates recipes that use the user's expiring items, or
// any of their items when nothing is expiring, and saves them
func (s *Service) SuggestRecipes(ctx context.Context, userID string, prefs RecipePreferences) ([]recipe.Recipe, error) {
	if s.suggester == nil {
		return nil, fmt.Errorf("recipe suggestions: %w", ErrUnavailable)
	}

	views, err := s.Expiring(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		if views, err = s.List(ctx, userID); err != nil {
			return nil, err
		}
	}
	var ingredients []string
	for _, v := range views {
		if v.Status == StatusExpired {
			continue
		}
		ingredients = append(ingredients, v.Name)
		if len(ingredients) == maxRecipeIngredients {
			break
		}
	}

	recipes, err := s.suggester.Suggest(ctx, recipe.Request{
		Ingredients:        ingredients,
		DietaryPreferences: prefs.DietaryPreferences,
		HouseholdSize:      prefs.HouseholdSize,
	})
	if err != nil {
		return nil, fmt.Errorf("suggesting recipes: %w", err)
	}

	now := s.timeSource.Now()
	for i := range recipes {
		recipes[i].ID = s.idGenerator.Generate()
		recipes[i].UserID = userID
		recipes[i].CreatedAt = now
		if err := s.store.SaveRecipe(&recipes[i]); err != nil {
			return nil, fmt.Errorf("saving recipe: %w", err)
		}
	}
	return recipes, nil
}

// ListRecipes returns the user's most recent saved recipes
func (s *Service) ListRecipes(ctx context.Context, userID string) ([]*recipe.Recipe, error) {
	var recipes []*recipe.Recipe
	err := s.read(ctx, "listing recipes", func() error {
		var err error
		recipes, err = s.store.ListRecipes(userID, recipeHistory)
		return err
	})
	return recipes, err
}

// RecipeClickRequest names the recipe a user opened
type RecipeClickRequest struct {
	Recipe   string `json:"recipe"`
	RecipeID string `json:"recipe_id,omitempty"`
}

// RecordRecipeClick stores a recipe interaction for the user
func (s *Service) RecordRecipeClick(ctx context.Context, userID string, req RecipeClickRequest) (*RecipeClick, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	name := strings.TrimSpace(req.Recipe)
	if name == "" {
		return nil, fmt.Errorf("%w: recipe is required", ErrInvalid)
	}

	click := &RecipeClick{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		Recipe:    name,
		RecipeID:  req.RecipeID,
		Timestamp: s.timeSource.Now(),
	}
	if err := s.store.SaveRecipeClick(click); err != nil {
		return nil, fmt.Errorf("saving recipe click: %w", err)
	}
	slog.Debug("Recorded recipe click", "user_id", userID, "recipe", name)
	return click, nil
}

func (s *Service) findByUser(ctx context.Context, userID string) ([]*Item, error) {
	var items []*Item
	err := s.read(ctx, "listing items", func() error {
		var err error
		items, err = s.store.FindByUser(userID)
		return err
	})
	return items, err
}

// get loads an item and hides items owned by other users
func (s *Service) get(ctx context.Context, userID, id string) (*Item, error) {
	var item *Item
	err := s.read(ctx, "getting item", func() error {
		var err error
		item, err = s.store.Get(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, fmt.Errorf("getting item: item %s: %w", id, ErrNotFound)
	}
	return item, nil
}

// read retries a store read with exponential backoff. Misses are final.
func (s *Service) read(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	err := gax.Invoke(ctx, func(context.Context, gax.CallSettings) error {
		attempt++
		return fn()
	}, gax.WithRetry(func() gax.Retryer {
		return gax.OnErrorFunc(s.backoff, func(err error) bool {
			if errors.Is(err, ErrNotFound) || attempt >= readAttempts {
				return false
			}
			slog.Warn("Retrying store read", "op", op, "attempt", attempt, "error", err)
			return true
		})
	}))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
