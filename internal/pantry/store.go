package pantry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/pantry-tracker/internal/recipe"
)

const (
	itemsBucket        = "pantry_items"
	recipesBucket      = "recipes"
	recipeClicksBucket = "recipe_clicks"
)

// Store persists pantry items and saved recipes
type Store interface {
	// Insert saves a new item
	Insert(item *Item) error

	// Update merges a patch into an existing item and returns the result
	Update(id string, patch Patch) (*Item, error)

	// Delete removes an item
	Delete(id string) error

	// Get retrieves an item by ID
	Get(id string) (*Item, error)

	// FindByUser returns every item owned by a user
	FindByUser(userID string) ([]*Item, error)

	// SaveRecipe saves a generated recipe
	SaveRecipe(r *recipe.Recipe) error

	// ListRecipes returns a user's most recent recipes, newest first
	ListRecipes(userID string, limit int) ([]*recipe.Recipe, error)

	// SaveRecipeClick records a recipe interaction
	SaveRecipeClick(c *RecipeClick) error

	// Close closes the store
	Close() error
}

// BoltStore implements Store on a bbolt database
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore opens the database file and creates its buckets
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{itemsBucket, recipesBucket, recipeClicksBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// DB exposes the underlying database so other components can keep their
// own buckets in the same file
func (b *BoltStore) DB() *bbolt.DB {
	return b.db
}

func putJSON(bucket *bbolt.Bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", id, err)
	}
	return bucket.Put([]byte(id), data)
}

// Insert saves a new item
func (b *BoltStore) Insert(item *Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		if bucket.Get([]byte(item.ID)) != nil {
			return fmt.Errorf("item %s already exists", item.ID)
		}
		return putJSON(bucket, item.ID, item)
	})
}

// Update merges a patch into an existing item inside one transaction
func (b *BoltStore) Update(id string, patch Patch) (*Item, error) {
	var item Item
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(data, &item); err != nil {
			return fmt.Errorf("unmarshaling item: %w", err)
		}
		patch.Apply(&item)
		item.UpdatedAt = b.now()
		return putJSON(bucket, id, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes an item
func (b *BoltStore) Delete(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// Get retrieves an item by ID
func (b *BoltStore) Get(id string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(itemsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindByUser returns every item owned by a user
func (b *BoltStore) FindByUser(userID string) ([]*Item, error) {
	items := make([]*Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			if item.UserID == userID {
				items = append(items, &item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SaveRecipe saves a generated recipe
func (b *BoltStore) SaveRecipe(r *recipe.Recipe) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(recipesBucket)), r.ID, r)
	})
}

// ListRecipes returns a user's most recent recipes, newest first
func (b *BoltStore) ListRecipes(userID string, limit int) ([]*recipe.Recipe, error) {
	recipes := make([]*recipe.Recipe, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recipesBucket)).ForEach(func(k, v []byte) error {
			var r recipe.Recipe
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling recipe: %w", err)
			}
			if r.UserID == userID {
				recipes = append(recipes, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recipes, func(i, j int) bool {
		return recipes[i].CreatedAt.After(recipes[j].CreatedAt)
	})
	if limit > 0 && len(recipes) > limit {
		recipes = recipes[:limit]
	}
	return recipes, nil
}

// SaveRecipeClick records a recipe interaction
func (b *BoltStore) SaveRecipeClick(c *RecipeClick) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(recipeClicksBucket)), c.ID, c)
	})
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
