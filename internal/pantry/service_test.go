package pantry

import (
	"context"
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/pantry-tracker/internal/extract"
	"github.com/zombor/pantry-tracker/internal/foodkb"
	"github.com/zombor/pantry-tracker/internal/recipe"
	"github.com/zombor/pantry-tracker/internal/standardize"
)

type fakeScanner struct {
	receipt *extract.StructuredReceipt
	err     error
}

func (f *fakeScanner) ScanReceipt(context.Context, []byte, string) (*extract.StructuredReceipt, error) {
	return f.receipt, f.err
}

func (f *fakeScanner) Close() error {
	return nil
}

type fakeSuggester struct {
	req     recipe.Request
	recipes []recipe.Recipe
	err     error
}

func (f *fakeSuggester) Suggest(_ context.Context, req recipe.Request) ([]recipe.Recipe, error) {
	f.req = req
	return f.recipes, f.err
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		store     *mockStore
		scanner   *fakeScanner
		suggester *fakeSuggester
		s         *Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newMockStore()
		scanner = &fakeScanner{}
		suggester = &fakeSuggester{}
	})

	JustBeforeEach(func() {
		kb, err := foodkb.LoadDefault()
		Expect(err).NotTo(HaveOccurred())
		s = NewServiceWithDeps(store, kb, nil, scanner, suggester, &sequentialIDs{}, fixedClock{now: today})
		s.backoff = gax.Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	})

	Describe("IngestText", func() {
		It("should add a recognized item with its shelf life", func() {
			res, err := s.IngestText(ctx, "user-1", "BANANAS\nTOTAL 1.29")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Source).To(Equal(standardize.SourceHeuristic))
			Expect(res.Inserted).To(HaveLen(1))

			item := res.Inserted[0]
			Expect(item.ID).To(Equal("id-1"))
			Expect(item.UserID).To(Equal("user-1"))
			Expect(item.Name).To(Equal("Bananas"))
			Expect(item.Category).To(Equal("Fruits"))
			Expect(item.ExpiryDate).To(Equal("2025-03-15"))
			Expect(item.Unit).To(Equal("bunch"))
			Expect(store.items).To(HaveKey("id-1"))
		})

		It("should merge into an existing item on a second receipt", func() {
			_, err := s.IngestText(ctx, "user-1", "BANANAS")
			Expect(err).NotTo(HaveOccurred())

			res, err := s.IngestText(ctx, "user-1", "BANANAS")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted).To(BeEmpty())
			Expect(res.Updated).To(HaveLen(1))
			Expect(res.Updated[0].Quantity).To(Equal(2))
			Expect(store.items).To(HaveLen(1))
		})

		When("nothing in the text is food", func() {
			It("should add the default items", func() {
				res, err := s.IngestText(ctx, "user-1", "PAPER TOWELS\nTOTAL 4.99")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Source).To(Equal(standardize.SourceDefaults))
				Expect(res.Inserted).To(HaveLen(6))
				Expect(res.Inserted[0].Name).To(Equal("Milk"))
			})
		})

		It("should require a user", func() {
			_, err := s.IngestText(ctx, "", "BANANAS")
			Expect(err).To(MatchError(ErrInvalid))
		})

		When("reading the inventory fails transiently", func() {
			BeforeEach(func() {
				store.findErr = errors.New("db busy")
				store.findErrTimes = 2
			})

			It("should retry the read", func() {
				_, err := s.IngestText(ctx, "user-1", "BANANAS")
				Expect(err).NotTo(HaveOccurred())
				Expect(store.findCalls).To(Equal(3))
			})
		})

		When("reading the inventory keeps failing", func() {
			BeforeEach(func() {
				store.findErr = errors.New("db down")
			})

			It("should give up after three attempts", func() {
				_, err := s.IngestText(ctx, "user-1", "BANANAS")
				Expect(err).To(MatchError(ContainSubstring("db down")))
				Expect(store.findCalls).To(Equal(3))
			})
		})

		When("a write fails", func() {
			BeforeEach(func() {
				store.insertErr = errors.New("disk full")
			})

			It("should return the error without retrying", func() {
				_, err := s.IngestText(ctx, "user-1", "BANANAS\nMILK")
				Expect(err).To(MatchError(ContainSubstring("disk full")))
				Expect(store.insertCalls).To(Equal(1))
			})
		})
	})

	Describe("IngestStructured", func() {
		It("should use the line quantities", func() {
			res, err := s.IngestStructured(ctx, "user-1", extract.StructuredReceipt{LineItems: []extract.LineItem{
				{Description: "Great Value Large Eggs", Quantity: 2},
			}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Source).To(Equal(standardize.SourceHeuristic))
			Expect(res.Inserted).To(HaveLen(1))
			Expect(res.Inserted[0].Quantity).To(Equal(2))
			Expect(res.Inserted[0].Category).To(Equal("Dairy"))
		})
	})

	Describe("IngestScan", func() {
		When("the scanner fails", func() {
			BeforeEach(func() {
				scanner.err = errors.New("vision model offline")
			})

			It("should fall back to the default items", func() {
				res, err := s.IngestScan(ctx, "user-1", []byte("img"), "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Source).To(Equal(standardize.SourceDefaults))
				Expect(res.Inserted).To(HaveLen(6))
			})
		})

		When("the scanner reads line items", func() {
			BeforeEach(func() {
				scanner.receipt = &extract.StructuredReceipt{LineItems: []extract.LineItem{{Description: "WHOLE MILK", Quantity: 1}}}
			})

			It("should add them", func() {
				res, err := s.IngestScan(ctx, "user-1", []byte("img"), "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Inserted).To(HaveLen(1))
				Expect(res.Inserted[0].Category).To(Equal("Dairy"))
			})
		})
	})

	Describe("AddItem", func() {
		It("should fill shelf life and category from the knowledge base", func() {
			res, err := s.AddItem(ctx, "user-1", NewItemRequest{Name: "Ground Beef", Quantity: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted[0].Category).To(Equal("Meat"))
			Expect(res.Inserted[0].ExpiryDate).To(Equal(AddDays(today, 5)))
		})

		It("should honor an explicit expiry date and unit", func() {
			res, err := s.AddItem(ctx, "user-1", NewItemRequest{Name: "Salsa", Quantity: 1, ExpiryDate: "2025-04-01", Unit: "jar"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted[0].ExpiryDate).To(Equal("2025-04-01"))
			Expect(res.Inserted[0].Unit).To(Equal("jar"))
		})

		It("should reject a date in the past", func() {
			_, err := s.AddItem(ctx, "user-1", NewItemRequest{Name: "Milk", ExpiryDate: "2025-03-01"})
			Expect(err).To(MatchError(ErrInvalid))
		})

		It("should reject a blank name", func() {
			_, err := s.AddItem(ctx, "user-1", NewItemRequest{Name: "  "})
			Expect(err).To(MatchError(ErrInvalid))
		})
	})

	Context("with stocked items", func() {
		BeforeEach(func() {
			store.items = map[string]*Item{
				"old":     {ID: "old", UserID: "user-1", Name: "Yogurt", Category: "Dairy", ExpiryDate: "2025-03-05", Quantity: 1},
				"soon":    {ID: "soon", UserID: "user-1", Name: "Milk", Category: "Dairy", ExpiryDate: "2025-03-11", Quantity: 1},
				"steak":   {ID: "steak", UserID: "user-1", Name: "Steak", Category: "Meat", ExpiryDate: "2025-03-12", Quantity: 1},
				"lettuce": {ID: "lettuce", UserID: "user-1", Name: "Lettuce", Category: "Vegetables", ExpiryDate: "2025-03-20", Quantity: 1},
				"other":   {ID: "other", UserID: "user-2", Name: "Rice", Category: "Grains", ExpiryDate: "2025-03-02", Quantity: 1},
			}
		})

		Describe("List", func() {
			It("should return only the user's items, soonest first, with status", func() {
				views, err := s.List(ctx, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(views).To(HaveLen(4))
				Expect(views[0].ID).To(Equal("old"))
				Expect(views[0].Status).To(Equal(StatusExpired))
				Expect(views[0].ThrowAway).To(BeTrue())
				Expect(views[1].Status).To(Equal(StatusCritical))
				Expect(views[2].Status).To(Equal(StatusExpiring))
				Expect(views[3].Status).To(Equal(StatusFresh))
				Expect(views[3].CanFreeze).To(BeFalse())
			})
		})

		Describe("Expiring", func() {
			It("should exclude expired and fresh items", func() {
				views, err := s.Expiring(ctx, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(views).To(HaveLen(2))
				Expect(views[0].Name).To(Equal("Milk"))
				Expect(views[1].Name).To(Equal("Steak"))
			})
		})

		Describe("Update", func() {
			It("should apply the patch", func() {
				item, err := s.Update(ctx, "user-1", "soon", Patch{Quantity: ptr(3)})
				Expect(err).NotTo(HaveOccurred())
				Expect(item.Quantity).To(Equal(3))
			})

			It("should hide another user's item", func() {
				_, err := s.Update(ctx, "user-1", "other", Patch{Quantity: ptr(3)})
				Expect(err).To(MatchError(ErrNotFound))
			})

			It("should reject an invalid patch", func() {
				_, err := s.Update(ctx, "user-1", "soon", Patch{Quantity: ptr(0)})
				Expect(err).To(MatchError(ErrInvalid))
			})
		})

		Describe("MarkUsed", func() {
			It("should delete the item", func() {
				Expect(s.MarkUsed(ctx, "user-1", "soon")).To(Succeed())
				Expect(store.items).NotTo(HaveKey("soon"))
			})

			It("should report a missing item", func() {
				Expect(s.MarkUsed(ctx, "user-1", "missing")).To(MatchError(ErrNotFound))
			})
		})

		Describe("ToggleFreeze", func() {
			It("should freeze and then restore the item", func() {
				frozen, err := s.ToggleFreeze(ctx, "user-1", "steak")
				Expect(err).NotTo(HaveOccurred())
				Expect(frozen.Frozen).To(BeTrue())
				Expect(frozen.ExpiryDate).To(Equal(AddDays(today, 92)))

				thawed, err := s.ToggleFreeze(ctx, "user-1", "steak")
				Expect(err).NotTo(HaveOccurred())
				Expect(thawed.Frozen).To(BeFalse())
				Expect(thawed.ExpiryDate).To(Equal("2025-03-12"))
			})

			It("should refuse items that should not be frozen", func() {
				_, err := s.ToggleFreeze(ctx, "user-1", "lettuce")
				Expect(err).To(MatchError(ErrInvalid))
			})
		})

		Describe("ClearExpired", func() {
			It("should remove only the user's expired items", func() {
				removed, err := s.ClearExpired(ctx, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(Equal(1))
				Expect(store.items).NotTo(HaveKey("old"))
				Expect(store.items).To(HaveKey("other"))
			})
		})

		Describe("SuggestRecipes", func() {
			BeforeEach(func() {
				suggester.recipes = []recipe.Recipe{{Name: "Steak and Eggs"}, {Name: "Milk Toast"}}
			})

			It("should build from expiring items and save the results", func() {
				recipes, err := s.SuggestRecipes(ctx, "user-1", RecipePreferences{HouseholdSize: 2})
				Expect(err).NotTo(HaveOccurred())
				Expect(suggester.req.Ingredients).To(Equal([]string{"Milk", "Steak"}))
				Expect(suggester.req.HouseholdSize).To(Equal(2))
				Expect(recipes).To(HaveLen(2))
				Expect(recipes[0].ID).To(Equal("id-1"))
				Expect(recipes[0].UserID).To(Equal("user-1"))

				saved, err := s.ListRecipes(ctx, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(saved).To(HaveLen(2))
			})

			When("suggestions fail", func() {
				BeforeEach(func() {
					suggester.err = errors.New("model offline")
				})

				It("should return the error", func() {
					_, err := s.SuggestRecipes(ctx, "user-1", RecipePreferences{})
					Expect(err).To(MatchError(ContainSubstring("model offline")))
					Expect(store.recipes).To(BeEmpty())
				})
			})
		})
	})

	Describe("RecordRecipeClick", func() {
		It("should store the click for the user", func() {
			click, err := s.RecordRecipeClick(ctx, "user-1", RecipeClickRequest{Recipe: " Banana Bread ", RecipeID: "r-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(click.ID).To(Equal("id-1"))
			Expect(click.Recipe).To(Equal("Banana Bread"))
			Expect(click.Timestamp).To(BeTemporally("==", today))
			Expect(store.clicks).To(HaveLen(1))
			Expect(store.clicks[0].UserID).To(Equal("user-1"))
			Expect(store.clicks[0].RecipeID).To(Equal("r-1"))
		})

		It("should require a recipe name", func() {
			_, err := s.RecordRecipeClick(ctx, "user-1", RecipeClickRequest{})
			Expect(err).To(MatchError(ErrInvalid))
			Expect(store.clicks).To(BeEmpty())
		})

		When("the store fails", func() {
			BeforeEach(func() {
				store.saveClickErr = errors.New("disk full")
			})

			It("should return the error", func() {
				_, err := s.RecordRecipeClick(ctx, "user-1", RecipeClickRequest{Recipe: "Soup"})
				Expect(err).To(MatchError(ContainSubstring("disk full")))
			})
		})
	})

	When("nothing is expiring", func() {
		BeforeEach(func() {
			store.items = map[string]*Item{
				"rice": {ID: "rice", UserID: "user-1", Name: "Rice", Category: "Grains", ExpiryDate: "2025-09-01", Quantity: 1},
			}
			suggester.recipes = []recipe.Recipe{{Name: "Fried Rice"}}
		})

		It("should suggest from any fresh item", func() {
			_, err := s.SuggestRecipes(ctx, "user-1", RecipePreferences{})
			Expect(err).NotTo(HaveOccurred())
			Expect(suggester.req.Ingredients).To(Equal([]string{"Rice"}))
		})
	})

	When("no suggester is configured", func() {
		JustBeforeEach(func() {
			s.suggester = nil
		})

		It("should report it as unavailable", func() {
			_, err := s.SuggestRecipes(ctx, "user-1", RecipePreferences{})
			Expect(err).To(MatchError(ErrUnavailable))
		})
	})
})
