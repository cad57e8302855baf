package pantry

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/pantry-tracker/internal/foodkb"
	"github.com/zombor/pantry-tracker/internal/resolver"
)

var _ = Describe("Assembler", func() {
	var a *Assembler

	BeforeEach(func() {
		kb, err := foodkb.LoadDefault()
		Expect(err).NotTo(HaveOccurred())
		a = NewAssembler(kb)
	})

	Describe("Assemble", func() {
		var (
			items    []resolver.Item
			existing []*Item
			plan     Plan
		)

		BeforeEach(func() {
			existing = []*Item{
				{ID: "milk-1", Name: "Milk", Quantity: 1, ExpiryDate: "2025-03-30", Unit: "carton"},
				{ID: "eggs-1", Name: "Eggs", Quantity: 12, ExpiryDate: "2025-03-11", Unit: "dozen"},
			}
		})

		JustBeforeEach(func() {
			plan = a.Assemble(items, existing, today)
		})

		When("an item is new", func() {
			BeforeEach(func() {
				items = []resolver.Item{{Name: "Bananas", CanonicalKey: "bananas", Quantity: 2, ExpiresInDays: 5, Category: "Fruits"}}
			})

			It("should insert it with the computed expiry and unit", func() {
				Expect(plan.ToUpdate).To(BeEmpty())
				Expect(plan.ToInsert).To(HaveLen(1))
				Expect(plan.ToInsert[0].ExpiryDate).To(Equal("2025-03-15"))
				Expect(plan.ToInsert[0].Unit).To(Equal("bunch"))
				Expect(plan.ToInsert[0].Frozen).To(BeFalse())
			})
		})

		When("an item matches existing stock case-insensitively", func() {
			BeforeEach(func() {
				items = []resolver.Item{{Name: "MILK", Quantity: 2, ExpiresInDays: 7, Category: "Dairy"}}
			})

			It("should sum quantities and keep the later expiry", func() {
				Expect(plan.ToInsert).To(BeEmpty())
				Expect(plan.ToUpdate).To(HaveLen(1))
				Expect(plan.ToUpdate[0].ID).To(Equal("milk-1"))
				Expect(*plan.ToUpdate[0].Changes.Quantity).To(Equal(3))
				Expect(*plan.ToUpdate[0].Changes.ExpiryDate).To(Equal("2025-03-30"))
			})
		})

		When("the new stock outlasts the existing item", func() {
			BeforeEach(func() {
				items = []resolver.Item{{Name: "eggs", Quantity: 12, ExpiresInDays: 21, Category: "Dairy"}}
			})

			It("should extend the expiry", func() {
				Expect(*plan.ToUpdate[0].Changes.ExpiryDate).To(Equal("2025-03-31"))
				Expect(*plan.ToUpdate[0].Changes.Quantity).To(Equal(24))
			})
		})

		When("the batch repeats an item", func() {
			BeforeEach(func() {
				items = []resolver.Item{
					{Name: "Bread", Quantity: 1, ExpiresInDays: 4, Category: "Bakery"},
					{Name: "bread", Quantity: 2, ExpiresInDays: 4, Category: "Bakery"},
					{Name: "Milk", Quantity: 1, ExpiresInDays: 7, Category: "Dairy"},
					{Name: "milk", Quantity: 1, ExpiresInDays: 7, Category: "Dairy"},
				}
			})

			It("should merge the repeats into one write each", func() {
				Expect(plan.ToInsert).To(HaveLen(1))
				Expect(plan.ToInsert[0].Quantity).To(Equal(3))
				Expect(plan.ToUpdate).To(HaveLen(1))
				Expect(*plan.ToUpdate[0].Changes.Quantity).To(Equal(3))
			})
		})

		It("should never decrease expiry and always sum quantities", func() {
			for days := 1; days <= 40; days++ {
				p := a.Assemble([]resolver.Item{{Name: "milk", Quantity: days, ExpiresInDays: days}}, existing, today)
				Expect(p.ToUpdate).To(HaveLen(1))
				Expect(*p.ToUpdate[0].Changes.ExpiryDate >= "2025-03-30").To(BeTrue())
				Expect(*p.ToUpdate[0].Changes.Quantity).To(Equal(1 + days))
			}
		})
	})

	Describe("Freeze", func() {
		var item *Item

		BeforeEach(func() {
			item = &Item{Name: "Ground Beef", Category: "Meat", ExpiryDate: "2025-03-12"}
		})

		It("should extend the remaining shelf life by the category extension", func() {
			patch, err := a.Freeze(item, today)
			Expect(err).NotTo(HaveOccurred())
			Expect(*patch.Frozen).To(BeTrue())
			Expect(*patch.OriginalExpiryDate).To(Equal("2025-03-12"))
			Expect(*patch.ExpiryDate).To(Equal(AddDays(today, 2+90)))
		})

		It("should not count days already past expiry", func() {
			item.ExpiryDate = "2025-03-01"
			patch, err := a.Freeze(item, today)
			Expect(err).NotTo(HaveOccurred())
			Expect(*patch.ExpiryDate).To(Equal(AddDays(today, 90)))
		})

		It("should restore the exact original expiry when unfrozen", func() {
			patch, err := a.Freeze(item, today)
			Expect(err).NotTo(HaveOccurred())
			patch.Apply(item)

			patch, err = a.Freeze(item, today)
			Expect(err).NotTo(HaveOccurred())
			patch.Apply(item)

			Expect(item.Frozen).To(BeFalse())
			Expect(item.ExpiryDate).To(Equal("2025-03-12"))
			Expect(item.OriginalExpiryDate).To(BeEmpty())
		})

		It("should reject a malformed expiry", func() {
			item.ExpiryDate = "soon"
			_, err := a.Freeze(item, today)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CanFreeze", func() {
		It("should allow meat", func() {
			Expect(a.CanFreeze(&Item{Name: "Chicken", Category: "Meat"})).To(BeTrue())
		})

		It("should refuse lettuce", func() {
			Expect(a.CanFreeze(&Item{Name: "Lettuce", Category: "Vegetables"})).To(BeFalse())
		})

		It("should always allow thawing a frozen item", func() {
			Expect(a.CanFreeze(&Item{Name: "Lettuce", Category: "Vegetables", Frozen: true})).To(BeTrue())
		})
	})
})

var _ = Describe("Status", func() {
	DescribeTable("StatusFor",
		func(days int, expected Status) {
			Expect(StatusFor(days)).To(Equal(expected))
		},
		Entry("yesterday", -1, StatusExpired),
		Entry("today", 0, StatusCritical),
		Entry("tomorrow", 1, StatusCritical),
		Entry("two days", 2, StatusExpiring),
		Entry("three days", 3, StatusExpiring),
		Entry("four days", 4, StatusFresh),
	)

	It("should count calendar days regardless of time of day", func() {
		days, err := DaysUntil("2025-03-11", today)
		Expect(err).NotTo(HaveOccurred())
		Expect(days).To(Equal(1))
	})

	It("should flag items expired more than three days ago", func() {
		Expect(ShouldThrowAway(-3)).To(BeFalse())
		Expect(ShouldThrowAway(-4)).To(BeTrue())
	})
})

var _ = Describe("Patch", func() {
	It("should only change set fields", func() {
		item := &Item{Name: "Milk", Quantity: 1, Unit: "carton"}
		Patch{Quantity: ptr(4)}.Apply(item)
		Expect(item.Name).To(Equal("Milk"))
		Expect(item.Quantity).To(Equal(4))
		Expect(item.Unit).To(Equal("carton"))
	})

	It("should reject bad values", func() {
		Expect(Patch{Quantity: ptr(0)}.Validate()).To(HaveOccurred())
		Expect(Patch{ExpiryDate: ptr("03/10/2025")}.Validate()).To(HaveOccurred())
		Expect(Patch{ExpiryDate: ptr("2025-03-10")}.Validate()).To(Succeed())
	})
})
