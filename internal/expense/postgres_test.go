package expense

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("PostgresDB", func() {
	var (
		ctx context.Context
		db  *PostgresDB
	)

	BeforeEach(func() {
		url := os.Getenv("EXPENSE_TRACKER_TEST_DATABASE_URL")
		if url == "" {
			Skip("EXPENSE_TRACKER_TEST_DATABASE_URL not set")
		}

		ctx = context.Background()
		var err error
		db, err = NewPostgresDB(ctx, url)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.pool.Exec(ctx, `TRUNCATE expenses, receipt_hashes`)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newExpense := func(id, hash string, date time.Time, amount string) *Expense {
		return &Expense{
			ID:          id,
			Date:        date,
			Amount:      decimal.RequireFromString(amount),
			Category:    "Groceries",
			SourceHash:  hash,
			Filename:    "",
			ContentType: "",
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		}
	}

	It("should round-trip an expense", func() {
		expense := newExpense("id1", "hash1", time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), "1234.56")
		Expect(db.SaveExpense(ctx, expense)).To(Succeed())

		got, err := db.GetExpense(ctx, "id1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Amount.StringFixed(2)).To(Equal("1234.56"))
		Expect(got.Date).To(Equal(expense.Date))
		Expect(got.SourceHash).To(Equal("hash1"))
		Expect(got.Filename).To(BeEmpty())
	})

	It("should reject a second row with the same hash", func() {
		Expect(db.SaveExpense(ctx, newExpense("id1", "hash1", time.Now(), "1.00"))).To(Succeed())
		Expect(db.SaveExpense(ctx, newExpense("id2", "hash1", time.Now(), "2.00"))).To(MatchError(ErrDuplicate))
		Expect(db.HasHash(ctx, "hash1")).To(BeTrue())
	})

	It("should store manual expenses without a hash", func() {
		Expect(db.SaveExpense(ctx, newExpense("m1", "", time.Now(), "1.00"))).To(Succeed())
		Expect(db.SaveExpense(ctx, newExpense("m2", "", time.Now(), "2.00"))).To(Succeed())

		all, err := db.ListExpenses(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("should list a month", func() {
		Expect(db.SaveExpense(ctx, newExpense("sep", "h1", time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), "1.00"))).To(Succeed())
		Expect(db.SaveExpense(ctx, newExpense("oct", "h2", time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC), "2.00"))).To(Succeed())

		expenses, err := db.ListExpensesBetween(ctx,
			time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
		Expect(err).NotTo(HaveOccurred())
		Expect(expenses).To(HaveLen(1))
		Expect(expenses[0].ID).To(Equal("oct"))
	})

	It("should delete the expense and keep its hash", func() {
		Expect(db.SaveExpense(ctx, newExpense("id1", "hash1", time.Now(), "1.00"))).To(Succeed())
		Expect(db.DeleteExpense(ctx, "id1")).To(Succeed())
		Expect(db.HasHash(ctx, "hash1")).To(BeTrue())
		Expect(db.SaveExpense(ctx, newExpense("id2", "hash1", time.Now(), "2.00"))).To(MatchError(ErrDuplicate))
		Expect(db.DeleteExpense(ctx, "id1")).To(MatchError(ErrNotFound))
	})

	It("should allow the same expense to be saved again", func() {
		expense := newExpense("id1", "hash1", time.Now(), "1.00")
		Expect(db.SaveExpense(ctx, expense)).To(Succeed())
		expense.Category = "Transport"
		Expect(db.SaveExpense(ctx, expense)).To(Succeed())
	})

	DescribeTable("stores amounts exactly",
		func(amount string) {
			Expect(db.SaveExpense(ctx, newExpense("id1", "", time.Now(), amount))).To(Succeed())
			got, err := db.GetExpense(ctx, "id1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Amount.Equal(decimal.RequireFromString(amount))).To(BeTrue())
		},
		Entry("three decimals", "1.234"),
		Entry("beyond ten billion", "123456789012.34"),
	)
})
