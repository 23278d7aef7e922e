package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "tripledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTrip(t *testing.T, store *SQLiteStore, members ...string) *models.Trip {
	t.Helper()
	ctx := context.Background()

	trip := &models.Trip{Name: "Lisbon", Currency: "EUR"}
	if err := store.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}
	updated, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		for _, id := range members {
			if err := tx.InsertMember(ctx, &models.Member{ID: id, DisplayName: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTrip failed: %v", err)
	}
	return updated
}

func TestSQLiteStore_Trips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateTrip generates ID at version 0", func(t *testing.T) {
		trip := &models.Trip{Name: "Kyoto", Currency: "JPY"}
		if err := store.CreateTrip(ctx, trip); err != nil {
			t.Fatalf("CreateTrip failed: %v", err)
		}
		if trip.ID == "" {
			t.Error("Expected trip ID to be generated")
		}
		if trip.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}

		got, err := store.GetTrip(ctx, trip.ID)
		if err != nil {
			t.Fatalf("GetTrip failed: %v", err)
		}
		if got.Name != "Kyoto" || got.Currency != "JPY" || got.Version != 0 {
			t.Errorf("GetTrip = %+v", got)
		}
	})

	t.Run("GetTrip unknown ID returns NotFound", func(t *testing.T) {
		_, err := store.GetTrip(ctx, "missing")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateTrip bumps version only on writes", func(t *testing.T) {
		trip := seedTrip(t, store, "alice")
		if trip.Version != 1 {
			t.Fatalf("version after roster write = %d, want 1", trip.Version)
		}

		same, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			_, err := tx.Members(ctx)
			return err
		})
		if err != nil {
			t.Fatalf("UpdateTrip failed: %v", err)
		}
		if same.Version != 1 {
			t.Errorf("version after read-only update = %d, want 1", same.Version)
		}
	})

	t.Run("UpdateTrip error rolls back", func(t *testing.T) {
		trip := seedTrip(t, store, "alice")
		boom := errors.New("boom")
		_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			if err := tx.InsertMember(ctx, &models.Member{ID: "bob", DisplayName: "Bob"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("error = %v, want boom", err)
		}

		view, err := store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			members, err := tx.Members(ctx)
			if err != nil {
				return err
			}
			if len(members) != 1 {
				t.Errorf("got %d members after rollback, want 1", len(members))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ViewTrip failed: %v", err)
		}
		if view.Version != trip.Version {
			t.Errorf("version = %d, want %d", view.Version, trip.Version)
		}
	})

	t.Run("ViewTrip rejects writes", func(t *testing.T) {
		trip := seedTrip(t, store, "alice")
		_, err := store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.InsertMember(ctx, &models.Member{ID: "bob"})
		})
		if err == nil {
			t.Error("expected write in view to fail")
		}
	})
}

func TestSQLiteStore_Members(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, "bob", "alice")

	_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		return tx.TombstoneMember(ctx, "bob", 1700000000)
	})
	if err != nil {
		t.Fatalf("TombstoneMember failed: %v", err)
	}

	_, err = store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		return tx.TombstoneMember(ctx, "ghost", 1700000000)
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("tombstone unknown member error = %v, want ErrNotFound", err)
	}

	_, err = store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		members, err := tx.Members(ctx)
		if err != nil {
			return err
		}
		if len(members) != 2 {
			t.Fatalf("got %d members, want 2", len(members))
		}
		if members[0].ID != "alice" || !members[0].Active() {
			t.Errorf("members[0] = %+v, want active alice", members[0])
		}
		if members[1].ID != "bob" || members[1].RemovedAt != 1700000000 {
			t.Errorf("members[1] = %+v, want tombstoned bob", members[1])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ViewTrip failed: %v", err)
	}
}

func TestSQLiteStore_Expenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, "alice", "bob", "carol")

	expense := &models.Expense{
		PayerID:     "alice",
		Description: "Dinner",
		Amount:      1000,
		Currency:    "EUR",
		Category:    models.CategoryFood,
		SpentAt:     1700000000,
		Rule: models.PercentageSplit{Percentages: map[string]decimal.Decimal{
			"alice": decimal.RequireFromString("33.3"),
			"bob":   decimal.RequireFromString("33.3"),
			"carol": decimal.RequireFromString("33.4"),
		}},
		Splits: []models.ExpenseSplit{
			{MemberID: "alice", OwedAmount: 333},
			{MemberID: "bob", OwedAmount: 333},
			{MemberID: "carol", OwedAmount: 334},
		},
	}

	t.Run("InsertExpense round trips rule and splits", func(t *testing.T) {
		_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.InsertExpense(ctx, expense)
		})
		if err != nil {
			t.Fatalf("InsertExpense failed: %v", err)
		}
		if expense.ID == "" {
			t.Fatal("Expected expense ID to be generated")
		}

		_, err = store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			got, err := tx.GetExpense(ctx, expense.ID)
			if err != nil {
				return err
			}
			rule, ok := got.Rule.(models.PercentageSplit)
			if !ok {
				t.Fatalf("rule = %T, want PercentageSplit", got.Rule)
			}
			if !rule.Percentages["carol"].Equal(decimal.RequireFromString("33.4")) {
				t.Errorf("carol percentage = %s, want 33.4", rule.Percentages["carol"])
			}
			if got.SplitTotal() != 1000 || len(got.Splits) != 3 {
				t.Errorf("splits = %+v", got.Splits)
			}
			if got.Category != models.CategoryFood {
				t.Errorf("category = %s, want food", got.Category)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ViewTrip failed: %v", err)
		}
	})

	t.Run("ReplaceExpense swaps the split set", func(t *testing.T) {
		expense.Amount = 600
		expense.Rule = models.EqualSplit{Members: []string{"alice", "bob"}}
		expense.Splits = []models.ExpenseSplit{
			{MemberID: "alice", OwedAmount: 300},
			{MemberID: "bob", OwedAmount: 300},
		}
		_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.ReplaceExpense(ctx, expense)
		})
		if err != nil {
			t.Fatalf("ReplaceExpense failed: %v", err)
		}

		_, err = store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			expenses, err := tx.Expenses(ctx)
			if err != nil {
				return err
			}
			if len(expenses) != 1 {
				t.Fatalf("got %d expenses, want 1", len(expenses))
			}
			if expenses[0].Amount != 600 || len(expenses[0].Splits) != 2 {
				t.Errorf("expense = %+v", expenses[0])
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ViewTrip failed: %v", err)
		}
	})

	t.Run("DeleteExpense removes splits", func(t *testing.T) {
		_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.DeleteExpense(ctx, expense.ID)
		})
		if err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}

		var count int
		if err := store.DB().QueryRow("SELECT COUNT(*) FROM expense_splits WHERE expense_id = ?", expense.ID).Scan(&count); err != nil {
			t.Fatalf("count splits: %v", err)
		}
		if count != 0 {
			t.Errorf("got %d splits after delete, want 0", count)
		}

		_, err = store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.DeleteExpense(ctx, expense.ID)
		})
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("second delete error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteStore_Settlements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, "alice", "bob")

	expense := &models.Expense{
		PayerID: "alice", Description: "Taxi", Amount: 200, Currency: "EUR",
		Category: models.CategoryTransport, Rule: models.EqualSplit{Members: []string{"alice", "bob"}},
		Splits: []models.ExpenseSplit{{MemberID: "alice", OwedAmount: 100}, {MemberID: "bob", OwedAmount: 100}},
	}
	proposed := &models.Settlement{
		PayerID: "bob", PayeeID: "alice", Amount: 100, Status: models.SettlementProposed,
		ExpenseID: "", IdempotencyKey: "k-proposed", CreatedBy: "bob",
	}

	_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		if err := tx.InsertExpense(ctx, expense); err != nil {
			return err
		}
		proposed.ExpenseID = expense.ID
		return tx.InsertSettlement(ctx, proposed)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	t.Run("FindSettlementByKey", func(t *testing.T) {
		_, err := store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			found, err := tx.FindSettlementByKey(ctx, "k-proposed")
			if err != nil {
				return err
			}
			if found == nil || found.ID != proposed.ID {
				t.Errorf("found = %+v, want %s", found, proposed.ID)
			}
			missing, err := tx.FindSettlementByKey(ctx, "nope")
			if err != nil {
				return err
			}
			if missing != nil {
				t.Errorf("missing = %+v, want nil", missing)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ViewTrip failed: %v", err)
		}
	})

	t.Run("MarkSettled derives split settled flag", func(t *testing.T) {
		_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.MarkSettled(ctx, proposed.ID, 1700000100)
		})
		if err != nil {
			t.Fatalf("MarkSettled failed: %v", err)
		}

		_, err = store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			return tx.MarkSettled(ctx, proposed.ID, 1700000200)
		})
		if !errors.Is(err, models.ErrConflict) {
			t.Errorf("second MarkSettled error = %v, want ErrConflict", err)
		}

		_, err = store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			got, err := tx.GetExpense(ctx, expense.ID)
			if err != nil {
				return err
			}
			bob, _ := got.SplitFor("bob")
			alice, _ := got.SplitFor("alice")
			if !bob.Settled || alice.Settled {
				t.Errorf("settled flags alice=%v bob=%v, want false/true", alice.Settled, bob.Settled)
			}
			s, err := tx.GetSettlement(ctx, proposed.ID)
			if err != nil {
				return err
			}
			if s.Status != models.SettlementSettled || s.SettledAt != 1700000100 {
				t.Errorf("settlement = %+v", s)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ViewTrip failed: %v", err)
		}
	})

	t.Run("MarkStaleForExpense only touches proposed", func(t *testing.T) {
		another := &models.Settlement{
			PayerID: "bob", PayeeID: "alice", Amount: 50, Status: models.SettlementProposed,
			ExpenseID: expense.ID, IdempotencyKey: "k-another", CreatedBy: "bob",
		}
		var changed int64
		_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			if err := tx.InsertSettlement(ctx, another); err != nil {
				return err
			}
			var err error
			changed, err = tx.MarkStaleForExpense(ctx, expense.ID)
			return err
		})
		if err != nil {
			t.Fatalf("MarkStaleForExpense failed: %v", err)
		}
		if changed != 1 {
			t.Errorf("changed = %d, want 1", changed)
		}

		_, err = store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
			all, err := tx.Settlements(ctx)
			if err != nil {
				return err
			}
			statuses := map[string]models.SettlementStatus{}
			for _, s := range all {
				statuses[s.IdempotencyKey] = s.Status
			}
			if statuses["k-proposed"] != models.SettlementSettled || statuses["k-another"] != models.SettlementStale {
				t.Errorf("statuses = %v", statuses)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ViewTrip failed: %v", err)
		}
	})
}
