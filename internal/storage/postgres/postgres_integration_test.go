//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

// setupPostgresStore starts a disposable PostgreSQL container and returns a
// migrated store. The container is terminated on test cleanup.
func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := New(ctx, dsn)
	require.NoError(t, err, "New() should connect and migrate")
	t.Cleanup(func() { store.Close() })

	return store
}

func TestIntegration_Postgres_ExpenseLifecycle(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	trip := &models.Trip{Name: "Porto", Currency: "EUR"}
	require.NoError(t, store.CreateTrip(ctx, trip))

	expense := &models.Expense{
		PayerID:     "alice",
		Description: "Wine tasting",
		Amount:      9000,
		Currency:    "EUR",
		Category:    models.CategoryActivity,
		Rule:        models.SharesSplit{Shares: map[string]int64{"alice": 1, "bob": 2}},
		Splits: []models.ExpenseSplit{
			{MemberID: "alice", OwedAmount: 3000},
			{MemberID: "bob", OwedAmount: 6000},
		},
	}

	updated, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		for _, id := range []string{"alice", "bob"} {
			if err := tx.InsertMember(ctx, &models.Member{ID: id, DisplayName: id}); err != nil {
				return err
			}
		}
		return tx.InsertExpense(ctx, expense)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	_, err = store.ViewTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		expenses, err := tx.Expenses(ctx)
		require.NoError(t, err)
		require.Len(t, expenses, 1)
		assert.Equal(t, int64(9000), expenses[0].SplitTotal())
		assert.Equal(t, models.SplitShares, expenses[0].Rule.Kind())
		return nil
	})
	require.NoError(t, err)

	_, err = store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
		return tx.DeleteExpense(ctx, expense.ID)
	})
	require.NoError(t, err)

	var splitCount int
	require.NoError(t, store.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expense_splits WHERE expense_id = $1", expense.ID,
	).Scan(&splitCount))
	assert.Zero(t, splitCount, "splits should cascade with the expense")
}

func TestIntegration_Postgres_ConcurrentWritersConflict(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	trip := &models.Trip{Name: "Madrid", Currency: "EUR"}
	require.NoError(t, store.CreateTrip(ctx, trip))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.UpdateTrip(ctx, trip.ID, func(tx storage.TripTx) error {
				return tx.InsertMember(ctx, &models.Member{ID: string(rune('a' + i)), DisplayName: "m"})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	got, err := store.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(committed), got.Version, "every committed writer bumps the version once")
	assert.Equal(t, writers, committed+conflicts)
}
