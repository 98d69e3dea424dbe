package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/office-hub/internal/models"
)

type cleanupSetter interface {
	SetCleanup(fn CleanupFunc)
}

// runRepositoryTests exercises behaviour every Repository implementation
// must share. newRepo returns an empty repository.
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("desk uniqueness", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		a := seedEmployee(t, repo, "ivanov")
		b := seedEmployee(t, repo, "petrov")

		err := repo.InDeskTx(ctx, func(tx DeskTx) error {
			return tx.SaveDesk(ctx, &models.Desk{TableNumber: "10", EmployeeID: &a.ID})
		})
		require.NoError(t, err)

		err = repo.InDeskTx(ctx, func(tx DeskTx) error {
			return tx.SaveDesk(ctx, &models.Desk{TableNumber: "10"})
		})
		assert.ErrorIs(t, err, ErrConflict, "duplicate table number")

		err = repo.InDeskTx(ctx, func(tx DeskTx) error {
			return tx.SaveDesk(ctx, &models.Desk{TableNumber: "11", EmployeeID: &a.ID})
		})
		assert.ErrorIs(t, err, ErrConflict, "employee already seated")

		err = repo.InDeskTx(ctx, func(tx DeskTx) error {
			if err := tx.LockTables(ctx, 10, 11, 12, 11); err != nil {
				return err
			}
			return tx.SaveDesk(ctx, &models.Desk{TableNumber: "11", EmployeeID: &b.ID})
		})
		require.NoError(t, err)

		occupied, err := repo.ListDesks(ctx, models.DeskFilters{Occupancy: models.DeskOccupied, Page: models.Page{}.Normalize()})
		require.NoError(t, err)
		assert.Equal(t, 2, occupied.Count)

		d, err := repo.DeskByEmployee(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "11", d.TableNumber)
	})

	t.Run("failed desk tx leaves nothing behind", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		boom := errors.New("boom")

		err := repo.InDeskTx(ctx, func(tx DeskTx) error {
			if err := tx.SaveDesk(ctx, &models.Desk{TableNumber: "7"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = repo.InDeskTx(ctx, func(tx DeskTx) error {
			_, err := tx.DeskByNumber(ctx, "7")
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("guarded increment", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		author := seedUser(t, repo, "author")
		now := time.Now().UTC()
		c := seedCollection(t, repo, author.ID, money(100_00), now.Add(24*time.Hour))

		add := func(delta models.Money, at time.Time) (models.Money, bool) {
			var total models.Money
			var ok bool
			err := repo.InLedgerTx(ctx, func(tx LedgerTx) error {
				var err error
				total, ok, err = tx.AddToCollected(ctx, c.ID, delta, at)
				return err
			})
			require.NoError(t, err)
			return total, ok
		}

		total, ok := add(60_00, now)
		assert.True(t, ok)
		assert.Equal(t, models.Money(60_00), total)

		total, ok = add(50_00, now)
		assert.False(t, ok, "would exceed target")
		assert.Equal(t, models.Money(60_00), total)

		total, ok = add(40_00, now)
		assert.True(t, ok)
		assert.Equal(t, models.Money(100_00), total)

		total, ok = add(-150_00, now)
		assert.True(t, ok)
		assert.Equal(t, models.Money(0), total, "never below zero")

		total, ok = add(1_00, now.Add(48*time.Hour))
		assert.False(t, ok, "collection has ended")
		assert.Equal(t, models.Money(0), total)
	})

	t.Run("increment respects total limit", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		author := seedUser(t, repo, "author")
		now := time.Now().UTC()
		untargeted := seedCollection(t, repo, author.ID, nil, now.Add(time.Hour))
		targeted := seedCollection(t, repo, author.ID, money(100_00), now.Add(time.Hour))

		add := func(id string, delta models.Money) (models.Money, bool) {
			var total models.Money
			var ok bool
			err := repo.InLedgerTx(ctx, func(tx LedgerTx) error {
				var err error
				total, ok, err = tx.AddToCollected(ctx, id, delta, now)
				return err
			})
			require.NoError(t, err)
			return total, ok
		}

		total, ok := add(untargeted.ID, models.MaxCollectionAmount)
		require.True(t, ok)
		assert.Equal(t, models.MaxCollectionAmount, total)

		total, ok = add(untargeted.ID, 1)
		assert.False(t, ok)
		assert.Equal(t, models.MaxCollectionAmount, total)

		total, ok = add(targeted.ID, 6_000_000_000_000_000_000)
		assert.False(t, ok, "huge delta must not wrap past the target")
		assert.Equal(t, models.Money(0), total)

		got, err := repo.GetCollection(ctx, untargeted.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Revision, "only the applied update bumps the revision")
	})

	t.Run("concurrent increments respect target", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		author := seedUser(t, repo, "author")
		now := time.Now().UTC()
		c := seedCollection(t, repo, author.ID, money(10_00), now.Add(time.Hour))

		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = repo.InLedgerTx(ctx, func(tx LedgerTx) error {
					_, ok, err := tx.AddToCollected(ctx, c.ID, 1_00, now)
					if ok {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
					return err
				})
			}()
		}
		wg.Wait()

		got, err := repo.GetCollection(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, accepted)
		assert.Equal(t, models.Money(10_00), got.CurrentAmount)
	})

	t.Run("ledger tx rollback", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		author := seedUser(t, repo, "author")
		c := seedCollection(t, repo, author.ID, nil, time.Now().Add(time.Hour))
		boom := errors.New("boom")

		err := repo.InLedgerTx(ctx, func(tx LedgerTx) error {
			p := &models.Payment{
				ID: uuid.NewString(), UserID: author.ID, CollectionID: c.ID,
				Amount: 5_00, Method: models.PaymentCard, CreatedAt: time.Now().UTC(),
			}
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
			if _, _, err := tx.AddToCollected(ctx, c.ID, p.Amount, time.Now()); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := repo.GetCollection(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.Money(0), got.CurrentAmount)

		n, err := repo.CountPayments(ctx, c.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("recompute corrects drift", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		author := seedUser(t, repo, "author")
		now := time.Now().UTC()
		c := seedCollection(t, repo, author.ID, nil, now.Add(time.Hour))
		clean := seedCollection(t, repo, author.ID, nil, now.Add(time.Hour))

		for _, amount := range []models.Money{3_00, 4_50} {
			err := repo.InLedgerTx(ctx, func(tx LedgerTx) error {
				if err := tx.InsertPayment(ctx, &models.Payment{
					ID: uuid.NewString(), UserID: author.ID, CollectionID: c.ID,
					Amount: amount, Method: models.PaymentCard, CreatedAt: now,
				}); err != nil {
					return err
				}
				_, _, err := tx.AddToCollected(ctx, c.ID, amount, now)
				return err
			})
			require.NoError(t, err)
		}

		// Drift the stored total behind the ledger's back
		err := repo.InLedgerTx(ctx, func(tx LedgerTx) error {
			_, _, err := tx.AddToCollected(ctx, c.ID, -7_50, now)
			return err
		})
		require.NoError(t, err)

		fixes, err := repo.RecomputeCollected(ctx)
		require.NoError(t, err)
		require.Len(t, fixes, 1)
		assert.Equal(t, Correction{CollectionID: c.ID, Before: 0, After: 7_50}, fixes[0])

		got, err := repo.GetCollection(ctx, clean.ID)
		require.NoError(t, err)
		assert.Equal(t, models.Money(0), got.CurrentAmount)

		fixes, err = repo.RecomputeCollected(ctx)
		require.NoError(t, err)
		assert.Empty(t, fixes)
	})

	t.Run("collection delete runs cleanup", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		var removed []string
		repo.(cleanupSetter).SetCleanup(func(ctx context.Context, paths []string) {
			removed = append(removed, paths...)
		})

		author := seedUser(t, repo, "author")
		c := &models.Collection{
			ID: uuid.NewString(), AuthorID: author.ID, Title: "Gift",
			Occasion: models.OccasionBirthday, CoverImage: "covers/a.png",
			EndAt: time.Now().Add(time.Hour).UTC(), CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.CreateCollection(ctx, c))
		require.NoError(t, repo.DeleteCollection(ctx, c.ID))

		assert.Equal(t, []string{"covers/a.png"}, removed)
		_, err := repo.GetCollection(ctx, c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.DeleteCollection(ctx, c.ID), ErrNotFound)
	})

	t.Run("update clamps total to target", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		author := seedUser(t, repo, "author")
		now := time.Now().UTC()
		c := seedCollection(t, repo, author.ID, nil, now.Add(time.Hour))

		err := repo.InLedgerTx(ctx, func(tx LedgerTx) error {
			_, _, err := tx.AddToCollected(ctx, c.ID, 80_00, now)
			return err
		})
		require.NoError(t, err)

		c.TargetAmount = money(50_00)
		require.NoError(t, repo.UpdateCollection(ctx, c))
		assert.Equal(t, models.Money(50_00), c.CurrentAmount)
	})

	t.Run("usernames are unique", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		seedUser(t, repo, "ivanov_ivan")

		exists, err := repo.UsernameExists(ctx, "ivanov_ivan")
		require.NoError(t, err)
		assert.True(t, exists)

		err = repo.CreateUser(ctx, &models.User{Username: "ivanov_ivan", PasswordHash: "x", Role: models.RoleEmployee, IsActive: true})
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryTests(t, func(t *testing.T) Repository {
		return NewMemoryRepository()
	})
}

func money(v models.Money) *models.Money {
	return &v
}

func seedUser(t *testing.T, repo Repository, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Role: models.RoleEmployee, IsActive: true}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func seedEmployee(t *testing.T, repo Repository, username string) *models.Employee {
	t.Helper()
	u := seedUser(t, repo, username)
	e := &models.Employee{
		UserID:    u.ID,
		Gender:    models.GenderMale,
		FirstName: "Ivan",
		LastName:  username,
		HireDate:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateEmployee(context.Background(), e))
	return e
}

func seedCollection(t *testing.T, repo Repository, authorID int64, target *models.Money, endAt time.Time) *models.Collection {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Collection{
		ID:           uuid.NewString(),
		AuthorID:     authorID,
		Title:        "Team gift",
		Occasion:     models.OccasionBirthday,
		TargetAmount: target,
		EndAt:        endAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateCollection(context.Background(), c))
	return c
}
