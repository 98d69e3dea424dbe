package roster

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

// TestConcurrentDeskMovesOnPostgres moves a desk while its occupant is being
// reseated elsewhere. Set OFFICE_HUB_TEST_DSN to a disposable database to
// enable it.
func TestConcurrentDeskMovesOnPostgres(t *testing.T) {
	dsn := os.Getenv("OFFICE_HUB_TEST_DSN")
	if dsn == "" {
		t.Skip("OFFICE_HUB_TEST_DSN not set")
	}

	ctx := context.Background()
	_, err := storage.MigrateFromDSN(ctx, dsn)
	require.NoError(t, err)

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.Pool().Exec(ctx, `TRUNCATE payments, collections, desks, employee_images, employee_skills, employees, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	u := &models.User{Username: "ivanov", PasswordHash: "x", Role: models.RoleEmployee, IsActive: true}
	require.NoError(t, repo.CreateUser(ctx, u))
	e := &models.Employee{UserID: u.ID, Gender: models.GenderMale, FirstName: "Ivan", LastName: "Ivanov", HireDate: time.Now()}
	require.NoError(t, repo.CreateEmployee(ctx, e))

	svc := NewService(repo, nil, fakeHash, "changeme")
	desk, err := svc.CreateDesk(ctx, models.DeskRequest{TableNumber: "10", EmployeeID: &e.ID})
	require.NoError(t, err)

	const rounds = 50
	errs := make(chan error, 2*rounds)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			table := []string{"10", "12"}[i%2]
			_, err := svc.UpdateDesk(ctx, desk.ID, models.DeskRequest{TableNumber: table, EmployeeID: &e.ID})
			errs <- err
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			table := []string{"11", "13"}[i%2]
			_, err := svc.AssignWorkplace(ctx, e.ID, models.AssignWorkplaceRequest{TableNumber: table})
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err == nil || errors.Is(err, storage.ErrConflict) {
			continue
		}
		assert.NoError(t, err, "only conflicts are expected from concurrent moves")
	}

	seated, err := repo.DeskByEmployee(ctx, e.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, seated.TableNumber)
}
