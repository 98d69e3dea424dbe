package roster

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

func fakeHash(p string) (string, error) { return "hashed:" + p, nil }

func newTestService(t *testing.T) (*Service, *storage.MemoryRepository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, nil, fakeHash, "changeme", WithClock(func() time.Time { return now }))
	return svc, repo
}

func addEmployee(t *testing.T, repo *storage.MemoryRepository, first string, skills ...models.SkillCategory) int64 {
	t.Helper()
	ctx := context.Background()
	e := &models.Employee{Gender: models.GenderFemale, FirstName: first, LastName: "Smith", HireDate: time.Now()}
	require.NoError(t, repo.CreateEmployee(ctx, e))
	for _, s := range skills {
		require.NoError(t, repo.SetEmployeeSkill(ctx, models.EmployeeSkill{EmployeeID: e.ID, Skill: s, Level: 5}))
	}
	return e.ID
}

func seat(ctx context.Context, svc *Service, table string, employeeID int64) (*models.Desk, error) {
	return svc.CreateDesk(ctx, models.DeskRequest{TableNumber: table, EmployeeID: &employeeID})
}

func TestParseTableNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"101", 101, false},
		{"0", 0, false},
		{"0099", 99, false},
		{"", 0, true},
		{"12a", 0, true},
		{"-1", 0, true},
		{" 1", 0, true},
		{"١٢", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTableNumber(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	skill := func(cs ...models.SkillCategory) []models.EmployeeSkill {
		out := make([]models.EmployeeSkill, 0, len(cs))
		for _, c := range cs {
			out = append(out, models.EmployeeSkill{Skill: c, Level: 3})
		}
		return out
	}

	tests := []struct {
		name          string
		skills        []models.EmployeeSkill
		tester, devel bool
	}{
		{"none", nil, false, false},
		{"design only", skill(models.SkillDesign, models.SkillDevOps), false, false},
		{"frontend", skill(models.SkillFrontend), false, true},
		{"mobile", skill(models.SkillMobile), false, true},
		{"testing", skill(models.SkillTesting), true, false},
		{"mixed", skill(models.SkillBackend, models.SkillTesting), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tester, devel := Classify(tt.skills)
			assert.Equal(t, tt.tester, tester)
			assert.Equal(t, tt.devel, devel)
		})
	}
}

func TestAdjacentDeveloperAndTesterConflict(t *testing.T) {
	pairs := [][2]string{{"101", "102"}, {"102", "101"}, {"99", "100"}, {"100", "99"}, {"0", "1"}}

	for _, p := range pairs {
		t.Run(fmt.Sprintf("%s-%s", p[0], p[1]), func(t *testing.T) {
			ctx := context.Background()
			svc, repo := newTestService(t)
			dev := addEmployee(t, repo, "Dev", models.SkillBackend)
			tester := addEmployee(t, repo, "Tess", models.SkillTesting)
			other := addEmployee(t, repo, "Devon", models.SkillFrontend)

			_, err := seat(ctx, svc, p[0], dev)
			require.NoError(t, err)

			_, err = seat(ctx, svc, p[1], tester)
			var cv *ConstraintViolation
			require.ErrorAs(t, err, &cv)
			assert.Equal(t, p[0], cv.NeighborTable)
			assert.Equal(t, dev, cv.NeighborEmployeeID)

			_, err = seat(ctx, svc, p[1], other)
			require.NoError(t, err)
		})
	}
}

func TestNonAdjacentDesksNeverConflict(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	dev := addEmployee(t, repo, "Dev", models.SkillBackend)
	tester := addEmployee(t, repo, "Tess", models.SkillTesting)
	mixed := addEmployee(t, repo, "Max", models.SkillMobile, models.SkillTesting)

	_, err := seat(ctx, svc, "100", dev)
	require.NoError(t, err)
	_, err = seat(ctx, svc, "102", tester)
	require.NoError(t, err)
	_, err = seat(ctx, svc, "200", mixed)
	require.NoError(t, err)
}

func TestNeutralEmployeeNeverConflicts(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	dev := addEmployee(t, repo, "Dev", models.SkillBackend)
	tester := addEmployee(t, repo, "Tess", models.SkillTesting)
	designer := addEmployee(t, repo, "Dana", models.SkillDesign, models.SkillProjectManagement)
	blank := addEmployee(t, repo, "Bo")

	_, err := seat(ctx, svc, "10", dev)
	require.NoError(t, err)
	_, err = seat(ctx, svc, "12", tester)
	require.NoError(t, err)

	_, err = seat(ctx, svc, "11", designer)
	require.NoError(t, err)
	_, err = seat(ctx, svc, "13", blank)
	require.NoError(t, err)
}

func TestMixedProfileConflictsWithEitherKind(t *testing.T) {
	neighbours := map[string][]models.SkillCategory{
		"developer": {models.SkillFrontend},
		"tester":    {models.SkillTesting},
		"mixed":     {models.SkillBackend, models.SkillTesting},
	}

	for name, skills := range neighbours {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, repo := newTestService(t)
			neighbour := addEmployee(t, repo, "Nell", skills...)
			mixed := addEmployee(t, repo, "Max", models.SkillMobile, models.SkillTesting)

			_, err := seat(ctx, svc, "50", neighbour)
			require.NoError(t, err)

			_, err = seat(ctx, svc, "51", mixed)
			var cv *ConstraintViolation
			require.ErrorAs(t, err, &cv)
			assert.Equal(t, "50", cv.NeighborTable)
		})
	}
}

func TestAliceAndBob(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	alice := addEmployee(t, repo, "Alice", models.SkillBackend)
	bob := addEmployee(t, repo, "Bob", models.SkillTesting)

	_, err := seat(ctx, svc, "101", alice)
	require.NoError(t, err)

	_, err = seat(ctx, svc, "102", bob)
	var cv *ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "101", cv.NeighborTable)
	assert.Equal(t, "Smith Alice", cv.NeighborEmployee)
	assert.Contains(t, cv.Error(), "101")
	assert.Contains(t, cv.Error(), "Alice")

	res, err := svc.ListDesks(ctx, models.DeskFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count, "failed assignment must not persist a desk")

	desk, err := seat(ctx, svc, "103", bob)
	require.NoError(t, err)
	assert.Equal(t, "103", desk.TableNumber)
}

func TestUpdateDeskRevalidates(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	alice := addEmployee(t, repo, "Alice", models.SkillBackend)
	bob := addEmployee(t, repo, "Bob", models.SkillTesting)

	_, err := seat(ctx, svc, "101", alice)
	require.NoError(t, err)
	free, err := svc.CreateDesk(ctx, models.DeskRequest{TableNumber: "102"})
	require.NoError(t, err)

	_, err = svc.UpdateDesk(ctx, free.ID, models.DeskRequest{TableNumber: "102", EmployeeID: &bob})
	var cv *ConstraintViolation
	require.ErrorAs(t, err, &cv)

	stored, err := svc.GetDesk(ctx, free.ID)
	require.NoError(t, err)
	assert.False(t, stored.Occupied())

	// moving the desk away from the developer makes the same occupant legal
	moved, err := svc.UpdateDesk(ctx, free.ID, models.DeskRequest{TableNumber: "105", EmployeeID: &bob})
	require.NoError(t, err)
	assert.Equal(t, "105", moved.TableNumber)
}

func TestCreateDeskRejectsInvalidNumber(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for _, table := range []string{"", "A12", "1.5"} {
		_, err := svc.CreateDesk(ctx, models.DeskRequest{TableNumber: table})
		assert.ErrorIs(t, err, ErrInvalidIdentifier, table)
	}
}

func TestCreateDeskCanonicalisesNumber(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	d, err := svc.CreateDesk(ctx, models.DeskRequest{TableNumber: "0042"})
	require.NoError(t, err)
	assert.Equal(t, "42", d.TableNumber)

	_, err = svc.CreateDesk(ctx, models.DeskRequest{TableNumber: "42"})
	assert.True(t, errors.Is(err, storage.ErrConflict))
}

// staleStore serves desk reads taken before locking from an outdated
// snapshot for the first stale transactions.
type staleStore struct {
	*storage.MemoryRepository
	stale int
	txs   int
}

func (s *staleStore) InDeskTx(ctx context.Context, fn func(tx storage.DeskTx) error) error {
	s.txs++
	stale := s.txs <= s.stale
	return s.MemoryRepository.InDeskTx(ctx, func(tx storage.DeskTx) error {
		if stale {
			return fn(staleTx{tx})
		}
		return fn(tx)
	})
}

type staleTx struct{ storage.DeskTx }

func (t staleTx) DeskByID(ctx context.Context, id int64) (*models.Desk, error) {
	d, err := t.DeskTx.DeskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.TableNumber = "1"
	return d, nil
}

func TestUpdateDeskRetriesWhenDeskMovedBeforeLock(t *testing.T) {
	tests := []struct {
		name    string
		stale   int
		wantErr bool
	}{
		{"fresh read", 0, false},
		{"moved once", 1, false},
		{"keeps moving", deskTxAttempts, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := &staleStore{MemoryRepository: storage.NewMemoryRepository()}
			svc := NewService(store, nil, fakeHash, "changeme")
			desk, err := svc.CreateDesk(ctx, models.DeskRequest{TableNumber: "40"})
			require.NoError(t, err)

			store.stale, store.txs = tt.stale, 0
			got, err := svc.UpdateDesk(ctx, desk.ID, models.DeskRequest{TableNumber: "42"})
			if tt.wantErr {
				require.ErrorIs(t, err, storage.ErrConflict)
				assert.Equal(t, deskTxAttempts, store.txs)
				stored, err := svc.GetDesk(ctx, desk.ID)
				require.NoError(t, err)
				assert.Equal(t, "40", stored.TableNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "42", got.TableNumber)
			assert.Equal(t, tt.stale+1, store.txs)
		})
	}
}
