package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

// ErrInvalidIdentifier is returned for empty or non-numeric table numbers
var ErrInvalidIdentifier = errors.New("table number must be a non-empty string of digits")

// ParseTableNumber parses a desk identifier. Only ASCII digits are accepted.
func ParseTableNumber(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return n, nil
}

// CanonicalTableNumber strips leading zeros so "0101" and "101" name the
// same desk and neighbour lookups by number always hit.
func CanonicalTableNumber(s string) (string, int64, error) {
	n, err := ParseTableNumber(s)
	if err != nil {
		return "", 0, err
	}
	return strconv.FormatInt(n, 10), n, nil
}

// ConstraintViolation reports a tester/developer adjacency conflict
type ConstraintViolation struct {
	NeighborTable      string
	NeighborEmployeeID int64
	NeighborEmployee   string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("testers and developers cannot sit at adjacent desks: neighbouring desk %s is occupied by %s",
		e.NeighborTable, e.NeighborEmployee)
}

// Classify reduces a skill set to its tester and developer flags. Both may
// be true for a mixed profile.
func Classify(skills []models.EmployeeSkill) (isTester, isDeveloper bool) {
	for _, s := range skills {
		if s.Skill.IsTester() {
			isTester = true
		}
		if s.Skill.IsDeveloper() {
			isDeveloper = true
		}
	}
	return isTester, isDeveloper
}

// conflicts evaluates both disjuncts independently
func conflicts(tester, developer, neighborTester, neighborDeveloper bool) bool {
	return (tester && neighborDeveloper) || (developer && neighborTester)
}

// Lookup is the roster read surface the validator needs
type Lookup interface {
	DeskByNumber(ctx context.Context, tableNumber string) (*models.Desk, error)
	EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error)
	GetEmployee(ctx context.Context, id int64) (*models.Employee, error)
}

// Validator checks desk occupancy against the numerically adjacent desks
type Validator struct{}

// Check returns nil when desk may be saved with its proposed occupant.
// It fails with ErrInvalidIdentifier for a malformed table number and with
// *ConstraintViolation when a neighbour at D-1 or D+1 is incompatible.
func (Validator) Check(ctx context.Context, lookup Lookup, desk *models.Desk) error {
	n, err := ParseTableNumber(desk.TableNumber)
	if err != nil {
		return err
	}

	if desk.EmployeeID == nil {
		return nil
	}
	occupant := *desk.EmployeeID

	skills, err := lookup.EmployeeSkills(ctx, occupant)
	if err != nil {
		return fmt.Errorf("failed to load skills of employee %d: %w", occupant, err)
	}
	tester, developer := Classify(skills)
	if !tester && !developer {
		return nil
	}

	for _, neighbor := range []int64{n - 1, n + 1} {
		if neighbor < 0 {
			continue
		}

		d, err := lookup.DeskByNumber(ctx, strconv.FormatInt(neighbor, 10))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to look up desk %d: %w", neighbor, err)
		}
		if !d.Occupied() || *d.EmployeeID == occupant {
			continue
		}

		neighborSkills, err := lookup.EmployeeSkills(ctx, *d.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to load skills of employee %d: %w", *d.EmployeeID, err)
		}
		nt, nd := Classify(neighborSkills)
		if !conflicts(tester, developer, nt, nd) {
			continue
		}

		name := fmt.Sprintf("employee %d", *d.EmployeeID)
		if e, err := lookup.GetEmployee(ctx, *d.EmployeeID); err == nil {
			name = e.DisplayName()
		}
		return &ConstraintViolation{
			NeighborTable:      d.TableNumber,
			NeighborEmployeeID: *d.EmployeeID,
			NeighborEmployee:   name,
		}
	}

	return nil
}
