package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

const dateLayout = "2006-01-02"

// validateEmployee checks req and returns the parsed hire date
func (s *Service) validateEmployee(req models.CreateEmployeeRequest) (time.Time, error) {
	if strings.TrimSpace(req.FirstName) == "" {
		return time.Time{}, models.Invalid("first_name", "first name is required")
	}
	if strings.TrimSpace(req.LastName) == "" {
		return time.Time{}, models.Invalid("last_name", "last name is required")
	}
	if !req.Gender.Valid() {
		return time.Time{}, models.Invalid("gender", "gender must be M or F")
	}

	now := s.now()
	hire := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if req.HireDate != nil && *req.HireDate != "" {
		t, err := time.Parse(dateLayout, *req.HireDate)
		if err != nil {
			return time.Time{}, models.Invalid("hire_date", "hire date must be formatted as YYYY-MM-DD")
		}
		hire = t
	}
	return hire, nil
}

// CreateEmployee adds an employee together with a login account. The
// username is last_first in lower case, suffixed with the next employee
// number when already taken.
func (s *Service) CreateEmployee(ctx context.Context, req models.CreateEmployeeRequest) (*models.EmployeeDetail, error) {
	hire, err := s.validateEmployee(req)
	if err != nil {
		return nil, err
	}

	e := &models.Employee{
		Gender:      req.Gender,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		MiddleName:  strings.TrimSpace(req.MiddleName),
		Description: req.Description,
		HireDate:    hire,
	}

	user, err := s.createAccount(ctx, e)
	if err != nil {
		return nil, err
	}
	e.UserID = user.ID

	if err := s.store.CreateEmployee(ctx, e); err != nil {
		return nil, err
	}

	slog.Info("employee created", "employee_id", e.ID, "username", user.Username)
	return s.detail(ctx, e)
}

func (s *Service) createAccount(ctx context.Context, e *models.Employee) (*models.User, error) {
	username := e.Username()
	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		count, err := s.store.CountEmployees(ctx)
		if err != nil {
			return nil, err
		}
		username = fmt.Sprintf("%s_%d", username, count+1)
	}

	hash, err := s.hash(s.defaultPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleEmployee,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetEmployee returns the employee with skills, images and desk
func (s *Service) GetEmployee(ctx context.Context, id int64) (*models.EmployeeDetail, error) {
	e, err := s.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, e)
}

func (s *Service) detail(ctx context.Context, e *models.Employee) (*models.EmployeeDetail, error) {
	skills, err := s.store.EmployeeSkills(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	images, err := s.store.EmployeeImages(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	d := &models.EmployeeDetail{
		Employee:           *e,
		WorkExperienceDays: models.WorkExperienceDays(e.HireDate, s.now()),
		Skills:             skills,
		Images:             images,
	}

	desk, err := s.store.DeskByEmployee(ctx, e.ID)
	switch {
	case err == nil:
		d.TableNumber = desk.TableNumber
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return d, nil
}

// UpdateEmployee replaces the editable fields of an employee
func (s *Service) UpdateEmployee(ctx context.Context, id int64, req models.CreateEmployeeRequest) (*models.EmployeeDetail, error) {
	e, err := s.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.HireDate == nil {
		current := e.HireDate.Format(dateLayout)
		req.HireDate = &current
	}
	hire, err := s.validateEmployee(req)
	if err != nil {
		return nil, err
	}

	e.Gender = req.Gender
	e.FirstName = strings.TrimSpace(req.FirstName)
	e.LastName = strings.TrimSpace(req.LastName)
	e.MiddleName = strings.TrimSpace(req.MiddleName)
	e.Description = req.Description
	e.HireDate = hire

	if err := s.store.UpdateEmployee(ctx, e); err != nil {
		return nil, err
	}
	return s.detail(ctx, e)
}

// DeleteEmployee removes an employee, releasing their desk
func (s *Service) DeleteEmployee(ctx context.Context, id int64) error {
	if err := s.store.DeleteEmployee(ctx, id); err != nil {
		return err
	}
	slog.Info("employee deleted", "employee_id", id)
	return nil
}

// ListEmployees returns a filtered page of employees
func (s *Service) ListEmployees(ctx context.Context, filters models.EmployeeFilters) (models.PageResult[models.Employee], error) {
	if filters.Skill != "" && !filters.Skill.Valid() {
		return models.PageResult[models.Employee]{}, models.Invalid("skill", "unknown skill %q", filters.Skill)
	}
	return s.store.ListEmployees(ctx, filters)
}

// ExperienceFilters converts a min/max experience in days into hire date
// bounds relative to now.
func ExperienceFilters(minDays, maxDays *int, now time.Time) (before, after *time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if minDays != nil {
		t := today.AddDate(0, 0, -*minDays)
		before = &t
	}
	if maxDays != nil {
		t := today.AddDate(0, 0, -*maxDays)
		after = &t
	}
	return before, after
}

// --- Skills ---

// SetSkill assigns a skill to an employee or changes its level
func (s *Service) SetSkill(ctx context.Context, employeeID int64, req models.SetSkillRequest) (*models.EmployeeSkill, error) {
	if !req.Skill.Valid() {
		return nil, models.Invalid("skill", "unknown skill %q", req.Skill)
	}
	if req.Level < models.MinSkillLevel || req.Level > models.MaxSkillLevel {
		return nil, models.Invalid("level", "level must be between %d and %d", models.MinSkillLevel, models.MaxSkillLevel)
	}
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	skill := models.EmployeeSkill{EmployeeID: employeeID, Skill: req.Skill, Level: req.Level}
	if err := s.store.SetEmployeeSkill(ctx, skill); err != nil {
		return nil, err
	}
	return &skill, nil
}

// RemoveSkill drops a skill assignment
func (s *Service) RemoveSkill(ctx context.Context, employeeID int64, skill models.SkillCategory) error {
	return s.store.RemoveEmployeeSkill(ctx, employeeID, skill)
}

// --- Images ---

// AddImage stores an uploaded photo under employees/YYYY/MM/DD. A nil
// order appends after the last image.
func (s *Service) AddImage(ctx context.Context, employeeID int64, filename string, r io.Reader, order *int) (*models.EmployeeImage, error) {
	if s.images == nil {
		return nil, errors.New("image storage is not configured")
	}

	existing, err := s.store.EmployeeImages(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	img := &models.EmployeeImage{EmployeeID: employeeID}
	if order != nil {
		img.Order = *order
	} else {
		for _, e := range existing {
			if e.Order >= img.Order {
				img.Order = e.Order + 1
			}
		}
	}

	dir := path.Join("employees", s.now().Format("2006/01/02"))
	p, err := s.images.Save(ctx, dir, filename, r)
	if err != nil {
		return nil, err
	}
	img.Path = p

	if err := s.store.AddEmployeeImage(ctx, img); err != nil {
		s.images.Remove(ctx, []string{p})
		return nil, err
	}
	return img, nil
}

// DeleteImage removes an employee photo and its file
func (s *Service) DeleteImage(ctx context.Context, employeeID, imageID int64) error {
	return s.store.DeleteEmployeeImage(ctx, employeeID, imageID)
}
