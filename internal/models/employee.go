package models

import (
	"fmt"
	"strings"
	"time"
)

// Gender of an employee
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Valid reports whether g is one of the known genders
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Employee is a member of staff in the directory
type Employee struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Gender      Gender    `json:"gender"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	Description string    `json:"description"`
	HireDate    time.Time `json:"hire_date"`
}

// DisplayName returns "Last First Middle"
func (e *Employee) DisplayName() string {
	if e.MiddleName != "" {
		return fmt.Sprintf("%s %s %s", e.LastName, e.FirstName, e.MiddleName)
	}
	return fmt.Sprintf("%s %s", e.LastName, e.FirstName)
}

// Username derives the login name created alongside the employee record.
func (e *Employee) Username() string {
	return strings.ToLower(e.LastName + "_" + e.FirstName)
}

// WorkExperienceDays returns the number of whole days between hire and now.
func WorkExperienceDays(hire, now time.Time) int {
	h := time.Date(hire.Year(), hire.Month(), hire.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(n.Sub(h).Hours() / 24)
}

// EmployeeDetail is the read model for a single employee
type EmployeeDetail struct {
	Employee
	WorkExperienceDays int             `json:"work_experience_days"`
	Skills             []EmployeeSkill `json:"skills"`
	Images             []EmployeeImage `json:"images"`
	TableNumber        string          `json:"table_number,omitempty"`
}

// EmployeeImage is a photo attached to an employee, ordered by Order
type EmployeeImage struct {
	ID         int64     `json:"id"`
	EmployeeID int64     `json:"employee_id"`
	Path       string    `json:"path"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmployeeFilters narrows employee listings
type EmployeeFilters struct {
	Search string
	Skill  SkillCategory
	// HiredOnOrBefore / HiredOnOrAfter are derived from min/max experience
	HiredOnOrBefore *time.Time
	HiredOnOrAfter  *time.Time
	Page            Page
}

// CreateEmployeeRequest is the payload for creating or replacing an employee
type CreateEmployeeRequest struct {
	Gender      Gender  `json:"gender"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	MiddleName  string  `json:"middle_name"`
	Description string  `json:"description"`
	HireDate    *string `json:"hire_date,omitempty"`
}

// AssignWorkplaceRequest moves an employee to a desk
type AssignWorkplaceRequest struct {
	TableNumber string `json:"table_number"`
	Floor       *int   `json:"floor,omitempty"`
}
