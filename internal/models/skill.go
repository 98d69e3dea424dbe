package models

// SkillCategory is one of the fixed skill kinds
type SkillCategory string

const (
	SkillFrontend          SkillCategory = "frontend"
	SkillBackend           SkillCategory = "backend"
	SkillTesting           SkillCategory = "testing"
	SkillProjectManagement SkillCategory = "project_management"
	SkillDesign            SkillCategory = "design"
	SkillDevOps            SkillCategory = "devops"
	SkillMobile            SkillCategory = "mobile"
	SkillDatabases         SkillCategory = "databases"
	SkillML                SkillCategory = "ml"
)

// SkillCatalog lists every category with its display label
var SkillCatalog = []Skill{
	{Name: SkillFrontend, Label: "Frontend"},
	{Name: SkillBackend, Label: "Backend"},
	{Name: SkillTesting, Label: "Testing"},
	{Name: SkillProjectManagement, Label: "Project management"},
	{Name: SkillDesign, Label: "Design"},
	{Name: SkillDevOps, Label: "DevOps"},
	{Name: SkillMobile, Label: "Mobile development"},
	{Name: SkillDatabases, Label: "Databases"},
	{Name: SkillML, Label: "Machine learning"},
}

// Skill is a catalog entry
type Skill struct {
	Name  SkillCategory `json:"name"`
	Label string        `json:"label"`
}

// Valid reports whether c belongs to the catalog
func (c SkillCategory) Valid() bool {
	for _, s := range SkillCatalog {
		if s.Name == c {
			return true
		}
	}
	return false
}

// IsDeveloper is true for frontend, backend and mobile
func (c SkillCategory) IsDeveloper() bool {
	switch c {
	case SkillFrontend, SkillBackend, SkillMobile:
		return true
	}
	return false
}

// IsTester is true for testing only
func (c SkillCategory) IsTester() bool {
	return c == SkillTesting
}

const (
	MinSkillLevel = 1
	MaxSkillLevel = 10
)

// EmployeeSkill links an employee to a skill with a proficiency level.
// An employee holds at most one assignment per skill.
type EmployeeSkill struct {
	EmployeeID int64         `json:"employee_id"`
	Skill      SkillCategory `json:"skill"`
	Level      int           `json:"level"`
}

// SetSkillRequest assigns or re-levels a skill
type SetSkillRequest struct {
	Skill SkillCategory `json:"skill"`
	Level int           `json:"level"`
}
