package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/office-hub/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool    *pgxpool.Pool
	cleanup CleanupFunc
}

var _ Repository = (*PostgresRepository)(nil)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// SetCleanup installs the callback run after deletes that orphan media files
func (r *PostgresRepository) SetCleanup(fn CleanupFunc) {
	r.cleanup = fn
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) runCleanup(ctx context.Context, paths []string) {
	if r.cleanup != nil && len(paths) > 0 {
		r.cleanup(ctx, paths)
	}
}

// inTx runs fn in a transaction, committing on success
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- Employees ---

const employeeColumns = `e.id, e.user_id, e.gender, e.first_name, e.last_name, e.middle_name, e.description, e.hire_date`

func scanEmployee(row pgx.Row) (*models.Employee, error) {
	var e models.Employee
	var gender string
	if err := row.Scan(&e.ID, &e.UserID, &gender, &e.FirstName, &e.LastName, &e.MiddleName, &e.Description, &e.HireDate); err != nil {
		return nil, err
	}
	e.Gender = models.Gender(gender)
	return &e, nil
}

// CreateEmployee inserts an employee record
func (r *PostgresRepository) CreateEmployee(ctx context.Context, e *models.Employee) error {
	query := `
		INSERT INTO employees (user_id, gender, first_name, last_name, middle_name, description, hire_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		e.UserID, string(e.Gender), e.FirstName, e.LastName, e.MiddleName, e.Description, e.HireDate,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create employee: %w", mapPgError(err))
	}
	return nil
}

// GetEmployee retrieves an employee by ID
func (r *PostgresRepository) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	return getEmployee(ctx, r.pool, id)
}

func getEmployee(ctx context.Context, q querier, id int64) (*models.Employee, error) {
	e, err := scanEmployee(q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return e, nil
}

// UpdateEmployee overwrites the editable employee fields
func (r *PostgresRepository) UpdateEmployee(ctx context.Context, e *models.Employee) error {
	query := `
		UPDATE employees
		SET gender = $2, first_name = $3, last_name = $4, middle_name = $5, description = $6, hire_date = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		e.ID, string(e.Gender), e.FirstName, e.LastName, e.MiddleName, e.Description, e.HireDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update employee: %w", mapPgError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEmployee removes an employee; skills and images cascade, the desk
// is released and image files are handed to the cleanup callback.
func (r *PostgresRepository) DeleteEmployee(ctx context.Context, id int64) error {
	var paths []string
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM employee_images WHERE employee_id = $1 RETURNING path`, id)
		if err != nil {
			return fmt.Errorf("failed to delete employee images: %w", err)
		}
		paths, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to collect image paths: %w", err)
		}

		result, err := tx.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete employee: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.runCleanup(ctx, paths)
	return nil
}

// ListEmployees returns a page of employees, newest hires first
func (r *PostgresRepository) ListEmployees(ctx context.Context, filters models.EmployeeFilters) (models.PageResult[models.Employee], error) {
	page := filters.Page.Normalize()
	res := models.PageResult[models.Employee]{Page: page.Number, Size: page.Size, Results: []models.Employee{}}

	query := `SELECT ` + employeeColumns + `, COUNT(*) OVER() FROM employees e WHERE 1=1`
	args := make([]any, 0)
	argNum := 1

	if filters.Search != "" {
		query += fmt.Sprintf(" AND (e.first_name ILIKE $%d OR e.last_name ILIKE $%d OR e.description ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	if filters.Skill != "" {
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM employee_skills s WHERE s.employee_id = e.id AND s.skill = $%d)", argNum)
		args = append(args, string(filters.Skill))
		argNum++
	}

	if filters.HiredOnOrBefore != nil {
		query += fmt.Sprintf(" AND e.hire_date <= $%d", argNum)
		args = append(args, *filters.HiredOnOrBefore)
		argNum++
	}

	if filters.HiredOnOrAfter != nil {
		query += fmt.Sprintf(" AND e.hire_date >= $%d", argNum)
		args = append(args, *filters.HiredOnOrAfter)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY e.hire_date DESC, e.id ASC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, page.Size, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Employee
		var gender string
		if err := rows.Scan(&e.ID, &e.UserID, &gender, &e.FirstName, &e.LastName, &e.MiddleName, &e.Description, &e.HireDate, &res.Count); err != nil {
			return res, fmt.Errorf("failed to scan employee: %w", err)
		}
		e.Gender = models.Gender(gender)
		res.Results = append(res.Results, e)
	}

	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("error iterating employees: %w", err)
	}
	if len(res.Results) == 0 && page.Number > 1 {
		res.Count, err = r.countEmployeesMatching(ctx, filters)
	}
	return res, err
}

// countEmployeesMatching is needed when OFFSET skips every row and the
// window count is lost with them.
func (r *PostgresRepository) countEmployeesMatching(ctx context.Context, filters models.EmployeeFilters) (int, error) {
	f := filters
	f.Page = models.Page{Number: 1, Size: 1}
	res, err := r.ListEmployees(ctx, f)
	return res.Count, err
}

// CountEmployees returns the number of employees
func (r *PostgresRepository) CountEmployees(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM employees`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count employees: %w", err)
	}
	return n, nil
}

// --- Skills ---

// SetEmployeeSkill upserts a skill assignment
func (r *PostgresRepository) SetEmployeeSkill(ctx context.Context, s models.EmployeeSkill) error {
	query := `
		INSERT INTO employee_skills (employee_id, skill, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (employee_id, skill) DO UPDATE SET level = EXCLUDED.level
	`
	if _, err := r.pool.Exec(ctx, query, s.EmployeeID, string(s.Skill), s.Level); err != nil {
		return fmt.Errorf("failed to set employee skill: %w", mapPgError(err))
	}
	return nil
}

// RemoveEmployeeSkill deletes a skill assignment
func (r *PostgresRepository) RemoveEmployeeSkill(ctx context.Context, employeeID int64, skill models.SkillCategory) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM employee_skills WHERE employee_id = $1 AND skill = $2`, employeeID, string(skill))
	if err != nil {
		return fmt.Errorf("failed to remove employee skill: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EmployeeSkills lists an employee's skill assignments
func (r *PostgresRepository) EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error) {
	return employeeSkills(ctx, r.pool, employeeID)
}

func employeeSkills(ctx context.Context, q querier, employeeID int64) ([]models.EmployeeSkill, error) {
	rows, err := q.Query(ctx, `SELECT employee_id, skill, level FROM employee_skills WHERE employee_id = $1 ORDER BY skill`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get employee skills: %w", err)
	}
	defer rows.Close()

	skills := make([]models.EmployeeSkill, 0)
	for rows.Next() {
		var s models.EmployeeSkill
		var skill string
		if err := rows.Scan(&s.EmployeeID, &skill, &s.Level); err != nil {
			return nil, fmt.Errorf("failed to scan employee skill: %w", err)
		}
		s.Skill = models.SkillCategory(skill)
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

// --- Images ---

// AddEmployeeImage records an uploaded image
func (r *PostgresRepository) AddEmployeeImage(ctx context.Context, img *models.EmployeeImage) error {
	query := `
		INSERT INTO employee_images (employee_id, path, sort_order)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.pool.QueryRow(ctx, query, img.EmployeeID, img.Path, img.Order).Scan(&img.ID, &img.CreatedAt); err != nil {
		return fmt.Errorf("failed to add employee image: %w", mapPgError(err))
	}
	return nil
}

// EmployeeImages lists an employee's images in display order
func (r *PostgresRepository) EmployeeImages(ctx context.Context, employeeID int64) ([]models.EmployeeImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, employee_id, path, sort_order, created_at
		FROM employee_images
		WHERE employee_id = $1
		ORDER BY sort_order
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get employee images: %w", err)
	}
	defer rows.Close()

	images := make([]models.EmployeeImage, 0)
	for rows.Next() {
		var img models.EmployeeImage
		if err := rows.Scan(&img.ID, &img.EmployeeID, &img.Path, &img.Order, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan employee image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeleteEmployeeImage removes an image record and its file
func (r *PostgresRepository) DeleteEmployeeImage(ctx context.Context, employeeID, imageID int64) error {
	var path string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM employee_images WHERE id = $1 AND employee_id = $2 RETURNING path`,
		imageID, employeeID,
	).Scan(&path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete employee image: %w", err)
	}

	r.runCleanup(ctx, []string{path})
	return nil
}

// --- Desks ---

const deskColumns = `d.id, d.table_number, d.floor, d.employee_id`

func scanDesk(row pgx.Row) (*models.Desk, error) {
	var d models.Desk
	var floor *int32
	var employeeID *int64
	if err := row.Scan(&d.ID, &d.TableNumber, &floor, &employeeID); err != nil {
		return nil, err
	}
	if floor != nil {
		f := int(*floor)
		d.Floor = &f
	}
	d.EmployeeID = employeeID
	return &d, nil
}

func getDesk(ctx context.Context, q querier, where string, arg any) (*models.Desk, error) {
	d, err := scanDesk(q.QueryRow(ctx, `SELECT `+deskColumns+` FROM desks d WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get desk: %w", err)
	}
	return d, nil
}

// GetDesk retrieves a desk by ID
func (r *PostgresRepository) GetDesk(ctx context.Context, id int64) (*models.Desk, error) {
	return getDesk(ctx, r.pool, "d.id = $1", id)
}

// DeskByEmployee retrieves the desk an employee occupies
func (r *PostgresRepository) DeskByEmployee(ctx context.Context, employeeID int64) (*models.Desk, error) {
	return getDesk(ctx, r.pool, "d.employee_id = $1", employeeID)
}

// ListDesks returns a page of desks ordered by table number
func (r *PostgresRepository) ListDesks(ctx context.Context, filters models.DeskFilters) (models.PageResult[models.Desk], error) {
	page := filters.Page.Normalize()
	res := models.PageResult[models.Desk]{Page: page.Number, Size: page.Size, Results: []models.Desk{}}

	query := `SELECT ` + deskColumns + `, COUNT(*) OVER() FROM desks d LEFT JOIN employees e ON e.id = d.employee_id WHERE 1=1`
	args := make([]any, 0)
	argNum := 1

	switch filters.Occupancy {
	case models.DeskFree:
		query += " AND d.employee_id IS NULL"
	case models.DeskOccupied:
		query += " AND d.employee_id IS NOT NULL"
	}

	if filters.Search != "" {
		query += fmt.Sprintf(" AND (d.table_number ILIKE $%d OR e.last_name ILIKE $%d OR e.first_name ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY d.table_number LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, page.Size, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("failed to list desks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Desk
		var floor *int32
		if err := rows.Scan(&d.ID, &d.TableNumber, &floor, &d.EmployeeID, &res.Count); err != nil {
			return res, fmt.Errorf("failed to scan desk: %w", err)
		}
		if floor != nil {
			f := int(*floor)
			d.Floor = &f
		}
		res.Results = append(res.Results, d)
	}

	return res, rows.Err()
}

// DeleteDesk removes a desk
func (r *PostgresRepository) DeleteDesk(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM desks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete desk: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InDeskTx runs fn inside a single database transaction
func (r *PostgresRepository) InDeskTx(ctx context.Context, fn func(tx DeskTx) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgDeskTx{tx: tx})
	})
}

type pgDeskTx struct {
	tx pgx.Tx
}

// LockTables takes transaction-scoped advisory locks in ascending order so
// that overlapping neighbourhoods cannot deadlock.
func (t *pgDeskTx) LockTables(ctx context.Context, tableNumbers ...int64) error {
	sorted := append([]int64(nil), tableNumbers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i, n := range sorted {
		if i > 0 && sorted[i-1] == n {
			continue
		}
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('desk:' || $1, 0))`, strconv.FormatInt(n, 10)); err != nil {
			return fmt.Errorf("failed to lock table %d: %w", n, err)
		}
	}
	return nil
}

func (t *pgDeskTx) DeskByNumber(ctx context.Context, tableNumber string) (*models.Desk, error) {
	return getDesk(ctx, t.tx, "d.table_number = $1", tableNumber)
}

func (t *pgDeskTx) DeskByID(ctx context.Context, id int64) (*models.Desk, error) {
	return getDesk(ctx, t.tx, "d.id = $1", id)
}

func (t *pgDeskTx) LockDesk(ctx context.Context, id int64) (*models.Desk, error) {
	return getDesk(ctx, t.tx, "d.id = $1 FOR UPDATE", id)
}

func (t *pgDeskTx) DeskByEmployee(ctx context.Context, employeeID int64) (*models.Desk, error) {
	return getDesk(ctx, t.tx, "d.employee_id = $1", employeeID)
}

func (t *pgDeskTx) EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error) {
	return employeeSkills(ctx, t.tx, employeeID)
}

func (t *pgDeskTx) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	return getEmployee(ctx, t.tx, id)
}

func (t *pgDeskTx) SaveDesk(ctx context.Context, d *models.Desk) error {
	var floor *int32
	if d.Floor != nil {
		f := int32(*d.Floor)
		floor = &f
	}

	if d.ID == 0 {
		err := t.tx.QueryRow(ctx,
			`INSERT INTO desks (table_number, floor, employee_id) VALUES ($1, $2, $3) RETURNING id`,
			d.TableNumber, floor, d.EmployeeID,
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("failed to create desk: %w", mapPgError(err))
		}
		return nil
	}

	result, err := t.tx.Exec(ctx,
		`UPDATE desks SET table_number = $2, floor = $3, employee_id = $4 WHERE id = $1`,
		d.ID, d.TableNumber, floor, d.EmployeeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update desk: %w", mapPgError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Collections ---

const collectionColumns = `c.id::text, c.author_id, c.title, c.occasion, c.description, c.target_amount, c.current_amount, c.cover_image, c.end_at, c.created_at, c.updated_at, c.revision`

func scanCollection(row pgx.Row, extra ...any) (*models.Collection, error) {
	var c models.Collection
	var occasion string
	var target *int64
	var current int64
	dest := []any{&c.ID, &c.AuthorID, &c.Title, &occasion, &c.Description, &target, &current, &c.CoverImage, &c.EndAt, &c.CreatedAt, &c.UpdatedAt, &c.Revision}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Occasion = models.Occasion(occasion)
	c.CurrentAmount = models.Money(current)
	if target != nil {
		t := models.Money(*target)
		c.TargetAmount = &t
	}
	return &c, nil
}

func moneyArg(m *models.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

// parseID validates a uuid path parameter; malformed ids cannot exist
func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return u, nil
}

// CreateCollection inserts a collection
func (r *PostgresRepository) CreateCollection(ctx context.Context, c *models.Collection) error {
	id, err := parseID(c.ID)
	if err != nil {
		return fmt.Errorf("invalid collection id %q", c.ID)
	}

	query := `
		INSERT INTO collections (id, author_id, title, occasion, description, target_amount, current_amount, cover_image, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		id, c.AuthorID, c.Title, string(c.Occasion), c.Description, moneyArg(c.TargetAmount),
		int64(c.CurrentAmount), c.CoverImage, c.EndAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", mapPgError(err))
	}
	return nil
}

// GetCollection retrieves a collection by ID
func (r *PostgresRepository) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	return getCollection(ctx, r.pool, id)
}

func getCollection(ctx context.Context, q querier, id string) (*models.Collection, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	c, err := scanCollection(q.QueryRow(ctx, `SELECT `+collectionColumns+` FROM collections c WHERE c.id = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// UpdateCollection writes editable fields and clamps the running total to
// the new target in the same statement.
func (r *PostgresRepository) UpdateCollection(ctx context.Context, c *models.Collection) error {
	uid, err := parseID(c.ID)
	if err != nil {
		return err
	}

	query := `
		UPDATE collections c
		SET title = $2, occasion = $3, description = $4, target_amount = $5, cover_image = $6, end_at = $7, updated_at = $8,
		    current_amount = CASE
		        WHEN $5::bigint IS NOT NULL AND c.current_amount > $5::bigint THEN $5::bigint
		        ELSE c.current_amount
		    END,
		    revision = c.revision + 1
		WHERE c.id = $1
		RETURNING ` + collectionColumns

	updated, err := scanCollection(r.pool.QueryRow(ctx, query,
		uid, c.Title, string(c.Occasion), c.Description, moneyArg(c.TargetAmount), c.CoverImage, c.EndAt, c.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update collection: %w", mapPgError(err))
	}
	*c = *updated
	return nil
}

// DeleteCollection removes a collection; payments cascade and the cover
// image is handed to the cleanup callback.
func (r *PostgresRepository) DeleteCollection(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	var cover string
	err = r.pool.QueryRow(ctx, `DELETE FROM collections WHERE id = $1 RETURNING cover_image`, uid).Scan(&cover)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	if cover != "" {
		r.runCleanup(ctx, []string{cover})
	}
	return nil
}

var collectionOrder = map[string]string{
	"created_at":     "c.created_at",
	"end_datetime":   "c.end_at",
	"current_amount": "c.current_amount",
}

// ListCollections returns a page of collections matching filters
func (r *PostgresRepository) ListCollections(ctx context.Context, filters models.CollectionFilters) (models.PageResult[models.Collection], error) {
	page := filters.Page.Normalize()
	res := models.PageResult[models.Collection]{Page: page.Number, Size: page.Size, Results: []models.Collection{}}

	now := filters.Now
	if now.IsZero() {
		now = time.Now()
	}

	query := `SELECT ` + collectionColumns + `, COUNT(*) OVER() FROM collections c WHERE 1=1`
	args := make([]any, 0)
	argNum := 1

	if filters.Search != "" {
		query += fmt.Sprintf(" AND (c.title ILIKE $%d OR c.description ILIKE $%d)", argNum, argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	if filters.Occasion != "" {
		query += fmt.Sprintf(" AND c.occasion = $%d", argNum)
		args = append(args, string(filters.Occasion))
		argNum++
	}

	if filters.AuthorID != 0 {
		query += fmt.Sprintf(" AND c.author_id = $%d", argNum)
		args = append(args, filters.AuthorID)
		argNum++
	}

	switch filters.Status {
	case models.CollectionActive:
		query += fmt.Sprintf(" AND c.end_at > $%d", argNum)
		args = append(args, now)
		argNum++
	case models.CollectionCompleted:
		query += fmt.Sprintf(" AND c.end_at <= $%d", argNum)
		args = append(args, now)
		argNum++
	}

	field, desc := orderField(filters.OrderBy, "-created_at")
	column, ok := collectionOrder[field]
	if !ok {
		column, desc = "c.created_at", true
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s, c.id LIMIT $%d OFFSET $%d", column, direction, argNum, argNum+1)
	args = append(args, page.Size, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCollection(rows, &res.Count)
		if err != nil {
			return res, fmt.Errorf("failed to scan collection: %w", err)
		}
		res.Results = append(res.Results, *c)
	}

	return res, rows.Err()
}

// CountPayments returns the number of payments into a collection
func (r *PostgresRepository) CountPayments(ctx context.Context, collectionID string) (int, error) {
	uid, err := parseID(collectionID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE collection_id = $1`, uid).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}

// RecentPayments returns the newest payments of a collection
func (r *PostgresRepository) RecentPayments(ctx context.Context, collectionID string, limit int) ([]models.Payment, error) {
	res, err := r.ListPayments(ctx, models.PaymentFilters{
		CollectionID: collectionID,
		OrderBy:      "-created_at",
		Page:         models.Page{Number: 1, Size: limit},
	})
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// --- Payments ---

const paymentColumns = `p.id::text, p.user_id, p.collection_id::text, p.amount, p.method, p.created_at`

func scanPayment(row pgx.Row, extra ...any) (*models.Payment, error) {
	var p models.Payment
	var amount int64
	var method string
	dest := []any{&p.ID, &p.UserID, &p.CollectionID, &amount, &method, &p.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Amount = models.Money(amount)
	p.Method = models.PaymentMethod(method)
	return &p, nil
}

// GetPayment retrieves a payment by ID
func (r *PostgresRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

var paymentOrder = map[string]string{
	"created_at": "p.created_at",
	"amount":     "p.amount",
}

// ListPayments returns a page of payments matching filters
func (r *PostgresRepository) ListPayments(ctx context.Context, filters models.PaymentFilters) (models.PageResult[models.Payment], error) {
	page := filters.Page.Normalize()
	res := models.PageResult[models.Payment]{Page: page.Number, Size: page.Size, Results: []models.Payment{}}

	query := `SELECT ` + paymentColumns + `, COUNT(*) OVER() FROM payments p WHERE 1=1`
	args := make([]any, 0)
	argNum := 1

	if filters.UserID != 0 {
		query += fmt.Sprintf(" AND p.user_id = $%d", argNum)
		args = append(args, filters.UserID)
		argNum++
	}

	if filters.CollectionID != "" {
		uid, err := parseID(filters.CollectionID)
		if err != nil {
			return res, nil
		}
		query += fmt.Sprintf(" AND p.collection_id = $%d", argNum)
		args = append(args, uid)
		argNum++
	}

	field, desc := orderField(filters.OrderBy, "-created_at")
	column, ok := paymentOrder[field]
	if !ok {
		column, desc = "p.created_at", true
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s, p.id LIMIT $%d OFFSET $%d", column, direction, argNum, argNum+1)
	args = append(args, page.Size, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPayment(rows, &res.Count)
		if err != nil {
			return res, fmt.Errorf("failed to scan payment: %w", err)
		}
		res.Results = append(res.Results, *p)
	}

	return res, rows.Err()
}

// InLedgerTx runs fn inside a single database transaction
func (r *PostgresRepository) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgLedgerTx{tx: tx})
	})
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	return getCollection(ctx, t.tx, id)
}

func (t *pgLedgerTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	pid, err := parseID(p.ID)
	if err != nil {
		return fmt.Errorf("invalid payment id %q", p.ID)
	}
	cid, err := parseID(p.CollectionID)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO payments (id, user_id, collection_id, amount, method, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		pid, p.UserID, cid, int64(p.Amount), string(p.Method), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", mapPgError(err))
	}
	return nil
}

func (t *pgLedgerTx) DeletePayment(ctx context.Context, id string) (*models.Payment, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(t.tx.QueryRow(ctx, `DELETE FROM payments p WHERE p.id = $1 RETURNING `+paymentColumns, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete payment: %w", err)
	}
	return p, nil
}

// AddToCollected performs the relative update in a single statement so that
// concurrent payments against the same collection cannot lose an update or
// overshoot the target.
func (t *pgLedgerTx) AddToCollected(ctx context.Context, collectionID string, delta models.Money, now time.Time) (models.Money, bool, error) {
	uid, err := parseID(collectionID)
	if err != nil {
		return 0, false, err
	}

	var query string
	var args []any
	if delta > 0 {
		// Bounds are compared as current <= bound - delta so the guard itself
		// cannot overflow bigint.
		query = `
			UPDATE collections
			SET current_amount = current_amount + $2, revision = revision + 1
			WHERE id = $1
			  AND end_at > $3
			  AND current_amount <= $4
			  AND (target_amount IS NULL OR current_amount <= target_amount - $2)
			RETURNING current_amount
		`
		args = []any{uid, int64(delta), now, int64(models.MaxCollectionAmount - delta)}
	} else {
		query = `
			UPDATE collections
			SET current_amount = GREATEST(current_amount + $2, 0), revision = revision + 1
			WHERE id = $1
			RETURNING current_amount
		`
		args = []any{uid, int64(delta)}
	}

	var total int64
	err = t.tx.QueryRow(ctx, query, args...).Scan(&total)
	if err == nil {
		return models.Money(total), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to adjust collected amount: %w", err)
	}

	// Either the collection is gone or the guard rejected the update.
	c, err := getCollection(ctx, t.tx, collectionID)
	if err != nil {
		return 0, false, err
	}
	return c.CurrentAmount, false, nil
}

// RecomputeCollected rebuilds running totals from payments. Payment writers
// are blocked for the duration so the sums are exact.
func (r *PostgresRepository) RecomputeCollected(ctx context.Context) ([]Correction, error) {
	var out []Correction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE payments IN SHARE MODE`); err != nil {
			return fmt.Errorf("failed to lock payments: %w", err)
		}

		rows, err := tx.Query(ctx, `
			WITH sums AS (
				SELECT c.id,
				       c.current_amount AS before,
				       LEAST(COALESCE(SUM(p.amount), 0), COALESCE(c.target_amount, COALESCE(SUM(p.amount), 0))) AS after
				FROM collections c
				LEFT JOIN payments p ON p.collection_id = c.id
				GROUP BY c.id
			)
			UPDATE collections c
			SET current_amount = s.after, revision = c.revision + 1
			FROM sums s
			WHERE c.id = s.id AND c.current_amount <> s.after
			RETURNING c.id::text, s.before, s.after
		`)
		if err != nil {
			return fmt.Errorf("failed to recompute collected amounts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c Correction
			var before, after int64
			if err := rows.Scan(&c.CollectionID, &before, &after); err != nil {
				return fmt.Errorf("failed to scan correction: %w", err)
			}
			c.Before, c.After = models.Money(before), models.Money(after)
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}

// --- Users ---

const userColumns = `id, username, password_hash, role, is_active, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

// CreateUser inserts a login account
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role, is_active) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		u.Username, u.PasswordHash, string(u.Role), u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPgError(err))
	}
	return nil
}

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByUsername retrieves a user by login name
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// UsernameExists reports whether the login name is taken
func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// mapPgError translates constraint violations into package errors
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrConflict)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrNotFound)
	}
	return err
}
