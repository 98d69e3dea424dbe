package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/terra-clan/office-hub/internal/models"
)

// Client is a Go SDK for the office-hub API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.RWMutex
	access  string
	refresh string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken starts the client with an existing access token
func WithToken(access string) Option {
	return func(c *Client) {
		c.access = access
	}
}

// NewClient creates a new office-hub client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is returned for non-2xx responses
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("API error %d: %s - %s (%s)", e.Status, e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.Status, e.Code, e.Message)
}

// ListOptions contains paging and search options shared by listings
type ListOptions struct {
	Search   string
	Page     int
	PageSize int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	return v
}

// EmployeeListOptions narrows employee listings
type EmployeeListOptions struct {
	ListOptions
	Skill         models.SkillCategory
	MinExperience *int
	MaxExperience *int
}

// CollectionListOptions narrows collection listings
type CollectionListOptions struct {
	ListOptions
	Occasion models.Occasion
	AuthorID int64
	Status   models.CollectionStatus
	Ordering string
}

// PaymentListOptions narrows payment listings
type PaymentListOptions struct {
	ListOptions
	CollectionID string
	Ordering     string
}

// --- Auth ---

// Login exchanges credentials for tokens and keeps them for later calls
func (c *Client) Login(ctx context.Context, username, password string) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/token", models.TokenRequest{Username: username, Password: password}, &pair); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.access, c.refresh = pair.Access, pair.Refresh
	c.mu.Unlock()
	return &pair, nil
}

// Refresh obtains a new access token using the stored refresh token
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refresh
	c.mu.RUnlock()

	var pair models.TokenPair
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/refresh", models.RefreshRequest{Refresh: refresh}, &pair); err != nil {
		return err
	}

	c.mu.Lock()
	c.access = pair.Access
	c.mu.Unlock()
	return nil
}

// SignOut revokes the stored tokens and forgets them
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refresh
	c.mu.RUnlock()

	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/signout", models.RefreshRequest{Refresh: refresh}, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.access, c.refresh = "", ""
	c.mu.Unlock()
	return nil
}

// --- Employees ---

// ListSkills returns the skill catalog
func (c *Client) ListSkills(ctx context.Context) ([]models.Skill, error) {
	var skills []models.Skill
	err := c.call(ctx, http.MethodGet, "/api/v1/skills", nil, &skills)
	return skills, err
}

// CreateEmployee creates an employee and their login account
func (c *Client) CreateEmployee(ctx context.Context, req models.CreateEmployeeRequest) (*models.EmployeeDetail, error) {
	var e models.EmployeeDetail
	if err := c.call(ctx, http.MethodPost, "/api/v1/employees", req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEmployee retrieves an employee by ID
func (c *Client) GetEmployee(ctx context.Context, id int64) (*models.EmployeeDetail, error) {
	var e models.EmployeeDetail
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/v1/employees/%d", id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployees retrieves a page of employees
func (c *Client) ListEmployees(ctx context.Context, opts EmployeeListOptions) (*models.PageResult[models.Employee], error) {
	v := opts.values()
	if opts.Skill != "" {
		v.Set("skill", string(opts.Skill))
	}
	if opts.MinExperience != nil {
		v.Set("min_experience", strconv.Itoa(*opts.MinExperience))
	}
	if opts.MaxExperience != nil {
		v.Set("max_experience", strconv.Itoa(*opts.MaxExperience))
	}

	var page models.PageResult[models.Employee]
	if err := c.call(ctx, http.MethodGet, withQuery("/api/v1/employees", v), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DeleteEmployee removes an employee
func (c *Client) DeleteEmployee(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/employees/%d", id), nil, nil)
}

// SetSkill adds or updates one of an employee's skills
func (c *Client) SetSkill(ctx context.Context, employeeID int64, skill models.SkillCategory, level int) (*models.EmployeeSkill, error) {
	var s models.EmployeeSkill
	req := models.SetSkillRequest{Skill: skill, Level: level}
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/v1/employees/%d/skills", employeeID), req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetWorkplace returns the desk an employee occupies
func (c *Client) GetWorkplace(ctx context.Context, employeeID int64) (*models.Desk, error) {
	var d models.Desk
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/v1/employees/%d/workplace", employeeID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AssignWorkplace seats an employee at a table number
func (c *Client) AssignWorkplace(ctx context.Context, employeeID int64, tableNumber string) (*models.Desk, error) {
	var d models.Desk
	req := models.AssignWorkplaceRequest{TableNumber: tableNumber}
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/v1/employees/%d/workplace", employeeID), req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// --- Desks ---

// CreateDesk creates a desk, optionally occupied
func (c *Client) CreateDesk(ctx context.Context, req models.DeskRequest) (*models.Desk, error) {
	var d models.Desk
	if err := c.call(ctx, http.MethodPost, "/api/v1/desks", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDesk replaces a desk's table number, floor or occupant
func (c *Client) UpdateDesk(ctx context.Context, id int64, req models.DeskRequest) (*models.Desk, error) {
	var d models.Desk
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/v1/desks/%d", id), req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDesk removes a desk
func (c *Client) DeleteDesk(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/desks/%d", id), nil, nil)
}

// ListDesks retrieves desks filtered by occupancy
func (c *Client) ListDesks(ctx context.Context, occupancy models.DeskOccupancy, opts ListOptions) (*models.PageResult[models.Desk], error) {
	path := "/api/v1/desks"
	switch occupancy {
	case models.DeskFree:
		path += "/free"
	case models.DeskOccupied:
		path += "/occupied"
	}

	var page models.PageResult[models.Desk]
	if err := c.call(ctx, http.MethodGet, withQuery(path, opts.values()), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// --- Collections ---

// CreateCollection opens a collection authored by the caller
func (c *Client) CreateCollection(ctx context.Context, req models.CollectionRequest) (*models.CollectionView, error) {
	var v models.CollectionView
	if err := c.call(ctx, http.MethodPost, "/api/v1/collections", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetCollection retrieves a collection with its latest payments
func (c *Client) GetCollection(ctx context.Context, id string) (*models.CollectionView, error) {
	var v models.CollectionView
	if err := c.call(ctx, http.MethodGet, "/api/v1/collections/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListCollections retrieves a page of collections
func (c *Client) ListCollections(ctx context.Context, opts CollectionListOptions) (*models.PageResult[models.CollectionView], error) {
	v := opts.values()
	if opts.Occasion != "" {
		v.Set("occasion", string(opts.Occasion))
	}
	if opts.AuthorID > 0 {
		v.Set("author", strconv.FormatInt(opts.AuthorID, 10))
	}
	if opts.Status != "" {
		v.Set("status", string(opts.Status))
	}
	if opts.Ordering != "" {
		v.Set("ordering", opts.Ordering)
	}

	var page models.PageResult[models.CollectionView]
	if err := c.call(ctx, http.MethodGet, withQuery("/api/v1/collections", v), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DeleteCollection removes a collection and its payments
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/collections/"+url.PathEscape(id), nil, nil)
}

// --- Payments ---

// Donate records a card payment into a collection
func (c *Client) Donate(ctx context.Context, collectionID string, amount models.Money) (*models.Payment, error) {
	var p models.Payment
	req := models.PaymentRequest{CollectionID: collectionID, Amount: amount, Method: models.PaymentCard}
	if err := c.call(ctx, http.MethodPost, "/api/v1/payments", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayments retrieves the caller's payments
func (c *Client) ListPayments(ctx context.Context, opts PaymentListOptions) (*models.PageResult[models.Payment], error) {
	v := opts.values()
	if opts.CollectionID != "" {
		v.Set("collection", opts.CollectionID)
	}
	if opts.Ordering != "" {
		v.Set("ordering", opts.Ordering)
	}

	var page models.PageResult[models.Payment]
	if err := c.call(ctx, http.MethodGet, withQuery("/api/v1/payments", v), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DeletePayment reverses one of the caller's payments
func (c *Client) DeletePayment(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/payments/"+url.PathEscape(id), nil, nil)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// call performs a request and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		if status >= 400 {
			return &APIError{Status: status, Code: "http_error", Message: string(resp)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || status >= 400 {
		apiErr := &APIError{Status: status, Code: "unknown_error"}
		if result.Error != nil {
			apiErr.Code, apiErr.Message, apiErr.Field = result.Error.Code, result.Error.Message, result.Error.Field
		}
		return apiErr
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
