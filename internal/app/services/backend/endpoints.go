package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

// StatsScope selects one of the role-scoped stats endpoints.
type StatsScope string

const (
	StatsAdmin    StatsScope = "admin"
	StatsManager  StatsScope = "manager"
	StatsBorrower StatsScope = "user"
)

// EstablishSession exchanges a verified identity for the backend session
// cookie.
func (c *Client) EstablishSession(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return DoWithTries(ctx, c.attempts, c.delay, func(ctx context.Context) error {
		return c.Do(ctx, http.MethodPost, "/jwt", body, nil)
	})
}

// EndSession clears the backend session cookie. It never triggers the
// auth-failure hooks.
func (c *Client) EndSession(ctx context.Context) error {
	ctx = WithoutInterception(ctx)
	return DoWithTries(ctx, c.attempts, c.delay, func(ctx context.Context) error {
		return c.Do(ctx, http.MethodPost, "/logout", nil, nil)
	})
}

// UserRole does a single lookup; callers own the retry policy.
func (c *Client) UserRole(ctx context.Context, email string) (*models.RoleRecord, error) {
	var rec models.RoleRecord
	if err := c.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(email), nil, &rec); err != nil {
		return nil, err
	}
	if rec.Role == "" {
		return nil, fmt.Errorf("backend: role missing for %s: %w", email, models.ErrNotFound)
	}
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}
	return &rec, nil
}

func (c *Client) UpsertUser(ctx context.Context, user models.UserRecord) error {
	return c.Do(ctx, http.MethodPost, "/users", user, nil)
}

func (c *Client) UpdateUserAdmin(ctx context.Context, id string, upd models.AdminUpdate) error {
	return c.Do(ctx, http.MethodPatch, "/users/admin/"+url.PathEscape(id), upd, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	var users []models.UserRecord
	if err := c.Do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) ListLoans(ctx context.Context) ([]models.LoanOffer, error) {
	var loans []models.LoanOffer
	if err := c.Do(ctx, http.MethodGet, "/loans", nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// ListApplications passes filter through as the query string, e.g.
// status=pending or email=a@b.c.
func (c *Client) ListApplications(ctx context.Context, filter url.Values) ([]models.LoanApplication, error) {
	path := "/applications"
	if len(filter) > 0 {
		path += "?" + filter.Encode()
	}
	var apps []models.LoanApplication
	if err := c.Do(ctx, http.MethodGet, path, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *Client) Application(ctx context.Context, id string) (*models.LoanApplication, error) {
	var app models.LoanApplication
	if err := c.Do(ctx, http.MethodGet, "/applications/"+url.PathEscape(id), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) RecordPayment(ctx context.Context, p models.Payment) error {
	return c.Do(ctx, http.MethodPost, "/payments", p, nil)
}

func (c *Client) Stats(ctx context.Context, scope StatsScope) (models.Stats, error) {
	stats := models.Stats{}
	if err := c.Do(ctx, http.MethodGet, "/"+string(scope)+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
