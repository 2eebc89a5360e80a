// Package api talks to the PentryPal backend: authenticated REST calls,
// token refresh, and the real-time push channel. All remote I/O in the
// core goes through this package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pentrypal/app/core/internal/config"
	"github.com/pentrypal/app/core/internal/errors"
	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
)

// APIError carries the backend's error response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Client is the authenticated HTTP client for the backend API. Tokens
// come from the store's auth slice; a 401 triggers one refresh attempt
// before the request is retried, and a failed refresh revokes the
// session.
type Client struct {
	httpClient *http.Client
	baseURL    string
	st         *store.Store
	maxRetries int

	refreshMu sync.Mutex // one refresh at a time

	// onSessionRevoked runs when refresh fails, forcing logout in the UI.
	onSessionRevoked func()
}

// NewClient creates a Client from the API configuration.
func NewClient(cfg config.APIConfig, st *store.Store) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		st:         st,
		maxRetries: cfg.MaxRetries,
	}
}

// OnSessionRevoked registers the forced-logout hook.
func (c *Client) OnSessionRevoked(fn func()) {
	c.onSessionRevoked = fn
}

// =====================================================
// Request plumbing
// =====================================================

// do issues one authenticated request and decodes the response into out
// (when out is non-nil). Idempotent methods retry transient failures
// with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	operation := func() error {
		return c.doOnce(ctx, method, path, body, out, true)
	}

	if method == http.MethodGet || method == http.MethodPut || method == http.MethodDelete {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
		return backoff.Retry(operation, policy)
	}

	err := operation()
	var permanent *backoff.PermanentError
	if stderrors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// doOnce issues a single request. Transient failures (network errors,
// 5xx) come back as-is so backoff can retry them; everything else is
// wrapped in backoff.Permanent.
func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}, allowRefresh bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(errors.Wrap(errors.ErrInternal, "failed to encode request body", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(errors.Wrap(errors.ErrInternal, "failed to build request", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRefresh {
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			return backoff.Permanent(refreshErr)
		}
		return c.doOnce(ctx, method, path, body, out, false)
	}

	if resp.StatusCode >= 500 {
		return c.decodeError(resp)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(c.decodeError(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(errors.Wrap(errors.ErrInternal, "failed to decode response", err))
		}
	}
	return nil
}

// decodeError maps an error response body into an APIError.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
		apiErr.Code = "unknown"
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// accessToken reads the current bearer token from the auth slice.
func (c *Client) accessToken() string {
	state := c.st.State()
	if state.Auth.Session == nil {
		return ""
	}
	return state.Auth.Session.AccessToken
}

// refresh exchanges the refresh token for a new session. Concurrent
// callers coalesce: whoever loses the race finds a fresh token already
// in place. A rejected refresh token means the session is revoked.
func (c *Client) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	state := c.st.State()
	if state.Auth.Session == nil {
		return errors.New(errors.ErrAuthFailed, "no session to refresh")
	}
	session := state.Auth.Session

	payload, _ := json.Marshal(map[string]string{"refresh_token": session.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrNetwork, "refresh request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		logging.Warn("Refresh token rejected, session revoked", map[string]interface{}{
			"user_id": string(session.UserID),
		})
		c.st.Dispatch(store.ClearSession{})
		if c.onSessionRevoked != nil {
			c.onSessionRevoked()
		}
		return errors.New(errors.ErrSessionRevoked, "refresh token rejected")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrAuthFailed,
			fmt.Sprintf("refresh returned status %d", resp.StatusCode))
	}

	var refreshed models.Session
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to decode refresh response", err)
	}
	refreshed.UserID = session.UserID
	refreshed.UpdatedAt = time.Now().Unix()

	if err := c.st.Dispatch(store.SetSession{Session: refreshed}); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to store refreshed session", err)
	}

	logging.Info("Session refreshed", map[string]interface{}{
		"user_id": string(session.UserID),
	})
	return nil
}

// =====================================================
// Auth
// =====================================================

// LoginResponse is the backend's login payload.
type LoginResponse struct {
	Session models.Session     `json:"session"`
	Profile models.UserProfile `json:"profile"`
}

// Login authenticates with email and password and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", body, &out); err != nil {
		return nil, err
	}

	if err := c.st.Dispatch(store.SetSession{Session: out.Session, Profile: &out.Profile}); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to store session", err)
	}
	return &out, nil
}

// Logout invalidates the session server side. Local cleanup happens
// regardless of the server's answer.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
	if dispatchErr := c.st.Dispatch(store.ClearSession{}); dispatchErr != nil {
		return dispatchErr
	}
	return err
}

// =====================================================
// Shopping lists
// =====================================================

func (c *Client) CreateList(ctx context.Context, list *models.ShoppingList) error {
	return c.do(ctx, http.MethodPost, "/v1/lists", list, nil)
}

func (c *Client) UpdateList(ctx context.Context, list *models.ShoppingList) error {
	return c.do(ctx, http.MethodPut, "/v1/lists/"+string(list.ID), list, nil)
}

func (c *Client) DeleteList(ctx context.Context, id models.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/lists/"+string(id), nil, nil)
}

func (c *Client) CreateItem(ctx context.Context, item *models.ListItem) error {
	return c.do(ctx, http.MethodPost, "/v1/lists/"+string(item.ListID)+"/items", item, nil)
}

func (c *Client) UpdateItem(ctx context.Context, item *models.ListItem) error {
	return c.do(ctx, http.MethodPut, "/v1/items/"+string(item.ID), item, nil)
}

func (c *Client) DeleteItem(ctx context.Context, id models.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/items/"+string(id), nil, nil)
}

// =====================================================
// Pantry
// =====================================================

func (c *Client) UpsertPantryItem(ctx context.Context, item *models.PantryItem) error {
	return c.do(ctx, http.MethodPut, "/v1/pantry/"+string(item.ID), item, nil)
}

func (c *Client) DeletePantryItem(ctx context.Context, id models.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/pantry/"+string(id), nil, nil)
}

// =====================================================
// Profile and delta pull
// =====================================================

func (c *Client) UpdateProfile(ctx context.Context, profile *models.UserProfile) error {
	return c.do(ctx, http.MethodPut, "/v1/profile", profile, nil)
}

// Changes is the delta payload returned by the backend for a pull.
type Changes struct {
	Lists       []models.ShoppingList `json:"lists"`
	Items       []models.ListItem     `json:"items"`
	PantryItems []models.PantryItem   `json:"pantry_items"`
	ServerTime  int64                 `json:"server_time"`
}

// GetChangesSince pulls everything changed on the server after the given
// unix timestamp.
func (c *Client) GetChangesSince(ctx context.Context, since int64) (*Changes, error) {
	var out Changes
	path := fmt.Sprintf("/v1/changes?since=%d", since)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PullChanges fetches server-side deltas since the given timestamp and
// folds them into the store through the remote-apply path, where
// conflict resolution weeds out stale updates. Per-entity apply
// failures are logged and skipped; only the fetch itself can fail.
func (c *Client) PullChanges(ctx context.Context, since int64) error {
	changes, err := c.GetChangesSince(ctx, since)
	if err != nil {
		return err
	}

	for _, list := range changes.Lists {
		if err := c.st.Dispatch(store.ApplyRemoteList{List: list}); err != nil {
			logging.Error("Failed to apply pulled list", err,
				map[string]interface{}{"list_id": string(list.ID)})
		}
	}
	for _, item := range changes.Items {
		if err := c.st.Dispatch(store.ApplyRemoteItem{Item: item}); err != nil {
			logging.Error("Failed to apply pulled item", err,
				map[string]interface{}{"item_id": string(item.ID)})
		}
	}
	for _, item := range changes.PantryItems {
		if err := c.st.Dispatch(store.ApplyRemotePantryItem{Item: item}); err != nil {
			logging.Error("Failed to apply pulled pantry item", err,
				map[string]interface{}{"item_id": string(item.ID)})
		}
	}

	logging.Debug("Applied pulled changes", map[string]interface{}{
		"lists":        len(changes.Lists),
		"items":        len(changes.Items),
		"pantry_items": len(changes.PantryItems),
	})
	return nil
}
