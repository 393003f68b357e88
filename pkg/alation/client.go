// Package alation is a small client for the catalog vendor's REST API:
// token validation and refresh, folders, document hubs and custom templates.
package alation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/catalogtools/apt/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the catalog instance root, e.g. https://acme.alationcloud.com.
	BaseURL string

	// UserID is the numeric id of the user owning the refresh token.
	UserID string

	// RefreshToken is the long-lived token used to mint access tokens.
	RefreshToken string

	// Timeout bounds each HTTP request (default 30s).
	Timeout time.Duration

	// RateLimit is the number of requests per second (default 5).
	RateLimit float64

	// Burst is the token bucket size (default RateLimit rounded up).
	Burst int

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// Client talks to the catalog REST API. The access token is held only in
// memory and never persisted.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.RWMutex
	baseURL      string
	userID       string
	refreshToken string
	accessToken  string
}

// NewClient creates a new catalog client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps + 0.999)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		baseURL:      normalizeBaseURL(cfg.BaseURL),
		userID:       strings.TrimSpace(cfg.UserID),
		refreshToken: cfg.RefreshToken,
	}
}

// AccessToken returns the current in-memory access token, if any.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken installs an access token obtained elsewhere.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// BaseURL returns the configured instance URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// ValidateToken checks the current access token by fetching the user's own
// profile. Any 200 answer counts as valid whatever its body. It reports
// false when no token is held, on any other status and on network failure.
func (c *Client) ValidateToken(ctx context.Context) bool {
	op := telemetry.StartOperation(ctx, "alation.validate_token")

	token := c.AccessToken()
	if token == "" {
		op.Logger.Info("No API access token present to validate")
		op.End(nil)
		return false
	}

	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()

	path := fmt.Sprintf("/integration/v2/user/%s/", url.PathEscape(userID))
	err := c.do(op.Ctx, "validate_token", http.MethodGet, path, nil, token, nil, http.StatusOK, nil)
	op.End(err)
	if err != nil {
		if IsTransient(err) && !isStatusErr(err) {
			op.Logger.WithError(err).Error("Network error during token validation")
		} else {
			op.Logger.WithError(err).Warn("API access token is invalid or expired")
		}
		return false
	}

	op.Logger.Info("API access token is valid")
	return true
}

// RefreshToken mints a new access token from the refresh token. On a
// non-201 answer the in-memory token is cleared; a network failure leaves
// it as it was.
func (c *Client) RefreshToken(ctx context.Context) bool {
	op := telemetry.StartOperation(ctx, "alation.refresh_token")

	c.mu.RLock()
	userID, refreshToken := c.userID, c.refreshToken
	c.mu.RUnlock()

	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		err = fmt.Errorf("user id %q is not an integer: %w", userID, err)
		op.Logger.WithError(err).Error("Failed to refresh access token")
		op.End(err)
		return false
	}

	op.Logger.Info("Attempting to refresh API access token")

	var resp refreshResponse
	body := refreshRequest{RefreshToken: refreshToken, UserID: uid}
	err = c.do(op.Ctx, "refresh_token", http.MethodPost, "/integration/v1/createAPIAccessToken/", nil, "", body, http.StatusCreated, &resp)
	if err == nil && resp.APIAccessToken == "" {
		err = newDecodeError("refresh_token", fmt.Errorf("response carries no api_access_token"))
	}
	op.End(err)

	if err != nil {
		if isStatusErr(err) || IsPermanent(err) {
			c.SetAccessToken("")
			op.Logger.WithError(err).Error("Failed to refresh access token")
		} else {
			op.Logger.WithError(err).Error("Network error during token refresh")
		}
		return false
	}

	c.SetAccessToken(resp.APIAccessToken)
	op.Logger.Info("Successfully refreshed API access token")
	return true
}

// GetFolders fetches folders. params are passed through as query string,
// e.g. document_hub_id=3 to list the folders of one hub.
func (c *Client) GetFolders(ctx context.Context, params url.Values) ([]Folder, error) {
	op := telemetry.StartOperation(ctx, "alation.get_folders",
		attribute.String("query", params.Encode()))

	var folders []Folder
	err := c.authed(op, "get_folders", "/integration/v2/folder/", params, &folders)
	op.End(err)
	if err != nil {
		op.Logger.WithError(err).Error("Failed to fetch folders")
		return nil, err
	}

	op.Logger.WithField("count", len(folders)).Debug("Fetched folders")
	return folders, nil
}

// GetDocumentHubs lists the document hubs visible to the user.
func (c *Client) GetDocumentHubs(ctx context.Context) ([]DocumentHub, error) {
	op := telemetry.StartOperation(ctx, "alation.get_document_hubs")

	var hubs []DocumentHub
	err := c.authed(op, "get_document_hubs", "/integration/v1/document_hub/", nil, &hubs)
	op.End(err)
	if err != nil {
		op.Logger.WithError(err).Error("Failed to fetch document hubs")
		return nil, err
	}

	op.Logger.WithField("count", len(hubs)).Debug("Fetched document hubs")
	return hubs, nil
}

// GetTemplates lists custom templates with their fields.
func (c *Client) GetTemplates(ctx context.Context) ([]Template, error) {
	op := telemetry.StartOperation(ctx, "alation.get_templates")

	var templates []Template
	err := c.authed(op, "get_templates", "/integration/v1/custom_template/", nil, &templates)
	op.End(err)
	if err != nil {
		op.Logger.WithError(err).Error("Failed to fetch templates")
		return nil, err
	}

	op.Logger.WithField("count", len(templates)).Debug("Fetched templates")
	return templates, nil
}

// GetTemplate fetches a single template with its field schema.
func (c *Client) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	op := telemetry.StartOperation(ctx, "alation.get_template",
		attribute.Int64("template.id", id))

	var tmpl Template
	path := fmt.Sprintf("/integration/v1/custom_template/%d/", id)
	err := c.authed(op, "get_template", path, nil, &tmpl)
	op.End(err)
	if err != nil {
		op.Logger.WithError(err).WithField("template_id", id).Error("Failed to fetch template")
		return nil, err
	}
	return &tmpl, nil
}

// authed performs a GET with the current access token.
func (c *Client) authed(op *telemetry.InstrumentedContext, operation, path string, params url.Values, out any) error {
	token := c.AccessToken()
	if token == "" {
		return &APIError{
			Class:     ErrNoAccessToken.Class,
			Message:   ErrNoAccessToken.Message,
			Code:      ErrNoAccessToken.Code,
			Operation: operation,
		}
	}
	return c.do(op.Ctx, operation, http.MethodGet, path, params, token, nil, http.StatusOK, out)
}

// do executes one request and decodes a successful body into out.
func (c *Client) do(ctx context.Context, operation, method, path string, params url.Values, token string, body any, want int, out any) (err error) {
	timer := telemetry.NewTimer()
	status := 0
	defer func() {
		if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
			tel.Metrics.RecordAPICall(operation, status, timer.Duration())
			if err != nil {
				tel.Metrics.RecordAPIError(operation, string(classOf(err)))
			}
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return newTransportError(operation, err)
	}

	endpoint := c.BaseURL() + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &APIError{Class: ErrorClassPermanent, Message: "failed to encode request", Operation: operation, Err: err}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return &APIError{Class: ErrorClassPermanent, Message: "failed to build request", Operation: operation, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(operation, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newTransportError(operation, err)
	}

	if resp.StatusCode != want {
		return newStatusError(operation, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return newDecodeError(operation, err)
	}
	return nil
}

func isStatusErr(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode != 0
	}
	return false
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
