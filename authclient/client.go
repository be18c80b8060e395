package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"main/config"
	"main/model"
	"main/utils"
)

// Client talks to the backend auth API. Endpoints return the
// {success, data, error:{code,message}} envelope; errors are classified into
// the sentinel taxonomy in errors.go so the controller can decide retryability
// without inspecting response bodies.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.AuthAPIConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

type Credentials struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
}

type LoginResult struct {
	User         model.User `json:"user"`
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	// session_expiry is the canonical field; older backends send expires_at.
	SessionExpiry time.Time `json:"session_expiry"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expiry returns whichever expiry field the backend populated.
func (r *LoginResult) Expiry() time.Time {
	if !r.SessionExpiry.IsZero() {
		return r.SessionExpiry
	}
	return r.ExpiresAt
}

type RefreshResult struct {
	Token         string    `json:"token"`
	RefreshToken  string    `json:"refresh_token"`
	SessionExpiry time.Time `json:"session_expiry"`
}

type validateResult struct {
	SessionValid         bool    `json:"session_valid"`
	TimeRemainingMinutes float64 `json:"time_remaining_minutes"`
}

type extendResult struct {
	SessionExtended bool      `json:"session_extended"`
	SessionExpiry   time.Time `json:"session_expiry"`
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/login", "", creds, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout invalidates the session server-side. Callers clear local state
// regardless of the outcome.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/logout", token, nil, nil)
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	var result struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", token, nil, &result); err != nil {
		return nil, err
	}
	return &result.User, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	var result RefreshResult
	if err := c.do(ctx, http.MethodPost, "/token/refresh", refreshToken, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateSession asks the backend whether the session is still good. A
// clean "no" is (false, nil); an error means the answer is unknown.
func (c *Client) ValidateSession(ctx context.Context, token string) (bool, error) {
	var result validateResult
	if err := c.do(ctx, http.MethodGet, "/session/validate", token, nil, &result); err != nil {
		return false, err
	}
	return result.SessionValid, nil
}

// ExtendSession pushes the session expiry out and returns the new expiry.
func (c *Client) ExtendSession(ctx context.Context, token string) (time.Time, error) {
	var result extendResult
	if err := c.do(ctx, http.MethodPost, "/session/extend", token, nil, &result); err != nil {
		return time.Time{}, err
	}
	if !result.SessionExtended {
		return time.Time{}, fmt.Errorf("backend declined to extend session")
	}
	return result.SessionExpiry, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// no HTTP response at all, the one retryable class
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *utils.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	if !envelope.Success {
		return classify(resp.StatusCode, envelope.Error)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %v", err)
		}
	}
	return nil
}

// classify maps the envelope error onto the sentinel taxonomy, keeping the
// backend's message verbatim where one was given.
func classify(statusCode int, apiErr *utils.APIError) error {
	code, message := "", ""
	if apiErr != nil {
		code, message = apiErr.Code, apiErr.Message
	}

	switch code {
	case utils.CodeInvalidCredentials:
		return wrap(message, ErrInvalidCredentials)
	case utils.CodeRateLimited:
		return wrap(message, ErrRateLimited)
	}
	if statusCode == http.StatusUnauthorized {
		return wrap(message, ErrUnauthorized)
	}
	if message != "" {
		return fmt.Errorf("auth API error: %s (%s)", message, code)
	}
	return fmt.Errorf("auth API error: status %d", statusCode)
}

func wrap(message string, sentinel error) error {
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%s: %w", message, sentinel)
}
