// Package rest talks to the hosted identity and data backend over its JSON
// HTTP API: password sign-in and sign-up, user lookup by token, the is_admin
// RPC and the profiles table.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aryangodara/secure_gate/gate"
)

var (
	_ gate.Backend           = &Client{}
	_ gate.AdminChecker      = &Client{}
	_ gate.ProfileReader     = &Client{}
	_ gate.PrincipalResolver = &Client{}
)

// ErrProfileNotFound is returned when the profiles table has no row for the principal.
var ErrProfileNotFound = errors.New("profile not found")

const maxErrorBody = 64 << 10

// Client is a backend client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a client for the backend at baseURL, authenticating the
// project with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		DisplayName string `json:"display_name"`
	} `json:"user_metadata"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`

	// Sign-up without a session returns the user object at the top level.
	userResponse
}

func (s *sessionResponse) authResult(now time.Time) (*gate.AuthResult, error) {
	u := s.User
	if u == nil {
		u = &s.userResponse
	}
	if u.ID == "" {
		return nil, errors.New("backend response has no user")
	}

	res := &gate.AuthResult{
		Principal: gate.Principal{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.UserMetadata.DisplayName,
			AccessToken: s.AccessToken,
		},
	}
	if s.AccessToken != "" {
		expiresAt := now.Add(time.Duration(s.ExpiresIn) * time.Second)
		if s.ExpiresAt > 0 {
			expiresAt = time.Unix(s.ExpiresAt, 0)
		}
		res.Session = &gate.Session{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			ExpiresAt:    expiresAt,
		}
	}
	return res, nil
}

type errorResponse struct {
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*gate.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	query := url.Values{"grant_type": {"password"}}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.authResult(c.now())
}

// SignUp registers a user. The session is nil when the project requires
// email confirmation.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*gate.AuthResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if displayName != "" {
		body["data"] = map[string]string{"display_name": displayName}
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.authResult(c.now())
}

// Principal returns the user an access token belongs to.
func (c *Client) Principal(ctx context.Context, accessToken string) (*gate.Principal, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &gate.Principal{
		ID:          resp.ID,
		Email:       resp.Email,
		DisplayName: resp.UserMetadata.DisplayName,
		AccessToken: accessToken,
	}, nil
}

// IsAdmin calls the is_admin RPC as the principal.
func (c *Client) IsAdmin(ctx context.Context, principal gate.Principal) (bool, error) {
	var isAdmin bool
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/is_admin", nil, principal.AccessToken, struct{}{}, &isAdmin); err != nil {
		return false, err
	}
	return isAdmin, nil
}

// Profile reads the principal's row from the profiles table.
func (c *Client) Profile(ctx context.Context, principal gate.Principal) (*gate.Profile, error) {
	query := url.Values{
		"id":     {"eq." + principal.ID},
		"select": {"id,role,display_name"},
	}

	var rows []gate.Profile
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles", query, principal.AccessToken, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("profile %v: %w", principal.ID, ErrProfileNotFound)
	}
	return &rows[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %v request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %v request: %w", path, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%v %v: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %v response: %w", path, err)
	}
	return nil
}

func (c *Client) statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 500 {
		c.logger.Warn("backend server error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%v %v: backend returned status %d", method, path, resp.StatusCode)
	}

	msg := parsed.text()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &gate.RejectedError{Message: msg, Status: resp.StatusCode}
}
