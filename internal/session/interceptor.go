// Package session implements the client-side session interceptor: an
// http.Client wrapper that attaches the bearer token, performs a single
// silent refresh-and-retry on auth failures, and surfaces password-policy
// redirects to the host application.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
)

// ErrSessionExpired is returned when the silent refresh fails and the
// stored credentials were cleared.
var ErrSessionExpired = errors.New("session: refresh failed, credentials cleared")

// Credentials are the locally persisted session material.
type Credentials struct {
	AccessToken string          `json:"accessToken"`
	User        json.RawMessage `json:"user,omitempty"`
}

// CredentialStore persists credentials and the password-change return
// path between navigations.
type CredentialStore interface {
	Load() (Credentials, bool)
	Save(Credentials) error
	Clear() error
	// SetReturnPath records where to send the user after a forced
	// password change.
	SetReturnPath(path string)
}

// Navigator is the redirect and notification sink of the host app.
type Navigator interface {
	NavigateTo(path string)
	Notify(message string)
}

// Client wraps an http.Client with the session contract. The underlying
// client carries a cookie jar so the HTTP-only refresh cookie flows to
// the refresh endpoint.
type Client struct {
	http  *http.Client
	base  string
	creds CredentialStore
	nav   Navigator

	refreshPath        string
	loginPath          string
	changePasswordPath string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client. A cookie jar is added
// if the client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRefreshPath overrides the refresh endpoint path.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		c.refreshPath = path
	}
}

// New builds a session client rooted at baseURL.
func New(baseURL string, creds CredentialStore, nav Navigator, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("session: credential store is required")
	}
	if nav == nil {
		return nil, errors.New("session: navigator is required")
	}
	c := &Client{
		base:               strings.TrimSuffix(baseURL, "/"),
		creds:              creds,
		nav:                nav,
		refreshPath:        "/refresh-token",
		loginPath:          "/login",
		changePasswordPath: "/change-password",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Jar exposes the cookie jar carrying the refresh cookie.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// policyError is the shape of a gate rejection body.
type policyError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RedirectTo string `json:"redirectTo"`
}

// Do sends the request under the session contract. At most one refresh
// attempt happens per original request; transport errors are returned
// directly and never trigger a refresh.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	policy, body := readPolicy(resp)
	resp.Body = io.NopCloser(bytes.NewReader(body))

	switch policy.Code {
	case "PASSWORD_CHANGE_REQUIRED":
		c.creds.SetReturnPath(req.URL.Path)
		c.nav.NavigateTo(c.redirect(policy))
		return resp, nil
	case "PASSWORD_EXPIRED":
		if policy.Message != "" {
			c.nav.Notify(policy.Message)
		} else {
			c.nav.Notify("Your password has expired. Please choose a new one.")
		}
		c.nav.NavigateTo(c.redirect(policy))
		return resp, nil
	}

	retry, rerr := cloneForRetry(req)
	if rerr != nil {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refresh(req); err != nil {
		_ = c.creds.Clear()
		c.nav.NavigateTo(c.loginPath)
		return nil, err
	}

	c.decorate(retry)
	return c.http.Do(retry)
}

// decorate attaches the stored bearer token and JSON headers.
func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds, ok := c.creds.Load(); ok && creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}
}

// refresh calls the refresh endpoint once and persists the new session.
func (c *Client) refresh(original *http.Request) error {
	req, err := http.NewRequestWithContext(original.Context(), http.MethodPost, c.base+c.refreshPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrSessionExpired
	}
	var session struct {
		AccessToken string          `json:"accessToken"`
		User        json.RawMessage `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil || session.AccessToken == "" {
		return ErrSessionExpired
	}
	return c.creds.Save(Credentials{AccessToken: session.AccessToken, User: session.User})
}

func (c *Client) redirect(p policyError) string {
	if p.RedirectTo != "" {
		return p.RedirectTo
	}
	return c.changePasswordPath
}

// readPolicy drains the response body and parses the policy envelope.
func readPolicy(resp *http.Response) (policyError, []byte) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	if err != nil {
		return policyError{}, nil
	}
	var p policyError
	_ = json.Unmarshal(body, &p)
	return p, body
}

// cloneForRetry rebuilds the request so it can be sent a second time.
// Bodyless requests always qualify; bodied requests need GetBody, which
// http.NewRequest provides for the common buffer types.
func cloneForRetry(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("session: request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
