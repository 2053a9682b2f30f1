// Package apiclient is a Go client for the back office API. It holds
// the credential pair for a session and renews it transparently: when
// a request comes back with an expired access token, exactly one
// renewal call is made no matter how many goroutines hit the expiry
// at the same time, and each original request is retried once with
// the fresh token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Error codes surfaced by the API that the client reacts to.
const (
	codeCredentialMissing = "CREDENTIAL_MISSING"
	codeCredentialExpired = "CREDENTIAL_EXPIRED"
	codeRefreshInvalid    = "REFRESH_INVALID"
)

// ErrSessionExpired is returned when renewal is impossible: there is
// no refresh token, or the server rejected it. The caller should send
// the user back to login.
var ErrSessionExpired = fmt.Errorf("apiclient: session expired, login required")

// APIError is a non-2xx response decoded from the standard envelope.
type APIError struct {
	StatusCode int
	Code       string `json:"error_code"`
	Message    string `json:"error_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type envelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refreshAttempt is one in-flight renewal. Waiters block on done and
// read ok afterwards; only the goroutine that created the attempt
// performs the renewal call.
type refreshAttempt struct {
	done chan struct{}
	ok   bool
}

// Client is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// OnSessionExpired, if set, is called once when the client gives
	// up on renewal, and not again until a new pair is stored. The UI
	// typically navigates to login here.
	OnSessionExpired func()

	mu       sync.Mutex
	access   string
	refresh  string
	attempt  *refreshAttempt
	notified bool
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetTokens seeds the credential pair, typically after Login.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.access = access
	c.refresh = refresh
	c.notified = false
	c.mu.Unlock()
}

// ClearTokens drops the pair, typically on logout.
func (c *Client) ClearTokens() {
	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.mu.Unlock()
}

// Login authenticates and stores the returned pair on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	data, err := c.doOnce(ctx, http.MethodPost, "/api/auth/login", body, false)
	if err != nil {
		return err
	}
	var pair tokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	c.SetTokens(pair.AccessToken, pair.RefreshToken)
	return nil
}

// Logout revokes the session server-side and clears local state.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh != "" {
		_, _ = c.doOnce(ctx, http.MethodPost, "/api/auth/logout",
			map[string]string{"refresh_token": refresh}, false)
	}
	c.ClearTokens()
	return nil
}

// Do performs an authenticated request. On an expired access token it
// joins or starts a single renewal, then retries exactly once. A
// missing token or a failed renewal returns ErrSessionExpired without
// further attempts.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	c.mu.Lock()
	usedAccess := c.access
	c.mu.Unlock()
	if usedAccess == "" {
		c.sessionExpired()
		return ErrSessionExpired
	}

	data, err := c.doOnce(ctx, method, path, body, true)
	if err == nil {
		return decodeInto(data, out)
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		return err
	}
	if apiErr.Code == codeCredentialMissing {
		c.sessionExpired()
		return ErrSessionExpired
	}
	if apiErr.Code != codeCredentialExpired {
		return err
	}

	if !c.renew(ctx, usedAccess) {
		c.sessionExpired()
		return ErrSessionExpired
	}

	// Retried requests never re-enter the renewal branch.
	data, err = c.doOnce(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// renew obtains a fresh pair, coalescing concurrent callers onto one
// renewal request. usedAccess is the token the failing request carried;
// when it no longer matches the stored token, someone else already
// renewed and no further call is needed. Returns true when the client
// now holds a usable access token.
func (c *Client) renew(ctx context.Context, usedAccess string) bool {
	c.mu.Lock()
	if c.access != "" && c.access != usedAccess {
		c.mu.Unlock()
		return true
	}
	if c.attempt != nil {
		// Someone else is already renewing; wait for their result.
		attempt := c.attempt
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.ok
		case <-ctx.Done():
			return false
		}
	}

	attempt := &refreshAttempt{done: make(chan struct{})}
	c.attempt = attempt
	refresh := c.refresh
	c.mu.Unlock()

	ok := false
	rejected := refresh == ""
	if refresh != "" {
		pair, err := c.callRefresh(ctx, refresh)
		if err == nil {
			c.mu.Lock()
			c.access = pair.AccessToken
			c.refresh = pair.RefreshToken
			c.notified = false
			c.mu.Unlock()
			ok = true
		} else if apiErr, isAPI := err.(*APIError); isAPI && apiErr.Code == codeRefreshInvalid {
			rejected = true
		}
	}

	c.mu.Lock()
	if rejected {
		// The server will never accept this credential again.
		c.access = ""
		c.refresh = ""
	}
	attempt.ok = ok
	c.attempt = nil
	c.mu.Unlock()
	close(attempt.done)
	return ok
}

func (c *Client) callRefresh(ctx context.Context, refresh string) (*tokenPair, error) {
	data, err := c.doOnce(ctx, http.MethodPost, "/api/auth/refresh",
		map[string]string{"refresh_token": refresh}, false)
	if err != nil {
		return nil, err
	}
	var pair tokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// doOnce performs a single HTTP round trip with no renewal logic.
func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}, auth bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		c.mu.Lock()
		token := c.access
		c.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("apiclient: bad response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && env.Success {
		return env.Data, nil
	}
	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Code:       env.ErrorCode,
		Message:    env.ErrorMessage,
	}
}

func (c *Client) sessionExpired() {
	c.mu.Lock()
	if c.notified || c.OnSessionExpired == nil {
		c.mu.Unlock()
		return
	}
	c.notified = true
	fn := c.OnSessionExpired
	c.mu.Unlock()
	fn()
}

func decodeInto(data json.RawMessage, out interface{}) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
