// Package identity obtains disposable test identities from an external
// provisioning service that is known to be flaky.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"golang.org/x/time/rate"

	"github.com/ternarybob/treeherder-uitests/internal/common"
)

const (
	// DefaultURL is the persona test user endpoint.
	DefaultURL = "http://personatestuser.org/email"

	// DefaultMaxAttempts is the number of requests made before giving up.
	DefaultMaxAttempts = 5

	// DefaultRetryDelay spaces consecutive attempts.
	DefaultRetryDelay = 250 * time.Millisecond

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// maxBodySize bounds how much of a response is read and kept for diagnostics.
	maxBodySize = 64 * 1024
)

// User is the payload returned by the provisioning service.
type User struct {
	Email string         `json:"email"`
	Pass  string         `json:"pass"`
	Raw   map[string]any `json:"-"`
}

// Credentials is the sign-in shape tests work with.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
	URL      string `json:"url"`
}

// Credentials derives sign-in credentials. Name and username are the local
// part of the email address.
func (u *User) Credentials() Credentials {
	local, _, _ := strings.Cut(u.Email, "@")
	return Credentials{
		Email:    u.Email,
		Password: u.Pass,
		Name:     local,
		Username: local,
		URL:      "http://www.mozilla.org/",
	}
}

// Client fetches identities with a bounded number of attempts.
type Client struct {
	url         string
	maxAttempts int
	httpClient  *http.Client
	logger      arbor.ILogger
	limiter     *rate.Limiter
	validate    *validator.Validate
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithURL sets the provisioning endpoint.
func WithURL(url string) ClientOption {
	return func(c *Client) {
		c.url = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMaxAttempts sets the attempt ceiling. Values below 1 are ignored.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the minimum spacing between attempts. Zero retries immediately.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = newLimiter(delay)
	}
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// NewClient creates a new identity client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		url:         DefaultURL,
		maxAttempts: DefaultMaxAttempts,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:  newLimiter(DefaultRetryDelay),
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = common.GetLogger()
	}

	return c
}

// NewClientFromConfig creates a client from the [identity] configuration section.
func NewClientFromConfig(cfg common.IdentityConfig, logger arbor.ILogger) *Client {
	return NewClient(
		WithURL(cfg.URL),
		WithMaxAttempts(cfg.MaxAttempts),
		WithRetryDelay(cfg.RetryDelay.Std()),
		WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout.Std()}),
		WithLogger(logger),
	)
}

// MaxAttempts returns the configured attempt ceiling.
func (c *Client) MaxAttempts() int {
	return c.maxAttempts
}

// Fetch requests an identity until one with a valid email arrives or the
// attempts run out. Malformed bodies, payloads without an email and transport
// failures are retried; exhaustion returns *FetchExhaustedError holding one
// entry per attempt. Context cancellation is returned as is.
func (c *Client) Fetch(ctx context.Context) (*User, error) {
	attempts := make([]Attempt, 0, c.maxAttempts)

	for n := 1; n <= c.maxAttempts; n++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("identity fetch aborted before attempt %d: %w", n, err)
		}

		user, err := c.attempt(ctx, n)
		if err == nil {
			c.logger.Info().
				Str("email", user.Email).
				Int("attempt", n).
				Msg("Obtained test identity")
			return user, nil
		}

		var transient *TransientFetchError
		if !errors.As(err, &transient) {
			return nil, err
		}

		attempts = append(attempts, transient.Attempt)
		c.logger.Warn().
			Str("url", c.url).
			Int("attempt", n).
			Int("max_attempts", c.maxAttempts).
			Msg(transient.Attempt.String())
	}

	return nil, &FetchExhaustedError{URL: c.url, Attempts: attempts}
}

// attempt performs one request and classifies the outcome.
func (c *Client) attempt(ctx context.Context, n int) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("identity fetch cancelled during attempt %d: %w", n, ctx.Err())
		}
		return nil, &TransientFetchError{
			Attempt: Attempt{Number: n, Reason: fmt.Sprintf("request failed: %v", err)},
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &TransientFetchError{
			Attempt: Attempt{Number: n, StatusCode: resp.StatusCode, Reason: fmt.Sprintf("failed to read response: %v", err)},
			Err:     err,
		}
	}
	if len(body) > maxBodySize {
		return nil, &TransientFetchError{
			Attempt: Attempt{
				Number:     n,
				StatusCode: resp.StatusCode,
				Reason:     fmt.Sprintf("response too large (over %d bytes)", maxBodySize),
				Body:       string(body[:maxBodySize]),
			},
			Err: ErrResponseTooLarge,
		}
	}

	if !gjson.ValidBytes(body) {
		return nil, &TransientFetchError{
			Attempt: Attempt{
				Number:     n,
				StatusCode: resp.StatusCode,
				Reason:     "no JSON was returned",
				Body:       string(body),
			},
			Err: ErrMalformedResponse,
		}
	}

	email := gjson.GetBytes(body, "email").String()
	if err := c.validate.Var(email, "required,email"); err != nil {
		return nil, &TransientFetchError{
			Attempt: Attempt{
				Number:     n,
				StatusCode: resp.StatusCode,
				Reason:     "response has no usable email",
				Body:       prettyJSON(body),
			},
			Err: ErrMissingEmail,
		}
	}

	user := &User{
		Email: email,
		Pass:  gjson.GetBytes(body, "pass").String(),
	}
	if err := json.Unmarshal(body, &user.Raw); err != nil {
		return nil, &TransientFetchError{
			Attempt: Attempt{Number: n, StatusCode: resp.StatusCode, Reason: fmt.Sprintf("failed to decode response: %v", err), Body: string(body)},
			Err:     err,
		}
	}

	return user, nil
}

// prettyJSON renders a payload with sorted keys and a four space indent.
func prettyJSON(body []byte) string {
	out := pretty.PrettyOptions(body, &pretty.Options{
		Width:    80,
		Indent:   "    ",
		SortKeys: true,
	})
	return strings.TrimRight(string(out), "\n")
}
