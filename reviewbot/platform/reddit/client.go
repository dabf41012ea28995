// Package reddit implements platform.Client against the Reddit OAuth API, authenticating as a script app with the
// password grant.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

const (
	DefaultHost     = "https://oauth.reddit.com"
	DefaultAuthHost = "https://www.reddit.com"
)

type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

type Client struct {
	// HTTP client to use. Defaults to util.RobustHTTPClient.
	Client   *http.Client
	Host     string
	AuthHost string
	// Reddit rejects requests without a descriptive user agent
	UserAgent string
	Creds     Credentials
	// If not nil, every API request waits on this limiter
	Limiter *rate.Limiter
	Logger  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ platform.Client = (*Client)(nil)

func NewClient(creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reddit")
	return &Client{
		Client:    util.RobustHTTPClient(logger),
		Host:      DefaultHost,
		AuthHost:  DefaultAuthHost,
		UserAgent: fmt.Sprintf("go:reviewbot:%s (by /u/%s)", versioninfo.Short(), creds.Username),
		Creds:     creds,
		// OAuth clients get 100 requests per minute
		Limiter: rate.NewLimiter(rate.Every(time.Minute/100), 5),
		Logger:  logger,
	}
}

func (c *Client) Username() string {
	return c.Creds.Username
}

// Error is a non-success HTTP response from the API.
type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("reddit API error %d", e.StatusCode)
	}
	if e.StatusCode == http.StatusTooManyRequests && e.Ratelimit != nil {
		return fmt.Sprintf("reddit API error %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("reddit API error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type RatelimitInfo struct {
	Remaining float64
	Used      int
	Reset     time.Time
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if resp.StatusCode == http.StatusNotFound {
		r.Wrapped = platform.ErrNotFound
	}
	if resp.Header.Get("x-ratelimit-remaining") != "" {
		r.Ratelimit = &RatelimitInfo{}
		if n, err := strconv.ParseFloat(resp.Header.Get("x-ratelimit-remaining"), 64); err == nil {
			r.Ratelimit.Remaining = n
		}
		if n, err := strconv.Atoi(resp.Header.Get("x-ratelimit-used")); err == nil {
			r.Ratelimit.Used = n
		}
		if n, err := strconv.Atoi(resp.Header.Get("x-ratelimit-reset")); err == nil {
			r.Ratelimit.Reset = time.Now().Add(time.Duration(n) * time.Second)
		}
	}
	return r
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a cached bearer token, fetching a new one shortly before the old one expires.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.Creds.Username)
	form.Set("password", c.Creds.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AuthHost+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.Creds.ClientID, c.Creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errorFromHTTPResponse(resp, fmt.Errorf("access token request failed"))
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding access token: %w", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", fmt.Errorf("access token request rejected: %s", tok.Error)
	}
	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Do sends one API request. GET params go in the query string, anything else is form-encoded. A JSON response body
// is decoded into out when out is not nil.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("raw_json", "1")

	var body io.Reader
	u := c.Host + path
	if method == http.MethodGet {
		u += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.dropToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.Logger.Debug("reddit API request failed", "method", method, "path", path, "status", resp.StatusCode, "body", string(b))
		return errorFromHTTPResponse(resp, fmt.Errorf("%s %s", method, path))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response to %s: %w", path, err)
	}
	return nil
}
