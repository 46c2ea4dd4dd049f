// Package gateway is the only code that talks to the reading backend. It maps
// each resource kind to typed requests and responses, unwraps the backend's
// envelope, and turns HTTP failures into errcodes errors. It holds no state
// beyond its HTTP client and rate limiter.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/version"
	"golang.org/x/time/rate"
)

// Envelope wraps every backend response.
type Envelope[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	// Now is the clock used for derived fields. Defaults to time.Now.
	Now func() time.Time
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	creds   Credentials
	now     func() time.Time
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("gateway base url must be absolute: %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		limiter: limiter,
		now:     now,
	}, nil
}

// NewFromConfig builds a client without credentials from the app config.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	return New(Options{
		BaseURL:           cfg.APIBaseURL,
		Timeout:           cfg.APITimeout,
		RequestsPerSecond: cfg.APIRequestsPerSecond,
		Burst:             cfg.APIBurst,
	})
}

// WithCredentials returns a copy of the client that authenticates with creds.
// The copy shares the HTTP client and rate limiter.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// Now is the clock the client derives fields with.
func (c *Client) Now() time.Time {
	return c.now()
}

// call performs one request and unwraps the envelope's data into T.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body interface{}) (T, error) {
	var zero T

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return zero, errors.WithStack(err)
		}
	}

	resp, err := c.send(ctx, method, path, query, payload, false)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if refresher, ok := c.creds.(Refresher); ok {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if _, err := refresher.Refresh(ctx); err != nil {
				logger.FromContext(ctx).Err(err).Warn("credential refresh failed")
				return zero, errcodes.Unauthorized("Your session has expired. Please sign in again.")
			}
			resp, err = c.send(ctx, method, path, query, payload, true)
			if err != nil {
				return zero, err
			}
			defer resp.Body.Close()
		}
	}

	env := Envelope[T]{}
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, statusError(resp.StatusCode, env.Message, path)
	}
	if decodeErr != nil {
		if errors.Is(decodeErr, io.EOF) && resp.StatusCode == http.StatusNoContent {
			return zero, nil
		}
		logger.FromContext(ctx).Err(decodeErr).Warn("undecodable backend response", logger.Data{"path": path, "status": resp.StatusCode})
		return zero, errcodes.BadGateway("The reading service returned an unreadable response.")
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "The reading service rejected the request."
		}
		return zero, errcodes.BadGateway(msg)
	}

	return env.Data, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, retry bool) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errcodes.BadGateway("Request to the reading service was cancelled.")
		}
	}

	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "readtrack/"+version.Version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, errcodes.Unauthorized("No credentials available for the reading service.")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("backend request failed", logger.Data{
			"method": method,
			"path":   path,
			"retry":  retry,
		})
		return nil, errcodes.BadGateway(fmt.Sprintf("Couldn't reach the reading service (%s %s).", method, path))
	}
	return resp, nil
}

// statusError maps a non-2xx backend status to an errcodes error.
func statusError(status int, msg, path string) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "The reading service rejected the request."
		}
		return errcodes.ValidationError(msg)
	case status == http.StatusUnauthorized:
		if msg == "" {
			msg = "Authentication with the reading service failed."
		}
		return errcodes.Unauthorized(msg)
	case status == http.StatusForbidden:
		return errcodes.Forbidden("Accessing " + path)
	case status == http.StatusNotFound:
		return errcodes.NotFound(resourceName(path))
	case status == http.StatusConflict:
		if msg == "" {
			msg = "The entry was changed by another request."
		}
		return errcodes.Conflict(msg)
	default:
		if msg == "" {
			msg = fmt.Sprintf("The reading service responded with status %d.", status)
		}
		return errcodes.BadGateway(msg)
	}
}

func resourceName(path string) string {
	for _, k := range kindsByPath {
		if strings.HasPrefix(path, PathFor(k)) {
			return k.Label() + " entry"
		}
	}
	return "Resource"
}
