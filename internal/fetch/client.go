// Package fetch is a small JSON client for the third-party data APIs the
// lookup commands use. Failures come back as apperr errors ready to show
// to users.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 4 << 20

// StatusError carries an unexpected HTTP status.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.Code)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client talks to one service.
type Client struct {
	service string
	baseURL string
	header  http.Header
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New returns a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: baseURL,
		header:  make(http.Header),
		http:    &http.Client{Timeout: constants.DefaultFetchTimeout},
	}
	c.header.Set("Accept", "application/json")
	c.header.Set("User-Agent", "guildbot")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service is the name used in user messages.
func (c *Client) Service() string { return c.service }

// Get requests baseURL+endpoint with params and returns the parsed body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (gjson.Result, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s request: %w", c.service, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	log := logger.WithFields(logrus.Fields{
		"service":  c.service,
		"endpoint": endpoint,
	})
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("fetch-request-failed")
		return gjson.Result{}, apperr.Transient(err, fmt.Sprintf("Could not reach %s.", c.service))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return gjson.Result{}, apperr.Transient(err, fmt.Sprintf("Could not read the %s response.", c.service))
	}
	log.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).String(),
	}).Debug("fetch-request-finished")

	if err := c.classify(resp.StatusCode); err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, apperr.Transient(errors.New("invalid json"), fmt.Sprintf("%s sent an unreadable response.", c.service))
	}
	return gjson.ParseBytes(body), nil
}

func (c *Client) classify(code int) error {
	status := &StatusError{Service: c.service, Code: code}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &apperr.Error{
			Kind: apperr.KindConfiguration,
			Msg:  fmt.Sprintf("The %s API key was rejected.", c.service),
			Hint: "Check the key in the bot configuration.",
			Err:  status,
		}
	case code == http.StatusTooManyRequests || code >= 500:
		return apperr.Transient(status, fmt.Sprintf("%s is unavailable right now.", c.service))
	default:
		return &apperr.Error{
			Kind: apperr.KindUsage,
			Msg:  fmt.Sprintf("%s request failed (status %d).", c.service, code),
			Err:  status,
		}
	}
}
