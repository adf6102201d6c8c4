package audience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/okuraya/dataglue/retry"
)

const defaultBaseURL = "https://graph.facebook.com/v12.0"

// The add endpoint takes large payloads; remove chokes on anything
// much past a thousand values.
const (
	addChunkSize    = 12000
	removeChunkSize = 1000
)

// Option is an option for Client.
type Option interface {
	apply(*Client) error
}

type option func(*Client) error

func (o option) apply(c *Client) error {
	return o(c)
}

// WithHTTPClient sets the HTTP client used for Graph API calls.
func WithHTTPClient(hc *http.Client) Option {
	return option(func(c *Client) error {
		if hc == nil {
			return xerrors.New("http client must not be nil")
		}
		c.hc = hc
		return nil
	})
}

// WithBaseURL points the client at a different API root, such as a
// local fake.
func WithBaseURL(u string) Option {
	return option(func(c *Client) error {
		if u == "" {
			return xerrors.New("base url must not be empty")
		}
		c.baseURL = u
		return nil
	})
}

// WithLimiter replaces the default limiter of 10 requests per second.
func WithLimiter(l *rate.Limiter) Option {
	return option(func(c *Client) error {
		if l == nil {
			return xerrors.New("limiter must not be nil")
		}
		c.limiter = l
		return nil
	})
}

// WithRetryPolicy replaces the default policy of 6 attempts with
// doubling backoff.
func WithRetryPolicy(p retry.Policy) Option {
	return option(func(c *Client) error {
		c.policy = p
		return nil
	})
}

// Client calls the Graph API for one ad account.
type Client struct {
	accountID string
	token     string
	baseURL   string
	hc        *http.Client
	limiter   *rate.Limiter
	policy    retry.Policy
}

// New builds a Client for the ad account.
func New(accountID, token string, opts ...Option) (*Client, error) {
	c := &Client{
		accountID: accountID,
		token:     token,
		baseURL:   defaultBaseURL,
		hc:        http.DefaultClient,
		limiter:   rate.NewLimiter(10, 1),
		policy: retry.Policy{
			MaxAttempts: 6,
			BaseDelay:   time.Second,
			MaxDelay:    32 * time.Second,
			Multiplier:  2,
		},
	}
	for _, o := range opts {
		if err := o.apply(c); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Create makes a custom audience under the ad account and returns its
// ID.
func (c *Client) Create(ctx context.Context, name, description string) (string, error) {
	body := map[string]string{
		"name":    name,
		"subtype": "CUSTOM",
	}
	if description != "" {
		body["description"] = description
	}

	var resp struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/act_%s/customaudiences", c.accountID)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", xerrors.Errorf("failed to create audience %s: %w", name, err)
	}

	l := log.Ctx(ctx)
	l.Debug().Msgf("audience %s created as %s", name, resp.ID)
	return resp.ID, nil
}

// Delete removes the audience.
func (c *Client) Delete(ctx context.Context, audienceID string) error {
	if err := c.do(ctx, http.MethodDelete, "/"+audienceID, nil, nil); err != nil {
		return xerrors.Errorf("failed to delete audience %s: %w", audienceID, err)
	}

	l := log.Ctx(ctx)
	l.Debug().Msgf("audience %s deleted", audienceID)
	return nil
}

const audienceFields = "id,name,approximate_count,time_updated,time_content_updated"

// Get fetches the audience's descriptive fields.
func (c *Client) Get(ctx context.Context, audienceID string) (*Audience, error) {
	var resp struct {
		ID                 string `json:"id"`
		Name               string `json:"name"`
		ApproximateCount   int64  `json:"approximate_count"`
		TimeUpdated        int64  `json:"time_updated"`
		TimeContentUpdated int64  `json:"time_content_updated"`
	}
	path := fmt.Sprintf("/%s?fields=%s", audienceID, audienceFields)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, xerrors.Errorf("failed to get audience %s: %w", audienceID, err)
	}

	a := &Audience{
		ID:               resp.ID,
		Name:             resp.Name,
		ApproximateCount: resp.ApproximateCount,
	}
	if resp.TimeUpdated != 0 {
		a.TimeUpdated = time.Unix(resp.TimeUpdated, 0)
	}
	if resp.TimeContentUpdated != 0 {
		a.TimeContentUpdated = time.Unix(resp.TimeContentUpdated, 0)
	}
	return a, nil
}

// AddUsers adds values to the audience in chunks. Hashed schemas are
// normalized and hashed client-side, raw values never leave the
// process.
func (c *Client) AddUsers(ctx context.Context, audienceID string, schema Schema, values []string) error {
	return c.updateUsers(ctx, http.MethodPost, audienceID, schema, values, addChunkSize)
}

// RemoveUsers removes values from the audience in chunks.
func (c *Client) RemoveUsers(ctx context.Context, audienceID string, schema Schema, values []string) error {
	return c.updateUsers(ctx, http.MethodDelete, audienceID, schema, values, removeChunkSize)
}

type userPayload struct {
	Payload payload `json:"payload"`
}

type payload struct {
	Schema string     `json:"schema"`
	Data   [][]string `json:"data"`
}

func (c *Client) updateUsers(ctx context.Context, method, audienceID string, schema Schema, values []string, size int) error {
	if schema.hashed() {
		values = hashValues(values)
	}

	l := log.Ctx(ctx)
	parts := chunks(values, size)
	for i, part := range parts {
		data := make([][]string, len(part))
		for j, v := range part {
			data[j] = []string{v}
		}
		body := userPayload{Payload: payload{Schema: schema.String(), Data: data}}
		if err := c.do(ctx, method, "/"+audienceID+"/users", body, nil); err != nil {
			return xerrors.Errorf("failed to update audience %s: %w", audienceID, err)
		}
		l.Debug().Msgf("audience %s: sent chunk %d/%d with %d users", audienceID, i+1, len(parts), len(part))
	}
	return nil
}

// do runs one Graph API call under the retry policy. Every attempt,
// including retries, waits for the rate limiter first.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.roundTrip(ctx, method, path, body, out)
	}
	return retry.Do(ctx, c.policy, op, isTransient)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return xerrors.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return xerrors.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return xerrors.Errorf("failed to call graph api: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("failed to read response: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().Msgf("graph api %s %s: %d", method, path, resp.StatusCode)

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return &statusError{code: resp.StatusCode, body: string(b)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp.StatusCode, b)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return xerrors.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// APIError is a structured error returned by the Graph API.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}

// statusError is a non-2xx response without a usable error body.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("graph api returned %d: %s", e.code, e.body)
}

func apiError(status int, body []byte) error {
	var resp struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil {
		return resp.Error
	}
	return &statusError{code: status, body: string(body)}
}

// isTransient reports whether an attempt failed at the transport
// level. Structured API errors and canceled contexts are permanent.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	return true
}
