// Package client talks to a trustledger server over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"

	"github.com/totegamma/trustledger/internal/domain"
)

const (
	defaultTimeout    = 3 * time.Second
	defaultMaxRetries = 3
)

type Client struct {
	client     *http.Client
	cache      *cache.Cache
	userAgent  string
	endpoint   string
	requester  string
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

// WithRequester sets the identity sent with every request. Servers expect it
// to be injected by an authenticating proxy; setting it directly only works
// when the client is that proxy or talks to the server on a trusted network.
func WithRequester(id string) Option {
	return func(c *Client) {
		c.requester = id
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client = httpClient
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetry sets how many times a request rejected with a transaction
// conflict is sent again, and the delay before the first retry. Delays grow
// exponentially from there.
func WithRetry(maxRetries uint64, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initialInterval
			return b
		}
	}
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		client:    &http.Client{Timeout: defaultTimeout},
		cache:     cache.New(10*time.Second, 30*time.Second),
		userAgent: "trustledger-client",
		endpoint:  strings.TrimSuffix(endpoint, "/"),

		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response. It unwraps to the matching domain error
// so callers can use errors.Is against the same kinds the server uses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trustledger: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "self_vouch":
		return ErrSelfVouch
	case "duplicate_vouch":
		return ErrDuplicateVouch
	case "entity_exists":
		return ErrEntityExists
	case "not_found":
		return ErrNotFound
	case "unauthenticated":
		return ErrUnauthenticated
	case "bad_request":
		return ErrInvalidArgument
	case "conflict":
		return ErrTransactionConflict
	case "unavailable":
		return ErrStorageUnavailable
	}
	return nil
}

// do sends one request and decodes a JSON response into response. Requests
// the server rejected with a transaction conflict are retried.
func (c *Client) do(ctx context.Context, method, path string, body, response any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := c.send(ctx, method, path, payload, response)
		if err == nil {
			return nil
		}
		if domain.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, response any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requester != "" {
		req.Header.Set(RequesterHeader, c.requester)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Error
		}
		return apiErr
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CastVouch vouches for receiverID as the configured requester.
func (c *Client) CastVouch(ctx context.Context, receiverID string) (VouchResult, error) {
	var result VouchResult
	err := c.do(ctx, http.MethodPost, "/api/v1/vouches", map[string]string{"receiverId": receiverID}, &result)
	if err != nil {
		return VouchResult{}, err
	}
	c.cache.Delete("entity:" + receiverID)
	return result, nil
}

func (c *Client) RegisterEntity(ctx context.Context, id string) (Entity, error) {
	var entity Entity
	err := c.do(ctx, http.MethodPost, "/api/v1/entities", map[string]string{"id": id}, &entity)
	return entity, err
}

// GetEntity returns the entity's standing. Answers are cached briefly.
func (c *Client) GetEntity(ctx context.Context, id string) (Entity, error) {
	cacheKey := "entity:" + id
	if x, found := c.cache.Get(cacheKey); found {
		return x.(Entity), nil
	}

	var entity Entity
	err := c.do(ctx, http.MethodGet, "/api/v1/entities/"+url.PathEscape(id), nil, &entity)
	if err != nil {
		return Entity{}, err
	}

	c.cache.Set(cacheKey, entity, cache.DefaultExpiration)
	return entity, nil
}

// ListVouches returns recent vouches for id. direction is "received" or
// "given".
func (c *Client) ListVouches(ctx context.Context, id, direction string, limit int) ([]Vouch, error) {
	query := url.Values{}
	if direction != "" {
		query.Set("direction", direction)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/v1/entities/" + url.PathEscape(id) + "/vouches"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var vouches []Vouch
	err := c.do(ctx, http.MethodGet, path, nil, &vouches)
	return vouches, err
}

func (c *Client) Audit(ctx context.Context, id string) (AuditReport, error) {
	var report AuditReport
	err := c.do(ctx, http.MethodGet, "/api/v1/entities/"+url.PathEscape(id)+"/audit", nil, &report)
	return report, err
}
