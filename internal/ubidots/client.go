package ubidots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// REST API paths, relative to the base URL.
const (
	pathAuthToken   = "/api/v1.6/auth/token/"
	pathDatasources = "/api/v1.6/datasources/"
	pathValues      = "/api/v1.6/collections/values/"
)

// Request headers.
const (
	headerAPIKey    = "X-Ubidots-ApiKey"
	headerAuthToken = "X-Auth-Token"
)

// Operation label values for RemoteRequestDuration.
const (
	opAuthenticate  = "authenticate"
	opListEntries   = "list_entries"
	opListVariables = "list_variables"
	opSetValues     = "set_values"
)

// Defaults applied by NewClient.
const (
	DefaultBaseURL     = "https://things.ubidots.com"
	DefaultTimeout     = 10 * time.Second
	DefaultPageSize    = 1000
	defaultBreakerTrip = 5
	defaultBreakerOpen = time.Minute
)

// maxErrorBodySize caps how much of an error response is kept.
const maxErrorBodySize = 1024

// maxPages stops a listing whose next links never end.
const maxPages = 1000

// maxPrealloc caps the capacity reserved from a page's reported count.
const maxPrealloc = 10000

// Options configures one account's REST client.
type Options struct {
	// Account is the account's position in the key list, used as metrics label.
	Account int

	APIKey  string
	BaseURL string

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration

	PageSize int

	// RequestsPerSecond paces requests. Zero or less disables pacing.
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures int
	// BreakerOpen is how long the breaker stays open before probing again.
	BreakerOpen time.Duration

	Logger Logger
}

// StatusError is a non-2xx response from the dashboard.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrRequestFailed.
func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// Client is the REST client for one dashboard account.
// It is safe for concurrent use.
type Client struct {
	account    string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	pageSize   int
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a REST client for one account.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = defaultBreakerTrip
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = defaultBreakerOpen
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		account:    metrics.AccountLabel(opts.Account),
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		pageSize:   opts.PageSize,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     opts.Logger,
	}
	c.breaker = newBreaker(c.account, opts.BreakerFailures, opts.BreakerOpen, opts.Logger)
	return c, nil
}

// newBreaker creates the per-account breaker. It opens after trip consecutive
// failures. 4xx responses other than 429 and cancelled or timed out requests
// do not count as failures.
func newBreaker(account string, trip int, open time.Duration, logger Logger) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(account).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "ubidots-account-" + account,
		MaxRequests: 1,
		Timeout:     open,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(trip)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// An abandoned request says nothing about the service.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"account", account,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(account).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Token returns the session token from the last successful Authenticate.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticate exchanges the API key for a session token.
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := c.do(ctx, opAuthenticate, http.MethodPost, c.baseURL+pathAuthToken, nil, false)
	if err != nil {
		return err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: decoding token: %w", ErrRequestFailed, err)
	}
	if resp.Token == "" {
		return fmt.Errorf("%w: empty token", ErrRequestFailed)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// page is one page of a v1.6 list response.
type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// ListEntries returns every datasource of the account, following next links.
func (c *Client) ListEntries(ctx context.Context) ([]directory.Entry, error) {
	first := c.baseURL + pathDatasources + "?page_size=" + strconv.Itoa(c.pageSize)
	entries, err := listAll[directory.Entry](ctx, c, opListEntries, first)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, ErrNoCatalog
	}
	return entries, nil
}

// ListVariables returns the variables of one datasource.
func (c *Client) ListVariables(ctx context.Context, entryID string) ([]directory.Variable, error) {
	first := c.baseURL + pathDatasources + url.PathEscape(entryID) + "/variables/?page_size=" + strconv.Itoa(c.pageSize)
	vars, err := listAll[directory.Variable](ctx, c, opListVariables, first)
	if err != nil {
		return nil, err
	}
	if vars == nil {
		vars = []directory.Variable{}
	}
	return vars, nil
}

// listAll collects results across pages. It returns nil when the first page
// has no results field at all.
func listAll[T any](ctx context.Context, c *Client, op, next string) ([]T, error) {
	var all []T
	seen := make(map[string]bool)

	for i := 0; next != "" && i < maxPages; i++ {
		if seen[next] {
			break
		}
		seen[next] = true

		body, err := c.do(ctx, op, http.MethodGet, next, nil, true)
		if err != nil {
			return nil, err
		}

		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %w", ErrRequestFailed, op, err)
		}
		if p.Results == nil && i == 0 {
			return nil, nil
		}
		if all == nil {
			all = make([]T, 0, max(min(p.Count, maxPrealloc), len(p.Results)))
		}
		all = append(all, p.Results...)
		next = p.Next
	}
	return all, nil
}

// wireValue is one element of a collections/values request.
type wireValue struct {
	Variable  string         `json:"variable"`
	Value     any            `json:"value"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// SetValues writes a batch of values in one request. An empty batch is a
// no-op. entry is unused by the REST encoding; variable IDs are global.
func (c *Client) SetValues(ctx context.Context, _ directory.Entry, values []directory.Value) error {
	if len(values) == 0 {
		return nil
	}

	batch := make([]wireValue, 0, len(values))
	for _, v := range values {
		batch = append(batch, wireValue{
			Variable:  v.VariableID,
			Value:     v.Value,
			Timestamp: v.Timestamp,
			Context:   v.Context,
		})
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding values: %w", err)
	}

	_, err = c.do(ctx, opSetValues, http.MethodPost, c.baseURL+pathValues, payload, true)
	return err
}

// do sends one request through the limiter and breaker and returns the body.
func (c *Client) do(ctx context.Context, op, method, reqURL string, payload []byte, auth bool) ([]byte, error) {
	var token string
	if auth {
		token = c.Token()
		if token == "" {
			return nil, ErrNotAuthenticated
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, op, err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, reqURL, payload, token)
	})

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RemoteRequestDuration.WithLabelValues(op, metrics.OutcomeRejected).Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, op, err)
	case err != nil:
		outcome = metrics.OutcomeFailure
	}
	metrics.RemoteRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, reqURL string, payload []byte, token string) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(headerAuthToken, token)
	} else {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}
	return body, nil
}

// readBodyForError reads a bounded prefix of an error response.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
