package directory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// DefaultTTL is the per-account cache lifetime used when none is configured.
const DefaultTTL = 30 * time.Second

// JitterFunc picks the lifetime of a fresh account index within [0, ttl).
type JitterFunc func(ttl time.Duration) time.Duration

// randomJitter spreads expiries across the TTL window so accounts sharing
// the same TTL do not all refresh on the same message.
func randomJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return rand.N(ttl)
}

// RefreshResult is the outcome of loading one account's index.
type RefreshResult struct {
	// Index is the index to use: fresh, or the previous one when Retained.
	Index Index

	// Refreshed reports whether a remote refresh was attempted.
	Refreshed bool

	// Retained reports that the refresh failed and the previous index was kept.
	Retained bool

	// Err is the refresh failure covered by Retained.
	Err error
}

// AccountCache holds the catalog index of one account and its expiry.
//
// States: fresh (expiry in the future), stale (expiry reached). Loading a
// stale cache sets a new randomised expiry, then refreshes via
// Authenticate -> ListEntries -> BuildIndex. A failed refresh keeps the
// previous index; the account serves stale (or empty) data until the new
// expiry passes.
type AccountCache struct {
	account    int
	credential string
	name       string
	ttl        time.Duration
	clock      Clock
	jitter     JitterFunc
	newClient  ClientFactory
	logger     Logger

	mu          sync.Mutex
	client      Client
	expiry      time.Time
	index       Index
	lastErr     error
	refreshedAt time.Time
}

// newAccountCache creates an account cache that starts stale with an empty index.
func newAccountCache(account int, credential string, ttl time.Duration, clock Clock, jitter JitterFunc, factory ClientFactory, logger Logger) *AccountCache {
	return &AccountCache{
		account:    account,
		credential: credential,
		name:       Redact(credential),
		ttl:        ttl,
		clock:      clock,
		jitter:     jitter,
		newClient:  factory,
		logger:     logger,
		index:      Index{},
	}
}

// Account returns the account's position in the configured key list.
func (a *AccountCache) Account() int {
	return a.account
}

// Name returns the redacted credential.
func (a *AccountCache) Name() string {
	return a.name
}

// Stale reports whether the expiry has been reached at now.
func (a *AccountCache) Stale(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !now.Before(a.expiry)
}

// Expiry returns the current freshness deadline.
func (a *AccountCache) Expiry() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expiry
}

// RefreshedAt returns when the index was last refreshed successfully.
// It is the zero time until the first success.
func (a *AccountCache) RefreshedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshedAt
}

// Devices returns the number of device IDs in the current index.
func (a *AccountCache) Devices() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.index)
}

// LastError returns the most recent refresh failure, or nil after a success.
func (a *AccountCache) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Load returns the account's index, refreshing it first when stale or forced.
//
// Refresh failures are not errors: they are reported in RefreshResult with the
// previous index retained. Load only returns an error when no Client can be
// created for the account.
func (a *AccountCache) Load(ctx context.Context, force bool) (RefreshResult, error) {
	now := a.clock.Now()

	a.mu.Lock()
	if !force && now.Before(a.expiry) {
		index := a.index
		a.mu.Unlock()
		return RefreshResult{Index: index}, nil
	}

	client := a.client
	if client == nil {
		c, err := a.newClient(a.account, a.credential)
		if err != nil {
			a.mu.Unlock()
			return RefreshResult{}, fmt.Errorf("%w: account %s: %w", ErrClientUnavailable, a.name, err)
		}
		a.client = c
		client = c
	}

	// The new expiry is set before the refresh starts, so a failed refresh
	// is not retried until it passes.
	a.expiry = now.Add(a.jitter(a.ttl))
	previous := a.index
	a.mu.Unlock()

	a.logger.Info("refreshing account catalog", "account", a.name)

	index, err := a.refresh(ctx, client)
	label := metrics.AccountLabel(a.account)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.lastErr = err
		a.logger.Error("account catalog refresh failed, keeping previous catalog",
			"account", a.name,
			"devices", len(previous),
			"error", err,
		)
		metrics.AccountRefreshes.WithLabelValues(label, metrics.OutcomeRetained).Inc()
		return RefreshResult{Index: previous, Refreshed: true, Retained: true, Err: err}, nil
	}

	a.index = index
	a.lastErr = nil
	a.refreshedAt = a.clock.Now()
	metrics.AccountRefreshes.WithLabelValues(label, metrics.OutcomeSuccess).Inc()
	return RefreshResult{Index: index, Refreshed: true}, nil
}

// refresh performs the remote calls for one account.
func (a *AccountCache) refresh(ctx context.Context, client Client) (Index, error) {
	if err := client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	entries, err := client.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}

	return BuildIndex(entries, a.account, a.name, client, a.logger), nil
}
