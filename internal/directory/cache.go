package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// placeholderPrefix marks a credential copied from a sample config.
const placeholderPrefix = "YOUR_"

// Options configures a Cache.
type Options struct {
	// Credentials lists the account API keys in enumeration order.
	Credentials []string

	// TTL bounds how long an account index is served. Defaults to DefaultTTL.
	TTL time.Duration

	// NewClient creates the remote client for each account. Required.
	NewClient ClientFactory

	// Clock defaults to RealClock.
	Clock Clock

	// Jitter picks each fresh expiry within the TTL. Defaults to uniform random.
	Jitter JitterFunc

	Logger Logger
}

// Cache is the multi-account directory cache.
//
// It owns one AccountCache per credential and the last merged Directory.
// The credential list and TTL are fixed at construction.
type Cache struct {
	accounts []*AccountCache
	clock    Clock
	logger   Logger

	mu         sync.Mutex
	merged     *Directory
	generation uint64
}

// New creates a directory cache for the given accounts.
//
// Duplicate credentials are collapsed so each account contributes at most one
// binding per device. An empty list or a placeholder credential is a
// configuration error.
func New(opts Options) (*Cache, error) {
	if opts.NewClient == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Jitter == nil {
		opts.Jitter = randomJitter
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	seen := make(map[string]bool, len(opts.Credentials))
	var accounts []*AccountCache
	for _, cred := range opts.Credentials {
		cred = strings.TrimSpace(cred)
		if cred == "" || strings.HasPrefix(cred, placeholderPrefix) {
			return nil, ErrPlaceholderKey
		}
		if seen[cred] {
			opts.Logger.Warn("duplicate account credential ignored", "account", Redact(cred))
			continue
		}
		seen[cred] = true
		accounts = append(accounts, newAccountCache(len(accounts), cred, opts.TTL, opts.Clock, opts.Jitter, opts.NewClient, opts.Logger))
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	return &Cache{
		accounts: accounts,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}, nil
}

// SetLogger sets the logger for the cache and its accounts.
// It must be called before the cache is shared.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
	for _, a := range c.accounts {
		a.logger = logger
	}
}

// Accounts returns the per-account caches in enumeration order.
func (c *Cache) Accounts() []*AccountCache {
	out := make([]*AccountCache, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Current returns the last merged directory without refreshing, or nil.
func (c *Cache) Current() *Directory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merged
}

// Directory returns the merged directory, rebuilding it when needed.
//
// While a merged directory exists and no account is stale, it is returned
// unchanged with no remote calls. Otherwise every account is loaded in turn,
// one at a time, and the indexes are merged into a new Directory. force
// refreshes every account regardless of expiry.
//
// If a rebuild is aborted (context cancelled, or an account has no usable
// client) the cached directory is discarded and the error is returned; the
// next call rebuilds from scratch.
func (c *Cache) Directory(ctx context.Context, force bool) (*Directory, error) {
	if merged := c.Current(); merged != nil && !force && !c.anyStale(c.clock.Now()) {
		metrics.DirectoryMerges.WithLabelValues(metrics.OutcomeCached).Inc()
		return merged, nil
	}

	indexes := make([]Index, 0, len(c.accounts))
	for _, a := range c.accounts {
		if err := ctx.Err(); err != nil {
			return nil, c.abort(fmt.Errorf("%w: %w", ErrMergeAborted, err))
		}
		res, err := a.Load(ctx, force)
		if err != nil {
			return nil, c.abort(fmt.Errorf("%w: %w", ErrMergeAborted, err))
		}
		indexes = append(indexes, res.Index)
	}

	devices := mergeIndexes(indexes)

	c.mu.Lock()
	c.generation++
	dir := &Directory{
		Generation: c.generation,
		BuiltAt:    c.clock.Now(),
		devices:    devices,
	}
	c.merged = dir
	c.mu.Unlock()

	metrics.DirectoryMerges.WithLabelValues(metrics.OutcomeRebuilt).Inc()
	metrics.DirectoryDevices.Set(float64(len(devices)))
	c.logger.Info("directory rebuilt",
		"generation", dir.Generation,
		"accounts", len(indexes),
		"devices", len(devices),
	)
	return dir, nil
}

// anyStale reports whether any account needs a refresh at now.
func (c *Cache) anyStale(now time.Time) bool {
	for _, a := range c.accounts {
		if a.Stale(now) {
			return true
		}
	}
	return false
}

// abort discards the merged directory and logs err.
func (c *Cache) abort(err error) error {
	c.mu.Lock()
	c.merged = nil
	c.mu.Unlock()

	metrics.DirectoryMerges.WithLabelValues(metrics.OutcomeAborted).Inc()
	c.logger.Error("directory rebuild aborted", "error", err)
	return err
}

// mergeIndexes unions per-account indexes into device ID -> bindings.
// Each device's bindings follow the order of indexes, one per account.
func mergeIndexes(indexes []Index) map[string][]Binding {
	size := 0
	for _, idx := range indexes {
		size += len(idx)
	}

	devices := make(map[string][]Binding, size)
	for _, idx := range indexes {
		for id, b := range idx {
			devices[id] = append(devices[id], b)
		}
	}
	return devices
}
