package directory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
)

var errRemote = errors.New("remote unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// inFlight counts concurrent remote calls across clients and keeps the peak.
type inFlight struct {
	current atomic.Int32
	peak    atomic.Int32
}

// enter marks a call as running, holds it briefly so overlapping calls are
// observable, and returns the function that ends it.
func (f *inFlight) enter() func() {
	if f == nil {
		return func() {}
	}
	n := f.current.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return func() { f.current.Add(-1) }
}

func (f *inFlight) max() int {
	return int(f.peak.Load())
}

// fakeClient serves a fixed catalog and records the calls made to it.
type fakeClient struct {
	mu sync.Mutex

	entries   []directory.Entry
	variables map[string][]directory.Variable

	authErr      error
	listErr      error
	variablesErr error

	authCalls      int
	listCalls      int
	variablesCalls int
	sets           [][]directory.Value

	tracker *inFlight
}

func (f *fakeClient) Authenticate(context.Context) error {
	defer f.tracker.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	return f.authErr
}

func (f *fakeClient) ListEntries(context.Context) ([]directory.Entry, error) {
	defer f.tracker.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeClient) ListVariables(_ context.Context, entryID string) ([]directory.Variable, error) {
	defer f.tracker.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variablesCalls++
	if f.variablesErr != nil {
		return nil, f.variablesErr
	}
	return f.variables[entryID], nil
}

func (f *fakeClient) SetValues(_ context.Context, _ directory.Entry, values []directory.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, values)
	return nil
}

func (f *fakeClient) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeClient) setEntries(entries []directory.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

func (f *fakeClient) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeClient) variablesCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variablesCalls
}

// factoryFor returns a ClientFactory that hands out clients by credential.
func factoryFor(clients map[string]*fakeClient) directory.ClientFactory {
	return func(_ int, credential string) (directory.Client, error) {
		c, ok := clients[credential]
		if !ok {
			return nil, errors.New("unknown credential")
		}
		return c, nil
	}
}

// fullTTL makes every fresh expiry land exactly one TTL away.
func fullTTL(ttl time.Duration) time.Duration { return ttl }
