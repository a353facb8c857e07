package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

var errRemote = errors.New("remote unavailable")

// fakeAccount is a directory.Client with a fixed catalog that records writes.
type fakeAccount struct {
	mu sync.Mutex

	entries   []directory.Entry
	variables map[string][]directory.Variable

	listErr      error
	variablesErr error
	setErr       error

	listCalls int
	sets      [][]directory.Value
}

func (f *fakeAccount) Authenticate(context.Context) error { return nil }

func (f *fakeAccount) ListEntries(context.Context) ([]directory.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeAccount) ListVariables(_ context.Context, entryID string) ([]directory.Variable, error) {
	if f.variablesErr != nil {
		return nil, f.variablesErr
	}
	return f.variables[entryID], nil
}

func (f *fakeAccount) SetValues(_ context.Context, _ directory.Entry, values []directory.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, values)
	return nil
}

func (f *fakeAccount) writes() [][]directory.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func (f *fakeAccount) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// newAccount returns an account holding device 2C30EB with the given variables.
func newAccount(entryID string, vars ...string) *fakeAccount {
	list := make([]directory.Variable, 0, len(vars))
	for _, v := range vars {
		list = append(list, directory.Variable{ID: entryID + "-" + v, Name: v})
	}
	return &fakeAccount{
		entries:   []directory.Entry{{ID: entryID, Name: "Sigfox Device 2c30eb"}},
		variables: map[string][]directory.Variable{entryID: list},
	}
}

// newDirectory builds a directory cache over accounts, in order.
func newDirectory(t *testing.T, accounts ...*fakeAccount) *directory.Cache {
	t.Helper()
	keys := make([]string, len(accounts))
	for i := range accounts {
		keys[i] = "A1E-test-key-000" + string(rune('a'+i))
	}
	cache, err := directory.New(directory.Options{
		Credentials: keys,
		NewClient: func(account int, _ string) (directory.Client, error) {
			return accounts[account], nil
		},
		Jitter: func(ttl time.Duration) time.Duration { return ttl },
	})
	if err != nil {
		t.Fatalf("directory.New() error = %v", err)
	}
	return cache
}

// memStore is an in-memory relay.StateStore.
type memStore struct {
	mu      sync.Mutex
	state   map[string]map[string]any
	readErr error
}

func newMemStore() *memStore {
	return &memStore{state: make(map[string]map[string]any)}
}

func (s *memStore) Reported(_ context.Context, deviceID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if st, ok := s.state[deviceID]; ok {
		return st, nil
	}
	return map[string]any{}, nil
}

func (s *memStore) SaveReported(_ context.Context, deviceID string, body map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[deviceID] = body
	return nil
}

func (s *memStore) get(deviceID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[deviceID]
}

// countingDirectory counts Directory calls.
type countingDirectory struct {
	relay.DirectorySource
	calls int
}

func (c *countingDirectory) Directory(ctx context.Context, force bool) (*directory.Directory, error) {
	c.calls++
	if c.DirectorySource == nil {
		return nil, errRemote
	}
	return c.DirectorySource.Directory(ctx, force)
}

type recordedPoint struct {
	deviceID string
	fields   map[string]any
	ts       time.Time
}

type fakeWriter struct {
	points []recordedPoint
}

func (w *fakeWriter) WriteTelemetry(deviceID string, fields map[string]any, ts time.Time) {
	w.points = append(w.points, recordedPoint{deviceID: deviceID, fields: fields, ts: ts})
}

type fakeRecorder struct {
	devices []string
	bodies  []map[string]any
}

func (r *fakeRecorder) Record(deviceID string, body map[string]any, _ int64) {
	r.devices = append(r.devices, deviceID)
	r.bodies = append(r.bodies, body)
}
