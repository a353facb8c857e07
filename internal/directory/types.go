package directory

import (
	"context"
	"sort"
	"time"
)

// Entry is a remote catalog record ("datasource") for one device in one account.
type Entry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// Variable is a named field on an Entry that receives timestamped values.
type Variable struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// Value is a single variable update sent to the remote service.
type Value struct {
	// VariableID is the remote identifier of the target variable.
	VariableID string

	// Name is the message field (and variable name) the value came from.
	Name string

	// Value is the raw field value from the message.
	Value any

	// Timestamp is the message time in Unix milliseconds. Zero lets the
	// remote service assign its own receive time.
	Timestamp int64

	// Context carries the rest of the message, never including Name itself.
	Context map[string]any
}

// Client is the per-account capability set the directory consumes.
//
// One Client exists per account credential. Implementations own their own
// timeouts; the directory never layers one on top.
type Client interface {
	// Authenticate establishes a session for the subsequent calls.
	Authenticate(ctx context.Context) error

	// ListEntries returns every catalog entry visible to the account.
	ListEntries(ctx context.Context) ([]Entry, error)

	// ListVariables returns the variables defined on one entry.
	ListVariables(ctx context.Context, entryID string) ([]Variable, error)

	// SetValues writes a batch of values for variables of entry in one call.
	SetValues(ctx context.Context, entry Entry, values []Value) error
}

// ClientFactory creates the Client for one account credential.
// account is the credential's position in the configured key list.
type ClientFactory func(account int, credential string) (Client, error)

// Clock abstracts time for expiry decisions.
// Production code uses RealClock; tests inject a controllable clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

// Binding ties a device ID to its catalog entry in one account.
type Binding struct {
	// Account is the position of the account in the configured key list.
	Account int

	// AccountName is the redacted credential, safe to log.
	AccountName string

	Client Client
	Entry  Entry
}

// Index maps device IDs to the binding for a single account.
type Index map[string]Binding

// Directory is the merged, account-spanning view of all catalogs.
//
// A Directory is immutable once returned by Cache. A new Directory with a
// higher Generation replaces it on every rebuild.
type Directory struct {
	// Generation increases by one on every rebuild.
	Generation uint64

	// BuiltAt is when the directory was merged.
	BuiltAt time.Time

	devices map[string][]Binding
}

// Bindings returns the per-account bindings for a device, in account order.
// The result is nil if the device is unknown.
func (d *Directory) Bindings(deviceID string) []Binding {
	if d == nil {
		return nil
	}
	return d.devices[deviceID]
}

// Len returns the number of distinct device IDs in the directory.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.devices)
}

// DeviceIDs returns all device IDs in sorted order.
func (d *Directory) DeviceIDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, 0, len(d.devices))
	for id := range d.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Logger defines the logging interface used by the directory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// redactedPrefixLen is how much of a credential may appear in logs.
const redactedPrefixLen = 10

// Redact returns a loggable form of an account credential.
func Redact(credential string) string {
	if len(credential) <= redactedPrefixLen {
		return "***"
	}
	return credential[:redactedPrefixLen] + "..."
}
