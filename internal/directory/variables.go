package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// Resolution is the variable lookup result for one binding of a device.
type Resolution struct {
	Binding Binding

	// Variables maps variable name to definition. Nil when Err is set.
	Variables map[string]Variable

	// Err is the failure to load this binding's variables.
	// Sibling bindings are unaffected.
	Err error
}

// variableKey identifies one entry within one account.
type variableKey struct {
	account int
	entryID string
}

// Resolver loads and memoises the variables of each binding.
//
// Memoised variables belong to the directory generation they were loaded
// under. When a newer directory is presented, everything loaded for older
// generations is dropped, so variables always re-resolve after a rebuild.
type Resolver struct {
	logger Logger

	mu         sync.Mutex
	generation uint64
	variables  map[variableKey]map[string]Variable
}

// NewResolver creates an empty variable resolver.
func NewResolver() *Resolver {
	return &Resolver{
		logger:    noopLogger{},
		variables: make(map[variableKey]map[string]Variable),
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve returns one Resolution per binding of deviceID, in binding order.
// found is false when the device is not in dir.
//
// Bindings are resolved one after another. A failed lookup produces a
// Resolution with Err set and resolution continues with the next binding.
func (r *Resolver) Resolve(ctx context.Context, dir *Directory, deviceID string) (resolutions []Resolution, found bool) {
	bindings := dir.Bindings(deviceID)
	if len(bindings) == 0 {
		return nil, false
	}

	resolutions = make([]Resolution, 0, len(bindings))
	for _, b := range bindings {
		key := variableKey{account: b.Account, entryID: b.Entry.ID}

		if vars, ok := r.cached(dir.Generation, key); ok {
			metrics.VariableResolutions.WithLabelValues(metrics.OutcomeCached).Inc()
			resolutions = append(resolutions, Resolution{Binding: b, Variables: vars})
			continue
		}

		vars, err := r.fetch(ctx, b)
		if err != nil {
			metrics.VariableResolutions.WithLabelValues(metrics.OutcomeFailure).Inc()
			r.logger.Error("loading variables failed",
				"device", deviceID,
				"account", b.AccountName,
				"entry_id", b.Entry.ID,
				"error", err,
			)
			resolutions = append(resolutions, Resolution{Binding: b, Err: err})
			continue
		}

		metrics.VariableResolutions.WithLabelValues(metrics.OutcomeFetched).Inc()
		r.store(dir.Generation, key, vars)
		resolutions = append(resolutions, Resolution{Binding: b, Variables: vars})
	}

	return resolutions, true
}

// fetch lists an entry's variables and indexes them by name.
// A later variable with a duplicate name replaces the earlier one.
func (r *Resolver) fetch(ctx context.Context, b Binding) (map[string]Variable, error) {
	list, err := b.Client.ListVariables(ctx, b.Entry.ID)
	if err != nil {
		return nil, fmt.Errorf("listing variables for entry %s: %w", b.Entry.ID, err)
	}

	vars := make(map[string]Variable, len(list))
	for _, v := range list {
		vars[v.Name] = v
	}
	return vars, nil
}

// cached returns memoised variables loaded under generation.
func (r *Resolver) cached(generation uint64, key variableKey) (map[string]Variable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation != r.generation {
		return nil, false
	}
	vars, ok := r.variables[key]
	return vars, ok
}

// store memoises vars for generation. A newer generation discards everything
// held for older ones. Results for an older generation are not kept.
func (r *Resolver) store(generation uint64, key variableKey, vars map[string]Variable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case generation > r.generation:
		r.generation = generation
		r.variables = make(map[variableKey]map[string]Variable)
	case generation < r.generation:
		return
	}
	r.variables[key] = vars
}

// Len returns the number of memoised variable maps.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.variables)
}
