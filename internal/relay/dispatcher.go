package relay

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// AccountResult is the dispatch outcome for one binding of a device.
type AccountResult struct {
	Account     int    `json:"account"`
	AccountName string `json:"account_name"`
	EntryID     string `json:"entry_id"`

	// Sent is the number of values written. Zero means no call was made.
	Sent int `json:"sent"`

	// ResolveErr is set when the binding's variables could not be loaded.
	// The account is skipped and the message still succeeds.
	ResolveErr error `json:"-"`

	// Err is the update failure for this account.
	Err error `json:"-"`
}

// BuildValues matches body fields against vars and returns one Value per
// match, in field name order. Absent, false, zero and empty fields are not
// sent. Each Value's context is the rest of the body without the field itself.
func BuildValues(vars map[string]directory.Variable, body map[string]any, timestamp int64) []directory.Value {
	if len(vars) == 0 {
		return nil
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var values []directory.Value
	for _, key := range keys {
		v, ok := vars[key]
		if !ok || !truthy(body[key]) {
			continue
		}
		rest := copyBody(body)
		delete(rest, key)
		values = append(values, directory.Value{
			VariableID: v.ID,
			Name:       key,
			Value:      body[key],
			Timestamp:  timestamp,
			Context:    rest,
		})
	}
	return values
}

// Dispatcher writes a message to every account that knows the device.
type Dispatcher struct {
	logger Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{logger: logger}
}

// Dispatch sends one batched update per resolved binding, one account after
// another. An account with nothing to send gets no call. A failed account
// does not stop the others; the first failure is returned after all accounts
// were attempted, alongside every per-account result.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, resolutions []directory.Resolution, body map[string]any) ([]AccountResult, error) {
	timestamp := ParseTimestamp(body)
	results := make([]AccountResult, 0, len(resolutions))
	var firstErr error

	for _, res := range resolutions {
		b := res.Binding
		result := AccountResult{
			Account:     b.Account,
			AccountName: b.AccountName,
			EntryID:     b.Entry.ID,
		}
		label := metrics.AccountLabel(b.Account)

		if res.Err != nil {
			result.ResolveErr = res.Err
			results = append(results, result)
			metrics.AccountDispatches.WithLabelValues(label, metrics.OutcomeEmpty).Inc()
			continue
		}

		values := BuildValues(res.Variables, body, timestamp)
		if len(values) == 0 {
			results = append(results, result)
			metrics.AccountDispatches.WithLabelValues(label, metrics.OutcomeEmpty).Inc()
			d.logger.Debug("no matching variables", "device", deviceID, "account", b.AccountName)
			continue
		}

		if err := b.Client.SetValues(ctx, b.Entry, values); err != nil {
			result.Err = err
			metrics.AccountDispatches.WithLabelValues(label, metrics.OutcomeFailure).Inc()
			d.logger.Error("account update failed",
				"request_id", RequestID(ctx),
				"device", deviceID,
				"account", b.AccountName,
				"values", len(values),
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: account %s: %w", ErrDispatchFailed, b.AccountName, err)
			}
			results = append(results, result)
			continue
		}

		result.Sent = len(values)
		metrics.AccountDispatches.WithLabelValues(label, metrics.OutcomeSent).Inc()
		d.logger.Info("account updated",
			"request_id", RequestID(ctx),
			"device", deviceID,
			"account", b.AccountName,
			"values", len(values),
		)
		results = append(results, result)
	}

	return results, firstErr
}
