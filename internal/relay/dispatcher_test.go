package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

func TestBuildValues(t *testing.T) {
	vars := map[string]directory.Variable{
		"tmp": {ID: "v-tmp", Name: "tmp"},
		"hmd": {ID: "v-hmd", Name: "hmd"},
		"alt": {ID: "v-alt", Name: "alt"},
		"sw":  {ID: "v-sw", Name: "sw"},
	}
	body := map[string]any{"tmp": 21.5, "hmd": 40.0, "alt": 0.0, "other": "x", "timestamp": 1500000000123}

	values := relay.BuildValues(vars, body, 1500000000123)

	if len(values) != 2 {
		t.Fatalf("BuildValues() len = %d, want 2", len(values))
	}
	if values[0].Name != "hmd" || values[1].Name != "tmp" {
		t.Errorf("order = %s, %s; want hmd, tmp", values[0].Name, values[1].Name)
	}
	for _, v := range values {
		if _, ok := v.Context[v.Name]; ok {
			t.Errorf("context for %s contains its own key", v.Name)
		}
		if v.Context["other"] != "x" {
			t.Errorf("context for %s missing sibling field", v.Name)
		}
		if v.Timestamp != 1500000000123 {
			t.Errorf("timestamp = %d", v.Timestamp)
		}
	}
	if values[1].VariableID != "v-tmp" || values[1].Value != 21.5 {
		t.Errorf("values[1] = %+v", values[1])
	}
	if _, ok := body["tmp"]; !ok {
		t.Error("BuildValues() modified its input")
	}
}

func TestBuildValues_NoVariables(t *testing.T) {
	if got := relay.BuildValues(nil, map[string]any{"tmp": 1.0}, 0); got != nil {
		t.Errorf("BuildValues(nil vars) = %v, want nil", got)
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	ok := &fakeAccount{}
	failing := &fakeAccount{setErr: errRemote}
	empty := &fakeAccount{}
	unresolved := &fakeAccount{}
	tmp := map[string]directory.Variable{"tmp": {ID: "v-tmp", Name: "tmp"}}

	resolutions := []directory.Resolution{
		{Binding: directory.Binding{Account: 0, AccountName: "a", Client: failing, Entry: directory.Entry{ID: "e0"}}, Variables: tmp},
		{Binding: directory.Binding{Account: 1, AccountName: "b", Client: ok, Entry: directory.Entry{ID: "e1"}}, Variables: tmp},
		{Binding: directory.Binding{Account: 2, AccountName: "c", Client: empty, Entry: directory.Entry{ID: "e2"}}, Variables: map[string]directory.Variable{"hmd": {ID: "v-hmd", Name: "hmd"}}},
		{Binding: directory.Binding{Account: 3, AccountName: "d", Client: unresolved, Entry: directory.Entry{ID: "e3"}}, Err: errRemote},
	}

	results, err := relay.NewDispatcher(nil).Dispatch(context.Background(), "2C30EB", resolutions, map[string]any{"tmp": 21.5})

	if !errors.Is(err, relay.ErrDispatchFailed) || !errors.Is(err, errRemote) {
		t.Fatalf("Dispatch() error = %v, want ErrDispatchFailed wrapping remote error", err)
	}
	if len(results) != 4 {
		t.Fatalf("results len = %d, want 4", len(results))
	}
	if results[0].Err == nil || results[0].Sent != 0 {
		t.Errorf("results[0] = %+v, want failure", results[0])
	}
	if results[1].Sent != 1 || len(ok.writes()) != 1 {
		t.Errorf("results[1] = %+v, writes = %d; want one value sent after the failure", results[1], len(ok.writes()))
	}
	if results[2].Sent != 0 || len(empty.writes()) != 0 {
		t.Errorf("account with no matching variables was called")
	}
	if results[3].ResolveErr == nil || len(unresolved.writes()) != 0 {
		t.Errorf("results[3] = %+v, want skipped with resolve error", results[3])
	}
}
