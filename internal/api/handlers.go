package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-relay/internal/state"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// DirectoryResponse is the body of /api/v1/directory.
type DirectoryResponse struct {
	Generation uint64           `json:"generation"`
	BuiltAt    *time.Time       `json:"built_at,omitempty"`
	Accounts   []AccountSummary `json:"accounts"`
	Devices    []DeviceBindings `json:"devices"`
}

// AccountSummary reports the freshness of one account's catalog.
type AccountSummary struct {
	Account     int        `json:"account"`
	Name        string     `json:"name"`
	Devices     int        `json:"devices"`
	Stale       bool       `json:"stale"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// DeviceBindings lists the accounts a device is registered under.
type DeviceBindings struct {
	DeviceID string           `json:"device_id"`
	Bindings []BindingSummary `json:"bindings"`
}

// BindingSummary is one account's entry for a device.
type BindingSummary struct {
	Account   int    `json:"account"`
	EntryID   string `json:"entry_id"`
	EntryName string `json:"entry_name"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Checks:        make(map[string]string, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Status = "unhealthy"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleDirectory(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	resp := DirectoryResponse{
		Accounts: []AccountSummary{},
		Devices:  []DeviceBindings{},
	}

	for _, a := range s.directory.Accounts() {
		summary := AccountSummary{
			Account: a.Account(),
			Name:    a.Name(),
			Devices: a.Devices(),
			Stale:   a.Stale(now),
		}
		if exp := a.Expiry(); !exp.IsZero() {
			summary.Expiry = &exp
		}
		if at := a.RefreshedAt(); !at.IsZero() {
			summary.RefreshedAt = &at
		}
		if err := a.LastError(); err != nil {
			summary.LastError = err.Error()
		}
		resp.Accounts = append(resp.Accounts, summary)
	}

	dir := s.directory.Current()
	if dir != nil {
		resp.Generation = dir.Generation
		builtAt := dir.BuiltAt
		resp.BuiltAt = &builtAt

		for _, id := range dir.DeviceIDs() {
			bindings := dir.Bindings(id)
			device := DeviceBindings{DeviceID: id, Bindings: make([]BindingSummary, 0, len(bindings))}
			for _, b := range bindings {
				device.Bindings = append(device.Bindings, BindingSummary{
					Account:   b.Account,
					EntryID:   b.Entry.ID,
					EntryName: b.Entry.Name,
				})
			}
			resp.Devices = append(resp.Devices, device)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "id")))
	if id == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	record, err := s.states.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrStateNotFound) {
			writeNotFound(w, "no state saved for device")
			return
		}
		s.logger.Error("reading device state failed", "device", id, "error", err)
		writeInternalError(w, "failed to read device state")
		return
	}

	writeJSON(w, http.StatusOK, record)
}
