package state

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Record is the saved state of one device.
type Record struct {
	DeviceID  string         `json:"device_id"`
	Reported  map[string]any `json:"reported"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Repository defines device state persistence.
type Repository interface {
	// Get returns the saved record. Returns ErrStateNotFound if there is none.
	Get(ctx context.Context, deviceID string) (*Record, error)

	// Reported returns the saved body, or an empty map if there is none.
	Reported(ctx context.Context, deviceID string) (map[string]any, error)

	// SaveReported replaces the saved body.
	SaveReported(ctx context.Context, deviceID string, body map[string]any) error

	// Delete removes the saved record. Returns ErrStateNotFound if there is none.
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using the device_state table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// normalizeID keys state by the uppercase device ID.
func normalizeID(deviceID string) string {
	return strings.ToUpper(strings.TrimSpace(deviceID))
}

// Get returns the saved record for deviceID.
func (r *SQLiteRepository) Get(ctx context.Context, deviceID string) (*Record, error) {
	var (
		reported  string
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT reported, updated_at FROM device_state WHERE device_id = ?`,
		normalizeID(deviceID),
	).Scan(&reported, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device state: %w", err)
	}

	body, err := decodeBody(reported)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &Record{DeviceID: normalizeID(deviceID), Reported: body, UpdatedAt: ts}, nil
}

// Reported returns the saved body for deviceID, or an empty map.
func (r *SQLiteRepository) Reported(ctx context.Context, deviceID string) (map[string]any, error) {
	rec, err := r.Get(ctx, deviceID)
	if errors.Is(err, ErrStateNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Reported, nil
}

// SaveReported stores body as the state of deviceID.
func (r *SQLiteRepository) SaveReported(ctx context.Context, deviceID string, body map[string]any) error {
	if body == nil {
		body = map[string]any{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_state (device_id, reported, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			reported = excluded.reported,
			updated_at = excluded.updated_at
	`,
		normalizeID(deviceID),
		string(data),
		r.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving device state: %w", err)
	}
	return nil
}

// Delete removes the saved state of deviceID.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM device_state WHERE device_id = ?`,
		normalizeID(deviceID),
	)
	if err != nil {
		return fmt.Errorf("deleting device state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrStateNotFound
	}
	return nil
}

// decodeBody keeps numbers as json.Number, matching decoded messages.
func decodeBody(s string) (map[string]any, error) {
	body := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	return body, nil
}
