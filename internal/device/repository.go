package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device record persistence.
// This abstraction allows for different implementations (SQLite, memory)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a record by its device identifier.
	// Returns ErrRecordNotFound if the record does not exist.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves all records ordered by pairing time.
	List(ctx context.Context) ([]Record, error)

	// Create inserts a new record.
	// Returns ErrRecordExists if a record with the same ID already exists.
	Create(ctx context.Context, rec *Record) error

	// Update modifies an existing record.
	// Returns ErrRecordNotFound if the record does not exist.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a record by ID.
	// Returns ErrRecordNotFound if the record does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateBattery updates the last known battery percentage.
	// This is optimised for frequent battery events from connected devices.
	UpdateBattery(ctx context.Context, id string, percent int) error

	// UpdateLastSeen updates the last-seen timestamp.
	UpdateLastSeen(ctx context.Context, id string, seen time.Time) error

	// SetNotLocatable sets or clears the not-locatable flag.
	SetNotLocatable(ctx context.Context, id string, notLocatable bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `id, kind, name, model, icon, last_seen, battery_percent,
		not_locatable, paired_at, created_at, updated_at`

// GetByID retrieves a record by its device identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM devices
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying record by id: %w", err)
	}
	return rec, nil
}

// List retrieves all records, oldest pairing first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM devices
		ORDER BY paired_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// Create inserts a new record.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.PairedAt.IsZero() {
		rec.PairedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, kind, name, model, icon, last_seen, battery_percent,
			not_locatable, paired_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Kind),
		rec.Name,
		rec.Model,
		rec.Icon,
		nullableTime(rec.LastSeen),
		rec.BatteryPercent,
		boolToInt(rec.NotLocatable),
		rec.PairedAt.Format(time.RFC3339),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRecordExists
		}
		return fmt.Errorf("inserting record: %w", err)
	}

	return nil
}

// Update modifies an existing record.
func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	rec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			kind = ?, name = ?, model = ?, icon = ?, last_seen = ?,
			battery_percent = ?, not_locatable = ?, paired_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(rec.Kind),
		rec.Name,
		rec.Model,
		rec.Icon,
		nullableTime(rec.LastSeen),
		rec.BatteryPercent,
		boolToInt(rec.NotLocatable),
		rec.PairedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	return requireRowAffected(result)
}

// Delete removes a record by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	return requireRowAffected(result)
}

// UpdateBattery updates the last known battery percentage.
func (r *SQLiteRepository) UpdateBattery(ctx context.Context, id string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: battery %d out of range", ErrInvalidRecord, percent)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE devices
		SET battery_percent = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, percent, now, id)
	if err != nil {
		return fmt.Errorf("updating battery: %w", err)
	}

	return requireRowAffected(result)
}

// UpdateLastSeen updates the last-seen timestamp.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, id string, seen time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE devices
		SET last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, seen.UTC().Format(time.RFC3339), now, id)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}

	return requireRowAffected(result)
}

// SetNotLocatable sets or clears the not-locatable flag.
func (r *SQLiteRepository) SetNotLocatable(ctx context.Context, id string, notLocatable bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE devices
		SET not_locatable = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, boolToInt(notLocatable), now, id)
	if err != nil {
		return fmt.Errorf("updating not locatable: %w", err)
	}

	return requireRowAffected(result)
}

// requireRowAffected maps a zero-row update/delete onto ErrRecordNotFound.
func requireRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row or rows result into a Record.
func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var kind string
	var model, icon sql.NullString
	var lastSeen sql.NullString
	var notLocatable int
	var pairedAt, createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&kind,
		&rec.Name,
		&model,
		&icon,
		&lastSeen,
		&rec.BatteryPercent,
		&notLocatable,
		&pairedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = Kind(kind)
	rec.Model = model.String
	rec.Icon = icon.String
	rec.NotLocatable = notLocatable != 0

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			rec.LastSeen = &t
		}
	}

	var parseErr error
	rec.PairedAt, parseErr = time.Parse(time.RFC3339, pairedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing paired_at: %w", parseErr)
	}
	rec.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	rec.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &rec, nil
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
