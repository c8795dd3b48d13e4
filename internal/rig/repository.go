package rig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists instrument records. The daemon runs on the SQLite
// implementation below; tests are free to substitute their own.
type Repository interface {
	// GetByID looks a record up by id. Missing records map to ErrRecordNotFound.
	GetByID(ctx context.Context, id string) (*InstrumentRecord, error)

	// GetByName looks a record up by its unique instrument name.
	GetByName(ctx context.Context, name string) (*InstrumentRecord, error)

	// List returns every record ordered by name.
	List(ctx context.Context) ([]InstrumentRecord, error)

	// ListEnabled returns the records the daemon should start at boot.
	ListEnabled(ctx context.Context) ([]InstrumentRecord, error)

	// Create inserts a record, minting an id when rec.ID is empty.
	// A taken id or name surfaces as ErrRecordExists.
	Create(ctx context.Context, rec *InstrumentRecord) error

	// Update rewrites an existing record in full.
	Update(ctx context.Context, rec *InstrumentRecord) error

	// Delete removes the record with the given id.
	Delete(ctx context.Context, id string) error

	// SetEnabled flips a record's startup flag.
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// SQLiteRepository keeps instrument records in the instruments table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository wraps an already-open database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `id, name, driver, transport, params, enabled, notes, created_at, updated_at`

// GetByID looks a record up by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*InstrumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM instruments WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("query by id: %w", err)
	}
	return rec, nil
}

// GetByName looks a record up by its unique instrument name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*InstrumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM instruments WHERE name = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("query by name: %w", err)
	}
	return rec, nil
}

// List returns every record ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]InstrumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM instruments ORDER BY name`
	return r.queryRecords(ctx, query)
}

// ListEnabled returns the records the daemon should start at boot.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]InstrumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM instruments WHERE enabled = 1 ORDER BY name`
	return r.queryRecords(ctx, query)
}

// Create inserts a record, minting an id when rec.ID is empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *InstrumentRecord) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = "ins-" + uuid.NewString()[:8]
	}

	transportJSON, err := json.Marshal(rec.Transport)
	if err != nil {
		return fmt.Errorf("encode transport: %w", err)
	}
	paramsJSON, err := json.Marshal(paramsOrEmpty(rec.Params))
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO instruments (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Driver,
		string(transportJSON),
		string(paramsJSON),
		boolToInt(rec.Enabled),
		nullableString(rec.Notes),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRecordExists
		}
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

// Update rewrites an existing record in full.
func (r *SQLiteRepository) Update(ctx context.Context, rec *InstrumentRecord) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}

	transportJSON, err := json.Marshal(rec.Transport)
	if err != nil {
		return fmt.Errorf("encode transport: %w", err)
	}
	paramsJSON, err := json.Marshal(paramsOrEmpty(rec.Params))
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	rec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE instruments SET
			name = ?, driver = ?, transport = ?, params = ?,
			enabled = ?, notes = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rec.Name,
		rec.Driver,
		string(transportJSON),
		string(paramsJSON),
		boolToInt(rec.Enabled),
		nullableString(rec.Notes),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRecordExists
		}
		return fmt.Errorf("update instrument: %w", err)
	}
	return checkAffected(result)
}

// Delete removes the record with the given id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM instruments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	return checkAffected(result)
}

// SetEnabled flips a record's startup flag.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE instruments SET enabled = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(enabled),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("flip enabled flag: %w", err)
	}
	return checkAffected(result)
}

// checkAffected maps an UPDATE or DELETE that matched nothing to ErrRecordNotFound.
func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("count affected rows: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// queryRecords runs a SELECT over recordColumns and collects the results.
func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]InstrumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var records []InstrumentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}
	return records, nil
}

// rowScanner covers the Scan method shared by sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord hydrates one InstrumentRecord from a row in recordColumns order.
func scanRecord(scanner rowScanner) (*InstrumentRecord, error) {
	var rec InstrumentRecord
	var transportJSON, paramsJSON string
	var enabled int
	var notes sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Driver,
		&transportJSON,
		&paramsJSON,
		&enabled,
		&notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Enabled = enabled != 0
	if notes.Valid {
		rec.Notes = &notes.String
	}

	if err := json.Unmarshal([]byte(transportJSON), &rec.Transport); err != nil {
		return nil, fmt.Errorf("decode transport: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if len(rec.Params) == 0 {
		rec.Params = nil
	}

	var parseErr error
	rec.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at: %w", parseErr)
	}
	rec.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parse updated_at: %w", parseErr)
	}

	return &rec, nil
}

// paramsOrEmpty keeps the params column a JSON object rather than null.
func paramsOrEmpty(params map[string]string) map[string]string {
	if params == nil {
		return map[string]string{}
	}
	return params
}

// nullableString turns nil or empty notes into SQL NULL.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// boolToInt maps false/true onto the 0/1 the enabled column stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError matches the UNIQUE violation text the driver reports.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
