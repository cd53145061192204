package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrLayoutNotFound is returned by Get for unknown IDs.
var ErrLayoutNotFound = errors.New("layout not found")

// LayoutRecord is one archived layout. Options and Layout hold the JSON the
// API received and produced.
type LayoutRecord struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	Seed      int64           `json:"seed"`
	Cells     int             `json:"cells"`
	Options   json.RawMessage `json:"options"`
	Layout    json.RawMessage `json:"layout"`
	CreatedAt time.Time       `json:"created_at"`
}

// LayoutSummary is a LayoutRecord without its payload.
type LayoutSummary struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Seed      int64     `json:"seed"`
	Cells     int       `json:"cells"`
	CreatedAt time.Time `json:"created_at"`
}

// LayoutStorage archives generated layouts.
type LayoutStorage struct {
	db     *sql.DB
	driver string
}

// NewLayoutStorage creates a new layout storage instance
func NewLayoutStorage(db *sql.DB, driver string) *LayoutStorage {
	return &LayoutStorage{db: db, driver: driver}
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *LayoutStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save stores rec and returns its ID. CreatedAt is set when zero.
func (s *LayoutStorage) Save(ctx context.Context, rec *LayoutRecord) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("layout record is nil")
	}
	if rec.Kind == "" {
		return 0, fmt.Errorf("layout kind is required")
	}
	if !json.Valid(rec.Layout) {
		return 0, fmt.Errorf("layout payload is not valid JSON")
	}
	options := rec.Options
	if len(options) == 0 {
		options = json.RawMessage("{}")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO layouts (kind, seed, cells, options, layout, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(query),
		rec.Kind,
		rec.Seed,
		rec.Cells,
		string(options),
		string(rec.Layout),
		rec.CreatedAt.UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert layout: %w", err)
	}
	rec.ID = id
	rec.Options = options
	return id, nil
}

// Get returns the layout with the given ID.
func (s *LayoutStorage) Get(ctx context.Context, id int64) (*LayoutRecord, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid layout id: %d (must be > 0)", id)
	}

	var rec LayoutRecord
	var options, payload string
	var created int64
	query := `
		SELECT id, kind, seed, cells, options, layout, created_at
		FROM layouts
		WHERE id = ?
	`
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(
		&rec.ID,
		&rec.Kind,
		&rec.Seed,
		&rec.Cells,
		&options,
		&payload,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrLayoutNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query layout: %w", err)
	}
	rec.Options = json.RawMessage(options)
	rec.Layout = json.RawMessage(payload)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return &rec, nil
}

// List returns the most recent layouts, newest first. An empty kind matches
// every kind.
func (s *LayoutStorage) List(ctx context.Context, kind string, limit int) ([]LayoutSummary, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, kind, seed, cells, created_at
		FROM layouts
		WHERE (? = '' OR kind = ?)
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	defer rows.Close()

	out := []LayoutSummary{}
	for rows.Next() {
		var sum LayoutSummary
		var created int64
		if err := rows.Scan(&sum.ID, &sum.Kind, &sum.Seed, &sum.Cells, &created); err != nil {
			return nil, fmt.Errorf("failed to scan layout: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate layouts: %w", err)
	}
	return out, nil
}

// Delete removes a layout. Deleting an unknown ID returns ErrLayoutNotFound.
func (s *LayoutStorage) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM layouts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrLayoutNotFound, id)
	}
	return nil
}
