package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *LayoutStorage {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:", PoolOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewLayoutStorage(db, DriverSQLite)
}

func TestSaveAndGetLayout(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()

	rec := &LayoutRecord{
		Kind:    "rooms",
		Seed:    42,
		Cells:   3,
		Options: json.RawMessage(`{"min_rooms":3,"max_rooms":3}`),
		Layout:  json.RawMessage(`{"rooms":[],"links":[]}`),
	}
	id, err := storage.Save(ctx, rec)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id <= 0 || rec.ID != id {
		t.Fatalf("expected positive id set on the record, got %d/%d", id, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := storage.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kind != "rooms" || got.Seed != 42 || got.Cells != 3 {
		t.Errorf("unexpected record %+v", got)
	}
	if string(got.Layout) != string(rec.Layout) || string(got.Options) != string(rec.Options) {
		t.Errorf("payload mismatch: %s / %s", got.Layout, got.Options)
	}
	if got.CreatedAt.Sub(rec.CreatedAt).Abs() > time.Millisecond {
		t.Errorf("created_at drifted: %v vs %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestSaveValidation(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *LayoutRecord
	}{
		{"nil record", nil},
		{"missing kind", &LayoutRecord{Layout: json.RawMessage(`{}`)}},
		{"invalid payload", &LayoutRecord{Kind: "rooms", Layout: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := storage.Save(ctx, tt.rec); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveDefaultsOptions(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()
	id, err := storage.Save(ctx, &LayoutRecord{Kind: "hallways", Layout: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := storage.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Options) != "{}" {
		t.Errorf("expected empty options object, got %s", got.Options)
	}
}

func TestGetMissingLayout(t *testing.T) {
	storage := openTestStorage(t)
	if _, err := storage.Get(context.Background(), 99); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("expected ErrLayoutNotFound, got %v", err)
	}
	if _, err := storage.Get(context.Background(), 0); err == nil || errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("expected validation error for id 0, got %v", err)
	}
}

func TestListLayouts(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()
	for _, kind := range []string{"rooms", "hallways", "rooms", "building"} {
		if _, err := storage.Save(ctx, &LayoutRecord{Kind: kind, Layout: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := storage.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 layouts, got %d", len(all))
	}
	if all[0].ID < all[1].ID {
		t.Error("expected newest first")
	}

	rooms, err := storage.List(ctx, "rooms", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("expected 2 room layouts, got %d", len(rooms))
	}

	limited, err := storage.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestDeleteLayout(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()
	id, _ := storage.Save(ctx, &LayoutRecord{Kind: "rooms", Layout: json.RawMessage(`{}`)})

	if err := storage.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := storage.Delete(ctx, id); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("expected ErrLayoutNotFound on second delete, got %v", err)
	}
}

func TestOpenFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.db")
	ctx := context.Background()

	db, err := Open(ctx, DriverSQLite, path, PoolOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id, err := NewLayoutStorage(db, DriverSQLite).Save(ctx, &LayoutRecord{Kind: "rooms", Layout: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_ = db.Close()

	db, err = Open(ctx, DriverSQLite, path, PoolOptions{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if _, err := NewLayoutStorage(db, DriverSQLite).Get(ctx, id); err != nil {
		t.Errorf("expected layout to survive reopen: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn", PoolOptions{}); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), DriverSQLite, "", PoolOptions{}); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestRebind(t *testing.T) {
	pg := NewLayoutStorage(nil, DriverPostgres)
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("unexpected postgres query %q", got)
	}
	lite := NewLayoutStorage(nil, DriverSQLite)
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query must be unchanged, got %q", got)
	}
}
