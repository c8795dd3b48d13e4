package rig

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// openRecordDB gives each test a fresh in-memory instruments table.
func openRecordDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open :memory: database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE instruments (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			driver TEXT NOT NULL,
			transport TEXT NOT NULL DEFAULT '{}',
			params TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 0,
			notes TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_instruments_driver ON instruments(driver);
		CREATE INDEX idx_instruments_enabled ON instruments(enabled);
	`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create instruments schema: %v", err)
	}
	return db
}

// testRecord creates an instrument record for testing.
func testRecord(id, name string) *InstrumentRecord {
	return &InstrumentRecord{
		ID:        id,
		Name:      name,
		Driver:    "virtual.furnace",
		Transport: TransportSpec{Kind: TransportVirtual},
		Params:    map[string]string{"node": "1"},
		Enabled:   true,
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	db := openRecordDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates record successfully", func(t *testing.T) {
		rec := testRecord("ins-001", "furnace-1")

		err := repo.Create(ctx, rec)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "ins-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "furnace-1" {
			t.Errorf("Name = %q, want %q", got.Name, "furnace-1")
		}
		if got.Driver != "virtual.furnace" {
			t.Errorf("Driver = %q, want %q", got.Driver, "virtual.furnace")
		}
		if got.Transport.Kind != TransportVirtual {
			t.Errorf("Transport.Kind = %q, want %q", got.Transport.Kind, TransportVirtual)
		}
		if got.Params["node"] != "1" {
			t.Errorf("Params[node] = %q, want %q", got.Params["node"], "1")
		}
		if !got.Enabled {
			t.Error("Enabled = false, want true")
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps were not set")
		}
	})

	t.Run("generates ID when unset", func(t *testing.T) {
		rec := testRecord("", "furnace-autoid")

		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !strings.HasPrefix(rec.ID, "ins-") {
			t.Errorf("generated ID = %q, want ins- prefix", rec.ID)
		}
	})

	t.Run("returns error for duplicate name", func(t *testing.T) {
		rec := testRecord("ins-dup-1", "furnace-dup")
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("first Create() error = %v", err)
		}

		rec2 := testRecord("ins-dup-2", "furnace-dup")
		err := repo.Create(ctx, rec2)
		if !errors.Is(err, ErrRecordExists) {
			t.Errorf("Create() error = %v, want ErrRecordExists", err)
		}
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		rec := testRecord("ins-bad", "Not A Slug")
		err := repo.Create(ctx, rec)
		if !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Create() error = %v, want ErrInvalidRecord", err)
		}
	})

	t.Run("round-trips every column", func(t *testing.T) {
		notes := "bench 3, behind the extraction hood"
		rec := &InstrumentRecord{
			ID:     "ins-full",
			Name:   "gauge-1",
			Driver: "pfeiffer.tpg",
			Transport: TransportSpec{
				Kind:     TransportSerial,
				Device:   "/dev/ttyUSB1",
				Baud:     9600,
				Parity:   "none",
				StopBits: 1,
			},
			Params:  map[string]string{"node": "2", "channel": "a"},
			Enabled: false,
			Notes:   &notes,
		}

		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "ins-full")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Transport.Device != "/dev/ttyUSB1" {
			t.Errorf("Transport.Device = %q, want %q", got.Transport.Device, "/dev/ttyUSB1")
		}
		if got.Transport.Baud != 9600 {
			t.Errorf("Transport.Baud = %d, want 9600", got.Transport.Baud)
		}
		if len(got.Params) != 2 || got.Params["channel"] != "a" {
			t.Errorf("Params = %v, want node and channel keys", got.Params)
		}
		if got.Enabled {
			t.Error("Enabled = true, want false")
		}
		if got.Notes == nil || *got.Notes != notes {
			t.Errorf("Notes = %v, want %q", got.Notes, notes)
		}
	})
}

func TestSQLiteRepository_Get(t *testing.T) {
	db := openRecordDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("ins-get", "furnace-get")
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "ins-get")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "furnace-get" {
			t.Errorf("Name = %q, want %q", got.Name, "furnace-get")
		}
	})

	t.Run("by name", func(t *testing.T) {
		got, err := repo.GetByName(ctx, "furnace-get")
		if err != nil {
			t.Fatalf("GetByName() error = %v", err)
		}
		if got.ID != "ins-get" {
			t.Errorf("ID = %q, want %q", got.ID, "ins-get")
		}
	})

	t.Run("id not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "ins-missing")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("GetByID() error = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("name not found", func(t *testing.T) {
		_, err := repo.GetByName(ctx, "missing")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("GetByName() error = %v, want ErrRecordNotFound", err)
		}
	})
}

func TestSQLiteRepository_List(t *testing.T) {
	db := openRecordDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	records := []*InstrumentRecord{
		testRecord("ins-l1", "gauge-1"),
		testRecord("ins-l2", "furnace-1"),
		testRecord("ins-l3", "furnace-2"),
	}
	records[2].Enabled = false
	for _, rec := range records {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create(%s) error = %v", rec.Name, err)
		}
	}

	t.Run("lists all ordered by name", func(t *testing.T) {
		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("List() returned %d records, want 3", len(got))
		}
		wantOrder := []string{"furnace-1", "furnace-2", "gauge-1"}
		for i, want := range wantOrder {
			if got[i].Name != want {
				t.Errorf("List()[%d].Name = %q, want %q", i, got[i].Name, want)
			}
		}
	})

	t.Run("lists only enabled", func(t *testing.T) {
		got, err := repo.ListEnabled(ctx)
		if err != nil {
			t.Fatalf("ListEnabled() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListEnabled() returned %d records, want 2", len(got))
		}
		for _, rec := range got {
			if !rec.Enabled {
				t.Errorf("ListEnabled() returned disabled record %q", rec.Name)
			}
		}
	})
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := openRecordDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("ins-upd", "furnace-upd")
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("updates fields", func(t *testing.T) {
		rec.Driver = "fluke.18x"
		rec.Transport = TransportSpec{Kind: TransportSocket, Address: "10.0.0.5:4001"}
		rec.Params = map[string]string{"channel": "b"}

		if err := repo.Update(ctx, rec); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "ins-upd")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Driver != "fluke.18x" {
			t.Errorf("Driver = %q, want %q", got.Driver, "fluke.18x")
		}
		if got.Transport.Address != "10.0.0.5:4001" {
			t.Errorf("Transport.Address = %q, want %q", got.Transport.Address, "10.0.0.5:4001")
		}
		if got.Params["channel"] != "b" {
			t.Errorf("Params[channel] = %q, want %q", got.Params["channel"], "b")
		}
		if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
			t.Error("UpdatedAt was not refreshed")
		}
	})

	t.Run("not found", func(t *testing.T) {
		missing := testRecord("ins-nope", "furnace-nope")
		err := repo.Update(ctx, missing)
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("Update() error = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		other := testRecord("ins-other", "furnace-other")
		if err := repo.Create(ctx, other); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		other.Name = "furnace-upd"
		err := repo.Update(ctx, other)
		if !errors.Is(err, ErrRecordExists) {
			t.Errorf("Update() error = %v, want ErrRecordExists", err)
		}
	})
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := openRecordDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("ins-del", "furnace-del")
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("deletes record", func(t *testing.T) {
		if err := repo.Delete(ctx, "ins-del"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		_, err := repo.GetByID(ctx, "ins-del")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("GetByID() after delete error = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := repo.Delete(ctx, "ins-del")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("Delete() error = %v, want ErrRecordNotFound", err)
		}
	})
}

func TestSQLiteRepository_SetEnabled(t *testing.T) {
	db := openRecordDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("ins-en", "furnace-en")
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("disables record", func(t *testing.T) {
		if err := repo.SetEnabled(ctx, "ins-en", false); err != nil {
			t.Fatalf("SetEnabled() error = %v", err)
		}
		got, err := repo.GetByID(ctx, "ins-en")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Enabled {
			t.Error("Enabled = true, want false")
		}
	})

	t.Run("enables record", func(t *testing.T) {
		if err := repo.SetEnabled(ctx, "ins-en", true); err != nil {
			t.Fatalf("SetEnabled() error = %v", err)
		}
		got, err := repo.GetByID(ctx, "ins-en")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if !got.Enabled {
			t.Error("Enabled = false, want true")
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := repo.SetEnabled(ctx, "ins-missing", true)
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("SetEnabled() error = %v, want ErrRecordNotFound", err)
		}
	})
}
