package db

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig("/test/path.db")

	if config.Path != "/test/path.db" {
		t.Errorf("Path = %q", config.Path)
	}
	if config.BusyTimeout != 5000 {
		t.Errorf("BusyTimeout = %d, want 5000", config.BusyTimeout)
	}
	if config.MaxOpenConns != 1 || config.MaxIdleConns != 1 {
		t.Errorf("pool = %d/%d, want 1/1", config.MaxOpenConns, config.MaxIdleConns)
	}
}

func TestConnectionConfig_DSN(t *testing.T) {
	dsn := DefaultConnectionConfig("/data/history.db").DSN()

	path, query, ok := strings.Cut(dsn, "?")
	if !ok || path != "file:/data/history.db" {
		t.Fatalf("DSN() = %q", dsn)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}
	want := []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"}
	if diff := cmp.Diff(want, values["_pragma"]); diff != "" {
		t.Errorf("_pragma mismatch (-want +got):\n%s", diff)
	}
	if got := values.Get("_txlock"); got != "immediate" {
		t.Errorf("_txlock = %q, want immediate", got)
	}
}

func TestNewSQLiteConnection_EmptyPath(t *testing.T) {
	db, err := NewSQLiteConnection(ConnectionConfig{})
	if !errors.Is(err, ErrPathRequired) {
		t.Fatalf("error = %v, want ErrPathRequired", err)
	}
	if db != nil {
		t.Error("expected nil db for empty path")
	}
}

func TestNewSQLiteConnection_Pragmas(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	config := DefaultConnectionConfig(dbPath)
	config.BusyTimeout = 10000

	db, err := NewSQLiteConnection(config)
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 10000 {
		t.Errorf("busy_timeout = %d, want 10000", busyTimeout)
	}

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to query foreign_keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", fkEnabled)
	}
}

func TestNewSQLiteConnection_InvalidPath(t *testing.T) {
	db, err := NewSQLiteConnection(DefaultConnectionConfig("/nonexistent/directory/test.db"))
	if err == nil {
		db.Close()
		t.Fatal("expected error for invalid path, got nil")
	}
}
