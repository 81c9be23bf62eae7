package gorm

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm/logger"
)

func TestNewStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gorm_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := Config{
		Path:     filepath.Join(tmpDir, "stats.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	}

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if store.Driver() != DriverSQLite {
		t.Errorf("expected sqlite driver, got %q", store.Driver())
	}

	var journalMode string
	if err := store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		t.Fatalf("query journal_mode failed: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected WAL mode, got %q", journalMode)
	}

	if !store.DB.Migrator().HasTable("chat_stats") {
		t.Error("table chat_stats does not exist")
	}
}

func TestMigrationIdempotency(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gorm_idempotency_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := Config{
		Path:     filepath.Join(tmpDir, "stats.db"),
		LogLevel: logger.Silent,
	}

	store1, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (first) failed: %v", err)
	}
	store1.Close()

	store2, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (second) failed: %v", err)
	}
	defer store2.Close()

	var applied int64
	if err := store2.DB.Table("migrations").Count(&applied).Error; err != nil {
		t.Fatalf("count migrations failed: %v", err)
	}
	if applied != int64(len(migrations())) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations()), applied)
	}
}

func TestNewStore_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"sqlite without path", Config{Driver: DriverSQLite}},
		{"postgres without dsn", Config{Driver: DriverPostgres}},
		{"unknown driver", Config{Driver: "oracle", Path: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStore(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=5", 5},
		{"?limit=0", 20},
		{"?limit=-3", 20},
		{"?limit=abc", 20},
		{"?limit=100000", MaxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/stats/chats"+tt.query, nil)
			if got := ParseLimitParam(r, 20); got != tt.want {
				t.Errorf("ParseLimitParam(%q) = %d, want %d", tt.query, got, tt.want)
			}
		})
	}
}
