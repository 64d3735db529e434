package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stayfinder/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	// ErrOverlap is returned when the overlap trigger refuses an insert.
	ErrOverlap = fmt.Errorf("booking overlaps an active booking: %w", domain.ErrDatesUnavailable)
)

// overlapMessage is raised by the bookings_no_overlap trigger.
const overlapMessage = "booking overlap"

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens (and if needed creates) the SQLite database at path and applies the schema.
// Write transactions start with BEGIN IMMEDIATE so concurrent admissions serialize.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	memory := path == ":memory:"
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path, memory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	out := &DB{DB: db, path: path, logger: logger}
	if err := out.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return out, nil
}

func dsn(path string, memory bool) string {
	params := "_txlock=immediate&_busy_timeout=5000"
	if !memory {
		params += "&_journal_mode=WAL"
	}
	return path + "?" + params
}

// Path is the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'guest',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS listings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            host_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL,
            location TEXT NOT NULL,
            price REAL NOT NULL CHECK (price >= 0),
            max_guests INTEGER NOT NULL CHECK (max_guests >= 1),
            bedrooms INTEGER NOT NULL DEFAULT 0 CHECK (bedrooms >= 0),
            has_bathroom BOOLEAN NOT NULL DEFAULT 1,
            type TEXT NOT NULL CHECK (type IN ('hotel', 'apartment', 'house')),
            amenities TEXT NOT NULL DEFAULT '[]',
            image TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            listing_id INTEGER NOT NULL,
            check_in TEXT NOT NULL,
            check_out TEXT NOT NULL,
            guests INTEGER NOT NULL CHECK (guests >= 1),
            total_nights INTEGER NOT NULL,
            base_price REAL NOT NULL,
            add_ons_price REAL NOT NULL DEFAULT 0,
            total_price REAL NOT NULL,
            add_ons TEXT NOT NULL DEFAULT '{}',
            status TEXT NOT NULL DEFAULT 'pending',
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            CHECK (check_in < check_out)
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		// An active insert sharing a night with another active booking of the listing aborts.
		`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap
            BEFORE INSERT ON bookings
            WHEN NEW.status IN ('pending', 'confirmed')
        BEGIN
            SELECT RAISE(ABORT, '` + overlapMessage + `')
            WHERE EXISTS (
                SELECT 1 FROM bookings
                WHERE listing_id = NEW.listing_id
                  AND status IN ('pending', 'confirmed')
                  AND check_in < NEW.check_out
                  AND check_out > NEW.check_in
            );
        END`,

		`CREATE INDEX IF NOT EXISTS idx_listings_host_id ON listings(host_id)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(type)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_listing_dates ON bookings(listing_id, check_in, check_out)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// migrate adds columns introduced after the first release to older databases.
func (db *DB) migrate() error {
	columns := []struct{ table, column, def string }{
		{"users", "telegram_chat_id", "INTEGER NOT NULL DEFAULT 0"},
		{"bookings", "special_requests", "TEXT NOT NULL DEFAULT ''"},
	}
	for _, c := range columns {
		if err := db.ensureColumn(c.table, c.column, c.def); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) ensureColumn(table, column, def string) error {
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def))
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// isOverlap reports whether err came from the bookings_no_overlap trigger.
func isOverlap(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), overlapMessage)
	}
	return false
}

// Ready pings the database; backs /readyz.
func (db *DB) Ready(ctx context.Context) error {
	return db.PingContext(ctx)
}
