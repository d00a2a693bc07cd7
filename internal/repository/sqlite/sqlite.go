package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps the SQLite connections. Writes go through a single-connection
// pool so they serialize inside the process; reads use their own pool and,
// thanks to WAL, never wait for the writer.
type DB struct {
	writer *sql.DB
	reader *sql.DB
}

// New creates and initializes a new SQLite database.
func New(dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("failed to open database: empty path")
	}

	if dbPath == MemoryPath {
		// Each connection to :memory: is a separate database, so both roles
		// share one connection.
		conn, err := open(dbPath, "_busy_timeout=5000", 1)
		if err != nil {
			return nil, err
		}
		return initialize(&DB{writer: conn, reader: conn})
	}

	if !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writer, err := open(dbPath, "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", 1)
	if err != nil {
		return nil, err
	}
	db := &DB{writer: writer}

	// The schema must exist, and WAL must be switched on, before readers connect.
	if _, err := initialize(db); err != nil {
		return nil, err
	}

	reader, err := open(dbPath, "_journal_mode=WAL&_busy_timeout=5000", readerConns())
	if err != nil {
		writer.Close()
		return nil, err
	}
	db.reader = reader

	return db, nil
}

func open(dbPath, params string, maxConns int) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}

	conn, err := sql.Open("sqlite3", dbPath+sep+params)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

func initialize(db *DB) (*DB, error) {
	if err := db.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func readerConns() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

// createSchema creates the detections table if it doesn't exist.
// Timestamps are stored as fixed-width UTC text so lexical order is time order.
func (db *DB) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		confidence REAL NOT NULL,
		x1 REAL,
		y1 REAL,
		x2 REAL,
		y2 REAL,
		source TEXT NOT NULL,
		detected_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);
	CREATE INDEX IF NOT EXISTS idx_detections_label ON detections(label);
	CREATE INDEX IF NOT EXISTS idx_detections_source ON detections(source);
	`

	_, err := db.writer.Exec(schema)
	return err
}

// Close closes both connection pools.
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if cerr := db.writer.Close(); cerr != nil {
		err = cerr
	}
	return err
}

// Writer returns the pool used for inserts.
func (db *DB) Writer() *sql.DB {
	return db.writer
}

// Reader returns the pool used for queries.
func (db *DB) Reader() *sql.DB {
	return db.reader
}

// Ping checks both pools.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.writer.PingContext(ctx); err != nil {
		return fmt.Errorf("writer ping failed: %w", err)
	}
	if err := db.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("reader ping failed: %w", err)
	}
	return nil
}
