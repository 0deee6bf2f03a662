package sqlite

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"

	"focus-walker/internal/database"

	_ "modernc.org/sqlite"
)

const (
	DefaultDBFileName = "data.db"
	schemaVersion     = 1
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is a SQLite-based data store implementing database.DataStore
type Store struct {
	db     *sqlx.DB
	dbPath string
	mu     sync.RWMutex

	missionRepo    database.MissionSummaryRepository
	checkpointRepo database.CheckpointLogRepository
	settingsRepo   database.SettingsRepository
}

// New creates a new SQLite store at the specified path
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	log.Printf("[SQLITE] Opening database at: %s", dbPath)

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.missionRepo = &missionRepository{store: store}
	store.checkpointRepo = &checkpointLogRepository{store: store}
	store.settingsRepo = &settingsRepository{store: store}

	return store, nil
}

// GetDBPath returns the current database file path
func (s *Store) GetDBPath() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	var version int
	err := s.db.Get(&version, "SELECT version FROM schema_version LIMIT 1")
	if err != nil {
		// Table doesn't exist, create everything
		return s.createSchema()
	}

	if version < schemaVersion {
		if err := s.runMigrations(version); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) createSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	INSERT INTO schema_version (version) VALUES (1);

	-- Mission summaries: one row per mission, full state as JSON
	CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		timestamp_ns INTEGER NOT NULL
	);

	-- Checkpoint logs: append-only, ordered by seq
	CREATE TABLE IF NOT EXISTS checkpoint_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		mission_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		timestamp_ns INTEGER NOT NULL,
		distance_mark_meters REAL NOT NULL DEFAULT 0,
		photo TEXT NOT NULL DEFAULT ''
	);

	-- Settings (single row table)
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		walking_speed_kmh REAL NOT NULL,
		rest_interval_minutes REAL NOT NULL,
		proximity_threshold_meters REAL NOT NULL,
		recompute_duration INTEGER NOT NULL DEFAULT 0,
		use_miles INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO settings (id, walking_speed_kmh, rest_interval_minutes, proximity_threshold_meters)
	VALUES (1, 5, 25, 10);

	CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
	CREATE INDEX IF NOT EXISTS idx_missions_timestamp ON missions(timestamp_ns DESC);
	CREATE INDEX IF NOT EXISTS idx_checkpoint_logs_mission ON checkpoint_logs(mission_id, seq);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Printf("[SQLITE] Schema initialized (version %d)", schemaVersion)
	return nil
}

func (s *Store) runMigrations(fromVersion int) error {
	log.Printf("[SQLITE] Migrating schema: from=%d to=%d", fromVersion, schemaVersion)
	_, err := s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		// Checkpoint WAL before closing
		s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Repository accessors
func (s *Store) Missions() database.MissionSummaryRepository      { return s.missionRepo }
func (s *Store) CheckpointLogs() database.CheckpointLogRepository { return s.checkpointRepo }
func (s *Store) Settings() database.SettingsRepository            { return s.settingsRepo }
