package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Config contains configuration for the ledger store.
type Config struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns caps open connections. SQLite allows one writer at a
	// time; readers in WAL mode proceed concurrently.
	MaxOpenConns int

	// MaxIdleConns caps idle pooled connections.
	MaxIdleConns int

	// BusyTimeout is how long a locked database blocks a statement before
	// erroring.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:         "./tokencap.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// Store is the SQLite-backed ledger. It exclusively owns mutation of usage
// records and budget spend; everything else reads through it.
type Store struct {
	db     *sql.DB
	config *Config
	logger *slog.Logger
}

// Open creates the store, applying schema and pragmas. The database file is
// created on first use.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	logger := slog.Default().With("component", "ledger")

	// Pragmas ride on the DSN so that every pooled connection gets them,
	// not just the one that happened to execute a PRAGMA statement.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		config.Path, config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &Store{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("ledger store initialized",
		"path", config.Path,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

// initialize creates the schema and verifies its version.
func (s *Store) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, version)
	}
	return nil
}

// Ping checks database reachability for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close ledger db: %w", err)
	}
	return nil
}

// timeFormat is the canonical storage encoding for timestamps.
const timeFormat = time.RFC3339Nano

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Older rows may carry second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t, nil
}
