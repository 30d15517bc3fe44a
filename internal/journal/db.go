// Package journal keeps a local history of extraction attempts.
//
// Only attempt metadata is stored (session id, source, archive path, outcome,
// timestamps, failure text). Extraction results never touch disk.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultHeartbeatInterval is how often an open journal refreshes its owner row.
const DefaultHeartbeatInterval = 30 * time.Second

// DB is the journal database. Each open DB registers itself as an owner and
// stamps the attempts it begins, so other processes sharing the file can tell
// live attempts from abandoned ones.
type DB struct {
	conn  *sql.DB
	path  string
	owner string

	heartbeat time.Duration
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Option configures a DB.
type Option func(*DB)

// WithHeartbeatInterval sets how often the owner row is refreshed. An owner
// whose heartbeat is older than three intervals is considered gone.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.heartbeat = d
		}
	}
}

// NewDB opens (or creates) the journal at path and applies pending migrations.
// An existing file is copied to path+".bak" before migrating.
func NewDB(path string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	if err := backup(path); err != nil {
		return nil, fmt.Errorf("backing up journal: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{
		conn:      conn,
		path:      path,
		owner:     uuid.NewString(),
		heartbeat: DefaultHeartbeatInterval,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.register(time.Now()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	db.wg.Add(1)
	go db.keepAlive()

	log.Debug(log.CatJournal, "Journal opened", "path", path, "owner", db.owner)
	return db, nil
}

func runMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	defer func() { _ = src.Close() }()

	// The driver's Close would close conn, so the migrate instance is not closed.
	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		log.Debug(log.CatJournal, "Journal schema", "version", version, "dirty", dirty)
	}
	return nil
}

// backup copies an existing, non-empty database file to path+".bak".
func backup(path string) error {
	src, err := os.Open(path) //nolint:gosec // G304: journal path from config
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil || info.Size() == 0 {
		return err
	}

	dst, err := os.OpenFile(path+".bak", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // G304: derived from journal path
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Owner returns the id this DB stamps on the attempts it begins.
func (db *DB) Owner() string {
	return db.owner
}

// Close stops the heartbeat, removes the owner row and closes the database.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		close(db.stop)
		db.wg.Wait()
		if err := db.unregister(); err != nil {
			log.ErrorErr(log.CatJournal, "Failed to remove journal owner", err, "owner", db.owner)
		}
		db.closeErr = db.conn.Close()
	})
	return db.closeErr
}
