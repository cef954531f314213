package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenSQLite opens (creating if needed) the cache database at path and runs
// pending migrations. One database serves every bucket.
func OpenSQLite(ctx context.Context, path string, l logger.Logger) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialize in the pool instead of on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite cache: %w", err)
	}

	l.Info("sqlite cache initialized", "path", path)

	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.UpContext(ctx, db, "migrations")
}

// SQLiteStore is a Store over one bucket of the tile_cache table.
type SQLiteStore struct {
	db     *sql.DB
	bucket string
	logger logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB, bucket string, l logger.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		bucket: bucket,
		logger: l.With("bucket", bucket),
	}
}

func (c *SQLiteStore) Get(ctx context.Context, key string) (TileCacheValue, Entry, bool, error) {
	c.logger.Debug("sqlite cache get", "key", key)

	query := `SELECT data, size, updated_at
	FROM tile_cache
	WHERE bucket = ? AND key = ?`

	var (
		data      []byte
		size      int64
		updatedAt int64
	)
	err := c.db.QueryRowContext(ctx, query, c.bucket, key).Scan(&data, &size, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Entry{}, false, nil
		}
		c.logger.Error("sqlite cache get failed", "key", key, "error", err)
		return nil, Entry{}, false, err
	}

	return data, Entry{Key: key, Size: size, ModTime: time.Unix(0, updatedAt)}, true, nil
}

func (c *SQLiteStore) Set(ctx context.Context, key string, v TileCacheValue) error {
	if err := validateKey(key); err != nil {
		return err
	}
	c.logger.Debug("sqlite cache set", "key", key, "size", len(v))

	query := `INSERT INTO tile_cache (bucket, key, data, size, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(bucket, key) DO UPDATE SET
		data = excluded.data,
		size = excluded.size,
		updated_at = excluded.updated_at`

	_, err := c.db.ExecContext(ctx, query, c.bucket, key, []byte(v), len(v), time.Now().UnixNano())
	if err != nil {
		c.logger.Error("sqlite cache set failed", "key", key, "error", err)
		return err
	}

	return nil
}

func (c *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM tile_cache WHERE bucket = ? AND key = ?`, c.bucket, key)
	return err
}

func (c *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, size, updated_at FROM tile_cache WHERE bucket = ? ORDER BY updated_at`, c.bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			updatedAt int64
		)
		if err := rows.Scan(&e.Key, &e.Size, &updatedAt); err != nil {
			return nil, err
		}
		e.ModTime = time.Unix(0, updatedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (c *SQLiteStore) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM tile_cache WHERE bucket = ?`, c.bucket)
	return err
}
