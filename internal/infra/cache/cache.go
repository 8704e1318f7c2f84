// Package cache stores the raw data fetched by a job in a local SQLite file
// so it can be replayed later without hitting the origin again.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/vietddude/harvester/internal/core/job"
)

const (
	dbFile     = "cache.db"
	backupFile = "backup.db"
)

// ErrClosed is returned when a closed cache is used.
var ErrClosed = errors.New("cache closed")

// Cache is a SQLite-backed job cache rooted at one directory.
type Cache struct {
	mu  sync.Mutex
	dir string
	db  *sql.DB
}

// Open opens (or creates) the cache stored under dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{dir: dir}
	if err := c.open(); err != nil {
		return nil, err
	}
	return c, nil
}

// Opener adapts Open to the job cache contract.
func Opener(dir string) (job.Cache, error) {
	return Open(dir)
}

func (c *Cache) open() error {
	db, err := sql.Open("sqlite", filepath.Join(c.dir, dbFile))
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS raw (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		data BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	c.db = db
	return nil
}

// Path returns the directory of the cache.
func (c *Cache) Path() string { return c.dir }

// Store appends entries to the cache.
func (c *Cache) Store(ctx context.Context, data ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO raw (data) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range data {
		if _, err := stmt.ExecContext(ctx, d); err != nil {
			return fmt.Errorf("store entry: %w", err)
		}
	}
	return tx.Commit()
}

// Clear removes every stored entry. Snapshots are left untouched.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM raw`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Retrieve yields every stored entry in insertion order.
func (c *Cache) Retrieve(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		c.mu.Lock()
		db := c.db
		c.mu.Unlock()
		if db == nil {
			yield(nil, ErrClosed)
			return
		}

		rows, err := db.QueryContext(ctx, `SELECT data FROM raw ORDER BY id`)
		if err != nil {
			yield(nil, fmt.Errorf("query cache: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				yield(nil, fmt.Errorf("scan entry: %w", err))
				return
			}
			if !yield(data, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Backup snapshots the current contents, replacing any earlier snapshot.
func (c *Cache) Backup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	dst := filepath.Join(c.dir, backupFile)
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old backup: %w", err)
	}
	if _, err := c.db.Exec(`VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// Recover restores the last snapshot. Without a snapshot it does nothing.
func (c *Cache) Recover() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	src := filepath.Join(c.dir, backupFile)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close before recover: %w", err)
	}
	c.db = nil

	if err := copyFile(src, filepath.Join(c.dir, dbFile)); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	return c.open()
}

// Close releases the database. Closing twice is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
