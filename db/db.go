// Package db implements the instance store: one SQLite file holding
// compressed corpus rows addressable by sequence id or example key.
//
// A store is written once, front to back: opening in write mode drops any
// previous content, rows accumulate in an in-memory buffer and reach the
// database in batched transactions. Training jobs open the same file
// read-only and fetch rows by sequence id with uniform cost.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	_ "modernc.org/sqlite"
)

const (
	createDataTable = `CREATE TABLE dataset (data_id INTEGER PRIMARY KEY, example_id TEXT, data BLOB);`
	insertDataRow   = `INSERT INTO dataset VALUES (?, ?, ?);`
	selectBySeq     = `SELECT data FROM dataset WHERE data_id = ?;`
	selectByKey     = `SELECT data FROM dataset WHERE example_id = ?;`
	countRows       = `SELECT COUNT(data_id) FROM dataset;`
	dropDataTable   = `DROP TABLE IF EXISTS dataset;`
	createSeqIndex  = `CREATE INDEX id_index ON dataset (data_id);`
	createKeyIndex  = `CREATE INDEX example_id_index ON dataset (example_id);`
	deleteByKey     = `DELETE FROM dataset WHERE example_id = ?;`
	updateSeqByKey  = `UPDATE dataset SET data_id = ? WHERE example_id = ?;`
	selectAllRows   = `SELECT data_id, example_id, data FROM dataset;`
	selectAllKeys   = `SELECT data_id, example_id FROM dataset;`
)

// Options configures a DB.
type Options struct {
	// Readonly opens an existing store for reading. Writes fail with
	// ErrReadonly. The database file must already exist.
	Readonly bool

	// BatchSize is the number of buffered rows that triggers a flush.
	BatchSize int

	// Storage selects the strategy used to (de)compress row values.
	Storage StorageType

	// Logger receives structured progress and advisory output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultOptions are the options used when none are given: a writable store
// with JSON storage, flushing every 512 rows.
var DefaultOptions = Options{
	Readonly:  false,
	BatchSize: 512,
	Storage:   StorageJSON,
}

// DB is the instance store. It is safe for use from one goroutine; the
// assembly pipeline funnels all writes through a single coordinator.
type DB struct {
	path      string
	readonly  bool
	batchSize int
	storage   Storage
	logger    *slog.Logger

	core    *core
	cleanup runtime.Cleanup
}

// core holds the connection and the write buffer. It lives apart from DB so
// the abandonment cleanup can still flush and close it once the handle
// itself becomes unreachable.
type core struct {
	mu      sync.Mutex
	sdb     *sql.DB
	buffer  []bufferedRow
	seqSeen *roaring64.Bitmap
	keySeen map[string]struct{}
	closed  bool
}

type bufferedRow struct {
	seq  int64
	key  string
	data []byte
}

// Row is one stored row: its sequence id, example key, and the raw stored
// blob. Use Decode to expand the blob into a value.
type Row struct {
	Seq  int64
	Key  string
	Data []byte
}

// Key is one (sequence id, example key) pair.
type Key struct {
	Seq int64
	Key string
}

// New creates a store handle for the database at path. The file is not
// touched until the first operation, except that read-only mode requires it
// to exist up front.
func New(path string, optFns ...func(o *Options)) (*DB, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Readonly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("readonly store needs an existing database at %q: %w", path, err)
		}
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}

	storage, err := NewStorage(opts.Storage)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &DB{
		path:      path,
		readonly:  opts.Readonly,
		batchSize: opts.BatchSize,
		storage:   storage,
		logger:    logger,
		core: &core{
			seqSeen: roaring64.New(),
			keySeen: make(map[string]struct{}),
		},
	}

	// Mirror of Close for abandoned handles. Errors are dropped: there is
	// nobody left to report them to.
	d.cleanup = runtime.AddCleanup(d, func(c *core) { c.abandon() }, d.core)

	return d, nil
}

// StorageName returns the name of the configured storage strategy.
func (d *DB) StorageName() string {
	return d.storage.Name()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// ensureOpenLocked opens the connection on first use. Write mode starts a
// fresh session: any previous table is dropped and the schema recreated.
func (d *DB) ensureOpenLocked(ctx context.Context) error {
	c := d.core

	if c.closed {
		return ErrClosed
	}

	if c.sdb != nil {
		return nil
	}

	dsn := d.path
	if d.readonly {
		dsn += "?mode=ro"
	}

	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database at %q: %w", d.path, err)
	}

	if d.readonly {
		sdb.SetMaxOpenConns(4)
	} else {
		// Single connection keeps the buffered writes and the schema on
		// one session.
		sdb.SetMaxOpenConns(1)

		if _, err := sdb.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = sdb.Close()
			return fmt.Errorf("failed to set WAL mode: %w", err)
		}

		for _, stmt := range []string{dropDataTable, createDataTable, createSeqIndex, createKeyIndex} {
			if _, err := sdb.ExecContext(ctx, stmt); err != nil {
				_ = sdb.Close()
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}

		d.logger.InfoContext(ctx, "store session started",
			"path", d.path,
			"storage", d.storage.Name(),
			"batch_size", d.batchSize,
		)
	}

	c.sdb = sdb

	return nil
}

// Put compresses v and buffers it as the row (seq, key). Buffered rows reach
// the database once the batch size is hit, on Flush, on Len, and on Close.
func (d *DB) Put(ctx context.Context, seq int64, key string, v any) error {
	data, err := d.storage.Compress(v)
	if err != nil {
		return err
	}

	return d.PutRaw(ctx, seq, key, data)
}

// PutRaw buffers an already-compressed row. The bytes must come from the
// same storage strategy this store was configured with.
func (d *DB) PutRaw(ctx context.Context, seq int64, key string, data []byte) error {
	if d.readonly {
		return ErrReadonly
	}

	if seq < 0 {
		return fmt.Errorf("sequence id must be non-negative, got %d", seq)
	}

	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return err
	}

	if c.seqSeen.Contains(uint64(seq)) {
		return &ErrDuplicateRow{SeqID: seq, Key: key}
	}

	if _, ok := c.keySeen[key]; ok {
		return &ErrDuplicateRow{SeqID: seq, Key: key}
	}

	c.seqSeen.Add(uint64(seq))
	c.keySeen[key] = struct{}{}
	c.buffer = append(c.buffer, bufferedRow{seq: seq, key: key, data: data})

	if len(c.buffer) >= d.batchSize {
		return d.flushLocked(ctx)
	}

	return nil
}

// Flush writes all buffered rows in one transaction.
func (d *DB) Flush(ctx context.Context) error {
	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return err
	}

	return d.flushLocked(ctx)
}

func (d *DB) flushLocked(ctx context.Context) error {
	c := d.core

	if len(c.buffer) == 0 {
		return nil
	}

	tx, err := c.sdb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin flush transaction: %w", err)
	}

	for _, row := range c.buffer {
		if _, err := tx.ExecContext(ctx, insertDataRow, row.seq, row.key, row.data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert row %d (%q): %w", row.seq, row.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flush transaction: %w", err)
	}

	d.logger.DebugContext(ctx, "flushed rows", "count", len(c.buffer))

	c.buffer = c.buffer[:0]

	return nil
}

// Get fetches the row with the given sequence id and decompresses it into v.
func (d *DB) Get(ctx context.Context, seq int64, v any) error {
	data, err := d.lookup(ctx, selectBySeq, seq, fmt.Sprintf("%d", seq))
	if err != nil {
		return err
	}

	return d.storage.Decompress(data, v)
}

// GetKey fetches the row with the given example key and decompresses it
// into v.
func (d *DB) GetKey(ctx context.Context, key string, v any) error {
	data, err := d.lookup(ctx, selectByKey, key, key)
	if err != nil {
		return err
	}

	return d.storage.Decompress(data, v)
}

// lookup runs a single-row query. A miss maps to ErrEmptyStore when the
// store holds no rows at all and to ErrKeyNotFound otherwise; both unwrap to
// ErrNotFound.
func (d *DB) lookup(ctx context.Context, query string, arg any, label string) ([]byte, error) {
	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return nil, err
	}

	var data []byte

	err := c.sdb.QueryRowContext(ctx, query, arg).Scan(&data)
	if err == nil {
		return data, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query row %q: %w", label, err)
	}

	var count int
	if err := c.sdb.QueryRowContext(ctx, countRows).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	if count == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, ErrEmptyStore)
	}

	return nil, &ErrKeyNotFound{Key: label}
}

// Contains reports whether a row with the given sequence id exists.
func (d *DB) Contains(ctx context.Context, seq int64) (bool, error) {
	return d.contains(ctx, selectBySeq, seq)
}

// ContainsKey reports whether a row with the given example key exists.
func (d *DB) ContainsKey(ctx context.Context, key string) (bool, error) {
	return d.contains(ctx, selectByKey, key)
}

func (d *DB) contains(ctx context.Context, query string, arg any) (bool, error) {
	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return false, err
	}

	var data []byte

	err := c.sdb.QueryRowContext(ctx, query, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to query row: %w", err)
	}

	return true, nil
}

// Len flushes pending writes and returns the number of stored rows.
func (d *DB) Len(ctx context.Context) (int, error) {
	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return 0, err
	}

	if !d.readonly {
		if err := d.flushLocked(ctx); err != nil {
			return 0, err
		}
	}

	var count int
	if err := c.sdb.QueryRowContext(ctx, countRows).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}

	return count, nil
}

// Delete removes the row with the given example key.
func (d *DB) Delete(ctx context.Context, key string) error {
	if d.readonly {
		return ErrReadonly
	}

	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return err
	}

	if _, err := c.sdb.ExecContext(ctx, deleteByKey, key); err != nil {
		return fmt.Errorf("failed to delete row %q: %w", key, err)
	}

	delete(c.keySeen, key)

	return nil
}

// UpdateSeq assigns a new sequence id to the row with the given example key.
func (d *DB) UpdateSeq(ctx context.Context, seq int64, key string) error {
	if d.readonly {
		return ErrReadonly
	}

	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := d.ensureOpenLocked(ctx); err != nil {
		return err
	}

	if _, err := c.sdb.ExecContext(ctx, updateSeqByKey, seq, key); err != nil {
		return fmt.Errorf("failed to update row %q: %w", key, err)
	}

	return nil
}

// Decode expands a stored blob into v using the configured storage strategy.
// Use it with the raw rows produced by Rows.
func (d *DB) Decode(data []byte, v any) error {
	return d.storage.Decompress(data, v)
}

// Rows returns an iterator over all stored rows with their raw blobs.
// Pending buffered writes are not visible; call Flush first when iterating
// a store that is being written.
func (d *DB) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		c := d.core
		c.mu.Lock()
		defer c.mu.Unlock()

		if err := d.ensureOpenLocked(ctx); err != nil {
			yield(Row{}, err)
			return
		}

		rows, err := c.sdb.QueryContext(ctx, selectAllRows)
		if err != nil {
			yield(Row{}, fmt.Errorf("failed to query rows: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r Row
			if err := rows.Scan(&r.Seq, &r.Key, &r.Data); err != nil {
				yield(Row{}, fmt.Errorf("failed to scan row: %w", err))
				return
			}

			if !yield(r, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(Row{}, fmt.Errorf("failed while iterating rows: %w", err))
		}
	}
}

// Keys returns an iterator over the (sequence id, example key) pairs of all
// stored rows.
func (d *DB) Keys(ctx context.Context) iter.Seq2[Key, error] {
	return func(yield func(Key, error) bool) {
		c := d.core
		c.mu.Lock()
		defer c.mu.Unlock()

		if err := d.ensureOpenLocked(ctx); err != nil {
			yield(Key{}, err)
			return
		}

		rows, err := c.sdb.QueryContext(ctx, selectAllKeys)
		if err != nil {
			yield(Key{}, fmt.Errorf("failed to query keys: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var k Key
			if err := rows.Scan(&k.Seq, &k.Key); err != nil {
				yield(Key{}, fmt.Errorf("failed to scan key: %w", err))
				return
			}

			if !yield(k, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(Key{}, fmt.Errorf("failed while iterating keys: %w", err))
		}
	}
}

// Close flushes pending writes and releases the connection. The handle is
// unusable afterwards.
func (d *DB) Close() error {
	d.cleanup.Stop()

	c := d.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.sdb == nil {
		return nil
	}

	var errs []error

	if !d.readonly {
		if err := d.flushLocked(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.sdb.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	c.sdb = nil

	return errors.Join(errs...)
}

// abandon is the cleanup path for handles dropped without Close.
func (c *core) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sdb == nil {
		return
	}

	c.closed = true

	if len(c.buffer) > 0 {
		if tx, err := c.sdb.Begin(); err == nil {
			committed := true

			for _, row := range c.buffer {
				if _, err := tx.Exec(insertDataRow, row.seq, row.key, row.data); err != nil {
					_ = tx.Rollback()
					committed = false
					break
				}
			}

			if committed {
				_ = tx.Commit()
			}
		}

		c.buffer = nil
	}

	_ = c.sdb.Close()
	c.sdb = nil
}
