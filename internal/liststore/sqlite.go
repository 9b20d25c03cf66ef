package liststore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/rankstamp/rankstamp/stamp"
)

const (
	// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
	timeFormat = "2006-01-02T15:04:05.000Z"
)

// SQLiteStore implements the Store interface using SQLite as the backing
// database. It provides durable, ACID-compliant list storage suitable for
// single-node deployments.
//
// Stamps are stored in a BLOB column, which SQLite compares bytewise, so the
// (list_id, stamp) index delivers items in position order and repositioning
// an item is a single UPDATE of its row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given DSN and initializes
// the database schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the required tables and indexes.
// This is safe to call multiple times (idempotent via IF NOT EXISTS).
func (s *SQLiteStore) initDB() error {
	// Apply PRAGMAs for performance and correctness.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS lists (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS items (
			list_id    TEXT NOT NULL,
			id         TEXT NOT NULL,
			stamp      BLOB NOT NULL,
			payload    TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (list_id, id),
			FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_items_list_stamp ON items(list_id, stamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// Insert initial schema version if not present.
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}

	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ---- List operations ----

// CreateList creates a new list record.
func (s *SQLiteStore) CreateList(ctx context.Context, list *ListRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lists (id, title, created_at) VALUES (?, ?, ?)`,
		list.ID,
		list.Title,
		list.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "PRIMARY KEY") {
			return fmt.Errorf("%w: %s", ErrListExists, list.ID)
		}
		return fmt.Errorf("creating list %q: %w", list.ID, err)
	}
	return nil
}

// GetList retrieves a list by ID.
func (s *SQLiteStore) GetList(ctx context.Context, listID string) (*ListRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM lists WHERE id = ?`,
		listID,
	)

	var l ListRecord
	var createdAtStr string
	err := row.Scan(&l.ID, &l.Title, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting list %q: %w", listID, err)
	}
	l.CreatedAt, _ = time.Parse(timeFormat, createdAtStr)
	return &l, nil
}

// DeleteList removes a list. Its items go with it via the foreign key
// cascade.
func (s *SQLiteStore) DeleteList(ctx context.Context, listID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM lists WHERE id = ?`, listID,
	)
	if err != nil {
		return fmt.Errorf("deleting list %q: %w", listID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	return nil
}

// ListLists returns all lists ordered by ID.
func (s *SQLiteStore) ListLists(ctx context.Context) ([]*ListRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM lists ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	defer rows.Close()

	var lists []*ListRecord
	for rows.Next() {
		var l ListRecord
		var createdAtStr string
		if err := rows.Scan(&l.ID, &l.Title, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning list row: %w", err)
		}
		l.CreatedAt, _ = time.Parse(timeFormat, createdAtStr)
		lists = append(lists, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating list rows: %w", err)
	}
	return lists, nil
}

// ---- Item operations ----

// PutItem inserts a new item row.
func (s *SQLiteStore) PutItem(ctx context.Context, item *ItemRecord) error {
	payload := "{}"
	if item.Payload != nil {
		payload = string(item.Payload)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (list_id, id, stamp, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ListID,
		item.ID,
		[]byte(item.Stamp),
		payload,
		item.CreatedAt.UTC().Format(timeFormat),
		item.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return fmt.Errorf("%w: %s", ErrListNotFound, item.ListID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "PRIMARY KEY") {
			return fmt.Errorf("%w: %s/%s", ErrItemExists, item.ListID, item.ID)
		}
		return fmt.Errorf("putting item %q/%q: %w", item.ListID, item.ID, err)
	}
	return nil
}

// GetItem retrieves an item by list and item ID.
func (s *SQLiteStore) GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT list_id, id, stamp, payload, created_at, updated_at
		 FROM items WHERE list_id = ? AND id = ?`,
		listID, itemID,
	)

	item, err := scanItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item %q/%q: %w", listID, itemID, err)
	}
	return item, nil
}

// DeleteItem removes an item row.
func (s *SQLiteStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE list_id = ? AND id = ?`,
		listID, itemID,
	)
	if err != nil {
		return fmt.Errorf("deleting item %q/%q: %w", listID, itemID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return s.missingItemErr(ctx, listID, itemID)
	}
	return nil
}

// UpdateItemStamp repositions an item. This is the one write a move needs;
// no other row changes.
func (s *SQLiteStore) UpdateItemStamp(ctx context.Context, listID, itemID string, st stamp.Stamp, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET stamp = ?, updated_at = ? WHERE list_id = ? AND id = ?`,
		[]byte(st),
		updatedAt.UTC().Format(timeFormat),
		listID, itemID,
	)
	if err != nil {
		return fmt.Errorf("updating stamp for %q/%q: %w", listID, itemID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return s.missingItemErr(ctx, listID, itemID)
	}
	return nil
}

// UpdateItemPayload replaces an item's payload.
func (s *SQLiteStore) UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error {
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET payload = ?, updated_at = ? WHERE list_id = ? AND id = ?`,
		string(payload),
		updatedAt.UTC().Format(timeFormat),
		listID, itemID,
	)
	if err != nil {
		return fmt.Errorf("updating payload for %q/%q: %w", listID, itemID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return s.missingItemErr(ctx, listID, itemID)
	}
	return nil
}

// ListItems returns items in stamp order, paginated by an after-stamp marker.
func (s *SQLiteStore) ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lists WHERE id = ?`, listID,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("checking list %q: %w", listID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	var args []interface{}
	query := `SELECT list_id, id, stamp, payload, created_at, updated_at
			  FROM items WHERE list_id = ?`
	args = append(args, listID)

	if opts.After != "" {
		query += ` AND stamp > ?`
		args = append(args, []byte(opts.After))
	}

	query += ` ORDER BY stamp`
	if opts.Limit > 0 {
		// Fetch one extra to determine truncation.
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items in %q: %w", listID, err)
	}
	defer rows.Close()

	var items []*ItemRecord
	for rows.Next() {
		item, err := scanItemRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating item rows: %w", err)
	}

	result := &ListItemsResult{Items: items}
	if opts.Limit > 0 && len(items) > opts.Limit {
		result.Items = items[:opts.Limit]
		result.IsTruncated = true
		result.NextAfter = result.Items[opts.Limit-1].Stamp
	}
	if result.Items == nil {
		result.Items = []*ItemRecord{}
	}
	return result, nil
}

// NextItem returns the first item after the given stamp.
func (s *SQLiteStore) NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error) {
	var row *sql.Row
	if after == "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT list_id, id, stamp, payload, created_at, updated_at
			 FROM items WHERE list_id = ?
			 ORDER BY stamp LIMIT 1`,
			listID,
		)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT list_id, id, stamp, payload, created_at, updated_at
			 FROM items WHERE list_id = ? AND stamp > ?
			 ORDER BY stamp LIMIT 1`,
			listID, []byte(after),
		)
	}

	item, err := scanItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding item after stamp in %q: %w", listID, err)
	}
	return item, nil
}

// PrevItem returns the last item before the given stamp.
func (s *SQLiteStore) PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT list_id, id, stamp, payload, created_at, updated_at
		 FROM items WHERE list_id = ? AND stamp < ?
		 ORDER BY stamp DESC LIMIT 1`,
		listID, []byte(before),
	)

	item, err := scanItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding item before stamp in %q: %w", listID, err)
	}
	return item, nil
}

// CountItems reports the number of items in a list.
func (s *SQLiteStore) CountItems(ctx context.Context, listID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE list_id = ?`, listID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting items in %q: %w", listID, err)
	}
	return count, nil
}

// ---- Helper functions ----

// missingItemErr distinguishes a missing list from a missing item after a
// zero-row write.
func (s *SQLiteStore) missingItemErr(ctx context.Context, listID, itemID string) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lists WHERE id = ?`, listID,
	).Scan(&count)
	if err == nil && count == 0 {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
}

// scanItemRow scans an item row from a *sql.Row.
func scanItemRow(row *sql.Row) (*ItemRecord, error) {
	var item ItemRecord
	var stampBytes []byte
	var payloadStr, createdAtStr, updatedAtStr string

	err := row.Scan(&item.ListID, &item.ID, &stampBytes, &payloadStr, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	item.Stamp = stamp.Stamp(stampBytes)
	item.Payload = json.RawMessage(payloadStr)
	item.CreatedAt, _ = time.Parse(timeFormat, createdAtStr)
	item.UpdatedAt, _ = time.Parse(timeFormat, updatedAtStr)
	return &item, nil
}

// scanItemRows scans an item row from *sql.Rows.
func scanItemRows(rows *sql.Rows) (*ItemRecord, error) {
	var item ItemRecord
	var stampBytes []byte
	var payloadStr, createdAtStr, updatedAtStr string

	err := rows.Scan(&item.ListID, &item.ID, &stampBytes, &payloadStr, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	item.Stamp = stamp.Stamp(stampBytes)
	item.Payload = json.RawMessage(payloadStr)
	item.CreatedAt, _ = time.Parse(timeFormat, createdAtStr)
	item.UpdatedAt, _ = time.Parse(timeFormat, updatedAtStr)
	return &item, nil
}
