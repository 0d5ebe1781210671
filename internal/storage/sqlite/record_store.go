// Package sqlite provides the local SQLite storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/pkg/types"
)

// Schema creates the memories table and the indexes that keep search and
// prune sub-linear.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	content_type TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	importance TEXT NOT NULL,
	tags TEXT,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL,
	last_accessed TIMESTAMP NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	encrypted INTEGER NOT NULL DEFAULT 0,
	encrypted_data BLOB
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
`

// RecordStore implements storage.RecordStore using SQLite.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore opens a SQLite database, configures WAL mode, and creates
// the schema.
func NewRecordStore(dsn string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &RecordStore{db: db}, nil
}

// Store creates or updates a record (upsert semantics).
func (s *RecordStore) Store(ctx context.Context, rec *storage.Record) error {
	if rec == nil || rec.Item.ID == "" {
		return fmt.Errorf("%w: record with id is required", storage.ErrInvalidInput)
	}

	tagsJSON, metadataJSON, err := encodeTagsMetadata(&rec.Item)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO memories (
			id, content, content_type, memory_type, importance,
			tags, metadata, created_at, last_accessed,
			access_count, encrypted, encrypted_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			content_type = excluded.content_type,
			memory_type = excluded.memory_type,
			importance = excluded.importance,
			tags = excluded.tags,
			metadata = excluded.metadata,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			encrypted = excluded.encrypted,
			encrypted_data = excluded.encrypted_data
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.Item.ID,
		rec.Item.Content,
		string(rec.Item.ContentType),
		string(rec.Item.MemoryType),
		string(rec.Item.Importance),
		nullableBytes(tagsJSON),
		nullableBytes(metadataJSON),
		rec.Item.CreatedAt,
		rec.Item.LastAccessed,
		rec.Item.AccessCount,
		rec.Item.Encrypted,
		nullableBytes(rec.EncryptedData),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store record: %w", err)
	}

	return nil
}

const recordColumns = `
	id, content, content_type, memory_type, importance,
	tags, metadata, created_at, last_accessed,
	access_count, encrypted, encrypted_data
`

// Get retrieves a record by id.
func (s *RecordStore) Get(ctx context.Context, id string) (*storage.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM memories WHERE id = ?", id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get record: %w", err)
	}
	return rec, nil
}

// Search returns records matching the query. Text matching applies to
// plaintext rows; encrypted rows remain candidates for the caller to
// re-check after decryption.
func (s *RecordStore) Search(ctx context.Context, q storage.Query) ([]*storage.Record, error) {
	q.Normalize()

	var conditions []string
	var args []any

	if q.Text != "" {
		// LIKE is case-insensitive in SQLite for ASCII.
		conditions = append(conditions, "(encrypted = 1 OR content LIKE ?)")
		args = append(args, "%"+q.Text+"%")
	}
	if q.ContentType != "" {
		conditions = append(conditions, "content_type = ?")
		args = append(args, string(q.ContentType))
	}
	if q.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, string(q.MemoryType))
	}
	if q.Importance != "" {
		conditions = append(conditions, "importance = ?")
		args = append(args, string(q.Importance))
	}
	if !q.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.CreatedAfter)
	}
	if !q.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, q.CreatedBefore)
	}
	for _, tag := range q.Tags {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// SortBy and SortOrder are whitelisted by Normalize.
	query := fmt.Sprintf(
		"SELECT %s FROM memories %s ORDER BY %s %s LIMIT ? OFFSET ?",
		recordColumns, where, q.SortBy, strings.ToUpper(q.SortOrder))
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search failed: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan search row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search iteration failed: %w", err)
	}

	return records, nil
}

// IncrementAccess atomically bumps access_count and sets last_accessed.
func (s *RecordStore) IncrementAccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET last_accessed = ?, access_count = access_count + 1
		WHERE id = ?
	`, at, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update access stats: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a record by id.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Prune deletes non-permanent records created before cutoff in a single
// statement, so concurrent readers never observe a half-deleted row.
func (s *RecordStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memories
		WHERE created_at < ? AND memory_type != ?
	`, cutoff, string(types.MemoryPermanent))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// Stats returns a point-in-time aggregate over the memories table. A single
// query keeps the snapshot internally consistent.
func (s *RecordStore) Stats(ctx context.Context) (*types.MemoryStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN memory_type = 'short_term' THEN 1 ELSE 0 END),
			SUM(CASE WHEN memory_type = 'medium_term' THEN 1 ELSE 0 END),
			SUM(CASE WHEN memory_type = 'long_term' THEN 1 ELSE 0 END),
			SUM(CASE WHEN memory_type = 'permanent' THEN 1 ELSE 0 END),
			AVG(access_count),
			MIN(created_at),
			MAX(created_at)
		FROM memories
	`)

	var stats types.MemoryStats
	var shortTerm, mediumTerm, longTerm, permanent sql.NullInt64
	var avg sql.NullFloat64
	var oldest, newest sql.NullString

	// MIN/MAX lose the column's TIMESTAMP declared type, so the driver
	// hands the aggregates back as raw text; parse them here.
	err := row.Scan(&stats.Total, &shortTerm, &mediumTerm, &longTerm,
		&permanent, &avg, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats query failed: %w", err)
	}

	stats.ShortTerm = int(shortTerm.Int64)
	stats.MediumTerm = int(mediumTerm.Int64)
	stats.LongTerm = int(longTerm.Int64)
	stats.Permanent = int(permanent.Int64)
	stats.AvgAccessCount = avg.Float64
	if oldest.Valid {
		t, perr := parseStoredTime(oldest.String)
		if perr != nil {
			return nil, perr
		}
		stats.Oldest = &t
	}
	if newest.Valid {
		t, perr := parseStoredTime(newest.String)
		if perr != nil {
			return nil, perr
		}
		stats.Newest = &t
	}

	return &stats, nil
}

// storedTimeLayouts covers the text forms the driver writes timestamps in,
// including Go's time.Time String() form used for bound parameters.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseStoredTime(s string) (time.Time, error) {
	// Strip a monotonic clock suffix if present.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlite: unparseable timestamp %q", s)
}

// Close releases the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*storage.Record, error) {
	var rec storage.Record
	var tagsJSON, metadataJSON sql.NullString
	var encryptedData []byte
	var contentType, memoryType, importance string

	err := sc.Scan(
		&rec.Item.ID,
		&rec.Item.Content,
		&contentType,
		&memoryType,
		&importance,
		&tagsJSON,
		&metadataJSON,
		&rec.Item.CreatedAt,
		&rec.Item.LastAccessed,
		&rec.Item.AccessCount,
		&rec.Item.Encrypted,
		&encryptedData,
	)
	if err != nil {
		return nil, err
	}

	rec.Item.ContentType = types.ContentType(contentType)
	rec.Item.MemoryType = types.MemoryType(memoryType)
	rec.Item.Importance = types.Importance(importance)
	rec.EncryptedData = encryptedData

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Item.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

func encodeTagsMetadata(item *types.MemoryItem) (tagsJSON, metadataJSON []byte, err error) {
	if len(item.Tags) > 0 {
		tagsJSON, err = json.Marshal(item.Tags)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
	}
	if len(item.Metadata) > 0 {
		metadataJSON, err = json.Marshal(item.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	return tagsJSON, metadataJSON, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
