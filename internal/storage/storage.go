// Package storage defines the backend-neutral persistence contract for
// memory records. Backends (sqlite, postgres) persist records verbatim;
// encryption and decryption happen above this layer, so a backend never
// sees key material or plaintext it was not handed.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: record not found")

	// ErrInvalidInput indicates the input parameters are invalid.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// Record is the persisted form of a memory item. When Item.Encrypted is
// true, Item.Content is empty at rest and EncryptedData holds the JSON
// encoded ciphertext envelope.
type Record struct {
	Item          types.MemoryItem
	EncryptedData []byte
}

// RecordStore is implemented by every storage backend.
type RecordStore interface {
	// Store creates or updates a record (upsert semantics).
	Store(ctx context.Context, rec *Record) error

	// Get retrieves a record by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Search returns records matching the query, already filtered,
	// sorted, and paginated by the backend.
	Search(ctx context.Context, q Query) ([]*Record, error)

	// IncrementAccess atomically bumps access_count and sets
	// last_accessed for the given id. Returns ErrNotFound if absent.
	IncrementAccess(ctx context.Context, id string, at time.Time) error

	// Delete removes a record by id. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Prune deletes all non-permanent records created before cutoff and
	// returns the number removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// Stats returns a point-in-time aggregate over the table.
	Stats(ctx context.Context) (*types.MemoryStats, error)

	// Close releases backend resources.
	Close() error
}

// Sort fields accepted by Query.Normalize.
const (
	SortCreatedAt    = "created_at"
	SortLastAccessed = "last_accessed"
	SortAccessCount  = "access_count"
)

// Query describes a parameterized search. Zero values mean "no filter".
type Query struct {
	// Text is a case-insensitive substring match on content. Backends
	// match plaintext rows directly; encrypted rows are returned as
	// candidates for the caller to re-check after decryption, since their
	// content column is not matchable at rest. Limit and Offset therefore
	// count candidate rows, not post-decrypt matches: a page holding
	// encrypted candidates may yield fewer than Limit matches even when
	// more exist on later pages.
	Text string

	ContentType types.ContentType
	MemoryType  types.MemoryType
	Importance  types.Importance

	// Tags must all be present on a matching record (logical AND).
	Tags []string

	// CreatedAfter / CreatedBefore bound created_at (closed range).
	CreatedAfter  time.Time
	CreatedBefore time.Time

	Limit  int
	Offset int

	SortBy    string // created_at | last_accessed | access_count
	SortOrder string // asc | desc
}

// Normalize applies defaults and whitelists the sort field so callers can
// never inject SQL through ordering parameters.
func (q *Query) Normalize() {
	switch q.SortBy {
	case SortCreatedAt, SortLastAccessed, SortAccessCount:
	default:
		q.SortBy = SortLastAccessed
	}

	if q.SortOrder != "asc" && q.SortOrder != "desc" {
		q.SortOrder = "desc"
	}

	if q.Limit < 1 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}

	if q.Offset < 0 {
		q.Offset = 0
	}
}
