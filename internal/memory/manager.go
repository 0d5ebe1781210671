// Package memory implements the memory manager: the write/read path that
// composes storage, encryption, the context fusion engine, and the analytic
// passes into one API.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/quietlabs/engram/internal/crypto"
	"github.com/quietlabs/engram/internal/fusion"
	"github.com/quietlabs/engram/internal/observe"
	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/pkg/types"
)

const (
	// DefaultRetentionDays is how long non-permanent memories are kept.
	DefaultRetentionDays = 365

	// plaintextCacheSize bounds the decrypted-content LRU.
	plaintextCacheSize = 1024
)

// Options configures a Manager.
type Options struct {
	// Cipher encrypts content at rest. Nil stores plaintext.
	Cipher crypto.Cipher

	// KeyID names the key used for new envelopes.
	KeyID string

	// Fusion receives short-term items on store. Optional.
	Fusion *fusion.Engine

	// RetentionDays overrides DefaultRetentionDays when positive.
	RetentionDays int

	Observer *observe.Observer
}

// Manager owns the memory lifecycle: validated writes, decrypting reads,
// search, pruning, and stats. It is safe for concurrent use as long as the
// underlying store is.
type Manager struct {
	store  storage.RecordStore
	cipher crypto.Cipher
	keyID  string
	fusion *fusion.Engine
	obs    *observe.Observer

	// plaintext caches decrypted content by item id so hot reads skip the
	// AES path. Invalidated on store and delete.
	plaintext *lru.Cache[string, string]

	retentionDays atomic.Int64
}

// NewManager wires a manager over the given record store.
func NewManager(store storage.RecordStore, opts Options) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("memory: store is required")
	}

	cache, err := lru.New[string, string](plaintextCacheSize)
	if err != nil {
		return nil, fmt.Errorf("memory: create cache: %w", err)
	}

	m := &Manager{
		store:     store,
		cipher:    opts.Cipher,
		keyID:     opts.KeyID,
		fusion:    opts.Fusion,
		obs:       opts.Observer,
		plaintext: cache,
	}

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	m.retentionDays.Store(int64(retention))

	return m, nil
}

// SetRetentionDays changes the prune horizon. Used for live config reload;
// non-positive values are ignored.
func (m *Manager) SetRetentionDays(days int) {
	if days > 0 {
		m.retentionDays.Store(int64(days))
	}
}

// RetentionDays reports the current prune horizon.
func (m *Manager) RetentionDays() int {
	return int(m.retentionDays.Load())
}

// Store validates and persists an item, assigning an id and timestamps when
// absent. Content is encrypted when a cipher is configured. Short-term items
// are also pushed onto the fusion engine's ring, in plaintext, so the
// context state reflects them immediately. The stored item is returned.
func (m *Manager) Store(ctx context.Context, item *types.MemoryItem) (*types.MemoryItem, error) {
	ctx, span := m.startSpan(ctx, "memory.store")
	defer span.End()

	if item == nil {
		return nil, fmt.Errorf("%w: nil item", storage.ErrInvalidInput)
	}
	if item.Content == "" {
		return nil, fmt.Errorf("%w: empty content", storage.ErrInvalidInput)
	}
	if !item.ContentType.Valid() || !item.MemoryType.Valid() || !item.Importance.Valid() {
		return nil, fmt.Errorf("%w: unknown content type, memory type, or importance", storage.ErrInvalidInput)
	}

	stored := item.Clone()
	if stored.ID == "" {
		stored.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.LastAccessed.IsZero() {
		stored.LastAccessed = stored.CreatedAt
	}

	rec := storage.Record{Item: *stored.Clone()}
	if m.cipher != nil {
		env, err := m.cipher.Encrypt([]byte(stored.Content), m.keyID)
		if err != nil {
			return nil, fmt.Errorf("memory: encrypt %s: %w", stored.ID, err)
		}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("memory: encode envelope: %w", err)
		}
		rec.Item.Content = ""
		rec.Item.Encrypted = true
		rec.EncryptedData = data
		stored.Encrypted = true
	}

	if err := m.store.Store(ctx, &rec); err != nil {
		return nil, fmt.Errorf("memory: store %s: %w", stored.ID, err)
	}

	m.plaintext.Add(stored.ID, stored.Content)

	if m.fusion != nil && stored.MemoryType == types.MemoryShortTerm {
		m.fusion.PushShortTerm(*stored)
	}

	if m.obs != nil {
		m.obs.Log().Debug().
			Str("id", stored.ID).
			Str("memory_type", string(stored.MemoryType)).
			Bool("encrypted", stored.Encrypted).
			Msg("memory stored")
	}

	return stored, nil
}

// Get returns the item with decrypted content, or (nil, nil) when the id
// does not exist. Access stats are bumped only after a successful decrypt,
// and the returned item carries the post-increment count.
func (m *Manager) Get(ctx context.Context, id string) (*types.MemoryItem, error) {
	ctx, span := m.startSpan(ctx, "memory.get")
	defer span.End()

	if id == "" {
		return nil, fmt.Errorf("%w: empty id", storage.ErrInvalidInput)
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: get %s: %w", id, err)
	}

	item := rec.Item.Clone()
	if err := m.hydrate(item, rec.EncryptedData); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := m.store.IncrementAccess(ctx, id, now); err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("memory: record access %s: %w", id, err)
	}
	item.AccessCount++
	item.LastAccessed = now

	return item, nil
}

// Search runs a parameterized query and returns decrypted items. Encrypted
// rows cannot be text-matched at rest, so when q.Text is set the backend
// returns them as candidates and the match is re-checked here after
// decryption.
func (m *Manager) Search(ctx context.Context, q storage.Query) ([]*types.MemoryItem, error) {
	ctx, span := m.startSpan(ctx, "memory.search")
	defer span.End()

	q.Normalize()

	recs, err := m.store.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}

	needle := strings.ToLower(q.Text)
	items := make([]*types.MemoryItem, 0, len(recs))
	for _, rec := range recs {
		item := rec.Item.Clone()
		encrypted := item.Encrypted
		if err := m.hydrate(item, rec.EncryptedData); err != nil {
			return nil, err
		}
		if needle != "" && encrypted && !strings.Contains(strings.ToLower(item.Content), needle) {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// ChangedSince lists items modified (stored or accessed) after since, newest
// first. It pages through the store ordered by last_accessed, stopping at
// the first item at or before the boundary.
func (m *Manager) ChangedSince(ctx context.Context, since time.Time) ([]*types.MemoryItem, error) {
	var out []*types.MemoryItem

	q := storage.Query{SortBy: storage.SortLastAccessed, SortOrder: "desc", Limit: 1000}
	for {
		items, err := m.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if !item.LastAccessed.After(since) {
				return out, nil
			}
			out = append(out, item)
		}
		if len(items) < q.Limit {
			return out, nil
		}
		q.Offset += q.Limit
	}
}

// Delete removes an item. Missing ids return storage.ErrNotFound.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", storage.ErrInvalidInput)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.plaintext.Remove(id)
	return nil
}

// Prune removes all non-permanent items older than the retention horizon
// and returns the number removed.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	ctx, span := m.startSpan(ctx, "memory.prune")
	defer span.End()

	cutoff := time.Now().UTC().AddDate(0, 0, -m.RetentionDays())
	removed, err := m.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("memory: prune: %w", err)
	}

	if removed > 0 {
		// Cheaper than tracking which cached ids were pruned.
		m.plaintext.Purge()
	}

	if m.obs != nil {
		m.obs.Log().Info().
			Int("removed", removed).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("memories pruned")
	}

	return removed, nil
}

// Stats returns aggregate counts over the store.
func (m *Manager) Stats(ctx context.Context) (*types.MemoryStats, error) {
	return m.store.Stats(ctx)
}

// RunPruneLoop prunes on the given interval until ctx is cancelled. Errors
// are logged, not fatal; the loop keeps its schedule.
func (m *Manager) RunPruneLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Prune(ctx); err != nil && m.obs != nil {
				m.obs.Log().Error().Err(err).Msg("scheduled prune failed")
			}
		}
	}
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// hydrate fills item.Content from the envelope when the record is encrypted,
// consulting the plaintext cache first.
func (m *Manager) hydrate(item *types.MemoryItem, encryptedData []byte) error {
	if !item.Encrypted {
		return nil
	}

	if content, ok := m.plaintext.Get(item.ID); ok {
		item.Content = content
		return nil
	}

	if m.cipher == nil {
		return fmt.Errorf("memory: decrypt %s: %w", item.ID, crypto.ErrKeyNotInitialized)
	}

	var env crypto.Envelope
	if err := json.Unmarshal(encryptedData, &env); err != nil {
		return fmt.Errorf("memory: decode envelope for %s: %w", item.ID, err)
	}
	plain, err := m.cipher.Decrypt(&env)
	if err != nil {
		return fmt.Errorf("memory: decrypt %s: %w", item.ID, err)
	}

	item.Content = string(plain)
	m.plaintext.Add(item.ID, item.Content)
	return nil
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if m.obs != nil {
		return m.obs.StartSpan(ctx, name)
	}
	return ctx, noop.Span{}
}
