package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlabs/engram/internal/crypto"
	"github.com/quietlabs/engram/internal/fusion"
	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/internal/storage/sqlite"
	"github.com/quietlabs/engram/pkg/types"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()

	store, err := sqlite.NewRecordStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := NewManager(store, opts)
	require.NoError(t, err)
	return m
}

func encryptedOptions(t *testing.T) Options {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewAESCipher(key)
	require.NoError(t, err)

	return Options{Cipher: cipher, KeyID: "test-key"}
}

func testItem(content string) *types.MemoryItem {
	return &types.MemoryItem{
		Content:     content,
		ContentType: types.ContentText,
		MemoryType:  types.MemoryMediumTerm,
		Importance:  types.ImportanceMedium,
		Tags:        []string{"work"},
	}
}

func TestStoreAssignsIDAndTimestamps(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	stored, err := m.Store(ctx, testItem("remember this"))
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, stored.CreatedAt, stored.LastAccessed)
	assert.False(t, stored.Encrypted)
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	_, err := m.Store(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = m.Store(ctx, &types.MemoryItem{
		ContentType: types.ContentText,
		MemoryType:  types.MemoryShortTerm,
		Importance:  types.ImportanceLow,
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	bad := testItem("x")
	bad.MemoryType = "weekly"
	_, err = m.Store(ctx, bad)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStoreEncryptsAtRest(t *testing.T) {
	opts := encryptedOptions(t)

	store, err := sqlite.NewRecordStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := NewManager(store, opts)
	require.NoError(t, err)

	ctx := context.Background()
	stored, err := m.Store(ctx, testItem("the launch code is 0000"))
	require.NoError(t, err)
	assert.True(t, stored.Encrypted)
	assert.Equal(t, "the launch code is 0000", stored.Content)

	// The raw record must hold no plaintext.
	rec, err := store.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.Item.Content)
	assert.True(t, rec.Item.Encrypted)
	assert.NotEmpty(t, rec.EncryptedData)
	assert.NotContains(t, string(rec.EncryptedData), "launch code")
}

func TestGetDecryptsAndCountsAccess(t *testing.T) {
	m := newTestManager(t, encryptedOptions(t))
	ctx := context.Background()

	stored, err := m.Store(ctx, testItem("secret plan"))
	require.NoError(t, err)

	got, err := m.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "secret plan", got.Content)
	assert.Equal(t, 1, got.AccessCount)

	got, err = m.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	m := newTestManager(t, Options{})

	got, err := m.Get(context.Background(), "no-such-id")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchDecryptsAndRechecksText(t *testing.T) {
	m := newTestManager(t, encryptedOptions(t))
	ctx := context.Background()

	_, err := m.Store(ctx, testItem("quarterly report draft"))
	require.NoError(t, err)
	_, err = m.Store(ctx, testItem("grocery list"))
	require.NoError(t, err)

	// Both rows are encrypted, so the backend returns both as candidates;
	// the text match must be re-applied after decryption.
	items, err := m.Search(ctx, storage.Query{Text: "quarterly"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "quarterly report draft", items[0].Content)
}

func TestSearchPlaintextFilters(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	critical := testItem("deploy checklist")
	critical.Importance = types.ImportanceCritical
	_, err := m.Store(ctx, critical)
	require.NoError(t, err)
	_, err = m.Store(ctx, testItem("lunch idea"))
	require.NoError(t, err)

	items, err := m.Search(ctx, storage.Query{Importance: types.ImportanceCritical})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "deploy checklist", items[0].Content)
}

func TestStoreForwardsShortTermToFusion(t *testing.T) {
	engine := fusion.NewEngine("tester", nil)
	opts := encryptedOptions(t)
	opts.Fusion = engine
	m := newTestManager(t, opts)
	ctx := context.Background()

	short := testItem("ephemeral thought")
	short.MemoryType = types.MemoryShortTerm
	stored, err := m.Store(ctx, short)
	require.NoError(t, err)

	_, err = m.Store(ctx, testItem("durable note"))
	require.NoError(t, err)

	ring := engine.Current().ShortTermMemory
	require.Len(t, ring, 1)
	assert.Equal(t, stored.ID, ring[0].ID)
	// The ring carries plaintext even when the record is encrypted at rest.
	assert.Equal(t, "ephemeral thought", ring[0].Content)
}

func TestPruneRespectsRetention(t *testing.T) {
	m := newTestManager(t, Options{RetentionDays: 30})
	ctx := context.Background()

	old := testItem("stale memory")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -31)
	stored, err := m.Store(ctx, old)
	require.NoError(t, err)

	boundary := testItem("recent enough memory")
	boundary.CreatedAt = time.Now().UTC().AddDate(0, 0, -29)
	inside, err := m.Store(ctx, boundary)
	require.NoError(t, err)

	keeper := testItem("permanent memory")
	keeper.MemoryType = types.MemoryPermanent
	keeper.CreatedAt = time.Now().UTC().AddDate(0, 0, -400)
	kept, err := m.Store(ctx, keeper)
	require.NoError(t, err)

	_, err = m.Store(ctx, testItem("fresh memory"))
	require.NoError(t, err)

	removed, err := m.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	gone, err := m.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	survivor, err := m.Get(ctx, inside.ID)
	require.NoError(t, err)
	assert.NotNil(t, survivor, "29-day-old item is inside the 30-day horizon")

	still, err := m.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestSetRetentionDays(t *testing.T) {
	m := newTestManager(t, Options{})
	assert.Equal(t, DefaultRetentionDays, m.RetentionDays())

	m.SetRetentionDays(90)
	assert.Equal(t, 90, m.RetentionDays())

	m.SetRetentionDays(0)
	assert.Equal(t, 90, m.RetentionDays(), "non-positive values are ignored")
}

func TestDeleteEvictsCache(t *testing.T) {
	m := newTestManager(t, encryptedOptions(t))
	ctx := context.Background()

	stored, err := m.Store(ctx, testItem("short lived"))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, stored.ID))
	assert.ErrorIs(t, m.Delete(ctx, stored.ID), storage.ErrNotFound)

	got, err := m.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatsAggregates(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	for _, mt := range []types.MemoryType{
		types.MemoryShortTerm, types.MemoryMediumTerm, types.MemoryMediumTerm, types.MemoryPermanent,
	} {
		item := testItem("stat item")
		item.MemoryType = mt
		_, err := m.Store(ctx, item)
		require.NoError(t, err)
	}

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.ShortTerm)
	assert.Equal(t, 2, stats.MediumTerm)
	assert.Equal(t, 1, stats.Permanent)
}
