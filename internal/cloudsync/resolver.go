// Package cloudsync reconciles the local memory store with a remote replica
// through a pluggable transport, guarded by a circuit breaker and a rate
// limit on sync rounds.
package cloudsync

import (
	"errors"
	"fmt"

	"github.com/quietlabs/engram/pkg/types"
)

// Strategy picks the winner when the same item changed on both sides.
type Strategy string

const (
	LocalWins        Strategy = "local_wins"
	RemoteWins       Strategy = "remote_wins"
	LastModifiedWins Strategy = "last_modified_wins"
	Merge            Strategy = "merge"
	ManualResolution Strategy = "manual_resolution"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case LocalWins, RemoteWins, LastModifiedWins, Merge, ManualResolution:
		return true
	}
	return false
}

// ErrManualResolution is returned for conflicts under ManualResolution; the
// caller surfaces them instead of picking a side.
var ErrManualResolution = errors.New("cloudsync: conflict requires manual resolution")

// Resolver applies one conflict strategy to item pairs.
type Resolver struct {
	Strategy Strategy
}

// NewResolver returns a resolver, defaulting to LastModifiedWins.
func NewResolver(s Strategy) (*Resolver, error) {
	if s == "" {
		s = LastModifiedWins
	}
	if !s.Valid() {
		return nil, fmt.Errorf("cloudsync: unknown conflict strategy %q", s)
	}
	return &Resolver{Strategy: s}, nil
}

// Resolve returns the item that should survive. The result is always a copy;
// neither input is mutated. Last-modified comparisons use last_accessed,
// which both sides bump on every write and read.
func (r *Resolver) Resolve(local, remote *types.MemoryItem) (*types.MemoryItem, error) {
	switch r.Strategy {
	case LocalWins:
		return local.Clone(), nil
	case RemoteWins:
		return remote.Clone(), nil
	case LastModifiedWins:
		if remote.LastAccessed.After(local.LastAccessed) {
			return remote.Clone(), nil
		}
		return local.Clone(), nil
	case Merge:
		return mergeItems(local, remote), nil
	case ManualResolution:
		return nil, fmt.Errorf("%w: item %s", ErrManualResolution, local.ID)
	default:
		return nil, fmt.Errorf("cloudsync: unknown conflict strategy %q", r.Strategy)
	}
}

// mergeItems keeps the newer side's content and classification, unions tags
// and metadata, and keeps the higher access count so merge never loses
// usage history. Ties favor local.
func mergeItems(local, remote *types.MemoryItem) *types.MemoryItem {
	newer, older := local, remote
	if remote.LastAccessed.After(local.LastAccessed) {
		newer, older = remote, local
	}

	merged := newer.Clone()

	for _, tag := range older.Tags {
		if !merged.HasTag(tag) {
			merged.Tags = append(merged.Tags, tag)
		}
	}

	if len(older.Metadata) > 0 && merged.Metadata == nil {
		merged.Metadata = make(map[string]any, len(older.Metadata))
	}
	for k, v := range older.Metadata {
		if _, ok := merged.Metadata[k]; !ok {
			merged.Metadata[k] = v
		}
	}

	if older.AccessCount > merged.AccessCount {
		merged.AccessCount = older.AccessCount
	}
	if older.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = older.CreatedAt
	}

	return merged
}
