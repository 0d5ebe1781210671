// Package types defines the shared data model for the Engram memory and
// context engine: memory items, the situational context snapshot, and the
// aggregate statistics exchanged between components.
package types

import (
	"time"
)

// ContentType classifies the payload of a memory item.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentAudio      ContentType = "audio"
	ContentVideo      ContentType = "video"
	ContentDocument   ContentType = "document"
	ContentCode       ContentType = "code"
	ContentStructured ContentType = "structured_data"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentAudio, ContentVideo,
		ContentDocument, ContentCode, ContentStructured:
		return true
	}
	return false
}

// MemoryType is the retention tier of a memory item. Tiers govern retention
// eligibility only: Permanent items are exempt from age-based pruning, and
// ShortTerm items are mirrored into the context engine's short-term ring.
// Items are never migrated between tiers automatically.
type MemoryType string

const (
	MemoryShortTerm  MemoryType = "short_term"
	MemoryMediumTerm MemoryType = "medium_term"
	MemoryLongTerm   MemoryType = "long_term"
	MemoryPermanent  MemoryType = "permanent"
)

// Valid reports whether m is a known memory tier.
func (m MemoryType) Valid() bool {
	switch m {
	case MemoryShortTerm, MemoryMediumTerm, MemoryLongTerm, MemoryPermanent:
		return true
	}
	return false
}

// Importance ranks how critical a memory item is.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Valid reports whether i is a known importance level.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return true
	}
	return false
}

// MemoryItem is a single stored, timestamped observation.
//
// Content holds plaintext while the item is in memory. At rest, when
// Encrypted is true, the content column is empty and the ciphertext envelope
// lives in the encrypted_data blob. CreatedAt is immutable; LastAccessed and
// AccessCount are updated on every successful read and never go backwards.
type MemoryItem struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	ContentType  ContentType    `json:"content_type"`
	MemoryType   MemoryType     `json:"memory_type"`
	Importance   Importance     `json:"importance"`
	Tags         []string       `json:"tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	AccessCount  int            `json:"access_count"`
	Encrypted    bool           `json:"encrypted"`
}

// Clone returns a deep copy. Analytic passes operate on copies so they can
// never mutate stored state.
func (m *MemoryItem) Clone() *MemoryItem {
	out := *m
	if m.Tags != nil {
		out.Tags = make([]string, len(m.Tags))
		copy(out.Tags, m.Tags)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// HasTag reports whether the item carries the given tag.
func (m *MemoryItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MemoryStats is a point-in-time aggregate over the store.
type MemoryStats struct {
	Total          int        `json:"total"`
	ShortTerm      int        `json:"short_term"`
	MediumTerm     int        `json:"medium_term"`
	LongTerm       int        `json:"long_term"`
	Permanent      int        `json:"permanent"`
	AvgAccessCount float64    `json:"avg_access_count"`
	Oldest         *time.Time `json:"oldest,omitempty"`
	Newest         *time.Time `json:"newest,omitempty"`
}
