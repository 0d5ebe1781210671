package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quietlabs/engram/pkg/types"
)

func baseContext(now time.Time) types.ContextState {
	return types.NewContextState("tester", now)
}

func TestRelevanceScoreBounds(t *testing.T) {
	now := time.Now()
	ctx := baseContext(now)
	ctx.CurrentTask = "project alpha"
	ctx.ActiveApplications = []types.ApplicationInfo{
		{AppID: "editor", Name: "Editor", Focused: true},
		{AppID: "browser", Name: "Browser"},
	}

	cases := []types.MemoryItem{
		{Content: "", LastAccessed: now},
		{Content: "project alpha notes in Editor and Browser", Tags: []string{"helpful", "friendly"}, LastAccessed: now, AccessCount: 1_000_000},
		{Content: "ancient and unrelated", LastAccessed: now.Add(-10 * 365 * 24 * time.Hour)},
		{Content: "from the future", LastAccessed: now.Add(24 * time.Hour), AccessCount: 5},
	}

	for i, item := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			score := RelevanceScore(&item, &ctx, now)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestRelevanceScoreRecentTaskMention(t *testing.T) {
	now := time.Now()
	ctx := baseContext(now)
	ctx.CurrentTask = "quarterly report"

	item := types.MemoryItem{
		Content:      "Draft outline for the quarterly report",
		LastAccessed: now.Add(-1 * time.Hour),
		AccessCount:  5,
	}

	// time 0.4*e^-0.1 ~= 0.362, frequency 0.3*log10(6)/10 ~= 0.023,
	// context 0.3*0.5 = 0.15; total ~= 0.535.
	score := RelevanceScore(&item, &ctx, now)
	assert.InDelta(t, 0.535, score, 0.01)
	assert.Greater(t, score, 0.5)
}

func TestRelevanceScoreDecay(t *testing.T) {
	now := time.Now()
	ctx := baseContext(now)

	fresh := types.MemoryItem{Content: "x", LastAccessed: now}
	stale := types.MemoryItem{Content: "x", LastAccessed: now.Add(-72 * time.Hour)}

	assert.Greater(t, RelevanceScore(&fresh, &ctx, now), RelevanceScore(&stale, &ctx, now))
}

func TestRelevanceScoreToneTags(t *testing.T) {
	now := time.Now()
	ctx := baseContext(now)

	plain := types.MemoryItem{Content: "x", LastAccessed: now}
	toned := types.MemoryItem{Content: "x", Tags: []string{"Helpful"}, LastAccessed: now}

	// Default preferred tone includes "helpful"; matching is case-insensitive.
	assert.InDelta(t, toneTagScore*relevanceContextWeight,
		RelevanceScore(&toned, &ctx, now)-RelevanceScore(&plain, &ctx, now), 1e-9)
}

func TestRelevanceScoreContextCapped(t *testing.T) {
	now := time.Now()
	ctx := baseContext(now)
	ctx.CurrentTask = "alpha"
	ctx.ActiveApplications = []types.ApplicationInfo{
		{Name: "alpha"}, {Name: "alpha"}, {Name: "alpha"},
	}

	item := types.MemoryItem{
		Content:      "alpha alpha alpha",
		Tags:         []string{"helpful", "friendly"},
		LastAccessed: now,
	}

	// Overlap saturates at 1.0, so the context term contributes at most 0.3.
	assert.LessOrEqual(t, contextOverlap(&item, &ctx), 1.0)
	assert.LessOrEqual(t, RelevanceScore(&item, &ctx, now), 1.0)
}
