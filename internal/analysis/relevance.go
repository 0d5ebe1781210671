// Package analysis implements the pure analytic passes over memory batches:
// relevance scoring, pattern detection, anomaly detection, and prediction.
// Every function here operates on copies handed to it, holds no locks, and
// is deterministic for a fixed batch and clock.
package analysis

import (
	"math"
	"strings"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

// Relevance scoring weights. These are configuration constants, not derived.
const (
	relevanceDecayFactor = 0.1 // per hour since last access

	relevanceTimeWeight      = 0.4
	relevanceFrequencyWeight = 0.3
	relevanceContextWeight   = 0.3

	taskMentionScore = 0.5
	appMentionScore  = 0.3
	toneTagScore     = 0.2
)

// RelevanceScore rates how pertinent item is to the current context, in
// [0, 1]. It combines exponential time decay on the last access,
// logarithmic access frequency, and keyword/tag overlap with the context.
// String matching is case-insensitive substring containment.
func RelevanceScore(item *types.MemoryItem, ctx *types.ContextState, now time.Time) float64 {
	hours := now.Sub(item.LastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	timeScore := math.Exp(-relevanceDecayFactor * hours)

	frequencyScore := math.Log10(1+float64(item.AccessCount)) / 10
	if frequencyScore > 1 {
		frequencyScore = 1
	}

	contextScore := contextOverlap(item, ctx)

	score := relevanceTimeWeight*timeScore +
		relevanceFrequencyWeight*frequencyScore +
		relevanceContextWeight*contextScore

	return clamp01(score)
}

func contextOverlap(item *types.MemoryItem, ctx *types.ContextState) float64 {
	content := strings.ToLower(item.Content)
	score := 0.0

	if ctx.CurrentTask != "" && strings.Contains(content, strings.ToLower(ctx.CurrentTask)) {
		score += taskMentionScore
	}

	for _, app := range ctx.ActiveApplications {
		if app.Name != "" && strings.Contains(content, strings.ToLower(app.Name)) {
			score += appMentionScore
		}
	}

	tones := make(map[string]struct{}, len(ctx.UserPreferences.Communication.PreferredTone))
	for _, tone := range ctx.UserPreferences.Communication.PreferredTone {
		tones[strings.ToLower(tone)] = struct{}{}
	}
	for _, tag := range item.Tags {
		if _, ok := tones[strings.ToLower(tag)]; ok {
			score += toneTagScore
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
