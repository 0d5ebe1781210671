package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

// PatternType classifies a detected pattern.
type PatternType string

const (
	PatternTemporal   PatternType = "temporal"
	PatternContextual PatternType = "contextual"
	PatternBehavioral PatternType = "behavioral"
)

// Pattern is one detected regularity in a memory batch.
type Pattern struct {
	Type        PatternType    `json:"type"`
	Confidence  float64        `json:"confidence"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

const (
	// defaultPatternThreshold is the minimum confidence for a pattern to
	// be reported.
	defaultPatternThreshold = 0.7

	// contextual token frequency must reach threshold*0.5 of the batch.
	contextualRatioFactor = 0.5

	// minTokenLength drops short stop-word-ish tokens.
	minTokenLength = 4

	// behavioralConfidence is fixed for the descriptive interval pattern.
	behavioralConfidence = 0.8
)

// PatternDetector mines temporal, contextual, and behavioral patterns from
// a batch of memory items.
type PatternDetector struct {
	// Threshold is the minimum confidence for reported patterns.
	Threshold float64
}

// NewPatternDetector returns a detector with the default 0.7 threshold.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{Threshold: defaultPatternThreshold}
}

// Detect runs all three pattern passes over the batch. Small or empty
// batches simply produce fewer or zero patterns, never an error.
func (d *PatternDetector) Detect(items []types.MemoryItem) []Pattern {
	var patterns []Pattern
	patterns = append(patterns, d.temporal(items)...)
	patterns = append(patterns, d.contextual(items)...)
	patterns = append(patterns, d.behavioral(items)...)
	return patterns
}

// temporal buckets creation times by hour of day and by weekday and reports
// the dominant bucket when it holds at least Threshold of the batch.
func (d *PatternDetector) temporal(items []types.MemoryItem) []Pattern {
	if len(items) == 0 {
		return nil
	}

	hourCounts := make(map[int]int)
	weekdayCounts := make(map[time.Weekday]int)
	for _, item := range items {
		hourCounts[item.CreatedAt.Hour()]++
		weekdayCounts[item.CreatedAt.Weekday()]++
	}

	total := float64(len(items))
	var patterns []Pattern

	if hour, count := dominantInt(hourCounts); float64(count)/total >= d.Threshold {
		patterns = append(patterns, Pattern{
			Type:        PatternTemporal,
			Confidence:  float64(count) / total,
			Description: fmt.Sprintf("Most memories are created around %02d:00", hour),
			Payload:     map[string]any{"hour": hour, "count": count},
		})
	}

	if day, count := dominantWeekday(weekdayCounts); float64(count)/total >= d.Threshold {
		patterns = append(patterns, Pattern{
			Type:        PatternTemporal,
			Confidence:  float64(count) / total,
			Description: fmt.Sprintf("Most memories are created on %s", day),
			Payload:     map[string]any{"weekday": day.String(), "count": count},
		})
	}

	return patterns
}

// contextual tokenizes content on whitespace, discards short tokens, and
// reports every token whose frequency ratio reaches Threshold*0.5.
func (d *PatternDetector) contextual(items []types.MemoryItem) []Pattern {
	if len(items) == 0 {
		return nil
	}

	tokenCounts := make(map[string]int)
	for _, item := range items {
		seen := make(map[string]struct{})
		for _, tok := range strings.Fields(strings.ToLower(item.Content)) {
			if len(tok) < minTokenLength {
				continue
			}
			// Count each token once per item so one verbose memory
			// cannot fabricate a batch-wide theme.
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			tokenCounts[tok]++
		}
	}

	minRatio := d.Threshold * contextualRatioFactor
	total := float64(len(items))

	tokens := make([]string, 0, len(tokenCounts))
	for tok := range tokenCounts {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	var patterns []Pattern
	for _, tok := range tokens {
		ratio := float64(tokenCounts[tok]) / total
		if ratio >= minRatio {
			patterns = append(patterns, Pattern{
				Type:        PatternContextual,
				Confidence:  clamp01(ratio),
				Description: fmt.Sprintf("Recurring topic %q appears in %d of %d memories", tok, tokenCounts[tok], len(items)),
				Payload:     map[string]any{"token": tok, "count": tokenCounts[tok]},
			})
		}
	}

	return patterns
}

// behavioral reports the mean interval between consecutive creations as a
// descriptive pattern with fixed confidence.
func (d *PatternDetector) behavioral(items []types.MemoryItem) []Pattern {
	if len(items) < 2 {
		return nil
	}

	sorted := make([]types.MemoryItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var totalGap float64
	for i := 1; i < len(sorted); i++ {
		totalGap += sorted[i].CreatedAt.Sub(sorted[i-1].CreatedAt).Minutes()
	}
	meanGap := totalGap / float64(len(sorted)-1)

	if behavioralConfidence < d.Threshold {
		return nil
	}

	return []Pattern{{
		Type:        PatternBehavioral,
		Confidence:  behavioralConfidence,
		Description: fmt.Sprintf("Memories are created every %.1f minutes on average", meanGap),
		Payload:     map[string]any{"mean_interval_minutes": meanGap},
	}}
}

// dominantInt returns the key with the highest count, breaking ties by the
// smaller key for determinism.
func dominantInt(counts map[int]int) (int, int) {
	bestKey, bestCount := -1, -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < bestKey) {
			bestKey, bestCount = k, c
		}
	}
	return bestKey, bestCount
}

func dominantWeekday(counts map[time.Weekday]int) (time.Weekday, int) {
	bestKey, bestCount := time.Weekday(0), -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < bestKey) {
			bestKey, bestCount = k, c
		}
	}
	return bestKey, bestCount
}
