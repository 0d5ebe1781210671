package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

// PredictionType classifies a prediction.
type PredictionType string

const (
	PredictionNextAction       PredictionType = "next_action"
	PredictionRelevantMemories PredictionType = "relevant_memories"
	PredictionTimeBased        PredictionType = "time_based"
)

// Prediction is one proactive suggestion derived from recent memories and
// the current context.
type Prediction struct {
	Type          PredictionType `json:"type"`
	Confidence    float64        `json:"confidence"`
	Suggestion    string         `json:"suggestion"`
	SupportingIDs []string       `json:"supporting_ids,omitempty"`
	ValidUntil    time.Time      `json:"valid_until"`
}

const (
	// defaultPredictionThreshold gates what Predict reports.
	defaultPredictionThreshold = 0.6

	// recentWindow bounds which memories count toward next-action votes.
	recentWindow = 24 * time.Hour

	// relevantMemoryGate is the minimum relevance score for a memory to
	// support a relevant-memories prediction.
	relevantMemoryGate = 0.5

	// relevantMemoryLimit caps the supporting ids in one prediction.
	relevantMemoryLimit = 3

	predictionTTL = time.Hour
)

// actionKeywords maps content keywords to the action they vote for.
var actionKeywords = []struct {
	keyword string
	action  string
}{
	{"meeting", "schedule a meeting"},
	{"task", "create a task"},
	{"note", "take notes"},
}

// PredictionEngine generates next-action, relevant-memory, and time-based
// predictions. It is stateless; every call works from the batch it is given.
type PredictionEngine struct {
	// ConfidenceThreshold filters combined Predict output.
	ConfidenceThreshold float64
}

// NewPredictionEngine returns an engine with the default 0.6 threshold.
func NewPredictionEngine() *PredictionEngine {
	return &PredictionEngine{ConfidenceThreshold: defaultPredictionThreshold}
}

// Predict runs all three predictors and keeps only those whose confidence
// reaches the engine threshold.
func (p *PredictionEngine) Predict(items []types.MemoryItem, ctx *types.ContextState, now time.Time) []Prediction {
	var candidates []Prediction
	if pred := p.NextAction(items, now); pred != nil {
		candidates = append(candidates, *pred)
	}
	if pred := p.RelevantMemories(items, ctx, now); pred != nil {
		candidates = append(candidates, *pred)
	}
	if pred := p.TimeBased(now); pred != nil {
		candidates = append(candidates, *pred)
	}

	var out []Prediction
	for _, pred := range candidates {
		if pred.Confidence >= p.ConfidenceThreshold {
			out = append(out, pred)
		}
	}
	return out
}

// NextAction votes on action keywords across memories created in the last
// 24 hours and suggests the majority action. Confidence is the share of
// recent memories voting for it. Ties break lexicographically on the action
// so repeated runs agree.
func (p *PredictionEngine) NextAction(items []types.MemoryItem, now time.Time) *Prediction {
	cutoff := now.Add(-recentWindow)

	votes := make(map[string][]string)
	totalRecent := 0
	for _, item := range items {
		if item.CreatedAt.Before(cutoff) {
			continue
		}
		totalRecent++
		content := strings.ToLower(item.Content)
		for _, kw := range actionKeywords {
			if strings.Contains(content, kw.keyword) {
				votes[kw.action] = append(votes[kw.action], item.ID)
			}
		}
	}
	if totalRecent == 0 || len(votes) == 0 {
		return nil
	}

	actions := make([]string, 0, len(votes))
	for action := range votes {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	best := actions[0]
	for _, action := range actions[1:] {
		if len(votes[action]) > len(votes[best]) {
			best = action
		}
	}

	ids := append([]string(nil), votes[best]...)
	sort.Strings(ids)

	return &Prediction{
		Type:          PredictionNextAction,
		Confidence:    float64(len(votes[best])) / float64(totalRecent),
		Suggestion:    fmt.Sprintf("You may want to %s", best),
		SupportingIDs: ids,
		ValidUntil:    now.Add(predictionTTL),
	}
}

// RelevantMemories surfaces up to three memories scoring above 0.5 relevance
// against the current context. Confidence is the top score. The result is
// returned even below the engine threshold; Predict applies the gate.
func (p *PredictionEngine) RelevantMemories(items []types.MemoryItem, ctx *types.ContextState, now time.Time) *Prediction {
	if ctx == nil {
		return nil
	}

	type scored struct {
		id    string
		score float64
	}
	var hits []scored
	for i := range items {
		s := RelevanceScore(&items[i], ctx, now)
		if s > relevantMemoryGate {
			hits = append(hits, scored{id: items[i].ID, score: s})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > relevantMemoryLimit {
		hits = hits[:relevantMemoryLimit]
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}

	return &Prediction{
		Type:          PredictionRelevantMemories,
		Confidence:    hits[0].score,
		Suggestion:    fmt.Sprintf("%d stored memories look relevant to what you are doing", len(ids)),
		SupportingIDs: ids,
		ValidUntil:    now.Add(predictionTTL),
	}
}

// TimeBased maps the current time-of-day bucket to a routine suggestion.
// Buckets without a routine produce no prediction.
func (p *PredictionEngine) TimeBased(now time.Time) *Prediction {
	var suggestion string
	switch types.TimeOfDayAt(now) {
	case types.Morning:
		suggestion = "Review your plan for the day"
	case types.Afternoon:
		suggestion = "Check progress on today's tasks"
	case types.Evening:
		suggestion = "Capture a summary of what you finished today"
	default:
		return nil
	}

	return &Prediction{
		Type:       PredictionTimeBased,
		Confidence: defaultPredictionThreshold,
		Suggestion: suggestion,
		ValidUntil: now.Add(predictionTTL),
	}
}
