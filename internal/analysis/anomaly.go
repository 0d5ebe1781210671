package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

// AnomalyType classifies a detected anomaly.
type AnomalyType string

const (
	AnomalyAccessPattern   AnomalyType = "access_pattern"
	AnomalyVolume          AnomalyType = "volume"
	AnomalyContextConflict AnomalyType = "context_conflict"
)

// Severity grades how unusual an anomaly is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one statistical or rule-based outlier found in a batch.
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	ItemIDs     []string    `json:"item_ids"`
	DetectedAt  time.Time   `json:"detected_at"`
}

const (
	// defaultZThreshold flags values whose z-score magnitude exceeds it.
	defaultZThreshold = 2.0

	// highSeverityZ upgrades an access anomaly to high severity.
	highSeverityZ = 3.0

	// minAccessSample and minVolumeDays gate the statistical checks;
	// smaller batches are silently skipped, never an error.
	minAccessSample = 10
	minVolumeDays   = 7
)

// conflictingTagPairs lists tag pairs that should not co-exist on one item.
var conflictingTagPairs = [][2]string{
	{"urgent", "low-priority"},
	{"work", "personal"},
	{"important", "trivial"},
}

// AnomalyDetector runs the three independent anomaly checks over a batch.
// Detection is deterministic: identical batches yield identical results.
type AnomalyDetector struct {
	// ZThreshold is the z-score magnitude above which a value is flagged.
	ZThreshold float64
}

// NewAnomalyDetector returns a detector with the default 2.0 threshold.
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{ZThreshold: defaultZThreshold}
}

// Detect runs all three checks. The passes are order-insensitive and hold
// no state between runs.
func (d *AnomalyDetector) Detect(items []types.MemoryItem, now time.Time) []Anomaly {
	var anomalies []Anomaly
	anomalies = append(anomalies, d.accessPattern(items, now)...)
	anomalies = append(anomalies, d.volume(items, now)...)
	anomalies = append(anomalies, d.contextConflicts(items, now)...)
	return anomalies
}

// accessPattern flags items whose access count is a statistical outlier.
// Requires at least minAccessSample items.
func (d *AnomalyDetector) accessPattern(items []types.MemoryItem, now time.Time) []Anomaly {
	if len(items) < minAccessSample {
		return nil
	}

	values := make([]float64, len(items))
	for i, item := range items {
		values[i] = float64(item.AccessCount)
	}
	mean, stddev := meanStddev(values)
	if stddev == 0 {
		return nil
	}

	var anomalies []Anomaly
	for _, item := range items {
		z := (float64(item.AccessCount) - mean) / stddev
		if math.Abs(z) <= d.ZThreshold {
			continue
		}

		severity := SeverityMedium
		// Tolerate float rounding right at the high boundary.
		if math.Abs(z) >= highSeverityZ-1e-9 {
			severity = SeverityHigh
		}
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyAccessPattern,
			Severity: severity,
			Description: fmt.Sprintf("Item accessed %d times (z-score %.1f against batch mean %.1f)",
				item.AccessCount, z, mean),
			ItemIDs:    []string{item.ID},
			DetectedAt: now,
		})
	}

	sortAnomalies(anomalies)
	return anomalies
}

// volume flags days with an outlying number of created items. Requires at
// least minVolumeDays distinct creation days.
func (d *AnomalyDetector) volume(items []types.MemoryItem, now time.Time) []Anomaly {
	byDay := make(map[string][]string)
	for _, item := range items {
		day := item.CreatedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], item.ID)
	}
	if len(byDay) < minVolumeDays {
		return nil
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	values := make([]float64, len(days))
	for i, day := range days {
		values[i] = float64(len(byDay[day]))
	}
	mean, stddev := meanStddev(values)
	if stddev == 0 {
		return nil
	}

	var anomalies []Anomaly
	for i, day := range days {
		z := (values[i] - mean) / stddev
		if math.Abs(z) <= d.ZThreshold {
			continue
		}

		severity := SeverityLow
		if z > d.ZThreshold {
			severity = SeverityMedium
		}
		ids := append([]string(nil), byDay[day]...)
		sort.Strings(ids)
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyVolume,
			Severity: severity,
			Description: fmt.Sprintf("%d memories created on %s (z-score %.1f against daily mean %.1f)",
				int(values[i]), day, z, mean),
			ItemIDs:    ids,
			DetectedAt: now,
		})
	}

	return anomalies
}

// contextConflicts flags items tagged with both halves of a predefined
// conflicting pair.
func (d *AnomalyDetector) contextConflicts(items []types.MemoryItem, now time.Time) []Anomaly {
	var anomalies []Anomaly
	for _, item := range items {
		for _, pair := range conflictingTagPairs {
			if item.HasTag(pair[0]) && item.HasTag(pair[1]) {
				anomalies = append(anomalies, Anomaly{
					Type:     AnomalyContextConflict,
					Severity: SeverityLow,
					Description: fmt.Sprintf("Item carries conflicting tags %q and %q",
						pair[0], pair[1]),
					ItemIDs:    []string{item.ID},
					DetectedAt: now,
				})
			}
		}
	}

	sortAnomalies(anomalies)
	return anomalies
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func sortAnomalies(anomalies []Anomaly) {
	sort.Slice(anomalies, func(i, j int) bool {
		if anomalies[i].ItemIDs[0] != anomalies[j].ItemIDs[0] {
			return anomalies[i].ItemIDs[0] < anomalies[j].ItemIDs[0]
		}
		return anomalies[i].Description < anomalies[j].Description
	})
}
