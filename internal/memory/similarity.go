package memory

import (
	"math"
	"sort"
	"strings"
	"time"
)

const day = 24 * 60 * 60 // seconds

// similarity blends four signals into [0,1]:
// type match 0.3, context-key overlap 0.3, temporal proximity 0.2 and
// emotional closeness 0.2.
func similarity(a, b *Record) float64 {
	var score float64
	if a.Type != "" && a.Type == b.Type {
		score += 0.3
	}
	score += 0.3 * contextOverlap(a.Context, b.Context)

	dt := math.Abs(a.Timestamp.Sub(b.Timestamp).Seconds())
	score += 0.2 * math.Exp(-dt/day)

	score += 0.2 * emotionalCloseness(a.Emotion, b.Emotion)
	return clamp01(score)
}

// contextOverlap is the Jaccard index over context keys. Two empty
// contexts are identical.
func contextOverlap(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	shared := 0
	for k := range a {
		if _, ok := b[k]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / math.Max(float64(union), 1)
}

// emotionalCloseness is 1 - mean|a-b|/2 over the union of emotion keys,
// a missing key counting as 0. Two neutral records are identical.
func emotionalCloseness(a, b map[string]float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	var diff float64
	for k := range keys {
		diff += math.Abs(a[k] - b[k])
	}
	return clamp01(1 - diff/float64(len(keys))/2)
}

// rankScore orders query results: recency over a 7-day scale, importance,
// access frequency and consolidation.
func rankScore(r *Record, now time.Time) float64 {
	age := math.Max(now.Sub(r.Timestamp).Seconds(), 0)
	score := math.Exp(-age/(7*day)) +
		r.Importance*2 +
		math.Log1p(float64(r.AccessCount))*0.5
	if r.Consolidated {
		score += 0.5
	}
	return score
}

// textRelevance scores a free-text query against the serialized record:
// content 0.5, type 0.3, context 0.2.
func textRelevance(r *Record, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	var score float64
	if strings.Contains(strings.ToLower(r.Content), q) {
		score += 0.5
	}
	if strings.Contains(strings.ToLower(r.Type), q) {
		score += 0.3
	}
	if strings.Contains(strings.ToLower(serializeContext(r.Context)), q) {
		score += 0.2
	}
	return score
}

func serializeContext(ctx map[string]string) string {
	keys := sortedKeys(ctx)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ctx[k])
	}
	return b.String()
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127) // keep unicode chars
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 { // skip single chars
			result = append(result, w)
		}
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
