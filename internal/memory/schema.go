package memory

import (
	"errors"
	"time"
)

// Category partitions the store into the four memory systems.
type Category string

const (
	CategoryEpisodic   Category = "episodic"
	CategorySemantic   Category = "semantic"
	CategoryProcedural Category = "procedural"
	CategoryEmotional  Category = "emotional"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryEpisodic, CategorySemantic, CategoryProcedural, CategoryEmotional}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEpisodic, CategorySemantic, CategoryProcedural, CategoryEmotional:
		return true
	}
	return false
}

// AssociationKind says why two records were linked.
type AssociationKind string

const (
	AssociationTemporal   AssociationKind = "temporal"
	AssociationContextual AssociationKind = "contextual"
)

var (
	// ErrMissingContent is returned by Store for a record with no content.
	ErrMissingContent = errors.New("memory record has no content")
	// ErrNotFound is returned when a record id is unknown.
	ErrNotFound = errors.New("memory record not found")
	// ErrInvalidCriteria is returned when a query names zero or several
	// primary modes.
	ErrInvalidCriteria = errors.New("query criteria must name exactly one primary mode")
)

// Record is a single memory owned by one agent.
type Record struct {
	ID           string             `json:"id"`
	OwnerID      string             `json:"owner_id"`
	Category     Category           `json:"category"`
	Type         string             `json:"type"`
	Content      string             `json:"content"`
	Context      map[string]string  `json:"context,omitempty"`
	Emotion      map[string]float64 `json:"emotion,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Importance   float64            `json:"importance"`
	Strength     float64            `json:"strength"`
	AccessCount  int                `json:"access_count"`
	LastAccessed time.Time          `json:"last_accessed,omitempty"`
	Consolidated bool               `json:"consolidated"`
	Compression  *Compression       `json:"compression,omitempty"`
}

// Compression describes a synthetic record that replaced a group of
// near-duplicate memories.
type Compression struct {
	Pattern   map[string]string `json:"pattern"`
	Examples  []string          `json:"examples"`
	SourceIDs []string          `json:"source_ids"`
	GroupSize int               `json:"group_size"`
}

// Association is a directed weighted edge between two records.
type Association struct {
	FromID string          `json:"from_id"`
	ToID   string          `json:"to_id"`
	Weight float64         `json:"weight"`
	Kind   AssociationKind `json:"kind"`
}

// clone returns a deep copy so callers never alias store internals.
func (r *Record) clone() Record {
	out := *r
	if r.Context != nil {
		out.Context = make(map[string]string, len(r.Context))
		for k, v := range r.Context {
			out.Context[k] = v
		}
	}
	if r.Emotion != nil {
		out.Emotion = make(map[string]float64, len(r.Emotion))
		for k, v := range r.Emotion {
			out.Emotion[k] = v
		}
	}
	if r.Compression != nil {
		c := *r.Compression
		c.Pattern = make(map[string]string, len(r.Compression.Pattern))
		for k, v := range r.Compression.Pattern {
			c.Pattern[k] = v
		}
		c.Examples = append([]string(nil), r.Compression.Examples...)
		c.SourceIDs = append([]string(nil), r.Compression.SourceIDs...)
		out.Compression = &c
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
