// Package store provides the record persistence layer: the VectorStore
// collaborator interface with Qdrant and SQLite implementations, plus
// the Library policy wrapper that owns id assignment, embedding-input
// derivation, and filtered similarity search.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hurttlocker/vitae/internal/resume"
)

// DefaultCollection is the default collection name.
const DefaultCollection = "resume_data"

// DefaultSearchLimit bounds similarity searches on the read path.
const DefaultSearchLimit = 15

// scrollPageSize is the page size used when scrolling a full collection.
const scrollPageSize = 1000

// Record is one stored resume entry: a section-tagged field map with
// its embedding vector.
type Record struct {
	ID        int64
	Section   resume.Section
	Fields    resume.Fields
	Embedding []float32
	UpdatedAt time.Time
}

// Payload returns the record's fields plus the section tag, the shape
// persisted by every backend.
func (r Record) Payload() map[string]any {
	payload := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		payload[k] = v
	}
	payload["section"] = string(r.Section)
	return payload
}

// recordFromPayload rebuilds a Record from a persisted payload.
func recordFromPayload(id int64, payload map[string]any, vector []float32) Record {
	fields := make(resume.Fields, len(payload))
	section := resume.SectionOther
	for k, v := range payload {
		if k == "section" {
			if s, ok := v.(string); ok {
				section = resume.ParseSection(s)
			}
			continue
		}
		fields[k] = v
	}
	return Record{ID: id, Section: section, Fields: fields, Embedding: vector}
}

// Scored pairs a record with its similarity score.
type Scored struct {
	Record Record
	Score  float64
}

// CollectionInfo describes the backing collection.
type CollectionInfo struct {
	PointCount int64
}

// StoreError wraps a backend failure with the operation that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// VectorStore is the raw record-store collaborator. Implementations:
// Qdrant over HTTP and a local SQLite database.
type VectorStore interface {
	// Upsert inserts or overwrites records by id.
	Upsert(ctx context.Context, records []Record) error
	// Scroll pages through all records. offset 0 starts from the
	// beginning; the returned next offset is 0 when exhausted.
	Scroll(ctx context.Context, offset int64, limit int) (records []Record, next int64, err error)
	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []int64) error
	// Search returns the nearest records by cosine similarity,
	// optionally filtered to one section. Vectors are attached to the
	// results only when withVectors is set.
	Search(ctx context.Context, vector []float32, section resume.Section, limit int, withVectors bool) ([]Scored, error)
	// Collection reports collection-level info.
	Collection(ctx context.Context) (CollectionInfo, error)
	Close() error
}
