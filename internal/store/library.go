package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hurttlocker/vitae/internal/embed"
	"github.com/hurttlocker/vitae/internal/resume"
)

// Embedding-input allow-lists. Fields outside these lists are stored
// but excluded from the embedding text so noise fields do not dilute
// similarity search.
var (
	embedScalarFields = []string{
		"name", "company", "position", "title", "label", "summary",
		"description", "institution", "area", "studyType", "level",
		"entity", "type",
	}
	embedArrayFields    = []string{"highlights", "keywords", "courses", "roles"}
	embedLocationFields = []string{"address", "city", "region", "countryCode"}
)

// EmbeddingInput derives the text to embed for one entry: allow-listed
// scalar fields, then flattened allow-listed arrays, then nested
// location sub-fields, space-joined.
func EmbeddingInput(fields resume.Fields) string {
	var parts []string

	for _, key := range embedScalarFields {
		if v := fields.String(key); v != "" {
			parts = append(parts, v)
		}
	}
	for _, key := range embedArrayFields {
		for _, item := range fields.Strings(key) {
			if item != "" {
				parts = append(parts, item)
			}
		}
	}
	if loc, ok := fields["location"].(map[string]any); ok {
		locFields := resume.Fields(loc)
		for _, key := range embedLocationFields {
			if v := locFields.String(key); v != "" {
				parts = append(parts, v)
			}
		}
	}

	return strings.Join(parts, " ")
}

// Library wraps a VectorStore with record-level policy: id assignment,
// embedding-input derivation, and section-filtered similarity search.
type Library struct {
	store    VectorStore
	embedder embed.Embedder
	now      func() time.Time

	idMu       sync.Mutex
	nextID     int64 // 0 until seeded from the store
	fallbackID int64 // last wall-clock id handed out
}

// NewLibrary creates the policy layer over a backend and an embedder.
func NewLibrary(store VectorStore, embedder embed.Embedder) *Library {
	return &Library{store: store, embedder: embedder, now: time.Now}
}

// Store exposes the underlying backend.
func (l *Library) Store() VectorStore { return l.store }

// NextID allocates a fresh id. The counter is seeded once from
// max(existing ids) + 1 and incremented thereafter, so allocation does
// not rescan the collection. If the seeding read fails, the allocation
// falls back to a wall-clock-derived id without seeding; the collision
// risk is documented, not eliminated.
func (l *Library) NextID(ctx context.Context) int64 {
	l.idMu.Lock()
	defer l.idMu.Unlock()

	if l.nextID == 0 {
		records, err := l.All(ctx)
		if err != nil {
			// Wall-clock fallback, bumped past the previous fallback so
			// two failed allocations in the same second do not collide.
			id := l.now().Unix()
			if id <= l.fallbackID {
				id = l.fallbackID + 1
			}
			l.fallbackID = id
			return id
		}
		var max int64
		for _, r := range records {
			if r.ID > max {
				max = r.ID
			}
		}
		l.nextID = max + 1
	}

	id := l.nextID
	l.nextID++
	return id
}

// Put embeds and stores one entry under a fresh id, returning the
// stored record.
func (l *Library) Put(ctx context.Context, section resume.Section, fields resume.Fields) (Record, error) {
	return l.PutAt(ctx, l.NextID(ctx), section, fields)
}

// PutAt embeds and stores one entry under an explicit id (used by
// merges, which overwrite in place, and full replacement, which
// renumbers from 1).
func (l *Library) PutAt(ctx context.Context, id int64, section resume.Section, fields resume.Fields) (Record, error) {
	vector, err := l.embedder.Embed(ctx, EmbeddingInput(fields))
	if err != nil {
		return Record{}, fmt.Errorf("embedding entry: %w", err)
	}

	record := Record{
		ID:        id,
		Section:   section,
		Fields:    fields,
		Embedding: vector,
		UpdatedAt: l.now().UTC(),
	}
	if err := l.store.Upsert(ctx, []Record{record}); err != nil {
		return Record{}, err
	}
	return record, nil
}

// All scrolls the complete collection.
func (l *Library) All(ctx context.Context) ([]Record, error) {
	var all []Record
	var offset int64
	for {
		records, next, err := l.store.Scroll(ctx, offset, scrollPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if next == 0 {
			return all, nil
		}
		offset = next
	}
}

// Entries returns every stored entry as a payload map including its
// section tag, the shape the extraction context summary consumes.
func (l *Library) Entries(ctx context.Context) ([]resume.Fields, error) {
	records, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]resume.Fields, len(records))
	for i, r := range records {
		entries[i] = resume.Fields(r.Payload())
	}
	return entries, nil
}

// SearchSection finds the nearest stored entries to an entry within
// one section. Result vectors are never attached.
func (l *Library) SearchSection(ctx context.Context, section resume.Section, fields resume.Fields, limit int) ([]Scored, error) {
	return l.searchText(ctx, EmbeddingInput(fields), section, limit)
}

// SearchText finds the nearest stored entries to a free-text query
// across all sections.
func (l *Library) SearchText(ctx context.Context, text string, limit int) ([]Scored, error) {
	return l.searchText(ctx, text, "", limit)
}

// SearchSectionText finds the nearest stored entries to a free-text
// query within one section.
func (l *Library) SearchSectionText(ctx context.Context, section resume.Section, text string, limit int) ([]Scored, error) {
	return l.searchText(ctx, text, section, limit)
}

func (l *Library) searchText(ctx context.Context, text string, section resume.Section, limit int) ([]Scored, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	vector, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return l.store.Search(ctx, vector, section, limit, false)
}

// DeleteSection removes every record in one section.
func (l *Library) DeleteSection(ctx context.Context, section resume.Section) error {
	records, err := l.All(ctx)
	if err != nil {
		return err
	}

	var ids []int64
	for _, r := range records {
		if r.Section == section {
			ids = append(ids, r.ID)
		}
	}
	return l.store.Delete(ctx, ids)
}

// Clear removes every record in the collection and resets the id
// counter so the next allocation reseeds from the store.
func (l *Library) Clear(ctx context.Context) error {
	records, err := l.All(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := l.store.Delete(ctx, ids); err != nil {
		return err
	}

	l.idMu.Lock()
	l.nextID = 0
	l.idMu.Unlock()
	return nil
}

// Count reports the number of stored records.
func (l *Library) Count(ctx context.Context) (int64, error) {
	info, err := l.store.Collection(ctx)
	if err != nil {
		return 0, err
	}
	return info.PointCount, nil
}
