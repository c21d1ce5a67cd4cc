package merge

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
)

// memStore is an in-memory VectorStore for resolver tests.
type memStore struct {
	records map[int64]store.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]store.Record)}
}

func (m *memStore) Upsert(ctx context.Context, records []store.Record) error {
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memStore) Scroll(ctx context.Context, offset int64, limit int) ([]store.Record, int64, error) {
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		if id >= offset {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []store.Record
	var next int64
	for i, id := range ids {
		if i == limit {
			next = id
			break
		}
		out = append(out, m.records[id])
	}
	return out, next, nil
}

func (m *memStore) Delete(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *memStore) Search(ctx context.Context, vector []float32, section resume.Section, limit int, withVectors bool) ([]store.Scored, error) {
	var scored []store.Scored
	for _, r := range m.records {
		if section != "" && r.Section != section {
			continue
		}
		rec := r
		if !withVectors {
			rec.Embedding = nil
		}
		scored = append(scored, store.Scored{Record: rec, Score: cosine(vector, r.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (m *memStore) Collection(ctx context.Context) (store.CollectionInfo, error) {
	return store.CollectionInfo{PointCount: int64(len(m.records))}, nil
}

func (m *memStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(v float64) float64 {
	if v == 0 {
		return 0
	}
	x := v
	for i := 0; i < 32; i++ {
		x = (x + v/x) / 2
	}
	return x
}

// constEmbedder makes every text embed identically, so every
// same-section neighbor scores 1.0.
type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}

func (constEmbedder) Dimensions() int { return 2 }

// orthoEmbedder gives each distinct text its own axis, so different
// texts score 0 and identical texts score 1.
type orthoEmbedder struct {
	axes map[string]int
}

func newOrthoEmbedder() *orthoEmbedder {
	return &orthoEmbedder{axes: make(map[string]int)}
}

func (o *orthoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	axis, ok := o.axes[text]
	if !ok {
		axis = len(o.axes)
		o.axes[text] = axis
	}
	vec := make([]float32, 16)
	vec[axis%16] = 1
	return vec, nil
}

func (o *orthoEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = o.Embed(ctx, texts[i])
	}
	return out, nil
}

func (o *orthoEmbedder) Dimensions() int { return 16 }

func candidate(sections map[resume.Section][]resume.Fields) *extract.Candidate {
	return &extract.Candidate{Sections: sections}
}

func TestAppendAssignsStrictlyIncreasingIDs(t *testing.T) {
	ms := newMemStore()
	resolver := NewResolver(store.NewLibrary(ms, constEmbedder{}))
	ctx := context.Background()

	cand := candidate(map[resume.Section][]resume.Fields{
		resume.SectionWork: {
			{"company": "Google", "position": "SWE"},
			{"company": "Google", "position": "SWE"}, // byte-identical
		},
	})

	result, err := resolver.Apply(ctx, cand, ModeAppend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewCount != 2 {
		t.Errorf("new count: got %d, want 2", result.NewCount)
	}
	if len(result.Entries) != 2 || result.Entries[1].ID <= result.Entries[0].ID {
		t.Errorf("ids must be strictly increasing even for duplicates: %v", result.Entries)
	}
}

func TestMergeUnionsArraysExistingThenNew(t *testing.T) {
	ms := newMemStore()
	lib := store.NewLibrary(ms, constEmbedder{})
	resolver := NewResolver(lib)
	ctx := context.Background()

	if _, err := lib.Put(ctx, resume.SectionWork, resume.Fields{
		"company":    "Google",
		"position":   "SWE",
		"highlights": []any{"x", "y"},
	}); err != nil {
		t.Fatal(err)
	}

	cand := candidate(map[resume.Section][]resume.Fields{
		resume.SectionWork: {{
			"company":    "Google",
			"position":   "SWE",
			"highlights": []any{"y", "z"},
		}},
	})

	result, err := resolver.Apply(ctx, cand, ModeMerge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ModifiedCount != 1 || result.NewCount != 0 {
		t.Fatalf("expected one merge, got %+v", result)
	}

	records, _ := lib.All(ctx)
	if len(records) != 1 {
		t.Fatalf("expected 1 record after merge, got %d", len(records))
	}
	got := records[0].Fields.Strings("highlights")
	want := []string{"x", "y", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("highlights: got %v, want %v", got, want)
	}
}

func TestMergeInsertsWhenNoSimilarEntry(t *testing.T) {
	ms := newMemStore()
	lib := store.NewLibrary(ms, newOrthoEmbedder())
	resolver := NewResolver(lib)
	ctx := context.Background()

	if _, err := lib.Put(ctx, resume.SectionWork, resume.Fields{"company": "Meta", "position": "PM"}); err != nil {
		t.Fatal(err)
	}

	cand := candidate(map[resume.Section][]resume.Fields{
		resume.SectionWork: {{"company": "Google", "position": "SWE"}},
	})

	result, err := resolver.Apply(ctx, cand, ModeMerge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewCount != 1 || result.ModifiedCount != 0 {
		t.Errorf("expected insert, got %+v", result)
	}

	records, _ := lib.All(ctx)
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestReplaceIsSectionScoped(t *testing.T) {
	ms := newMemStore()
	lib := store.NewLibrary(ms, constEmbedder{})
	resolver := NewResolver(lib)
	ctx := context.Background()

	lib.Put(ctx, resume.SectionWork, resume.Fields{"company": "Old Corp"})
	lib.Put(ctx, resume.SectionWork, resume.Fields{"company": "Older Corp"})
	lib.Put(ctx, resume.SectionSkills, resume.Fields{"name": "Languages"})

	cand := candidate(map[resume.Section][]resume.Fields{
		resume.SectionWork: {{"company": "New Corp"}},
	})

	if _, err := resolver.Apply(ctx, cand, ModeReplace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, _ := lib.All(ctx)
	var work, skills int
	for _, r := range records {
		switch r.Section {
		case resume.SectionWork:
			work++
			if r.Fields.String("company") != "New Corp" {
				t.Errorf("stale work entry survived replace: %v", r.Fields)
			}
		case resume.SectionSkills:
			skills++
		}
	}
	if work != 1 {
		t.Errorf("work records: got %d, want 1", work)
	}
	if skills != 1 {
		t.Error("replace must not touch other sections")
	}
}

func TestDedupeWorkBatch(t *testing.T) {
	entries := []resume.Fields{
		{"company": "Google", "position": "Software Engineer", "highlights": []any{"a"}},
		{"company": "google inc", "position": "engineer", "highlights": []any{"b"}},
		{"company": "Meta", "position": "Software Engineer"},
	}

	got := dedupeWorkBatch(entries)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after dedup, got %d", len(got))
	}
	highlights := got[0].Strings("highlights")
	if !reflect.DeepEqual(highlights, []string{"a", "b"}) {
		t.Errorf("duplicate must merge into first occurrence: %v", highlights)
	}
	if got[1].String("company") != "Meta" {
		t.Errorf("unrelated entry dropped: %v", got)
	}
}

func TestDedupeWorkBatchRequiresBothFields(t *testing.T) {
	entries := []resume.Fields{
		{"company": "Google", "position": "Engineer"},
		{"company": "Google", "position": "Product Manager"},
	}
	if got := dedupeWorkBatch(entries); len(got) != 2 {
		t.Errorf("different positions at the same company must not collapse: %v", got)
	}
}

func TestInferTimeline(t *testing.T) {
	resolver := NewResolver(nil)
	resolver.now = func() time.Time {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	entries := []resume.Fields{
		{"company": "B", "startDate": "2021-03-01"},
		{"company": "A", "startDate": "2019-06-15"},
		{"company": "C"}, // missing start sorts as now
	}
	resolver.inferTimeline(entries)

	if entries[0].String("company") != "A" || entries[1].String("company") != "B" {
		t.Fatalf("not sorted ascending by startDate: %v", entries)
	}
	if got := entries[0].String("endDate"); got != "2021-02-28" {
		t.Errorf("A endDate: got %q, want 2021-02-28", got)
	}
	// B's successor has no parsable startDate: gap stays open.
	if got := entries[1].String("endDate"); got != "" {
		t.Errorf("B endDate: got %q, want empty", got)
	}
	if got := entries[2].String("endDate"); got != "" {
		t.Errorf("last entry must keep missing endDate, got %q", got)
	}
}

func TestInferTimelineKeepsExistingEndDates(t *testing.T) {
	resolver := NewResolver(nil)
	entries := []resume.Fields{
		{"company": "A", "startDate": "2019-01-01", "endDate": "2019-06-30"},
		{"company": "B", "startDate": "2021-03-01"},
	}
	resolver.inferTimeline(entries)
	if got := entries[0].String("endDate"); got != "2019-06-30" {
		t.Errorf("existing endDate overwritten: %q", got)
	}
}

func TestMergeFields(t *testing.T) {
	existing := resume.Fields{
		"company":  "Google",
		"summary":  "short",
		"position": "Software Engineer",
	}
	incoming := resume.Fields{
		"summary":  "a much longer and more detailed summary",
		"position": "SWE", // shorter, must not overwrite
		"location": "Seattle, WA",
		"endDate":  "", // empty, ignored
	}

	merged := MergeFields(existing, incoming)
	if merged.String("summary") != "a much longer and more detailed summary" {
		t.Errorf("summary: got %q", merged.String("summary"))
	}
	if merged.String("position") != "Software Engineer" {
		t.Errorf("shorter string overwrote longer: %q", merged.String("position"))
	}
	if merged.String("location") != "Seattle, WA" {
		t.Errorf("new field not added: %q", merged.String("location"))
	}
	if _, present := merged["endDate"]; present {
		t.Error("empty incoming value must be ignored")
	}
	// Input maps must not be mutated.
	if existing.String("summary") != "short" {
		t.Error("MergeFields mutated its input")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeMerge, false},
		{"merge", ModeMerge, false},
		{"APPEND", ModeAppend, false},
		{"replace", ModeReplace, false},
		{"upsert", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
