package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/llm"
	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
)

// memStore is an in-memory VectorStore for pipeline tests.
type memStore struct {
	records map[int64]store.Record
	fail    bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]store.Record)}
}

var errStoreDown = errors.New("store down")

func (m *memStore) Upsert(ctx context.Context, records []store.Record) error {
	if m.fail {
		return errStoreDown
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memStore) Scroll(ctx context.Context, offset int64, limit int) ([]store.Record, int64, error) {
	if m.fail {
		return nil, 0, errStoreDown
	}
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
	if m.fail {
		return errStoreDown
	}
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *memStore) Search(ctx context.Context, vector []float32, section resume.Section, limit int, withVectors bool) ([]store.Scored, error) {
	if m.fail {
		return nil, errStoreDown
	}
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var scored []store.Scored
	for _, id := range ids {
		r := m.records[id]
		if section != "" && r.Section != section {
			continue
		}
		if !withVectors {
			r.Embedding = nil
		}
		scored = append(scored, store.Scored{Record: r, Score: 1})
		if len(scored) == limit {
			break
		}
	}
	return scored, nil
}

func (m *memStore) Collection(ctx context.Context) (store.CollectionInfo, error) {
	if m.fail {
		return store.CollectionInfo{}, errStoreDown
	}
	return store.CollectionInfo{PointCount: int64(len(m.records))}, nil
}

func (m *memStore) Close() error { return nil }

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}

func (fixedEmbedder) Dimensions() int { return 2 }

// mockProvider replays a canned response and records prompts.
type mockProvider struct {
	response llm.Response
	err      error
	prompts  []string
}

func (m *mockProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (llm.Response, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

func (m *mockProvider) Stream(ctx context.Context, prompt string, opts llm.CompletionOpts) (llm.Response, error) {
	return m.Complete(ctx, prompt, opts)
}

func (m *mockProvider) Name() string { return "mock" }

func newTestEngine(ms *memStore, provider llm.Provider) *Engine {
	if provider == nil {
		provider = &mockProvider{response: llm.PlainResponse{Content: "{}"}}
	}
	library := store.NewLibrary(ms, fixedEmbedder{})
	return New(library, extract.NewExtractor(provider, false))
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{`{"work": []}`, ContentJSON},
		{`  {"basics": {"name": "Jane"}}  `, ContentJSON},
		{"{not json}", ContentText},
		{"# Resume\n\nJane Doe", ContentMarkdown},
		{"intro\n## Work\ndetails", ContentMarkdown},
		{"I worked at Google from 2019 to 2021", ContentText},
		{"#hashtag not a heading", ContentText},
	}
	for _, tt := range tests {
		if got := DetectContentType(tt.content); got != tt.want {
			t.Errorf("DetectContentType(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestUpdateJSONContent(t *testing.T) {
	ms := newMemStore()
	eng := newTestEngine(ms, nil)

	result, err := eng.Update(context.Background(), UpdateRequest{
		Content: `{"work": [{"company": "Google", "position": "SWE"}], "skills": [{"name": "Core", "keywords": ["Go"]}]}`,
		Mode:    "append",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != ContentJSON {
		t.Errorf("content type: %q", result.ContentType)
	}
	if result.Merge.NewCount != 2 {
		t.Errorf("new count: got %d, want 2", result.Merge.NewCount)
	}
	if len(ms.records) != 2 {
		t.Errorf("stored records: %d", len(ms.records))
	}
}

func TestUpdateValidationErrors(t *testing.T) {
	eng := newTestEngine(newMemStore(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  UpdateRequest
	}{
		{"empty content", UpdateRequest{Content: "   "}},
		{"bad mode", UpdateRequest{Content: "text", Mode: "upsert"}},
		{"bad content type", UpdateRequest{Content: "text", ContentType: "xml"}},
		{"malformed json", UpdateRequest{Content: "{broken", ContentType: ContentJSON}},
		{"nothing extracted", UpdateRequest{Content: "{}", ContentType: ContentJSON}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Update(ctx, tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestUpdateTextUsesSectionHint(t *testing.T) {
	provider := &mockProvider{response: llm.PlainResponse{
		Content: `{"work": [{"company": "Google", "position": "SWE"}]}`,
	}}
	eng := newTestEngine(newMemStore(), provider)

	_, err := eng.Update(context.Background(), UpdateRequest{
		Content:     "Joined Google as a SWE back in 2021",
		Mode:        "append",
		SectionHint: "work",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("prompts: %d", len(provider.prompts))
	}
	if !strings.Contains(provider.prompts[0], "Focus on work information.") {
		t.Error("section hint missing from prompt")
	}
}

func TestUpdateExtractionErrorSurfaces(t *testing.T) {
	provider := &mockProvider{response: llm.PlainResponse{Content: "no json here"}}
	eng := newTestEngine(newMemStore(), provider)

	_, err := eng.Update(context.Background(), UpdateRequest{
		Content: "worked somewhere at some point",
	})
	var xerr *extract.ExtractionError
	if !errors.As(err, &xerr) {
		t.Errorf("got %v, want ExtractionError", err)
	}
}

func TestUpdateInstructionEditsStoredEntry(t *testing.T) {
	ms := newMemStore()
	ms.records[7] = store.Record{
		ID:        7,
		Section:   resume.SectionWork,
		Fields:    resume.Fields{"company": "Google", "position": "Software Engineer"},
		Embedding: []float32{1, 0},
	}

	provider := &mockProvider{response: llm.PlainResponse{Content: `{
		"instruction_type": "field_update",
		"section": "work",
		"field": "position",
		"old_value": "Software Engineer",
		"new_value": "Staff Engineer",
		"search_context": "Google"
	}`}}
	eng := newTestEngine(ms, provider)

	result, err := eng.Update(context.Background(), UpdateRequest{
		Content: "change my title at Google to Staff Engineer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != ContentInstruction {
		t.Errorf("content type: got %q, want %q", result.ContentType, ContentInstruction)
	}
	if result.Merge.ModifiedCount != 1 || result.Merge.NewCount != 0 {
		t.Fatalf("expected one in-place edit, got %+v", result.Merge)
	}

	if len(ms.records) != 1 {
		t.Fatalf("record count changed: %d", len(ms.records))
	}
	got := ms.records[7].Fields
	if got.String("position") != "Staff Engineer" {
		t.Errorf("position: got %q, want %q", got.String("position"), "Staff Engineer")
	}
	if got.String("company") != "Google" {
		t.Errorf("company: got %q", got.String("company"))
	}
}

func TestUpdateInstructionExplicitContentType(t *testing.T) {
	ms := newMemStore()
	ms.records[1] = store.Record{
		ID:        1,
		Section:   resume.SectionBasics,
		Fields:    resume.Fields{"name": "Ada", "email": "old@example.com"},
		Embedding: []float32{1, 0},
	}

	provider := &mockProvider{response: llm.PlainResponse{Content: `{
		"section": "basics",
		"field": "email",
		"old_value": "old@example.com",
		"new_value": "ada@example.com"
	}`}}
	eng := newTestEngine(ms, provider)

	result, err := eng.Update(context.Background(), UpdateRequest{
		Content:     "my email needs updating to ada@example.com",
		ContentType: ContentInstruction,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != ContentInstruction {
		t.Errorf("content type: got %q", result.ContentType)
	}
	if ms.records[1].Fields.String("email") != "ada@example.com" {
		t.Errorf("email: got %q", ms.records[1].Fields.String("email"))
	}
}

func TestUpdateInstructionNoTargetIsValidationError(t *testing.T) {
	provider := &mockProvider{response: llm.PlainResponse{Content: `{
		"instruction_type": "field_update",
		"section": "work",
		"field": "position",
		"new_value": "Staff Engineer"
	}`}}
	eng := newTestEngine(newMemStore(), provider)

	_, err := eng.Update(context.Background(), UpdateRequest{
		Content: "change my position to Staff Engineer",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestReplaceClearsAndReinsertsFromOne(t *testing.T) {
	ms := newMemStore()
	provider := &mockProvider{response: llm.PlainResponse{Content: `{
		"basics": {"name": "Jane Doe", "email": "jane@example.com"},
		"work": [
			{"company": "Google", "position": "Senior Engineer", "startDate": "2021-01-01"},
			{"company": "Meta", "position": "SWE", "startDate": "2019-01-01"}
		],
		"skills": [{"name": "Core", "keywords": ["Go"]}]
	}`}}
	eng := newTestEngine(ms, provider)
	ctx := context.Background()

	// Pre-existing data that must be gone after the replace.
	eng.library.Put(ctx, resume.SectionWork, resume.Fields{"company": "Stale Corp"})

	result, err := eng.Replace(ctx, "full resume text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EntriesAdded != 4 {
		t.Errorf("entries added: got %d, want 4", result.EntriesAdded)
	}

	if _, ok := ms.records[1]; !ok {
		t.Error("ids must restart from 1")
	}
	if ms.records[1].Section != resume.SectionBasics {
		t.Errorf("record 1 must be basics, got %s", ms.records[1].Section)
	}
	for _, r := range ms.records {
		if r.Fields.String("company") == "Stale Corp" {
			t.Error("stale record survived replace")
		}
	}
}

func TestReplaceRejectsMissingName(t *testing.T) {
	ms := newMemStore()
	provider := &mockProvider{response: llm.PlainResponse{Content: `{"basics": {"email": "jane@example.com"}}`}}
	eng := newTestEngine(ms, provider)
	ctx := context.Background()

	eng.library.Put(ctx, resume.SectionWork, resume.Fields{"company": "Keep Corp"})

	_, err := eng.Replace(ctx, "nameless content")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	// Validation failed before the clear: nothing was deleted.
	if len(ms.records) != 1 {
		t.Errorf("store must be untouched on validation failure, has %d records", len(ms.records))
	}
}

func TestResumeEndToEndOrdering(t *testing.T) {
	ms := newMemStore()
	eng := newTestEngine(ms, nil)
	ctx := context.Background()

	_, err := eng.Update(ctx, UpdateRequest{
		Content: `{"work": [
			{"company": "Meta", "position": "SWE", "startDate": "2019-01-01", "endDate": "2021-01-01"},
			{"company": "Google", "position": "Senior Engineer", "startDate": "2021-01-01", "endDate": "2024-01-01"}
		]}`,
		Mode: "append",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	result := eng.Resume(ctx)
	if result.EntryCount != 2 {
		t.Fatalf("entry count: %d", result.EntryCount)
	}
	work, ok := result.Document["work"].([]resume.Fields)
	if !ok || len(work) != 2 {
		t.Fatalf("work section: %v", result.Document["work"])
	}
	if work[0].String("company") != "Google" || work[1].String("company") != "Meta" {
		t.Errorf("expected Google then Meta, got %v", work)
	}
}

func TestResumeDegradesOnStoreFailure(t *testing.T) {
	ms := newMemStore()
	ms.fail = true
	eng := newTestEngine(ms, nil)

	result := eng.Resume(context.Background())
	if result.EntryCount != 0 {
		t.Errorf("entry count: %d", result.EntryCount)
	}
	if _, present := result.Document["basics"]; !present {
		t.Error("degraded document must still carry basics")
	}
}

func TestSummaryDegradesOnStoreFailure(t *testing.T) {
	ms := newMemStore()
	ms.fail = true
	eng := newTestEngine(ms, nil)

	summary := eng.Summary(context.Background())
	if summary.TotalEntries != 0 {
		t.Errorf("total entries: %d", summary.TotalEntries)
	}
	if len(summary.Sections) != 0 {
		t.Errorf("degraded summary carries sections: %v", summary.Sections)
	}
}

func TestGenerateTailoredDocument(t *testing.T) {
	ms := newMemStore()
	provider := &mockProvider{response: llm.ReasonedResponse{
		Content:   "Go, Kubernetes, distributed systems",
		Reasoning: "the posting stresses infrastructure work",
	}}
	eng := newTestEngine(ms, provider)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		eng.library.Put(ctx, resume.SectionWork, resume.Fields{
			"company":  string(rune('A' + i)),
			"position": "SWE",
		})
	}
	eng.library.Put(ctx, resume.SectionBasics, resume.Fields{"name": "Jane Doe"})

	result, err := eng.Generate(ctx, "Looking for a Go infrastructure engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Keywords != "Go, Kubernetes, distributed systems" {
		t.Errorf("keywords: %q", result.Keywords)
	}
	if result.Reasoning == "" {
		t.Error("reasoning lost")
	}

	work := result.Document["work"].([]resume.Fields)
	if len(work) != 3 {
		t.Errorf("work capped at 3, got %d", len(work))
	}
	basics := result.Document["basics"].(resume.Fields)
	if basics.String("name") != "Jane Doe" {
		t.Errorf("basics: %v", basics)
	}
	if got := len(result.Report.Accepted) + len(result.Report.Rejected); got != 6 {
		t.Errorf("report must cover all candidates: %d", got)
	}
}

func TestGenerateEmptyJobDescription(t *testing.T) {
	eng := newTestEngine(newMemStore(), nil)
	_, err := eng.Generate(context.Background(), "  ")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("got %v, want ValidationError", err)
	}
}
