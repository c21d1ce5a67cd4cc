// Package engine wires the full pipeline: normalization, extraction,
// conflict resolution, persistence, reconstruction, and tailored
// assembly. Each public operation runs synchronously within one
// request; callers own timeouts via the context.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/merge"
	"github.com/hurttlocker/vitae/internal/normalize"
	"github.com/hurttlocker/vitae/internal/rebuild"
	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
	"github.com/hurttlocker/vitae/internal/tailor"
)

// Content types accepted by Update.
const (
	ContentAuto        = "auto"
	ContentJSON        = "json"
	ContentMarkdown    = "markdown"
	ContentText        = "text"
	ContentInstruction = "instruction"
)

// ValidationError reports malformed caller input: bad JSON, an unknown
// mode or content type, or a document missing required fields. Never
// retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UpdateRequest carries one incremental update.
type UpdateRequest struct {
	Content     string `json:"content"`
	Mode        string `json:"update_mode"`
	ContentType string `json:"content_type"`
	SectionHint string `json:"section_hint,omitempty"`
}

// UpdateResult reports what an update did.
type UpdateResult struct {
	Mode        merge.Mode    `json:"mode"`
	ContentType string        `json:"content_type"`
	Merge       *merge.Result `json:"result"`
}

// ReplaceResult reports a full replace.
type ReplaceResult struct {
	EntriesAdded int `json:"entries_added"`
}

// ResumeResult is the full reconstruction plus the record count it was
// built from.
type ResumeResult struct {
	Document   resume.Document `json:"resume"`
	EntryCount int             `json:"entry_count"`
}

// GenerateResult is a tailored document with the selection audit.
type GenerateResult struct {
	Document  resume.Document `json:"resume"`
	Keywords  string          `json:"keywords"`
	Reasoning string          `json:"reasoning,omitempty"`
	Report    tailor.Report   `json:"report"`
}

// Engine is the public operation surface.
type Engine struct {
	library   *store.Library
	extractor *extract.Extractor
	resolver  *merge.Resolver
}

// New creates an engine over a record library and an extractor.
func New(library *store.Library, extractor *extract.Extractor) *Engine {
	return &Engine{
		library:   library,
		extractor: extractor,
		resolver:  merge.NewResolver(library),
	}
}

var headingRE = regexp.MustCompile(`(?m)^#{1,6}\s`)

// DetectContentType classifies raw content: a full JSON object is
// json, a markdown heading marker anywhere makes it markdown,
// everything else is free text.
func DetectContentType(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") && json.Valid([]byte(trimmed)) {
		return ContentJSON
	}
	if headingRE.MatchString(trimmed) {
		return ContentMarkdown
	}
	return ContentText
}

// Update runs the incremental write path: parse content into a
// candidate, then resolve it against the store under the requested
// mode.
func (e *Engine) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, validationErrorf("content is empty")
	}

	mode, err := merge.ParseMode(req.Mode)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	contentType := req.ContentType
	if contentType == "" || contentType == ContentAuto {
		contentType = DetectContentType(req.Content)
	}

	var cand *extract.Candidate
	switch contentType {
	case ContentJSON:
		cand, err = extract.ParseCandidate([]byte(req.Content))
		if err != nil {
			return nil, validationErrorf("invalid JSON content: %v", err)
		}
	case ContentMarkdown:
		cand, err = e.extractor.ExtractMarkdown(ctx, req.Content)
		if err != nil {
			return nil, err
		}
	case ContentText:
		// Edit-shaped text ("change X to Y") targets an existing
		// record instead of contributing new content.
		if extract.IsInstruction(req.Content) {
			return e.applyInstruction(ctx, req.Content, mode)
		}
		cand, err = e.extractText(ctx, req.Content, req.SectionHint)
		if err != nil {
			return nil, err
		}
	case ContentInstruction:
		return e.applyInstruction(ctx, req.Content, mode)
	default:
		return nil, validationErrorf("unknown content type %q (supported: auto, json, markdown, text, instruction)", req.ContentType)
	}

	if cand.Empty() {
		return nil, validationErrorf("no resume information found in content")
	}

	result, err := e.resolver.Apply(ctx, cand, mode)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Mode: mode, ContentType: contentType, Merge: result}, nil
}

// applyInstruction runs the targeted-edit path: LLM-parse the
// instruction, locate the target record, change the named field.
func (e *Engine) applyInstruction(ctx context.Context, content string, mode merge.Mode) (*UpdateResult, error) {
	inst, err := e.extractor.Instruction(ctx, content)
	if err != nil {
		return nil, err
	}

	result, err := e.resolver.Instruct(ctx, inst)
	if errors.Is(err, merge.ErrNoInstructionTarget) {
		return nil, validationErrorf("no %s entry matches the instruction (field %s)", inst.Section, inst.Field)
	}
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Mode: mode, ContentType: ContentInstruction, Merge: result}, nil
}

// extractText runs free text through normalization and LLM extraction
// with the existing record set as context.
func (e *Engine) extractText(ctx context.Context, content, sectionHint string) (*extract.Candidate, error) {
	cleaned := normalize.Clean(content)
	entities := normalize.Extract(cleaned)

	// A context read failure is not fatal: extraction proceeds as if
	// the store were empty.
	var summary string
	if entries, err := e.library.Entries(ctx); err == nil {
		summary = extract.ContextSummary(entries)
	}
	if sectionHint != "" {
		summary = strings.TrimSpace(summary + " Focus on " + sectionHint + " information.")
	}

	return e.extractor.Extract(ctx, cleaned, entities, summary)
}

// Replace rebuilds the whole collection from scratch: the content is
// LLM-parsed into a complete document, validated, and only then does
// the destructive clear-and-reinsert run. Ids restart from 1.
func (e *Engine) Replace(ctx context.Context, content string) (*ReplaceResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, validationErrorf("content is empty")
	}

	cand, err := e.extractor.ExtractDocument(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(cand); err != nil {
		return nil, err
	}

	if err := e.library.Clear(ctx); err != nil {
		return nil, err
	}

	added := 0
	id := int64(1)
	put := func(section resume.Section, fields resume.Fields) error {
		if _, err := e.library.PutAt(ctx, id, section, fields); err != nil {
			return err
		}
		id++
		added++
		return nil
	}

	for _, entry := range cand.Entries(resume.SectionBasics) {
		if err := put(resume.SectionBasics, entry); err != nil {
			return nil, err
		}
	}
	for _, section := range resume.ArraySections {
		for _, entry := range cand.Entries(section) {
			if err := put(section, entry); err != nil {
				return nil, err
			}
		}
	}
	return &ReplaceResult{EntriesAdded: added}, nil
}

// validateDocument enforces the replace contract: basics with a name,
// work entries with a name or company, skills entries with a name.
func validateDocument(cand *extract.Candidate) error {
	basics := cand.Entries(resume.SectionBasics)
	if len(basics) == 0 {
		return validationErrorf("resume must contain a basics section")
	}
	if basics[0].String("name") == "" {
		return validationErrorf("resume must contain a name in basics section")
	}
	for i, entry := range cand.Entries(resume.SectionWork) {
		if entry.String("name") == "" && entry.String("company") == "" {
			return validationErrorf("work entry %d must have a name or company", i)
		}
	}
	for i, entry := range cand.Entries(resume.SectionSkills) {
		if entry.String("name") == "" {
			return validationErrorf("skills entry %d must have a name", i)
		}
	}
	return nil
}

// Resume reconstructs the canonical document from all records. A store
// read failure degrades to an empty document rather than propagating,
// so the read path always answers.
func (e *Engine) Resume(ctx context.Context) ResumeResult {
	records, err := e.library.All(ctx)
	if err != nil {
		return ResumeResult{Document: rebuild.Reconstruct(nil)}
	}
	return ResumeResult{
		Document:   rebuild.Reconstruct(records),
		EntryCount: len(records),
	}
}

// Summary returns the per-section preview without materializing the
// full document. Like Resume, a store read failure degrades to an
// empty summary rather than propagating.
func (e *Engine) Summary(ctx context.Context) rebuild.Summary {
	records, err := e.library.All(ctx)
	if err != nil {
		return rebuild.Summarize(nil)
	}
	return rebuild.Summarize(records)
}

// Generate runs the tailored read path: keyword extraction from the
// job description, ranked unfiltered search, capped assembly.
func (e *Engine) Generate(ctx context.Context, jobDescription string) (*GenerateResult, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return nil, validationErrorf("job description is empty")
	}

	keywords, reasoning, err := e.extractor.Keywords(ctx, jobDescription)
	if err != nil {
		return nil, err
	}

	scored, err := e.library.SearchText(ctx, keywords, store.DefaultSearchLimit)
	if err != nil {
		return nil, err
	}

	builder := tailor.NewBuilder()
	for _, s := range scored {
		builder.Add(s.Record.Section, s.Record.Fields, s.Score)
	}

	return &GenerateResult{
		Document:  builder.Build(),
		Keywords:  keywords,
		Reasoning: reasoning,
		Report:    builder.Report(),
	}, nil
}
