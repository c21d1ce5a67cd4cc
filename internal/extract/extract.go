// Package extract turns messy resume text into structured section
// candidates by prompting an LLM collaborator and parsing its JSON
// reply. It never invents structure locally: the model produces the
// sections, this package bounds the prompt, locates the JSON object in
// the reply, and coerces it into the canonical shape.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hurttlocker/vitae/internal/llm"
	"github.com/hurttlocker/vitae/internal/normalize"
	"github.com/hurttlocker/vitae/internal/resume"
)

// Candidate is the structured output of one extraction: per-section
// entry lists mirroring the canonical document schema. A bare object
// where a list is expected has already been wrapped.
type Candidate struct {
	Sections map[resume.Section][]resume.Fields
}

// Entries returns the entry list for a section (nil if absent).
func (c *Candidate) Entries(s resume.Section) []resume.Fields {
	if c == nil || c.Sections == nil {
		return nil
	}
	return c.Sections[s]
}

// Empty reports whether the candidate carries no entries at all.
func (c *Candidate) Empty() bool {
	if c == nil {
		return true
	}
	for _, entries := range c.Sections {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}

// ExtractionError wraps a failure in the extraction pipeline with the
// stage it occurred in (completion, locate, parse).
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor prompts an LLM provider and parses the reply into a
// Candidate.
type Extractor struct {
	provider      llm.Provider
	stream        bool   // use the streaming endpoint for completions
	keywordsModel string // optional model override for keyword calls
}

// NewExtractor creates an extractor over the given provider.
func NewExtractor(provider llm.Provider, stream bool) *Extractor {
	return &Extractor{provider: provider, stream: stream}
}

// UseKeywordsModel overrides the provider's default model for keyword
// extraction. An empty model keeps the provider default.
func (e *Extractor) UseKeywordsModel(model string) {
	e.keywordsModel = model
}

const extractionSystemPrompt = `You are an expert resume parser with deep understanding of tech industry context, career progression, and implicit information. Parse messy, real-world text dumps into perfect JSON Resume schema format. Return ONLY valid JSON, no explanations, no markdown formatting.`

const extractionPromptFmt = `EXISTING RESUME CONTEXT:
%s

EXTRACTED ENTITIES:
- Companies: %s
- Locations: %s
- Technologies: %s
- Universities: %s
- Dates: %s
- Emails: %s
- Phones: %s

TEXT TO PARSE:
"%s"

REQUIREMENTS:
1. Timeline reconstruction: infer logical job progression and fill gaps
2. Context inference: understand implicit information (e.g. "pandemic started" means ~2020)
3. Entity resolution: use canonical company names, normalize locations
4. Contradiction handling: resolve conflicts with existing data
5. Casual language: parse conversational, informal descriptions ("btw", "K8s", "since pandemic", "employee #45")
6. Salary mentions: extract context but never include compensation in the resume

OUTPUT FORMAT - JSON Resume Schema:
{
    "basics": {"name": "Full Name", "email": "normalized@email.com", "phone": "+1-555-0123", "location": {"city": "City", "region": "State"}, "summary": "Professional summary"},
    "work": [{"company": "Canonical Company Name", "position": "Normalized Title", "startDate": "YYYY-MM-DD", "endDate": "YYYY-MM-DD or omit if current", "summary": "Clear description", "highlights": ["Specific achievements"], "location": "City, State"}],
    "education": [{"institution": "Full University Name", "area": "Major/Field", "studyType": "Degree Type", "startDate": "YYYY-MM-DD", "endDate": "YYYY-MM-DD", "gpa": "X.X if mentioned"}],
    "skills": [{"name": "Category Name", "keywords": ["Normalized", "Technology", "Names"]}],
    "projects": [{"name": "Project Name", "description": "Clear description", "highlights": ["Key technologies"], "url": "URL if mentioned"}]
}

RETURN ONLY VALID JSON.`

const markdownPromptFmt = `Parse the following markdown resume content into structured JSON sections.
Extract information for these sections: basics, work, skills, projects, education.

For work experience, include: company, position, startDate, endDate, summary, highlights
For skills, include: name, keywords
For projects, include: name, description, highlights, url (if mentioned)
For basics, include: name, email, phone, summary
For education, include: institution, area, studyType, startDate, endDate

Return valid JSON with sections as keys and arrays of objects as values.

Markdown Content:
%s`

const documentPromptFmt = `Parse the following content into a complete JSON Resume following the JSON Resume schema.

Requirements:
1. Extract ALL available information from the content
2. Structure it according to JSON Resume schema (https://jsonresume.org/schema/)
3. Include these sections if data is available: basics, work, education, skills, projects, volunteer, awards, publications, languages, interests, references
4. For basics section, extract: name, label, email, phone, url, summary, location (with address, postalCode, city, countryCode, region)
5. For work section, extract: name, position, url, startDate, endDate, summary, highlights
6. For education section, extract: institution, url, area, studyType, startDate, endDate, score, courses
7. For skills section, extract: name, level, keywords
8. For projects section, extract: name, description, highlights, keywords, startDate, endDate, url, roles, entity, type
9. Use proper date formats (YYYY-MM-DD or YYYY-MM)
10. Return ONLY valid JSON, no other text

Content to parse:
%s

JSON Resume:`

const keywordPromptFmt = `Analyze the following job description and extract the most critical skills,
technologies, and responsibilities. Return them as a single, dense,
comma-separated string of keywords.

Job Description:
%s`

// Extract parses cleaned free text into a Candidate. The entities and
// context summary bound the prompt so the model resolves aliases and
// conflicts against what the store already holds.
func (e *Extractor) Extract(ctx context.Context, cleaned string, entities normalize.Entities, contextSummary string) (*Candidate, error) {
	if contextSummary == "" {
		contextSummary = "No existing resume data."
	}
	prompt := fmt.Sprintf(extractionPromptFmt,
		contextSummary,
		joinOrNone(entities.Companies),
		joinOrNone(entities.Locations),
		joinOrNone(entities.Technologies),
		joinOrNone(entities.Universities),
		joinOrNone(entities.Years),
		joinOrNone(entities.Emails),
		joinOrNone(entities.Phones),
		cleaned,
	)

	return e.complete(ctx, prompt, llm.CompletionOpts{
		System:      extractionSystemPrompt,
		Temperature: 0.1,
		Format:      "json",
	})
}

// ExtractMarkdown parses markdown resume content into a Candidate.
func (e *Extractor) ExtractMarkdown(ctx context.Context, content string) (*Candidate, error) {
	prompt := fmt.Sprintf(markdownPromptFmt, content)
	return e.complete(ctx, prompt, llm.CompletionOpts{
		Temperature: 0.1,
		Format:      "json",
	})
}

// ExtractDocument parses arbitrary content into a complete resume
// candidate covering every schema section. Used by full-replace, where
// the model rebuilds the whole document in one pass.
func (e *Extractor) ExtractDocument(ctx context.Context, content string) (*Candidate, error) {
	prompt := fmt.Sprintf(documentPromptFmt, content)
	return e.complete(ctx, prompt, llm.CompletionOpts{
		Temperature: 0.3,
		MaxTokens:   2000,
		Format:      "json",
	})
}

// Keywords extracts a dense comma-separated keyword string from a job
// description, returning the model's reasoning trace when present.
func (e *Extractor) Keywords(ctx context.Context, jobDescription string) (keywords, reasoning string, err error) {
	prompt := fmt.Sprintf(keywordPromptFmt, jobDescription)

	opts := llm.CompletionOpts{Temperature: 0.2, Model: e.keywordsModel}

	var resp llm.Response
	if e.stream {
		resp, err = e.provider.Stream(ctx, prompt, opts)
	} else {
		resp, err = e.provider.Complete(ctx, prompt, opts)
	}
	if err != nil {
		return "", "", &ExtractionError{Stage: "completion", Err: err}
	}

	if reasoned, ok := resp.(llm.ReasonedResponse); ok {
		return reasoned.Content, reasoned.Reasoning, nil
	}
	return resp.Text(), "", nil
}

func (e *Extractor) complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (*Candidate, error) {
	var resp llm.Response
	var err error
	if e.stream {
		resp, err = e.provider.Stream(ctx, prompt, opts)
	} else {
		resp, err = e.provider.Complete(ctx, prompt, opts)
	}
	if err != nil {
		return nil, &ExtractionError{Stage: "completion", Err: err}
	}

	obj, ok := firstJSONObject(resp.Text())
	if !ok {
		return nil, &ExtractionError{Stage: "locate", Err: fmt.Errorf("no JSON object in model reply")}
	}

	cand, err := ParseCandidate([]byte(obj))
	if err != nil {
		return nil, &ExtractionError{Stage: "parse", Err: err}
	}
	return cand, nil
}

// ParseCandidate decodes a JSON object into a Candidate. Top-level
// keys name sections; a bare object value is wrapped into a
// single-element list, non-object list elements are skipped, and
// unknown keys map to the catch-all section.
func ParseCandidate(raw []byte) (*Candidate, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decoding candidate: %w", err)
	}

	cand := &Candidate{Sections: make(map[resume.Section][]resume.Fields)}
	for key, value := range top {
		if key == "$schema" {
			continue
		}
		section := resume.ParseSection(key)

		// A bare object wraps into a single-element list.
		var single map[string]any
		if err := json.Unmarshal(value, &single); err == nil {
			if len(single) > 0 {
				cand.Sections[section] = append(cand.Sections[section], resume.Fields(single))
			}
			continue
		}

		var list []json.RawMessage
		if err := json.Unmarshal(value, &list); err != nil {
			continue // scalar or malformed value, skip
		}
		for _, elem := range list {
			var entry map[string]any
			if err := json.Unmarshal(elem, &entry); err != nil || len(entry) == 0 {
				continue
			}
			cand.Sections[section] = append(cand.Sections[section], resume.Fields(entry))
		}
	}
	return cand, nil
}

// firstJSONObject returns the first balanced {...} object in s,
// tracking string literals and escapes so braces inside strings do not
// affect the balance.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
