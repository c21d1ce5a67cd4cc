// Package resume defines the shared domain types for vitae:
// sections, loosely-schemaed field maps, and the JSON-Resume-style
// document shape produced by reconstruction and tailored assembly.
package resume

import (
	"sort"
	"strings"
	"time"
)

// Section is a canonical resume category. A record belongs to exactly
// one section, fixed at creation time.
type Section string

const (
	SectionBasics       Section = "basics"
	SectionWork         Section = "work"
	SectionEducation    Section = "education"
	SectionSkills       Section = "skills"
	SectionProjects     Section = "projects"
	SectionVolunteer    Section = "volunteer"
	SectionAwards       Section = "awards"
	SectionPublications Section = "publications"
	SectionLanguages    Section = "languages"
	SectionInterests    Section = "interests"
	SectionReferences   Section = "references"
	SectionOther        Section = "other"
)

// Sections lists every known section in canonical document order.
var Sections = []Section{
	SectionBasics,
	SectionWork,
	SectionEducation,
	SectionSkills,
	SectionProjects,
	SectionVolunteer,
	SectionAwards,
	SectionPublications,
	SectionLanguages,
	SectionInterests,
	SectionReferences,
}

// ArraySections lists the sections whose document value is an array.
// Every known section except basics.
var ArraySections = Sections[1:]

// ParseSection maps a raw section name to a known Section. Unknown
// names fall back to SectionOther so that loosely-labelled records are
// never dropped on the write path.
func ParseSection(raw string) Section {
	s := Section(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SectionBasics, SectionWork, SectionEducation, SectionSkills,
		SectionProjects, SectionVolunteer, SectionAwards, SectionPublications,
		SectionLanguages, SectionInterests, SectionReferences, SectionOther:
		return s
	}
	return SectionOther
}

// IsKnown reports whether raw names one of the canonical sections
// (other excluded).
func IsKnown(raw string) bool {
	s := Section(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}

// Fields is the loose per-section payload of a record. Values survive
// a JSON round trip: strings, float64, bool, []any, map[string]any.
type Fields map[string]any

// String returns the named field as a trimmed string, or "" when the
// field is absent or not a string.
func (f Fields) String(key string) string {
	if v, ok := f[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// List coerces the named field into a slice. A bare string wraps into
// a single-element list; absent or nil yields nil. Coercion never
// fails; unexpected scalar types wrap like strings do.
func (f Fields) List(key string) []any {
	v, ok := f[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// Strings coerces the named field into a string slice, dropping
// non-string elements.
func (f Fields) Strings(key string) []string {
	var out []string
	for _, v := range f.List(key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a shallow copy of f. Nested values are shared.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order. Useful for building
// deterministic output from the unordered map.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Document is an ephemeral JSON-Resume-like view: "basics" maps to an
// object, every other section key to an array of entries. It is
// recomputed on every read and never persisted.
type Document map[string]any

// SchemaURL is the default $schema reference stamped on tailored
// documents.
const SchemaURL = "https://raw.githubusercontent.com/jsonresume/resume-schema/v1.0.0/schema.json"

// dateFormats are tried in order when parsing loosely-formatted resume
// dates.
var dateFormats = []string{"2006-01-02", "2006-01", "2006"}

// ParseDate parses a resume date string. The boolean reports whether
// parsing succeeded; callers decide the fallback (oldest vs. now)
// because the two read paths disagree on it.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
