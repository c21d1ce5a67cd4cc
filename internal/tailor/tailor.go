// Package tailor assembles a bounded, query-relevant resume document
// from a ranked stream of candidate records.
package tailor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/hurttlocker/vitae/internal/resume"
)

// Per-section acceptance caps for a tailored document.
const (
	MaxWorkEntries     = 3
	MaxSkillsEntries   = 5
	MaxProjectsEntries = 2
)

// Outcome reports what the builder did with one candidate.
type Outcome string

const (
	Accepted          Outcome = "accepted"
	RejectedDuplicate Outcome = "rejected_duplicate"
	RejectedCapacity  Outcome = "rejected_capacity"
	// RejectedNoSection marks candidates with no section at all.
	RejectedNoSection Outcome = "rejected_no_section"
	// RejectedUntailored marks candidates from sections the tailored
	// document does not carry (volunteer, awards, ...).
	RejectedUntailored Outcome = "rejected_untailored_section"
)

// Decision is one audit entry: a candidate and what happened to it.
type Decision struct {
	Section resume.Section `json:"section"`
	Outcome Outcome        `json:"outcome"`
	Score   float64        `json:"score,omitempty"`
	Fields  resume.Fields  `json:"fields"`
}

// Report is the builder's audit trail. It is bookkeeping for callers
// that want to explain the assembly, not part of the document itself.
type Report struct {
	Accepted []Decision `json:"accepted"`
	Rejected []Decision `json:"rejected"`
}

// Builder accumulates candidates into a tailored document. Candidates
// arrive in relevance order; the builder enforces per-section caps,
// rejects exact duplicates by content hash, and keeps basics last-wins.
type Builder struct {
	basics    resume.Fields
	work      []resume.Fields
	skills    []resume.Fields
	projects  []resume.Fields
	education []resume.Fields

	seen   map[string]bool
	report Report
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		basics: resume.Fields{},
		seen:   make(map[string]bool),
	}
}

// Add offers one candidate to the builder and returns the outcome.
// The score is recorded in the audit report only.
func (b *Builder) Add(section resume.Section, fields resume.Fields, score float64) Outcome {
	outcome := b.place(section, fields)
	decision := Decision{Section: section, Outcome: outcome, Score: score, Fields: fields}
	if outcome == Accepted {
		b.report.Accepted = append(b.report.Accepted, decision)
	} else {
		b.report.Rejected = append(b.report.Rejected, decision)
	}
	return outcome
}

func (b *Builder) place(section resume.Section, fields resume.Fields) Outcome {
	if section == "" {
		return RejectedNoSection
	}

	hash := contentHash(section, fields)
	if b.seen[hash] {
		return RejectedDuplicate
	}

	clean := stripBookkeeping(fields)

	switch section {
	case resume.SectionBasics:
		// Last-wins: a later, more relevant basics replaces the prior.
		b.basics = clean
	case resume.SectionWork:
		if len(b.work) >= MaxWorkEntries {
			return RejectedCapacity
		}
		b.work = append(b.work, clean)
	case resume.SectionSkills:
		if len(b.skills) >= MaxSkillsEntries {
			return RejectedCapacity
		}
		b.skills = append(b.skills, clean)
	case resume.SectionProjects:
		if len(b.projects) >= MaxProjectsEntries {
			return RejectedCapacity
		}
		b.projects = append(b.projects, clean)
	case resume.SectionEducation:
		if len(b.education) > 0 {
			return RejectedCapacity
		}
		b.education = expandEducation(clean)
	case resume.SectionOther:
		// An other-section record carrying an education payload fills
		// the education slot when still empty.
		embedded, present := clean["education"]
		if !present || len(b.education) > 0 {
			return RejectedUntailored
		}
		b.education = educationList(embedded)
		if len(b.education) == 0 {
			return RejectedUntailored
		}
	default:
		return RejectedUntailored
	}

	b.seen[hash] = true
	return Accepted
}

// Build returns the tailored document. The five tailored sections are
// always present; basics may be empty.
func (b *Builder) Build() resume.Document {
	return resume.Document{
		"$schema":   resume.SchemaURL,
		"basics":    b.basics,
		"work":      orEmpty(b.work),
		"skills":    orEmpty(b.skills),
		"projects":  orEmpty(b.projects),
		"education": orEmpty(b.education),
	}
}

// Report returns the audit trail accumulated so far.
func (b *Builder) Report() Report {
	return b.report
}

// contentHash is the duplicate key: SHA-256 over the canonical JSON
// serialization of the section-tagged record.
func contentHash(section resume.Section, fields resume.Fields) string {
	tagged := fields.Clone()
	tagged["section"] = string(section)
	// Marshal sorts map keys, so the serialization is stable.
	raw, err := json.Marshal(tagged)
	if err != nil {
		raw = []byte(section)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func stripBookkeeping(fields resume.Fields) resume.Fields {
	clean := resume.Fields{}
	for k, v := range fields {
		if k == "section" || k == "_point_id" {
			continue
		}
		clean[k] = v
	}
	return clean
}

// expandEducation accepts either a single education object or an
// object wrapping an expanded list under "education".
func expandEducation(fields resume.Fields) []resume.Fields {
	if embedded, present := fields["education"]; present {
		if list := educationList(embedded); len(list) > 0 {
			return list
		}
	}
	return []resume.Fields{fields}
}

func educationList(v any) []resume.Fields {
	switch value := v.(type) {
	case []any:
		var out []resume.Fields
		for _, item := range value {
			if m, ok := item.(map[string]any); ok {
				out = append(out, resume.Fields(m))
			}
		}
		return out
	case map[string]any:
		return []resume.Fields{resume.Fields(value)}
	}
	return nil
}

func orEmpty(entries []resume.Fields) []resume.Fields {
	if entries == nil {
		return []resume.Fields{}
	}
	return entries
}
