package rebuild

import (
	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
)

const (
	summaryMaxCompanies = 5
	summaryMaxPositions = 5
	summaryMaxSkills    = 10
)

// SectionSummary is the per-section slice of a Summary. Only the
// fields relevant to the section are populated.
type SectionSummary struct {
	Count     int      `json:"count"`
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Companies []string `json:"companies,omitempty"`
	Positions []string `json:"positions,omitempty"`
	TopSkills []string `json:"top_skills,omitempty"`
}

// Summary is the denormalized preview of the record set: per-section
// counts plus a small sample of companies, positions, and skills. It
// never materializes the full document.
type Summary struct {
	TotalEntries int                                `json:"total_entries"`
	Sections     map[resume.Section]*SectionSummary `json:"sections"`
}

// Summarize builds the Summary from all records.
func Summarize(records []store.Record) Summary {
	summary := Summary{
		TotalEntries: len(records),
		Sections:     make(map[resume.Section]*SectionSummary),
	}

	section := func(s resume.Section) *SectionSummary {
		if existing, ok := summary.Sections[s]; ok {
			return existing
		}
		created := &SectionSummary{}
		summary.Sections[s] = created
		return created
	}

	for _, r := range records {
		s := section(r.Section)
		s.Count++

		switch r.Section {
		case resume.SectionBasics:
			// Later records win, matching reconstruction.
			if v := r.Fields.String("name"); v != "" {
				s.Name = v
			}
			if v := r.Fields.String("email"); v != "" {
				s.Email = v
			}
			if v := r.Fields.String("phone"); v != "" {
				s.Phone = v
			}
		case resume.SectionWork:
			s.Companies = appendUnique(s.Companies, r.Fields.String("company"), summaryMaxCompanies)
			s.Positions = appendUnique(s.Positions, r.Fields.String("position"), summaryMaxPositions)
		case resume.SectionSkills:
			for _, kw := range r.Fields.Strings("keywords") {
				s.TopSkills = appendUnique(s.TopSkills, kw, summaryMaxSkills)
			}
		}
	}

	return summary
}

// appendUnique appends value unless it is blank, already present, or
// the list is at its cap.
func appendUnique(list []string, value string, max int) []string {
	if value == "" || len(list) >= max {
		return list
	}
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
