package extract

import (
	"fmt"
	"strings"

	"github.com/hurttlocker/vitae/internal/resume"
)

// ContextSummary condenses stored entries into a short prose summary
// used to bound the extraction prompt. Entries carry their section
// under the "section" key.
func ContextSummary(entries []resume.Fields) string {
	if len(entries) == 0 {
		return "No existing resume data."
	}

	bySection := make(map[resume.Section][]resume.Fields)
	for _, entry := range entries {
		section := resume.ParseSection(entry.String("section"))
		bySection[section] = append(bySection[section], entry)
	}

	var parts []string

	if basics := bySection[resume.SectionBasics]; len(basics) > 0 {
		name := basics[0].String("name")
		if name == "" {
			name = "Unknown"
		}
		email := basics[0].String("email")
		if email == "" {
			email = "no email"
		}
		parts = append(parts, fmt.Sprintf("Current contact: %s <%s>", name, email))
	}

	if work := bySection[resume.SectionWork]; len(work) > 0 {
		companies := make([]string, 0, len(work))
		positions := make([]string, 0, len(work))
		seen := make(map[string]bool)
		for _, entry := range work {
			if company := entry.String("company"); company != "" && !seen[company] {
				seen[company] = true
				companies = append(companies, company)
			}
			if position := entry.String("position"); position != "" {
				positions = append(positions, position)
			}
		}
		parts = append(parts, fmt.Sprintf("Work history: %d positions at %s", len(work), strings.Join(companies, ", ")))
		if len(positions) > 3 {
			positions = positions[:3]
		}
		if len(positions) > 0 {
			parts = append(parts, "Recent positions: "+strings.Join(positions, ", "))
		}
	}

	if skills := bySection[resume.SectionSkills]; len(skills) > 0 {
		var keywords []string
		for _, entry := range skills {
			keywords = append(keywords, entry.Strings("keywords")...)
		}
		if len(keywords) > 10 {
			keywords = keywords[:10]
		}
		parts = append(parts, "Current skills: "+strings.Join(keywords, ", "))
	}

	if education := bySection[resume.SectionEducation]; len(education) > 0 {
		schools := make([]string, 0, len(education))
		for _, entry := range education {
			school := entry.String("institution")
			if school == "" {
				school = "Unknown"
			}
			schools = append(schools, school)
		}
		parts = append(parts, "Education: "+strings.Join(schools, ", "))
	}

	if len(parts) == 0 {
		return "No existing resume data."
	}
	return strings.Join(parts, "; ")
}
