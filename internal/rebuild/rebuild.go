// Package rebuild reconstructs the canonical resume document from the
// full record set. Reconstruction is pure and idempotent: the same
// records always produce the same document, and the transforms never
// fail, they fall back (wrap scalars in lists, treat unparsable dates
// as oldest) so the read path always returns a best-effort document.
package rebuild

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
)

// Field allow-lists per section, matching the JSON Resume schema. Extra
// extracted keys on these sections are dropped on reconstruction.
var (
	basicsFields    = []string{"name", "label", "image", "email", "phone", "url", "summary"}
	locationFields  = []string{"address", "postalCode", "city", "countryCode", "region"}
	workFields      = []string{"name", "company", "position", "url", "startDate", "endDate", "summary", "highlights"}
	educationFields = []string{"institution", "url", "area", "studyType", "startDate", "endDate", "score", "courses"}
	skillFields     = []string{"name", "level", "keywords"}
	projectFields   = []string{"name", "description", "highlights", "keywords", "startDate", "endDate", "url", "roles", "entity", "type"}
)

// Reconstruct groups records by section and assembles the canonical
// document. Empty sections are dropped; basics is always present.
func Reconstruct(records []store.Record) resume.Document {
	grouped := make(map[resume.Section][]resume.Fields)
	for _, r := range records {
		grouped[r.Section] = append(grouped[r.Section], r.Fields)
	}

	doc := resume.Document{
		string(resume.SectionBasics): buildBasics(grouped[resume.SectionBasics]),
	}
	for _, section := range resume.ArraySections {
		entries := grouped[section]
		if len(entries) == 0 {
			continue
		}
		var built []resume.Fields
		switch section {
		case resume.SectionWork:
			built = buildWork(entries)
		case resume.SectionEducation:
			built = buildEducation(entries)
		case resume.SectionSkills:
			built = buildSkills(entries)
		case resume.SectionProjects:
			built = buildProjects(entries)
		default:
			built = buildGeneric(entries)
		}
		if len(built) > 0 {
			doc[string(section)] = built
		}
	}
	return doc
}

// buildBasics folds every basics record into one object. Later
// non-empty fields win; location merges field-by-field; profiles
// concatenate and deduplicate by (network, url).
func buildBasics(entries []resume.Fields) resume.Fields {
	basics := resume.Fields{}
	var profiles []any

	for _, entry := range entries {
		for _, field := range basicsFields {
			if v := entry.String(field); v != "" {
				basics[field] = v
			}
		}
		mergeLocation(basics, entry)
		profiles = append(profiles, entry.List("profiles")...)
	}

	if unique := dedupeProfiles(profiles); len(unique) > 0 {
		basics["profiles"] = unique
	}
	return basics
}

// mergeLocation folds location fields from a nested location object or
// from the entry's top level into basics["location"].
func mergeLocation(basics, entry resume.Fields) {
	sources := []resume.Fields{entry}
	if nested, ok := entry["location"].(map[string]any); ok {
		sources = append(sources, resume.Fields(nested))
	}

	for _, src := range sources {
		for _, field := range locationFields {
			v := src.String(field)
			if v == "" {
				continue
			}
			loc, ok := basics["location"].(resume.Fields)
			if !ok {
				loc = resume.Fields{}
				basics["location"] = loc
			}
			loc[field] = v
		}
	}
}

func dedupeProfiles(profiles []any) []any {
	seen := make(map[string]bool, len(profiles))
	var out []any
	for _, p := range profiles {
		fields, ok := p.(map[string]any)
		if !ok {
			continue
		}
		key := resume.Fields(fields).String("network") + "\x00" + resume.Fields(fields).String("url")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func buildWork(entries []resume.Fields) []resume.Fields {
	out := make([]resume.Fields, 0, len(entries))
	for _, entry := range entries {
		item := pick(entry, workFields)
		synthesizeName(item)
		coerceLists(item, "highlights")
		out = append(out, item)
	}
	return sortByDateDesc(out, "startDate")
}

func buildProjects(entries []resume.Fields) []resume.Fields {
	out := make([]resume.Fields, 0, len(entries))
	for _, entry := range entries {
		item := pick(entry, projectFields)
		synthesizeName(item)
		coerceLists(item, "highlights", "keywords", "roles")
		out = append(out, item)
	}
	return sortByDateDesc(out, "startDate")
}

func buildEducation(entries []resume.Fields) []resume.Fields {
	out := make([]resume.Fields, 0, len(entries))
	for _, entry := range entries {
		item := pick(entry, educationFields)
		if _, ok := item["score"]; !ok {
			if gpa, present := entry["gpa"]; present && gpa != nil {
				item["score"] = fmt.Sprintf("%v", gpa)
			}
		}
		coerceLists(item, "courses")
		out = append(out, item)
	}
	return sortByDateDesc(out, "endDate")
}

func buildSkills(entries []resume.Fields) []resume.Fields {
	out := make([]resume.Fields, 0, len(entries))
	for _, entry := range entries {
		item := pick(entry, skillFields)
		if raw, present := item["keywords"]; present {
			item["keywords"] = normalizeKeywords(raw)
		}
		out = append(out, item)
	}
	return out
}

func buildGeneric(entries []resume.Fields) []resume.Fields {
	out := make([]resume.Fields, 0, len(entries))
	for _, entry := range entries {
		clean := resume.Fields{}
		for k, v := range entry {
			if k == "section" || strings.HasPrefix(k, "_") {
				continue
			}
			clean[k] = v
		}
		out = append(out, clean)
	}
	return out
}

// pick copies the allowed fields with non-nil values.
func pick(entry resume.Fields, fields []string) resume.Fields {
	item := resume.Fields{}
	for _, field := range fields {
		if v, ok := entry[field]; ok && v != nil {
			item[field] = v
		}
	}
	return item
}

// synthesizeName fills name from company or company from name when
// only one of the two is present.
func synthesizeName(item resume.Fields) {
	_, hasName := item["name"]
	_, hasCompany := item["company"]
	switch {
	case hasCompany && !hasName:
		item["name"] = item["company"]
	case hasName && !hasCompany:
		item["company"] = item["name"]
	}
}

// coerceLists wraps bare scalars in single-element lists for the named
// fields.
func coerceLists(item resume.Fields, fields ...string) {
	for _, field := range fields {
		if _, present := item[field]; present {
			item[field] = item.List(field)
		}
	}
}

// normalizeKeywords coerces keywords to a list, splitting a bare
// comma-separated string, and dedupes preserving first-seen order.
func normalizeKeywords(raw any) []any {
	var items []any
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	case []any:
		items = v
	default:
		items = []any{v}
	}

	seen := make(map[any]bool, len(items))
	var out []any
	for _, item := range items {
		s, ok := item.(string)
		if ok {
			if seen[s] {
				continue
			}
			seen[s] = true
		}
		out = append(out, item)
	}
	return out
}

// sortByDateDesc sorts newest first. Missing or unparsable dates sort
// as the oldest, so fully-dated entries always precede them. The sort
// is stable, ties keep store order.
func sortByDateDesc(entries []resume.Fields, field string) []resume.Fields {
	key := func(entry resume.Fields) time.Time {
		if t, ok := resume.ParseDate(entry.String(field)); ok {
			return t
		}
		return time.Time{}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return key(entries[i]).After(key(entries[j]))
	})
	return entries
}
