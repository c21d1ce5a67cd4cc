// Package merge reconciles extraction candidates against persisted
// records under three write modes: append, replace, and the default
// similarity-driven merge.
package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
)

// SimilarityThreshold is the minimum cosine similarity for a candidate
// entry to merge into an existing record instead of inserting fresh.
const SimilarityThreshold = 0.70

// neighborLimit bounds the per-entry nearest-neighbor lookup.
const neighborLimit = 3

// Mode selects how candidate entries are written to the store.
type Mode string

const (
	// ModeMerge merges similar entries field-by-field (default).
	ModeMerge Mode = "merge"
	// ModeAppend always inserts fresh records, duplicates included.
	ModeAppend Mode = "append"
	// ModeReplace clears each incoming section, then inserts fresh.
	ModeReplace Mode = "replace"
)

// ParseMode parses a mode string, defaulting empty to merge.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "merge":
		return ModeMerge, nil
	case "append":
		return ModeAppend, nil
	case "replace":
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("unknown update mode %q (supported: merge, append, replace)", raw)
	}
}

// EntryResult records what happened to one candidate entry.
type EntryResult struct {
	ID      int64          `json:"id"`
	Section resume.Section `json:"section"`
	Action  string         `json:"action"` // added, merged
	IsNew   bool           `json:"is_new"`
}

// Result summarizes one Apply call.
type Result struct {
	NewCount      int           `json:"new_count"`
	ModifiedCount int           `json:"modified_count"`
	Entries       []EntryResult `json:"entries"`
}

// Resolver applies extraction candidates to the record store.
type Resolver struct {
	library *store.Library
	now     func() time.Time
}

// NewResolver creates a resolver over the policy layer.
func NewResolver(library *store.Library) *Resolver {
	return &Resolver{library: library, now: time.Now}
}

// Apply writes every candidate entry under the given mode. Sections
// are processed in canonical order so results are deterministic.
func (r *Resolver) Apply(ctx context.Context, cand *extract.Candidate, mode Mode) (*Result, error) {
	result := &Result{}

	order := append([]resume.Section{}, resume.Sections...)
	order = append(order, resume.SectionOther)

	for _, section := range order {
		entries := cand.Entries(section)
		if len(entries) == 0 {
			continue
		}

		if section == resume.SectionWork && mode == ModeMerge {
			entries = dedupeWorkBatch(entries)
			r.inferTimeline(entries)
		}

		if mode == ModeReplace {
			if err := r.library.DeleteSection(ctx, section); err != nil {
				return nil, fmt.Errorf("clearing section %s: %w", section, err)
			}
		}

		for _, entry := range entries {
			var er EntryResult
			var err error
			if mode == ModeMerge {
				er, err = r.mergeEntry(ctx, section, entry)
			} else {
				er, err = r.addEntry(ctx, section, entry)
			}
			if err != nil {
				return nil, err
			}

			if er.IsNew {
				result.NewCount++
			} else {
				result.ModifiedCount++
			}
			result.Entries = append(result.Entries, er)
		}
	}

	return result, nil
}

func (r *Resolver) addEntry(ctx context.Context, section resume.Section, entry resume.Fields) (EntryResult, error) {
	record, err := r.library.Put(ctx, section, entry)
	if err != nil {
		return EntryResult{}, fmt.Errorf("inserting %s entry: %w", section, err)
	}
	return EntryResult{ID: record.ID, Section: section, Action: "added", IsNew: true}, nil
}

// mergeEntry finds the nearest stored entry within the section and
// merges in place when the score clears the threshold; otherwise the
// entry is inserted fresh.
func (r *Resolver) mergeEntry(ctx context.Context, section resume.Section, entry resume.Fields) (EntryResult, error) {
	neighbors, err := r.library.SearchSection(ctx, section, entry, neighborLimit)
	if err != nil {
		return EntryResult{}, fmt.Errorf("searching %s neighbors: %w", section, err)
	}

	var best *store.Scored
	for i := range neighbors {
		if neighbors[i].Score >= SimilarityThreshold {
			best = &neighbors[i]
			break
		}
	}
	if best == nil {
		return r.addEntry(ctx, section, entry)
	}

	merged := MergeFields(best.Record.Fields, entry)
	if _, err := r.library.PutAt(ctx, best.Record.ID, section, merged); err != nil {
		return EntryResult{}, fmt.Errorf("merging into record %d: %w", best.Record.ID, err)
	}
	return EntryResult{ID: best.Record.ID, Section: section, Action: "merged", IsNew: false}, nil
}

// MergeFields merges an incoming entry into an existing one. Array
// fields highlights/keywords are unioned existing-then-new with
// duplicates removed; string fields keep the longer value; other
// non-empty incoming values fill or overwrite.
func MergeFields(existing, incoming resume.Fields) resume.Fields {
	merged := existing.Clone()

	for _, key := range []string{"highlights", "keywords"} {
		_, inNew := incoming[key]
		_, inOld := existing[key]
		switch {
		case inNew && inOld:
			merged[key] = unionStrings(existing.Strings(key), incoming.Strings(key))
		case inNew:
			merged[key] = incoming[key]
		}
	}

	for key, value := range incoming {
		if key == "highlights" || key == "keywords" {
			continue
		}
		if isEmptyValue(value) {
			continue
		}
		current, present := merged[key]
		if !present {
			merged[key] = value
			continue
		}
		newStr, newIsStr := value.(string)
		curStr, curIsStr := current.(string)
		if newIsStr && curIsStr {
			if len(newStr) > len(curStr) {
				merged[key] = value
			}
			continue
		}
		merged[key] = value
	}

	return merged
}

// dedupeWorkBatch collapses candidate work entries describing the same
// logical position: normalized company names and position titles that
// overlap by substring containment in either direction. Later
// duplicates merge into the first occurrence.
func dedupeWorkBatch(entries []resume.Fields) []resume.Fields {
	var kept []resume.Fields
	for _, entry := range entries {
		matched := false
		for i, prior := range kept {
			if samePosition(prior, entry) {
				kept[i] = MergeFields(prior, entry)
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, entry)
		}
	}
	return kept
}

func samePosition(a, b resume.Fields) bool {
	return containsEither(normalizeToken(a.String("company")), normalizeToken(b.String("company"))) &&
		containsEither(normalizeToken(a.String("position")), normalizeToken(b.String("position")))
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func normalizeToken(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// inferTimeline sorts entries ascending by startDate (missing or
// unparsable dates sort as now) and fills each non-last entry's
// missing endDate with the next entry's startDate minus one day.
// Parse failures are swallowed.
func (r *Resolver) inferTimeline(entries []resume.Fields) {
	now := r.now()
	sortDate := func(entry resume.Fields) time.Time {
		if t, ok := resume.ParseDate(entry.String("startDate")); ok {
			return t
		}
		return now
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return sortDate(entries[i]).Before(sortDate(entries[j]))
	})

	for i := 0; i < len(entries)-1; i++ {
		if entries[i].String("endDate") != "" {
			continue
		}
		next, ok := resume.ParseDate(entries[i+1].String("startDate"))
		if !ok {
			continue
		}
		entries[i]["endDate"] = next.AddDate(0, 0, -1).Format("2006-01-02")
	}
}

func unionStrings(existing, incoming []string) []any {
	seen := make(map[string]bool, len(existing)+len(incoming))
	var out []any
	for _, list := range [][]string{existing, incoming} {
		for _, item := range list {
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func isEmptyValue(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(value) == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	default:
		return false
	}
}
