// Package normalize cleans raw career-fact text and extracts
// weakly-typed entities from it using static tables and regular
// expressions. It is pure and deterministic: no I/O, no network, and
// it never fails; inputs that match nothing yield empty entity lists.
package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// Entities holds the weakly-typed matches pulled out of cleaned text.
// Slices are ordered (pattern order for regex hits, canonical-name
// order for table hits) and empty rather than meaningful when nothing
// matched.
type Entities struct {
	Emails       []string
	Phones       []string
	Years        []string
	Companies    []string
	Locations    []string
	Technologies []string
	Universities []string
}

var (
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)

	pipeRE  = regexp.MustCompile(`\s*\|\s*`)
	slashRE = regexp.MustCompile(`\s*/\s*`)
	spaceRE = regexp.MustCompile(`\s+`)

	atSpaceRE    = regexp.MustCompile(`@\s+`)
	openParenRE  = regexp.MustCompile(`\(\s+`)
	closeParenRE = regexp.MustCompile(`\s+\)`)

	universityREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(Stanford|MIT|Harvard|Berkeley|CMU|Caltech|Princeton|Yale)\b`),
		regexp.MustCompile(`\b([A-Z][a-z]+\s+(?:University|Institute|College))\b`),
		regexp.MustCompile(`\b(University\s+of\s+[A-Z][a-z]+)\b`),
	}
)

// Clean normalizes messy input text: emoji become labels, separators
// and whitespace collapse to a single convention, and common
// copy-paste artifacts (spaced @ signs, gapped parentheses) are
// repaired. Cleaning is idempotent for already-clean text.
func Clean(raw string) string {
	text := raw
	for emoji, label := range emojiLabels {
		text = strings.ReplaceAll(text, emoji, label)
	}

	text = pipeRE.ReplaceAllString(text, " | ")
	text = slashRE.ReplaceAllString(text, "/")
	text = spaceRE.ReplaceAllString(text, " ")

	text = atSpaceRE.ReplaceAllString(text, "@")
	text = openParenRE.ReplaceAllString(text, "(")
	text = closeParenRE.ReplaceAllString(text, ")")

	return strings.TrimSpace(text)
}

// Extract pulls entities out of cleaned text. It never returns an
// error: a field with no matches is simply an empty slice.
func Extract(text string) Entities {
	lower := strings.ToLower(text)

	e := Entities{
		Emails: emailRE.FindAllString(text, -1),
		Phones: phoneRE.FindAllString(text, -1),
		Years:  extractYears(text),
	}

	for _, canonical := range sortedKeys(companyAliases) {
		for _, alias := range companyAliases[canonical] {
			if strings.Contains(lower, alias) {
				e.Companies = append(e.Companies, titleCase(canonical))
				break
			}
		}
	}

	for _, canonical := range sortedKeys(locationAliases) {
		for _, alias := range locationAliases[canonical] {
			if strings.Contains(lower, alias) {
				e.Locations = append(e.Locations, titleCase(canonical))
				break
			}
		}
	}

	for _, abbrev := range sortedTechKeys() {
		if wordBoundaryMatch(lower, abbrev) {
			e.Technologies = append(e.Technologies, techExpansions[abbrev])
		}
	}

	seen := map[string]bool{}
	for _, re := range universityREs {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if !seen[strings.ToLower(name)] {
				seen[strings.ToLower(name)] = true
				e.Universities = append(e.Universities, name)
			}
		}
	}

	return e
}

var (
	bareYearRE  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	yearRangeRE = regexp.MustCompile(`\b((?:19|20)\d{2})\s*[-–—]\s*((?:19|20)\d{2})\b`)
)

// extractYears returns every standalone 4-digit year plus the start
// year of every explicit year range.
func extractYears(text string) []string {
	years := bareYearRE.FindAllString(text, -1)
	for _, m := range yearRangeRE.FindAllStringSubmatch(text, -1) {
		years = append(years, m[1])
	}
	return years
}

// wordBoundaryMatch reports whether abbrev occurs in lower as a whole
// word. Abbreviations may contain regex metacharacters (ci/cd), so
// matching quotes them.
func wordBoundaryMatch(lower, abbrev string) bool {
	re, ok := techWordREs[abbrev]
	if !ok {
		return false
	}
	return re.MatchString(lower)
}

// techWordREs precompiles a word-boundary matcher per abbreviation.
var techWordREs = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(techExpansions))
	for abbrev := range techExpansions {
		out[abbrev] = regexp.MustCompile(`\b` + regexp.QuoteMeta(abbrev) + `\b`)
	}
	return out
}()

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTechKeys() []string {
	keys := make([]string, 0, len(techExpansions))
	for k := range techExpansions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
