package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hurttlocker/vitae/internal/llm"
	"github.com/hurttlocker/vitae/internal/resume"
)

// Instruction is a parsed natural-language edit: a targeted change to
// one existing record rather than new resume content.
type Instruction struct {
	Type          string // field_update, correction, addition, removal
	Section       resume.Section
	Field         string
	OldValue      string
	NewValue      string
	SearchContext string
}

// instructionREs match edit-shaped phrasing ("change X to Y",
// "remove Z", "X should be Y"). Plain fact statements match none of
// them and flow through normal extraction.
var instructionREs = []*regexp.Regexp{
	regexp.MustCompile(`change\s+.*\s+to\s+`),
	regexp.MustCompile(`update\s+.*\s+to\s+`),
	regexp.MustCompile(`replace\s+.*\s+with\s+`),
	regexp.MustCompile(`correct\s+.*\s+to\s+`),
	regexp.MustCompile(`fix\s+.*\s+to\s+`),
	regexp.MustCompile(`set\s+.*\s+to\s+`),
	regexp.MustCompile(`modify\s+.*\s+to\s+`),
	regexp.MustCompile(`edit\s+.*\s+to\s+`),
	regexp.MustCompile(`\s+is\s+not\s+.*,?\s+it.?s\s+`),
	regexp.MustCompile(`\s+should\s+be\s+`),
	regexp.MustCompile(`^\s*remove\s+`),
	regexp.MustCompile(`^\s*delete\s+`),
	regexp.MustCompile(`add\s+.*\s+to\s+`),
	regexp.MustCompile(`include\s+.*\s+in\s+`),
}

var imperativeStarters = map[string]bool{
	"change": true, "update": true, "replace": true, "correct": true,
	"fix": true, "set": true, "modify": true, "edit": true,
	"remove": true, "delete": true, "add": true, "include": true,
}

// IsInstruction reports whether content reads as a natural-language
// edit of existing resume data rather than resume data itself.
func IsInstruction(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	if lower == "" {
		return false
	}

	for _, re := range instructionREs {
		if re.MatchString(lower) {
			return true
		}
	}
	return imperativeStarters[strings.Fields(lower)[0]]
}

const instructionPromptFmt = `Parse the following natural language instruction into a structured resume update.
The instruction is asking to modify existing resume data.

Identify:
1. What field/section needs to be updated (email, phone, company name, position, skill, etc.)
2. The old value (if mentioned)
3. The new value
4. Which resume section this belongs to (basics, work, skills, projects, education)

Return JSON in this format:
{
    "instruction_type": "field_update|correction|addition|removal",
    "section": "basics|work|skills|projects|education",
    "field": "email|phone|company|position|name|etc",
    "old_value": "current value to find and replace",
    "new_value": "new value to set",
    "search_context": "additional context to help find the right entry"
}

For corrections like "Google not Gogle", set instruction_type to "correction".
For field changes like "change email to...", set instruction_type to "field_update".

Instruction: "%s"`

type instructionWire struct {
	InstructionType string `json:"instruction_type"`
	Section         string `json:"section"`
	Field           string `json:"field"`
	OldValue        string `json:"old_value"`
	NewValue        string `json:"new_value"`
	SearchContext   string `json:"search_context"`
}

// Instruction LLM-parses an edit instruction into its target section,
// field, and values.
func (e *Extractor) Instruction(ctx context.Context, content string) (*Instruction, error) {
	prompt := fmt.Sprintf(instructionPromptFmt, content)
	opts := llm.CompletionOpts{Temperature: 0, Format: "json"}

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

	var wire instructionWire
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return nil, &ExtractionError{Stage: "parse", Err: fmt.Errorf("decoding instruction: %w", err)}
	}
	if wire.Field == "" {
		return nil, &ExtractionError{Stage: "parse", Err: fmt.Errorf("instruction names no field")}
	}

	section := resume.SectionBasics
	if wire.Section != "" {
		section = resume.ParseSection(wire.Section)
	}

	instructionType := wire.InstructionType
	if instructionType == "" {
		instructionType = "field_update"
	}

	return &Instruction{
		Type:          instructionType,
		Section:       section,
		Field:         wire.Field,
		OldValue:      wire.OldValue,
		NewValue:      wire.NewValue,
		SearchContext: wire.SearchContext,
	}, nil
}
