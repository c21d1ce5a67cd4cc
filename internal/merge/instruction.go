package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/resume"
	"github.com/hurttlocker/vitae/internal/store"
)

// ErrNoInstructionTarget reports that no stored entry matched an edit
// instruction.
var ErrNoInstructionTarget = errors.New("no stored entry matches the instruction")

// targetLimit bounds the section-filtered search for the entry an
// instruction refers to.
const targetLimit = 5

// Instruct applies one parsed edit instruction: locate the target
// record within the instruction's section, then set or remove the
// named field in place. An addition with no target inserts a fresh
// entry instead.
func (r *Resolver) Instruct(ctx context.Context, inst *extract.Instruction) (*Result, error) {
	if inst.Field == "" {
		return nil, fmt.Errorf("instruction names no field")
	}

	target, err := r.findTarget(ctx, inst)
	if err != nil {
		return nil, err
	}

	if target == nil {
		if inst.Type != "addition" {
			return nil, fmt.Errorf("%w: section %s, field %s", ErrNoInstructionTarget, inst.Section, inst.Field)
		}
		er, err := r.addEntry(ctx, inst.Section, resume.Fields{inst.Field: inst.NewValue})
		if err != nil {
			return nil, err
		}
		return &Result{NewCount: 1, Entries: []EntryResult{er}}, nil
	}

	updated := target.Fields.Clone()
	if inst.Type == "removal" {
		delete(updated, inst.Field)
	} else {
		updated[inst.Field] = inst.NewValue
	}

	if _, err := r.library.PutAt(ctx, target.ID, target.Section, updated); err != nil {
		return nil, fmt.Errorf("applying instruction to record %d: %w", target.ID, err)
	}

	return &Result{
		ModifiedCount: 1,
		Entries: []EntryResult{{
			ID:      target.ID,
			Section: target.Section,
			Action:  inst.Type + "_applied",
			IsNew:   false,
		}},
	}, nil
}

// findTarget searches the instruction's section with the old value,
// context, and field name as the query, preferring entries that
// actually contain the old value over the raw ranking.
func (r *Resolver) findTarget(ctx context.Context, inst *extract.Instruction) (*store.Record, error) {
	var parts []string
	for _, p := range []string{inst.OldValue, inst.SearchContext, inst.Field} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	query := strings.Join(parts, " ")
	if query == "" {
		query = string(inst.Section)
	}

	scored, err := r.library.SearchSectionText(ctx, inst.Section, query, targetLimit)
	if err != nil {
		return nil, fmt.Errorf("searching %s for instruction target: %w", inst.Section, err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	if inst.OldValue != "" {
		for i := range scored {
			if fieldsContain(scored[i].Record.Fields, inst.OldValue) {
				return &scored[i].Record, nil
			}
		}
	}
	return &scored[0].Record, nil
}

// fieldsContain reports whether any string value, directly or inside a
// list, contains needle case-insensitively.
func fieldsContain(fields resume.Fields, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range fields {
		switch value := v.(type) {
		case string:
			if strings.Contains(strings.ToLower(value), needle) {
				return true
			}
		case []any:
			for _, item := range value {
				if s, ok := item.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
	}
	return false
}
