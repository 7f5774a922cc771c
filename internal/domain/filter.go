package domain

import (
	"github.com/google/uuid"
)

// NewFilter constructs a validated Filter. It fails with a ValidationError
// when entities and mapping keys are not identical sets, or when a mapping
// claims a resolved field while carrying an empty (but present) ranked match
// list.
func NewFilter(text string, kind FilterKind, entities []string, dbMappings map[string]EntityMapping, revisedCriterion string) (*Filter, error) {
	if kind != FilterInclude && kind != FilterExclude {
		return nil, NewValidationError("type", "filter type must be include or exclude", string(kind))
	}

	if len(entities) != len(dbMappings) {
		return nil, NewValidationError("entities",
			"entities and db_mappings must cover the same entity set", entities)
	}
	seen := make(map[string]bool, len(entities))
	for _, entity := range entities {
		if seen[entity] {
			return nil, NewValidationError("entities", "duplicate entity", entity)
		}
		seen[entity] = true
		if _, ok := dbMappings[entity]; !ok {
			return nil, NewValidationError("db_mappings", "missing mapping for entity", entity)
		}
	}

	for entity, mapping := range dbMappings {
		if err := validateMapping(entity, mapping); err != nil {
			return nil, err
		}
	}

	return &Filter{
		ID:               uuid.New().String(),
		Kind:             kind,
		Text:             text,
		Entities:         append([]string(nil), entities...),
		DBMappings:       dbMappings,
		RevisedCriterion: revisedCriterion,
		Enabled:          true,
	}, nil
}

// validateMapping enforces the resolution consistency invariants on a single
// entity mapping.
func validateMapping(entity string, mapping EntityMapping) error {
	// A present-but-empty ranked list alongside a resolved target means the
	// resolver's output is internally inconsistent.
	if mapping.RankedMatches != nil && len(mapping.RankedMatches) == 0 && mapping.TableDotField != "" {
		return NewValidationError("ranked_matches",
			"resolved table.field with empty ranked match list for entity "+entity,
			mapping.TableDotField)
	}

	// The chosen target must be the top-ranked match unless an override
	// reason explains the divergence.
	if len(mapping.RankedMatches) > 0 && mapping.TableDotField != mapping.RankedMatches[0] {
		if mapping.Reason == nil || !mapping.Reason.Valid || mapping.Reason.Value == "" {
			return NewValidationError("table.field",
				"table.field diverges from top ranked match without an override reason for entity "+entity,
				mapping.TableDotField)
		}
	}

	return nil
}

// Toggle returns the filter with its enabled flag flipped. The cached
// affected count is left untouched; invalidation is the caller's contract.
func (f *Filter) Toggle() *Filter {
	f.Enabled = !f.Enabled
	return f
}

// Same reports entity identity: two filters are the same entity iff their
// IDs match. Text and RevisedCriterion may legitimately differ between
// otherwise equal filters and both are retained for audit display.
func (f *Filter) Same(other *Filter) bool {
	return other != nil && f.ID == other.ID
}

// InvalidateCount drops the cached affected-count after a filter set change
func (f *Filter) InvalidateCount() {
	f.AffectedCount = nil
}
