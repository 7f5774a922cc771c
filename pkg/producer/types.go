// Package producer provides the client for the external natural-language
// filter producer. The producer turns a clinician's free-text query into
// structured filter criteria with resolved database field mappings; this
// package validates that output at the trust boundary before it becomes
// domain filters.
package producer

import (
	"time"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// QueryRequest is the payload sent to the producer
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// CriterionPayload is one suggested filter criterion as the producer emits
// it. DBMappings reuses the domain wire shape, including the tri-state
// override reason.
type CriterionPayload struct {
	Text             string                          `json:"text"`
	Type             string                          `json:"type"`
	Entities         []string                        `json:"entities"`
	DBMappings       map[string]domain.EntityMapping `json:"db_mappings"`
	RevisedCriterion string                          `json:"revised_criterion"`
}

// QueryResponse is the producer's reply to a process-query request
type QueryResponse struct {
	Interpretation string             `json:"interpretation"`
	Criteria       []CriterionPayload `json:"criteria"`
}

// QueryResult is the validated outcome of a processed query. Filters holds
// only the criteria that passed domain validation; Rejected counts the ones
// that did not.
type QueryResult struct {
	Interpretation string
	Filters        []*domain.Filter
	Rejected       int
	ProcessedAt    time.Time
}

// ToFilter validates a criterion payload into a domain filter. Unknown type
// values and inconsistent mappings are rejected with a ValidationError.
func (p CriterionPayload) ToFilter() (*domain.Filter, error) {
	return domain.NewFilter(
		p.Text,
		domain.FilterKind(p.Type),
		p.Entities,
		p.DBMappings,
		p.RevisedCriterion,
	)
}
