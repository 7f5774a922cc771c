package domain

import (
	"encoding/json"
	"time"
)

// Core Enums and Types

// FilterKind distinguishes inclusion criteria from exclusion criteria
type FilterKind string

const (
	FilterInclude FilterKind = "include"
	FilterExclude FilterKind = "exclude"
)

// MappingMethod describes how an entity was resolved to a database field
type MappingMethod string

const (
	MappingDirect MappingMethod = "direct"
	MappingAgent  MappingMethod = "agent"
)

// NullableString distinguishes an explicit JSON null from a string value.
// Combined with a pointer field and omitempty, it yields a tri-state:
// absent key (nil pointer), explicit null (Valid=false), and value.
type NullableString struct {
	Value string
	Valid bool
}

// MarshalJSON implements json.Marshaler
func (n NullableString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON implements json.Unmarshaler
func (n *NullableString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		n.Value = ""
		return nil
	}
	n.Valid = true
	return json.Unmarshal(data, &n.Value)
}

// String returns the value, or empty string for null
func (n *NullableString) String() string {
	if n == nil || !n.Valid {
		return ""
	}
	return n.Value
}

// NullString returns a NullableString carrying an explicit null
func NullString() *NullableString {
	return &NullableString{}
}

// StringValue returns a NullableString carrying a value
func StringValue(s string) *NullableString {
	return &NullableString{Value: s, Valid: true}
}

// Core Data Models

// EntityMapping is the resolved database target for one recognized entity
// within a filter. RankedMatches is ordered best-first; when it is non-empty
// the chosen TableDotField is its first element unless Reason explains an
// override.
type EntityMapping struct {
	EntityClass   string          `json:"entity_class,omitempty"`
	TableDotField string          `json:"table.field"`
	RankedMatches []string        `json:"ranked_matches,omitempty"`
	MappedConcept *string         `json:"mapped_concept,omitempty"`
	MappingMethod MappingMethod   `json:"mapping_method,omitempty"`
	Reason        *NullableString `json:"reason,omitempty"`
	TopCandidates []string        `json:"top_candidates,omitempty"`
}

// entityMappingJSON mirrors EntityMapping with reason kept raw. Decoding a
// JSON null into a pointer field nils the pointer before the pointee's
// unmarshaler runs, which would collapse an explicit null into an absent
// key; keeping the raw bytes preserves the distinction.
type entityMappingJSON struct {
	EntityClass   string          `json:"entity_class"`
	TableDotField string          `json:"table.field"`
	RankedMatches []string        `json:"ranked_matches"`
	MappedConcept *string         `json:"mapped_concept"`
	MappingMethod MappingMethod   `json:"mapping_method"`
	Reason        json.RawMessage `json:"reason"`
	TopCandidates []string        `json:"top_candidates"`
}

// UnmarshalJSON implements json.Unmarshaler
func (m *EntityMapping) UnmarshalJSON(data []byte) error {
	var raw entityMappingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.EntityClass = raw.EntityClass
	m.TableDotField = raw.TableDotField
	m.RankedMatches = raw.RankedMatches
	m.MappedConcept = raw.MappedConcept
	m.MappingMethod = raw.MappingMethod
	m.TopCandidates = raw.TopCandidates

	m.Reason = nil
	switch {
	case len(raw.Reason) == 0:
		// key absent
	case string(raw.Reason) == "null":
		m.Reason = NullString()
	default:
		var value string
		if err := json.Unmarshal(raw.Reason, &value); err != nil {
			return err
		}
		m.Reason = StringValue(value)
	}
	return nil
}

// Filter represents one applied cohort criterion together with its resolved
// database field mappings. Entities references the keys of DBMappings in
// presentation order. A disabled filter stays in the session list but is
// excluded from every aggregate computation.
type Filter struct {
	ID               string                   `json:"id"`
	Kind             FilterKind               `json:"type"`
	Text             string                   `json:"text"`
	Entities         []string                 `json:"entities"`
	DBMappings       map[string]EntityMapping `json:"db_mappings"`
	RevisedCriterion string                   `json:"revised_criterion"`
	Enabled          bool                     `json:"enabled"`
	AffectedCount    *int                     `json:"affected_count,omitempty"`
}

// CohortState is the derived view of a session: the ordered filter list and
// the patient count computed over the enabled subset. It is recomputed as a
// whole whenever the filter set changes, never patched field by field.
type CohortState struct {
	CohortID     string    `json:"cohort_id"`
	PatientCount int       `json:"patient_count"`
	Filters      []*Filter `json:"filters"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Demographics holds the demographic distributions for a cohort. The gender
// and age distributions each partition exactly TotalPatients patients.
type Demographics struct {
	GenderDistribution map[string]int `json:"gender_distribution"`
	AgeDistribution    map[string]int `json:"age_distribution"`
	TotalPatients      int            `json:"total_patients"`
}

// CohortAnalytics bundles the three aggregates computed from one enabled
// filter snapshot.
type CohortAnalytics struct {
	PatientCount       int            `json:"patient_count"`
	Demographics       Demographics   `json:"demographics"`
	DiagnosisBreakdown map[string]int `json:"diagnosis_breakdown"`
}

// CohortProject represents a named, persisted cohort-building workspace
type CohortProject struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PatientCount int       `json:"patient_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QueryRecord stores one processed natural-language query and its outcome
type QueryRecord struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id,omitempty"`
	QueryText        string    `json:"query_text"`
	Interpretation   string    `json:"interpretation,omitempty"`
	SuggestedFilters int       `json:"suggested_filters"`
	CreatedAt        time.Time `json:"created_at"`
}
