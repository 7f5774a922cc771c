package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire format for all filter dates
const DateLayout = "2006-01-02"

// Operand describes the value shape an operator requires
type Operand string

const (
	OperandSingleDate Operand = "single_date"
	OperandDateRange  Operand = "date_range"
)

// OperatorOption is one selectable comparison operator for a date field
type OperatorOption struct {
	Value    string  `json:"value"`
	Label    string  `json:"label"`
	Requires Operand `json:"requires"`
}

// DateOperators is the operator vocabulary for date-typed filters
var DateOperators = []OperatorOption{
	{Value: "before", Label: "before", Requires: OperandSingleDate},
	{Value: "after", Label: "after", Requires: OperandSingleDate},
	{Value: "between", Label: "between", Requires: OperandDateRange},
	{Value: "on", Label: "on", Requires: OperandSingleDate},
}

// DateOperator looks up an operator option by its value, defaulting to "on"
func DateOperator(value string) OperatorOption {
	for _, op := range DateOperators {
		if op.Value == value {
			return op
		}
	}
	return OperatorOption{Value: "on", Label: "on", Requires: OperandSingleDate}
}

// Endpoint identifies which end of a date range an edit targets
type Endpoint int

const (
	EndpointStart Endpoint = iota
	EndpointEnd
)

// DateRangeValue is the current value of a date filter: either a single date
// or a [start, end] pair. The shape always matches what the selected
// operator requires; it marshals as a bare date string or a two-element
// array accordingly.
type DateRangeValue struct {
	Ranged bool
	Date   string
	Start  string
	End    string
}

// MarshalJSON implements json.Marshaler
func (v DateRangeValue) MarshalJSON() ([]byte, error) {
	if v.Ranged {
		return json.Marshal([2]string{v.Start, v.End})
	}
	return json.Marshal(v.Date)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *DateRangeValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = DateRangeValue{Date: single}
		return nil
	}
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("date value must be a date string or a [start, end] pair: %w", err)
	}
	*v = DateRangeValue{Ranged: true, Start: pair[0], End: pair[1]}
	return nil
}

// DateRangeState is the per-filter state behind a date range control. It is
// an explicit value transformed by pure transition functions; no transition
// ever fails, inputs are repaired into a valid shape instead.
type DateRangeState struct {
	Field    string         `json:"field"`
	Label    string         `json:"label"`
	DataType string         `json:"data_type"`
	MinDate  string         `json:"min_date,omitempty"`
	MaxDate  string         `json:"max_date,omitempty"`
	Operator OperatorOption `json:"current_operator"`
	Value    DateRangeValue `json:"current_value"`
}

// NewDateRangeState builds the initial state for a date field, defaulting to
// the "on" operator with today's date.
func NewDateRangeState(field, label string, now time.Time) DateRangeState {
	return DateRangeState{
		Field:    field,
		Label:    label,
		DataType: "date",
		Operator: DateOperator("on"),
		Value:    DateRangeValue{Date: formatDate(now)},
	}
}

// SelectOperator transitions the state to a new operator, reshaping the
// current value to match what the operator requires. As much of the previous
// value as the new shape allows is preserved; any under-specified endpoint
// defaults to today.
func SelectOperator(s DateRangeState, op OperatorOption, now time.Time) DateRangeState {
	today := formatDate(now)
	next := s
	next.Operator = op

	switch {
	case op.Requires == OperandDateRange && !s.Value.Ranged:
		start := coerceDate(s.Value.Date, today)
		next.Value = DateRangeValue{Ranged: true, Start: start, End: today}
		if next.Value.Start > next.Value.End {
			next.Value.End = next.Value.Start
		}
	case op.Requires == OperandSingleDate && s.Value.Ranged:
		// Collapse to the first endpoint; the second is discarded.
		next.Value = DateRangeValue{Date: coerceDate(s.Value.Start, today)}
	case op.Requires == OperandDateRange:
		next.Value = DateRangeValue{
			Ranged: true,
			Start:  coerceDate(s.Value.Start, today),
			End:    coerceDate(s.Value.End, today),
		}
	default:
		next.Value = DateRangeValue{Date: coerceDate(s.Value.Date, today)}
	}

	return next
}

// SetEndpoint edits one endpoint of the current value. In ranged state an
// edit that crosses the other endpoint collapses the range onto the edited
// value rather than being rejected: the edited endpoint always wins. In
// single state the endpoint index is ignored.
func SetEndpoint(s DateRangeState, value string, endpoint Endpoint) DateRangeState {
	next := s

	if !s.Value.Ranged {
		next.Value.Date = coerceDate(value, s.Value.Date)
		return next
	}

	switch endpoint {
	case EndpointStart:
		next.Value.Start = coerceDate(value, s.Value.Start)
		if next.Value.Start > next.Value.End {
			next.Value.End = next.Value.Start
		}
	case EndpointEnd:
		next.Value.End = coerceDate(value, s.Value.End)
		if next.Value.End < next.Value.Start {
			next.Value.Start = next.Value.End
		}
	}

	return next
}

// ApplyPreset sets the range to the trailing N days ending today. Both
// endpoints are computed, so the result is always valid.
func ApplyPreset(s DateRangeState, days int, now time.Time) DateRangeState {
	next := s
	next.Operator = DateOperator("between")
	next.Value = DateRangeValue{
		Ranged: true,
		Start:  formatDate(now.AddDate(0, 0, -days)),
		End:    formatDate(now),
	}
	return next
}

// DurationDays returns the whole-day span of the current range, rounded up.
// Endpoint-collapse enforcement keeps this non-negative; a single-date state
// has duration zero.
func (s DateRangeState) DurationDays() int {
	if !s.Value.Ranged {
		return 0
	}
	start, err := time.Parse(DateLayout, s.Value.Start)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateLayout, s.Value.End)
	if err != nil {
		return 0
	}
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// coerceDate returns value when it parses as a date, else the fallback, else
// leaves the repair to the caller's today default. Edits are repaired, never
// rejected.
func coerceDate(value, fallback string) string {
	if _, err := time.Parse(DateLayout, value); err == nil {
		return value
	}
	return fallback
}
