package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func TestDateOperator(t *testing.T) {
	assert.Equal(t, OperandSingleDate, DateOperator("before").Requires)
	assert.Equal(t, OperandSingleDate, DateOperator("after").Requires)
	assert.Equal(t, OperandDateRange, DateOperator("between").Requires)
	assert.Equal(t, OperandSingleDate, DateOperator("on").Requires)

	// Unknown operators fall back to "on" rather than failing.
	assert.Equal(t, "on", DateOperator("around").Value)
}

func TestNewDateRangeState(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)

	assert.Equal(t, "on", s.Operator.Value)
	assert.False(t, s.Value.Ranged)
	assert.Equal(t, "2024-03-20", s.Value.Date)
}

func TestSelectOperator_SingleToRange(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = SetEndpoint(s, "2024-01-15", EndpointStart)

	s = SelectOperator(s, DateOperator("between"), testNow)

	require.True(t, s.Value.Ranged)
	assert.Equal(t, "2024-01-15", s.Value.Start)
	assert.Equal(t, "2024-03-20", s.Value.End)
}

func TestSelectOperator_SingleToRange_FutureDate(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = SetEndpoint(s, "2024-06-01", EndpointStart)

	s = SelectOperator(s, DateOperator("between"), testNow)

	// A start after today pulls the end up so the range stays ordered.
	require.True(t, s.Value.Ranged)
	assert.Equal(t, "2024-06-01", s.Value.Start)
	assert.Equal(t, "2024-06-01", s.Value.End)
}

func TestSelectOperator_RangeToSingle(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = SetEndpoint(s, "2024-01-15", EndpointStart)
	s = SelectOperator(s, DateOperator("between"), testNow)

	s = SelectOperator(s, DateOperator("before"), testNow)

	// Collapsing back keeps the first endpoint, so the original single date
	// survives a round trip through the ranged shape.
	require.False(t, s.Value.Ranged)
	assert.Equal(t, "2024-01-15", s.Value.Date)
	assert.Equal(t, "before", s.Operator.Value)
}

func TestSelectOperator_SameShape(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = SetEndpoint(s, "2024-01-15", EndpointStart)

	s = SelectOperator(s, DateOperator("after"), testNow)

	assert.False(t, s.Value.Ranged)
	assert.Equal(t, "2024-01-15", s.Value.Date)
	assert.Equal(t, "after", s.Operator.Value)
}

func TestSetEndpoint_StartCrossesEnd(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = SelectOperator(s, DateOperator("between"), testNow)
	s = SetEndpoint(s, "2024-03-01", EndpointStart)
	s = SetEndpoint(s, "2024-03-10", EndpointEnd)

	s = SetEndpoint(s, "2024-03-15", EndpointStart)

	// The edited endpoint wins; the range collapses instead of rejecting.
	assert.Equal(t, "2024-03-15", s.Value.Start)
	assert.Equal(t, "2024-03-15", s.Value.End)
	assert.Equal(t, 0, s.DurationDays())
}

func TestSetEndpoint_EndCrossesStart(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = SelectOperator(s, DateOperator("between"), testNow)
	s = SetEndpoint(s, "2024-03-01", EndpointStart)

	s = SetEndpoint(s, "2024-02-10", EndpointEnd)

	assert.Equal(t, "2024-02-10", s.Value.Start)
	assert.Equal(t, "2024-02-10", s.Value.End)
}

func TestSetEndpoint_InvalidDateKeepsPrevious(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)

	s = SetEndpoint(s, "not-a-date", EndpointStart)

	assert.Equal(t, "2024-03-20", s.Value.Date)
}

func TestApplyPreset(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)

	s = ApplyPreset(s, 7, testNow)

	require.True(t, s.Value.Ranged)
	assert.Equal(t, "between", s.Operator.Value)
	assert.Equal(t, "2024-03-13", s.Value.Start)
	assert.Equal(t, "2024-03-20", s.Value.End)
	assert.Equal(t, 7, s.DurationDays())
}

func TestDurationDays(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	assert.Equal(t, 0, s.DurationDays())

	s = ApplyPreset(s, 30, testNow)
	assert.Equal(t, 30, s.DurationDays())

	s = ApplyPreset(s, 0, testNow)
	assert.Equal(t, 0, s.DurationDays())
}

func TestDateRangeValue_JSONShape(t *testing.T) {
	single := DateRangeValue{Date: "2024-01-15"}
	data, err := json.Marshal(single)
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-15"`, string(data))

	ranged := DateRangeValue{Ranged: true, Start: "2024-01-01", End: "2024-01-31"}
	data, err = json.Marshal(ranged)
	require.NoError(t, err)
	assert.Equal(t, `["2024-01-01","2024-01-31"]`, string(data))

	var decoded DateRangeValue
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-15"`), &decoded))
	assert.Equal(t, single, decoded)

	require.NoError(t, json.Unmarshal([]byte(`["2024-01-01","2024-01-31"]`), &decoded))
	assert.Equal(t, ranged, decoded)

	assert.Error(t, json.Unmarshal([]byte(`42`), &decoded))
}

func TestDateRangeState_RoundTrip(t *testing.T) {
	s := NewDateRangeState("enrollment_date", "Enrollment Date", testNow)
	s = ApplyPreset(s, 14, testNow)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded DateRangeState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, decoded)
}
