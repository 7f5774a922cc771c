package schema

import (
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestIndex(t *testing.T) *Index {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	idx, err := Load(filepath.Join("testdata", "schema.json"), logger)
	require.NoError(t, err)
	return idx
}

func TestLoad(t *testing.T) {
	idx := loadTestIndex(t)

	assert.Equal(t, []string{"patients", "diagnoses", "labreports"}, idx.TableNames())
	require.NotNil(t, idx.Table("patients"))
	assert.Nil(t, idx.Table("visits"))
}

func TestIndex_Field(t *testing.T) {
	idx := loadTestIndex(t)

	field := idx.Field("patients", "gender")
	require.NotNil(t, field)
	assert.Equal(t, "object", field.DataType)
	assert.Equal(t, []string{"Male", "Female", "Other"}, field.UniqueValues)

	assert.Nil(t, idx.Field("patients", "missing"))
	assert.Nil(t, idx.Field("missing", "gender"))
}

func TestIndex_FieldUniqueValues(t *testing.T) {
	idx := loadTestIndex(t)

	// Explicit unique value list takes priority.
	assert.Equal(t, []string{"Male", "Female", "Other"},
		idx.FieldUniqueValues("patients", "gender"))

	// Summary-string cardinality falls back to samples.
	assert.Equal(t, []string{"34", "61", "7", "45", "82"},
		idx.FieldUniqueValues("patients", "age"))

	// Unknown fields yield nothing.
	assert.Empty(t, idx.FieldUniqueValues("patients", "missing"))
}

func TestIndex_IsEnumerable(t *testing.T) {
	idx := loadTestIndex(t)

	assert.True(t, idx.IsEnumerable("patients", "gender"))
	assert.True(t, idx.IsEnumerable("diagnoses", "severity"))

	// Numeric, even with explicit uniques elsewhere, is not enumerable.
	assert.False(t, idx.IsEnumerable("patients", "age"))

	// Categorical without an explicit unique list is not enumerable.
	assert.False(t, idx.IsEnumerable("patients", "patient_id"))
}

func TestIndex_IsNumeric(t *testing.T) {
	idx := loadTestIndex(t)

	assert.True(t, idx.IsNumeric("patients", "age"))
	assert.True(t, idx.IsNumeric("labreports", "hemoglobin_levels"))
	assert.False(t, idx.IsNumeric("patients", "gender"))
	assert.False(t, idx.IsNumeric("patients", "enrollment_date"))
}

func TestIndex_IsDate(t *testing.T) {
	idx := loadTestIndex(t)

	assert.True(t, idx.IsDate("patients", "enrollment_date"))
	assert.True(t, idx.IsDate("labreports", "report_date"))
	assert.False(t, idx.IsDate("patients", "age"))
}

func TestIndex_FilterableFields(t *testing.T) {
	idx := loadTestIndex(t)

	fields := idx.FilterableFields("patients")

	names := make([]string, 0, len(fields))
	for _, nf := range fields {
		names = append(names, nf.Name)
	}

	// Declaration order preserved; patient_id excluded both for its name and
	// for its 100% uniqueness.
	assert.Equal(t, []string{"gender", "age", "enrollment_date", "smoking_status"}, names)

	for _, nf := range fields {
		assert.NotEqual(t, "id", nf.Name)
		assert.NotContains(t, nf.Name, "_id")
		assert.Less(t, nf.Field.UniquenessPercent, 100.0)
	}
}

func TestIndex_FilterableFields_ExcludesIdentifierNames(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	// visit_id is not fully unique but is still identifier-named.
	doc := `{
		"visits": {
			"table_description": "Visit records.",
			"fields": {
				"visit_id": {
					"field_data_type": "object",
					"field_description": "Visit identifier.",
					"field_sample_values": ["V1", "V2"],
					"field_unique_values": "900 unique values",
					"field_uniqueness_percent": 90.0
				},
				"ward": {
					"field_data_type": "object",
					"field_description": "Ward name.",
					"field_sample_values": ["A", "B"],
					"field_unique_values": ["A", "B"],
					"field_uniqueness_percent": 0.2
				}
			}
		}
	}`

	idx, err := Parse([]byte(doc), logger)
	require.NoError(t, err)

	fields := idx.FilterableFields("visits")
	require.Len(t, fields, 1)
	assert.Equal(t, "ward", fields[0].Name)
}

func TestIndex_FilterableFields_UnknownTable(t *testing.T) {
	idx := loadTestIndex(t)
	assert.Nil(t, idx.FilterableFields("nope"))
}

func TestTable_RoundTrip(t *testing.T) {
	idx := loadTestIndex(t)

	table := idx.Table("patients")
	data, err := json.Marshal(table)
	require.NoError(t, err)

	var decoded Table
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, table.Description, decoded.Description)
	assert.Equal(t, table.FieldNames(), decoded.FieldNames())
	assert.Equal(t, table.Fields["gender"].UniqueValues, decoded.Fields["gender"].UniqueValues)
}
