// Package schema loads the static Atlas table/field metadata document and
// answers introspection queries over it. The document is read once at
// process start and treated as read-only for the process lifetime.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Field holds the metadata recorded for one table column. UniqueValues is
// nil when the document recorded only a cardinality summary.
type Field struct {
	DataType          string
	Description       string
	SampleValues      []string
	UniqueValues      []string
	UniquenessPercent float64
}

// fieldJSON mirrors the document shape, where field_unique_values is either
// an explicit array or a summary string like "53 unique values" for high
// cardinality columns.
type fieldJSON struct {
	DataType          string          `json:"field_data_type"`
	Description       string          `json:"field_description"`
	SampleValues      []string        `json:"field_sample_values"`
	UniqueValues      json.RawMessage `json:"field_unique_values"`
	UniquenessPercent float64         `json:"field_uniqueness_percent"`
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.DataType = raw.DataType
	f.Description = raw.Description
	f.SampleValues = raw.SampleValues
	f.UniquenessPercent = raw.UniquenessPercent

	// A summary string means no explicit unique value list was recorded.
	if len(raw.UniqueValues) > 0 && raw.UniqueValues[0] == '[' {
		if err := json.Unmarshal(raw.UniqueValues, &f.UniqueValues); err != nil {
			return fmt.Errorf("decoding field_unique_values: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (f Field) MarshalJSON() ([]byte, error) {
	raw := fieldJSON{
		DataType:          f.DataType,
		Description:       f.Description,
		SampleValues:      f.SampleValues,
		UniquenessPercent: f.UniquenessPercent,
	}
	if f.UniqueValues != nil {
		uniques, err := json.Marshal(f.UniqueValues)
		if err != nil {
			return nil, err
		}
		raw.UniqueValues = uniques
	} else {
		raw.UniqueValues = json.RawMessage(
			fmt.Sprintf("%q", fmt.Sprintf("%d unique values", len(f.SampleValues))))
	}
	return json.Marshal(raw)
}

// Table is one table's metadata: a description plus its fields in document
// declaration order.
type Table struct {
	Description string
	Fields      map[string]*Field
	fieldOrder  []string
}

// UnmarshalJSON decodes the table while recording field declaration order,
// which a plain map would lose.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Description string          `json:"table_description"`
		Fields      json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Description = raw.Description
	t.Fields = make(map[string]*Field)
	t.fieldOrder = nil

	if len(raw.Fields) == 0 {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(string(raw.Fields)))
	if _, err := dec.Token(); err != nil { // opening brace
		return fmt.Errorf("decoding fields object: %w", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding field name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in fields object", tok)
		}
		var field Field
		if err := dec.Decode(&field); err != nil {
			return fmt.Errorf("decoding field %q: %w", name, err)
		}
		t.Fields[name] = &field
		t.fieldOrder = append(t.fieldOrder, name)
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Table) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(`"table_description":`)
	desc, err := json.Marshal(t.Description)
	if err != nil {
		return nil, err
	}
	b.Write(desc)
	b.WriteString(`,"fields":{`)
	for i, name := range t.fieldOrder {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		val, err := json.Marshal(t.Fields[name])
		if err != nil {
			return nil, err
		}
		b.Write(val)
	}
	b.WriteString("}}")
	return []byte(b.String()), nil
}

// FieldNames returns the table's field names in declaration order
func (t *Table) FieldNames() []string {
	return append([]string(nil), t.fieldOrder...)
}

// NamedField pairs a field with its name for ordered listings
type NamedField struct {
	Name  string
	Field *Field
}

// Index answers introspection queries over the loaded schema document
type Index struct {
	tables     map[string]*Table
	tableOrder []string
	log        *logrus.Logger
}

// Load reads and indexes the schema document at path
func Load(path string, logger *logrus.Logger) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema document: %w", err)
	}
	idx, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing schema document %s: %w", path, err)
	}
	return idx, nil
}

// Parse indexes a schema document held in memory
func Parse(data []byte, logger *logrus.Logger) (*Index, error) {
	idx := &Index{
		tables: make(map[string]*Table),
		log:    logger,
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decoding table name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v at document top level", tok)
		}
		var table Table
		if err := dec.Decode(&table); err != nil {
			return nil, fmt.Errorf("decoding table %q: %w", name, err)
		}
		idx.tables[name] = &table
		idx.tableOrder = append(idx.tableOrder, name)
	}

	fieldCount := 0
	for _, t := range idx.tables {
		fieldCount += len(t.fieldOrder)
	}
	logger.WithFields(logrus.Fields{
		"tables": len(idx.tables),
		"fields": fieldCount,
	}).Info("Schema document loaded")

	return idx, nil
}

// TableNames returns all table names in declaration order
func (idx *Index) TableNames() []string {
	return append([]string(nil), idx.tableOrder...)
}

// Table returns the metadata for one table, or nil when unknown
func (idx *Index) Table(name string) *Table {
	return idx.tables[name]
}

// Field returns the metadata for one field, or nil when unknown
func (idx *Index) Field(table, name string) *Field {
	t := idx.tables[table]
	if t == nil {
		return nil
	}
	return t.Fields[name]
}

// FieldUniqueValues returns the explicit unique-value list when one was
// recorded, falling back to the sample values, else an empty slice.
func (idx *Index) FieldUniqueValues(table, name string) []string {
	f := idx.Field(table, name)
	if f == nil {
		return nil
	}
	if len(f.UniqueValues) > 0 {
		return append([]string(nil), f.UniqueValues...)
	}
	return append([]string(nil), f.SampleValues...)
}

// IsEnumerable reports whether the field is categorical with an explicit
// unique-value list, making it suitable for option-style controls.
func (idx *Index) IsEnumerable(table, name string) bool {
	f := idx.Field(table, name)
	return f != nil && isCategorical(f.DataType) && len(f.UniqueValues) > 0
}

// IsNumeric reports whether the field holds one of the numeric kinds
func (idx *Index) IsNumeric(table, name string) bool {
	f := idx.Field(table, name)
	return f != nil && isNumericType(f.DataType)
}

// IsDate reports whether the field holds dates or timestamps
func (idx *Index) IsDate(table, name string) bool {
	f := idx.Field(table, name)
	return f != nil && isDateType(f.DataType)
}

// FilterableFields lists a table's fields usable as cohort filters, in
// declaration order. Identifier-named fields and fully unique fields carry
// no cohort signal and are excluded.
func (idx *Index) FilterableFields(table string) []NamedField {
	t := idx.tables[table]
	if t == nil {
		return nil
	}
	fields := make([]NamedField, 0, len(t.fieldOrder))
	for _, name := range t.fieldOrder {
		f := t.Fields[name]
		if isIdentifierName(name) {
			continue
		}
		if f.UniquenessPercent >= 100 {
			continue
		}
		fields = append(fields, NamedField{Name: name, Field: f})
	}
	return fields
}

func isIdentifierName(name string) bool {
	lower := strings.ToLower(name)
	return lower == "id" || strings.Contains(lower, "_id")
}

func isNumericType(dataType string) bool {
	lower := strings.ToLower(dataType)
	for _, kind := range []string{"int", "float", "double", "numeric", "decimal"} {
		if strings.Contains(lower, kind) {
			return true
		}
	}
	return false
}

func isDateType(dataType string) bool {
	lower := strings.ToLower(dataType)
	return strings.Contains(lower, "date") || strings.Contains(lower, "timestamp")
}

func isCategorical(dataType string) bool {
	return !isNumericType(dataType) && !isDateType(dataType)
}
