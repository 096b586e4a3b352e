package assertion

import (
	"fmt"
	"math"
	"strings"
)

// ValueKind discriminates the typed payload of an assertion value.
type ValueKind int

const (
	// ValueKindUnspecified represents an invalid value kind.
	ValueKindUnspecified ValueKind = iota
	// ValueKindNumber indicates a numeric measurement with an optional unit.
	ValueKindNumber
	// ValueKindText indicates a free-form textual value.
	ValueKindText
	// ValueKindStruct indicates a nested key-value structure.
	ValueKindStruct
)

// Value is the typed payload asserted for an attribute.
// Exactly one of Number/Text/Fields is meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind        `json:"kind"`
	Number float64          `json:"number,omitempty"`
	Unit   string           `json:"unit,omitempty"`
	Text   string           `json:"text,omitempty"`
	Fields map[string]Value `json:"fields,omitempty"`
}

// NumberValue returns a numeric value with an optional unit.
func NumberValue(number float64, unit string) Value {
	return Value{Kind: ValueKindNumber, Number: number, Unit: strings.TrimSpace(unit)}
}

// TextValue returns a textual value.
func TextValue(text string) Value {
	return Value{Kind: ValueKindText, Text: text}
}

// StructValue returns a nested structured value.
func StructValue(fields map[string]Value) Value {
	return Value{Kind: ValueKindStruct, Fields: fields}
}

// Validate checks that the value payload matches its kind.
func (v Value) Validate() error {
	switch v.Kind {
	case ValueKindNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return fmt.Errorf("numeric value must be finite")
		}
		return nil
	case ValueKindText:
		if strings.TrimSpace(v.Text) == "" {
			return fmt.Errorf("text value is required")
		}
		return nil
	case ValueKindStruct:
		if len(v.Fields) == 0 {
			return fmt.Errorf("struct value needs at least one field")
		}
		for key, field := range v.Fields {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("struct field key is required")
			}
			if err := field.Validate(); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("value kind is required")
	}
}

// Equal reports deep equality between two values.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueKindNumber:
		return v.Number == other.Number && v.Unit == other.Unit
	case ValueKindText:
		return v.Text == other.Text
	case ValueKindStruct:
		if len(v.Fields) != len(other.Fields) {
			return false
		}
		for key, field := range v.Fields {
			got, ok := other.Fields[key]
			if !ok || !field.Equal(got) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Label returns a stable label for a value kind.
func (k ValueKind) Label() string {
	switch k {
	case ValueKindNumber:
		return "NUMBER"
	case ValueKindText:
		return "TEXT"
	case ValueKindStruct:
		return "STRUCT"
	default:
		return "UNSPECIFIED"
	}
}

// ValueKindFromLabel parses a string label into a ValueKind.
func ValueKindFromLabel(value string) (ValueKind, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ValueKindUnspecified, fmt.Errorf("value kind is required")
	}
	switch strings.ToUpper(trimmed) {
	case "NUMBER", "VALUE_KIND_NUMBER":
		return ValueKindNumber, nil
	case "TEXT", "VALUE_KIND_TEXT":
		return ValueKindText, nil
	case "STRUCT", "VALUE_KIND_STRUCT":
		return ValueKindStruct, nil
	default:
		return ValueKindUnspecified, fmt.Errorf("unknown value kind: %s", trimmed)
	}
}

// MarshalJSON encodes the kind as its stable label.
func (k ValueKind) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", k.Label())), nil
}

// UnmarshalJSON decodes a kind from its stable label.
func (k *ValueKind) UnmarshalJSON(data []byte) error {
	label := strings.Trim(string(data), `"`)
	parsed, err := ValueKindFromLabel(label)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
