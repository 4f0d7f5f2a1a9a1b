package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the tag of a logical data type
type Kind uint8

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindNullable
	KindArray
	KindTuple
	KindLowCardinality
)

var kindNames = map[Kind]string{
	KindInt8:           "Int8",
	KindInt16:          "Int16",
	KindInt32:          "Int32",
	KindInt64:          "Int64",
	KindUInt8:          "UInt8",
	KindUInt16:         "UInt16",
	KindUInt32:         "UInt32",
	KindUInt64:         "UInt64",
	KindFloat32:        "Float32",
	KindFloat64:        "Float64",
	KindBool:           "Bool",
	KindString:         "String",
	KindNullable:       "Nullable",
	KindArray:          "Array",
	KindTuple:          "Tuple",
	KindLowCardinality: "LowCardinality",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Field is a named element of a Tuple type
type Field struct {
	Name string
	Type *Type
}

// Type describes a logical column type. Wrapper kinds (Nullable, Array,
// LowCardinality) carry Elem, Tuple carries Fields.
type Type struct {
	Kind   Kind
	Elem   *Type
	Fields []Field
}

// Scalar returns a type without nested types
func Scalar(k Kind) *Type {
	return &Type{Kind: k}
}

func Int64() *Type   { return Scalar(KindInt64) }
func UInt64() *Type  { return Scalar(KindUInt64) }
func Float64() *Type { return Scalar(KindFloat64) }
func Bool() *Type    { return Scalar(KindBool) }
func String() *Type  { return Scalar(KindString) }

// Nullable wraps elem into Nullable(elem)
func Nullable(elem *Type) *Type {
	return &Type{Kind: KindNullable, Elem: elem}
}

// Array wraps elem into Array(elem)
func Array(elem *Type) *Type {
	return &Type{Kind: KindArray, Elem: elem}
}

// LowCardinality wraps elem into LowCardinality(elem)
func LowCardinality(elem *Type) *Type {
	return &Type{Kind: KindLowCardinality, Elem: elem}
}

// Tuple builds a tuple type out of named fields
func Tuple(fields ...Field) *Type {
	return &Type{Kind: KindTuple, Fields: fields}
}

// FixedSize returns the on-disk width of one value for fixed-size kinds
func (t *Type) FixedSize() (int, bool) {
	switch t.Kind {
	case KindInt8, KindUInt8, KindBool:
		return 1, true
	case KindInt16, KindUInt16:
		return 2, true
	case KindInt32, KindUInt32, KindFloat32:
		return 4, true
	case KindInt64, KindUInt64, KindFloat64:
		return 8, true
	default:
		return 0, false
	}
}

// IsSigned reports whether values are stored as signed integers
func (t *Type) IsSigned() bool {
	switch t.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsUnsigned reports whether values are stored as unsigned integers
func (t *Type) IsUnsigned() bool {
	switch t.Kind {
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return true
	}
	return false
}

// IsFloat reports whether values are IEEE 754 floats
func (t *Type) IsFloat() bool {
	return t.Kind == KindFloat32 || t.Kind == KindFloat64
}

// HasSubtypes reports whether the type nests other types
func (t *Type) HasSubtypes() bool {
	switch t.Kind {
	case KindNullable, KindArray, KindTuple, KindLowCardinality:
		return true
	}
	return false
}

// Equal compares two types structurally
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	if t.Elem != nil || other.Elem != nil {
		if !t.Elem.Equal(other.Elem) {
			return false
		}
	}
	if len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != other.Fields[i].Name || !t.Fields[i].Type.Equal(other.Fields[i].Type) {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	switch t.Kind {
	case KindNullable, KindArray, KindLowCardinality:
		return t.Kind.String() + "(" + t.Elem.String() + ")"
	case KindTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + " " + f.Type.String()
		}
		return "Tuple(" + strings.Join(parts, ", ") + ")"
	default:
		return t.Kind.String()
	}
}

// ParseType parses type names such as "Array(Nullable(Int64))" or
// "Tuple(a UInt8, b String)". Unnamed tuple elements are named "1", "2", ...
func ParseType(s string) (*Type, error) {
	p := &typeParser{input: s}
	t, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("parse type %q: %w", s, err)
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("parse type %q: unexpected trailing input at %d", s, p.pos)
	}
	return t, nil
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) ident() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '(' || c == ')' || c == ',' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpaces()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *typeParser) parse() (*Type, error) {
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("expected type name at %d", p.pos)
	}

	for k, kn := range kindNames {
		if kn != name {
			continue
		}
		switch k {
		case KindNullable, KindArray, KindLowCardinality:
			if err := p.expect('('); err != nil {
				return nil, err
			}
			elem, err := p.parse()
			if err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
			t := &Type{Kind: k, Elem: elem}
			if err := validateWrapper(t); err != nil {
				return nil, err
			}
			return t, nil
		case KindTuple:
			return p.parseTuple()
		default:
			return Scalar(k), nil
		}
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

func (p *typeParser) parseTuple() (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var fields []Field
	for {
		save := p.pos
		first := p.ident()
		p.skipSpaces()

		var field Field
		if p.pos < len(p.input) && p.input[p.pos] != ',' && p.input[p.pos] != ')' && p.input[p.pos] != '(' {
			// "name Type" form
			elem, err := p.parse()
			if err != nil {
				return nil, err
			}
			field = Field{Name: first, Type: elem}
		} else {
			p.pos = save
			elem, err := p.parse()
			if err != nil {
				return nil, err
			}
			field = Field{Name: strconv.Itoa(len(fields) + 1), Type: elem}
		}
		fields = append(fields, field)

		p.skipSpaces()
		if p.pos < len(p.input) && p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		break
	}
	return Tuple(fields...), nil
}

func validateWrapper(t *Type) error {
	switch t.Kind {
	case KindNullable:
		if t.Elem.HasSubtypes() {
			return fmt.Errorf("nested type %s cannot be inside Nullable", t.Elem)
		}
	case KindLowCardinality:
		if t.Elem.Kind != KindString {
			return fmt.Errorf("LowCardinality supports only String, got %s", t.Elem)
		}
	}
	return nil
}
