package types

import (
	"fmt"
)

// Column is an immutable in-memory run of values of one logical type
type Column interface {
	Type() *Type
	Len() int
	// ByteSize approximates the in-memory footprint, used for adaptive granularity
	ByteSize() int
	// Permute returns a new column with rows reordered by perm
	Permute(perm Permutation) Column
}

// MutableColumn is a column that deserializers and builders append to
type MutableColumn interface {
	Column
	AppendDefault()
	// AppendRange copies rows [offset, offset+length) of src, which must have the same type
	AppendRange(src Column, offset, length int) error
}

// IntColumn stores signed integers of any width widened to int64
type IntColumn struct {
	typ    *Type
	Values []int64
}

// UIntColumn stores unsigned integers of any width widened to uint64
type UIntColumn struct {
	typ    *Type
	Values []uint64
}

// FloatColumn stores Float32/Float64 values widened to float64
type FloatColumn struct {
	typ    *Type
	Values []float64
}

// BoolColumn stores booleans
type BoolColumn struct {
	Values []bool
}

// StringColumn stores String or LowCardinality(String) values
type StringColumn struct {
	typ    *Type
	Values []string
}

// NullableColumn pairs a nested column with a null map. Rows where NullMap is
// true hold a default value in Nested.
type NullableColumn struct {
	typ     *Type
	Nested  MutableColumn
	NullMap []bool
}

// ArrayColumn stores arrays as cumulative offsets into a flat element column.
// Offsets[i] is the end (exclusive) of row i in Elements.
type ArrayColumn struct {
	typ      *Type
	Offsets  []uint64
	Elements MutableColumn
}

// TupleColumn stores one column per tuple element
type TupleColumn struct {
	typ      *Type
	Elements []MutableColumn
}

func NewInt64Column(values ...int64) *IntColumn {
	return &IntColumn{typ: Int64(), Values: values}
}

// NewIntColumn creates a signed integer column of the given kind
func NewIntColumn(t *Type, values []int64) *IntColumn {
	return &IntColumn{typ: t, Values: values}
}

func NewUInt64Column(values ...uint64) *UIntColumn {
	return &UIntColumn{typ: UInt64(), Values: values}
}

// NewUIntColumn creates an unsigned integer column of the given kind
func NewUIntColumn(t *Type, values []uint64) *UIntColumn {
	return &UIntColumn{typ: t, Values: values}
}

func NewFloat64Column(values ...float64) *FloatColumn {
	return &FloatColumn{typ: Float64(), Values: values}
}

// NewFloatColumn creates a Float32 or Float64 column
func NewFloatColumn(t *Type, values []float64) *FloatColumn {
	return &FloatColumn{typ: t, Values: values}
}

func NewBoolColumn(values ...bool) *BoolColumn {
	return &BoolColumn{Values: values}
}

func NewStringColumn(values ...string) *StringColumn {
	return &StringColumn{typ: String(), Values: values}
}

// NewLowCardinalityColumn creates a LowCardinality(String) column
func NewLowCardinalityColumn(values ...string) *StringColumn {
	return &StringColumn{typ: LowCardinality(String()), Values: values}
}

// NewNullableColumn wraps nested with a null map of the same length
func NewNullableColumn(nested MutableColumn, nullMap []bool) (*NullableColumn, error) {
	if nested.Len() != len(nullMap) {
		return nil, fmt.Errorf("null map has %d rows, nested column has %d", len(nullMap), nested.Len())
	}
	return &NullableColumn{typ: Nullable(nested.Type()), Nested: nested, NullMap: nullMap}, nil
}

// NewArrayColumn creates an array column from cumulative offsets
func NewArrayColumn(elements MutableColumn, offsets []uint64) (*ArrayColumn, error) {
	var prev uint64
	for i, off := range offsets {
		if off < prev {
			return nil, fmt.Errorf("array offsets are not monotonic at row %d", i)
		}
		prev = off
	}
	if prev != uint64(elements.Len()) {
		return nil, fmt.Errorf("last array offset %d does not match %d elements", prev, elements.Len())
	}
	return &ArrayColumn{typ: Array(elements.Type()), Offsets: offsets, Elements: elements}, nil
}

// NewTupleColumn creates a tuple column; all elements must have the same length
func NewTupleColumn(names []string, elements []MutableColumn) (*TupleColumn, error) {
	if len(names) != len(elements) {
		return nil, fmt.Errorf("tuple has %d names and %d elements", len(names), len(elements))
	}
	fields := make([]Field, len(elements))
	for i, e := range elements {
		if i > 0 && e.Len() != elements[0].Len() {
			return nil, fmt.Errorf("tuple element %q has %d rows, expected %d", names[i], e.Len(), elements[0].Len())
		}
		fields[i] = Field{Name: names[i], Type: e.Type()}
	}
	return &TupleColumn{typ: Tuple(fields...), Elements: elements}, nil
}

// NewEmptyColumn creates an empty mutable column of type t
func NewEmptyColumn(t *Type) MutableColumn {
	switch {
	case t.IsSigned():
		return &IntColumn{typ: t}
	case t.IsUnsigned():
		return &UIntColumn{typ: t}
	case t.IsFloat():
		return &FloatColumn{typ: t}
	}
	switch t.Kind {
	case KindBool:
		return &BoolColumn{}
	case KindString, KindLowCardinality:
		return &StringColumn{typ: t}
	case KindNullable:
		return &NullableColumn{typ: t, Nested: NewEmptyColumn(t.Elem)}
	case KindArray:
		return &ArrayColumn{typ: t, Elements: NewEmptyColumn(t.Elem)}
	case KindTuple:
		elements := make([]MutableColumn, len(t.Fields))
		for i, f := range t.Fields {
			elements[i] = NewEmptyColumn(f.Type)
		}
		return &TupleColumn{typ: t, Elements: elements}
	}
	panic(fmt.Sprintf("NewEmptyColumn: unsupported type %s", t))
}

// IntColumn

func (c *IntColumn) Type() *Type { return c.typ }
func (c *IntColumn) Len() int    { return len(c.Values) }

func (c *IntColumn) ByteSize() int {
	width, _ := c.typ.FixedSize()
	return len(c.Values) * width
}

func (c *IntColumn) Permute(perm Permutation) Column {
	out := make([]int64, len(perm))
	for i, p := range perm {
		out[i] = c.Values[p]
	}
	return &IntColumn{typ: c.typ, Values: out}
}

func (c *IntColumn) AppendDefault() { c.Values = append(c.Values, 0) }

func (c *IntColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*IntColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	c.Values = append(c.Values, s.Values[offset:offset+length]...)
	return nil
}

// UIntColumn

func (c *UIntColumn) Type() *Type { return c.typ }
func (c *UIntColumn) Len() int    { return len(c.Values) }

func (c *UIntColumn) ByteSize() int {
	width, _ := c.typ.FixedSize()
	return len(c.Values) * width
}

func (c *UIntColumn) Permute(perm Permutation) Column {
	out := make([]uint64, len(perm))
	for i, p := range perm {
		out[i] = c.Values[p]
	}
	return &UIntColumn{typ: c.typ, Values: out}
}

func (c *UIntColumn) AppendDefault() { c.Values = append(c.Values, 0) }

func (c *UIntColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*UIntColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	c.Values = append(c.Values, s.Values[offset:offset+length]...)
	return nil
}

// FloatColumn

func (c *FloatColumn) Type() *Type { return c.typ }
func (c *FloatColumn) Len() int    { return len(c.Values) }

func (c *FloatColumn) ByteSize() int {
	width, _ := c.typ.FixedSize()
	return len(c.Values) * width
}

func (c *FloatColumn) Permute(perm Permutation) Column {
	out := make([]float64, len(perm))
	for i, p := range perm {
		out[i] = c.Values[p]
	}
	return &FloatColumn{typ: c.typ, Values: out}
}

func (c *FloatColumn) AppendDefault() { c.Values = append(c.Values, 0) }

func (c *FloatColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*FloatColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	c.Values = append(c.Values, s.Values[offset:offset+length]...)
	return nil
}

// BoolColumn

func (c *BoolColumn) Type() *Type   { return Bool() }
func (c *BoolColumn) Len() int      { return len(c.Values) }
func (c *BoolColumn) ByteSize() int { return len(c.Values) }

func (c *BoolColumn) Permute(perm Permutation) Column {
	out := make([]bool, len(perm))
	for i, p := range perm {
		out[i] = c.Values[p]
	}
	return &BoolColumn{Values: out}
}

func (c *BoolColumn) AppendDefault() { c.Values = append(c.Values, false) }

func (c *BoolColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*BoolColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	c.Values = append(c.Values, s.Values[offset:offset+length]...)
	return nil
}

// StringColumn

func (c *StringColumn) Type() *Type { return c.typ }
func (c *StringColumn) Len() int    { return len(c.Values) }

// ByteSize counts characters plus one 8-byte offset per row
func (c *StringColumn) ByteSize() int {
	size := len(c.Values) * 8
	for _, s := range c.Values {
		size += len(s)
	}
	return size
}

func (c *StringColumn) Permute(perm Permutation) Column {
	out := make([]string, len(perm))
	for i, p := range perm {
		out[i] = c.Values[p]
	}
	return &StringColumn{typ: c.typ, Values: out}
}

func (c *StringColumn) AppendDefault() { c.Values = append(c.Values, "") }

func (c *StringColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*StringColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	c.Values = append(c.Values, s.Values[offset:offset+length]...)
	return nil
}

// NullableColumn

func (c *NullableColumn) Type() *Type   { return c.typ }
func (c *NullableColumn) Len() int      { return len(c.NullMap) }
func (c *NullableColumn) ByteSize() int { return c.Nested.ByteSize() + len(c.NullMap) }

func (c *NullableColumn) Permute(perm Permutation) Column {
	nullMap := make([]bool, len(perm))
	for i, p := range perm {
		nullMap[i] = c.NullMap[p]
	}
	return &NullableColumn{typ: c.typ, Nested: c.Nested.Permute(perm).(MutableColumn), NullMap: nullMap}
}

// AppendNull appends a null row backed by a default nested value
func (c *NullableColumn) AppendNull() {
	c.Nested.AppendDefault()
	c.NullMap = append(c.NullMap, true)
}

// AppendValue appends row `row` of src as a non-null value
func (c *NullableColumn) AppendValue(src Column, row int) error {
	if err := c.Nested.AppendRange(src, row, 1); err != nil {
		return err
	}
	c.NullMap = append(c.NullMap, false)
	return nil
}

func (c *NullableColumn) AppendDefault() { c.AppendNull() }

func (c *NullableColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*NullableColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	if err := c.Nested.AppendRange(s.Nested, offset, length); err != nil {
		return err
	}
	c.NullMap = append(c.NullMap, s.NullMap[offset:offset+length]...)
	return nil
}

// ArrayColumn

func (c *ArrayColumn) Type() *Type { return c.typ }
func (c *ArrayColumn) Len() int    { return len(c.Offsets) }

func (c *ArrayColumn) ByteSize() int {
	return len(c.Offsets)*8 + c.Elements.ByteSize()
}

// OffsetAt returns the start offset of row i in Elements
func (c *ArrayColumn) OffsetAt(i int) uint64 {
	if i <= 0 {
		return 0
	}
	return c.Offsets[i-1]
}

// SizeAt returns the number of elements of row i
func (c *ArrayColumn) SizeAt(i int) uint64 {
	return c.Offsets[i] - c.OffsetAt(i)
}

func (c *ArrayColumn) Permute(perm Permutation) Column {
	elemPerm := make(Permutation, 0, c.Elements.Len())
	offsets := make([]uint64, len(perm))
	var cur uint64
	for i, p := range perm {
		start, end := c.OffsetAt(p), c.Offsets[p]
		for j := start; j < end; j++ {
			elemPerm = append(elemPerm, int(j))
		}
		cur += end - start
		offsets[i] = cur
	}
	return &ArrayColumn{typ: c.typ, Offsets: offsets, Elements: c.Elements.Permute(elemPerm).(MutableColumn)}
}

func (c *ArrayColumn) AppendDefault() {
	c.Offsets = append(c.Offsets, c.OffsetAt(len(c.Offsets)))
}

func (c *ArrayColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*ArrayColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	if length == 0 {
		return nil
	}
	start := s.OffsetAt(offset)
	end := s.Offsets[offset+length-1]
	if err := c.Elements.AppendRange(s.Elements, int(start), int(end-start)); err != nil {
		return err
	}
	base := c.OffsetAt(len(c.Offsets))
	for i := offset; i < offset+length; i++ {
		c.Offsets = append(c.Offsets, base+s.Offsets[i]-start)
	}
	return nil
}

// AppendSizes appends rows whose element counts are sizes; the elements
// themselves must be appended to Elements separately
func (c *ArrayColumn) AppendSizes(sizes []uint64) {
	cur := c.OffsetAt(len(c.Offsets))
	for _, s := range sizes {
		cur += s
		c.Offsets = append(c.Offsets, cur)
	}
}

// TupleColumn

func (c *TupleColumn) Type() *Type { return c.typ }

func (c *TupleColumn) Len() int {
	if len(c.Elements) == 0 {
		return 0
	}
	return c.Elements[0].Len()
}

func (c *TupleColumn) ByteSize() int {
	size := 0
	for _, e := range c.Elements {
		size += e.ByteSize()
	}
	return size
}

func (c *TupleColumn) Permute(perm Permutation) Column {
	elements := make([]MutableColumn, len(c.Elements))
	for i, e := range c.Elements {
		elements[i] = e.Permute(perm).(MutableColumn)
	}
	return &TupleColumn{typ: c.typ, Elements: elements}
}

func (c *TupleColumn) AppendDefault() {
	for _, e := range c.Elements {
		e.AppendDefault()
	}
}

func (c *TupleColumn) AppendRange(src Column, offset, length int) error {
	s, ok := src.(*TupleColumn)
	if !ok {
		return fmt.Errorf("cannot append %T to %T", src, c)
	}
	for i, e := range c.Elements {
		if err := e.AppendRange(s.Elements[i], offset, length); err != nil {
			return fmt.Errorf("tuple element %q: %w", c.typ.Fields[i].Name, err)
		}
	}
	return nil
}
