package types

import (
	"fmt"
	"strings"
)

// NameAndType is one entry of a part's column list
type NameAndType struct {
	Name string
	Type *Type
}

// NamesAndTypes is the ordered column list of a part
type NamesAndTypes []NameAndType

// String renders the list in the columns.txt layout
func (l NamesAndTypes) String() string {
	var sb strings.Builder
	sb.WriteString("columns format version: 1\n")
	fmt.Fprintf(&sb, "%d columns:\n", len(l))
	for _, c := range l {
		fmt.Fprintf(&sb, "`%s` %s\n", c.Name, c.Type)
	}
	return sb.String()
}

// ParseNamesAndTypes reads the columns.txt layout produced by String
func ParseNamesAndTypes(s string) (NamesAndTypes, error) {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) < 2 || lines[0] != "columns format version: 1" {
		return nil, fmt.Errorf("unexpected columns header")
	}
	var count int
	if _, err := fmt.Sscanf(lines[1], "%d columns:", &count); err != nil {
		return nil, fmt.Errorf("parse column count: %w", err)
	}
	if len(lines)-2 != count {
		return nil, fmt.Errorf("expected %d columns, found %d", count, len(lines)-2)
	}

	out := make(NamesAndTypes, 0, count)
	for _, line := range lines[2:] {
		if !strings.HasPrefix(line, "`") {
			return nil, fmt.Errorf("malformed column line %q", line)
		}
		end := strings.Index(line[1:], "`")
		if end < 0 {
			return nil, fmt.Errorf("malformed column line %q", line)
		}
		name := line[1 : end+1]
		t, err := ParseType(strings.TrimSpace(line[end+2:]))
		if err != nil {
			return nil, err
		}
		out = append(out, NameAndType{Name: name, Type: t})
	}
	return out, nil
}

// ColumnWithName is one named column of a Block
type ColumnWithName struct {
	Name   string
	Column Column
}

// Block is a batch of rows stored column by column
type Block struct {
	Columns []ColumnWithName
}

// NewBlock creates a block from named columns
func NewBlock(columns ...ColumnWithName) *Block {
	return &Block{Columns: columns}
}

// Rows returns the number of rows of the block
func (b *Block) Rows() int {
	if b == nil || len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Column.Len()
}

// ByteSize sums the in-memory size of all columns
func (b *Block) ByteSize() int {
	size := 0
	for _, c := range b.Columns {
		size += c.Column.ByteSize()
	}
	return size
}

// ByName finds a column by name
func (b *Block) ByName(name string) (Column, bool) {
	for _, c := range b.Columns {
		if c.Name == name {
			return c.Column, true
		}
	}
	return nil, false
}

// Validate checks that all columns have the same number of rows
func (b *Block) Validate() error {
	rows := b.Rows()
	for _, c := range b.Columns {
		if c.Column.Len() != rows {
			return fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Column.Len(), rows)
		}
	}
	return nil
}

// Permutation maps output row i to input row perm[i]
type Permutation []int

// Validate checks that perm is a permutation of [0, rows)
func (perm Permutation) Validate(rows int) error {
	if len(perm) != rows {
		return fmt.Errorf("permutation has %d entries for %d rows", len(perm), rows)
	}
	seen := make([]bool, rows)
	for i, p := range perm {
		if p < 0 || p >= rows || seen[p] {
			return fmt.Errorf("invalid permutation entry %d at %d", p, i)
		}
		seen[p] = true
	}
	return nil
}
