package granularity

import "fmt"

// IndexGranularity holds the number of rows of every mark of a part. A
// trailing mark with zero rows is the final mark.
type IndexGranularity struct {
	rows []uint64
	// partialSums[i] is the number of rows before mark i+1
	partialSums []uint64
}

func New() *IndexGranularity {
	return &IndexGranularity{}
}

// FromRows builds an index granularity out of per-mark row counts
func FromRows(rows []uint64) *IndexGranularity {
	g := New()
	for _, r := range rows {
		g.AppendMark(r)
	}
	return g
}

func (g *IndexGranularity) AppendMark(rows uint64) {
	var total uint64
	if n := len(g.partialSums); n > 0 {
		total = g.partialSums[n-1]
	}
	g.rows = append(g.rows, rows)
	g.partialSums = append(g.partialSums, total+rows)
}

// PopMark removes the last mark
func (g *IndexGranularity) PopMark() error {
	if len(g.rows) == 0 {
		return fmt.Errorf("pop mark from empty index granularity")
	}
	g.rows = g.rows[:len(g.rows)-1]
	g.partialSums = g.partialSums[:len(g.partialSums)-1]
	return nil
}

// MarkRows returns the rows of mark i
func (g *IndexGranularity) MarkRows(i int) (uint64, error) {
	if i < 0 || i >= len(g.rows) {
		return 0, fmt.Errorf("mark %d out of range, %d marks", i, len(g.rows))
	}
	return g.rows[i], nil
}

// MarkStartingRow returns the global row number where mark i starts
func (g *IndexGranularity) MarkStartingRow(i int) uint64 {
	if i <= 0 {
		return 0
	}
	if i > len(g.partialSums) {
		i = len(g.partialSums)
	}
	return g.partialSums[i-1]
}

// MarksCount includes the final mark, if any
func (g *IndexGranularity) MarksCount() int {
	return len(g.rows)
}

// MarksCountWithoutFinal excludes a trailing zero-row mark
func (g *IndexGranularity) MarksCountWithoutFinal() int {
	if g.HasFinalMark() {
		return len(g.rows) - 1
	}
	return len(g.rows)
}

// HasFinalMark reports whether the last mark is a zero-row final mark
func (g *IndexGranularity) HasFinalMark() bool {
	return len(g.rows) > 0 && g.rows[len(g.rows)-1] == 0
}

func (g *IndexGranularity) TotalRows() uint64 {
	if len(g.partialSums) == 0 {
		return 0
	}
	return g.partialSums[len(g.partialSums)-1]
}

func (g *IndexGranularity) Empty() bool {
	return len(g.rows) == 0
}

// LastMarkRows returns the rows of the last mark, 0 when there is none
func (g *IndexGranularity) LastMarkRows() uint64 {
	if len(g.rows) == 0 {
		return 0
	}
	return g.rows[len(g.rows)-1]
}

// Rows returns a copy of the per-mark row counts
func (g *IndexGranularity) Rows() []uint64 {
	out := make([]uint64, len(g.rows))
	copy(out, g.rows)
	return out
}
