package granularity

import "fmt"

// Settings controls how incoming blocks are cut into granules
type Settings struct {
	// IndexGranularity is the maximum number of rows of a mark
	IndexGranularity int
	// IndexGranularityBytes enables adaptive granularity when > 0
	IndexGranularityBytes int
	// BlocksAreGranulesSize makes every incoming block exactly one granule
	BlocksAreGranulesSize bool
}

// Adaptive reports whether mark sizes depend on block byte size
func (s Settings) Adaptive() bool {
	return s.IndexGranularityBytes > 0
}

func (s Settings) Validate() error {
	if s.IndexGranularity <= 0 {
		return fmt.Errorf("index granularity must be positive, got %d", s.IndexGranularity)
	}
	if s.IndexGranularityBytes < 0 {
		return fmt.Errorf("index granularity bytes must not be negative, got %d", s.IndexGranularityBytes)
	}
	if s.BlocksAreGranulesSize && !s.Adaptive() {
		return fmt.Errorf("blocks_are_granules_size requires adaptive granularity")
	}
	return nil
}

// ComputeIndexGranularity returns the mark size, in rows, for a block of the
// given row count and in-memory byte size
func ComputeIndexGranularity(rows, bytes int, s Settings) int {
	if !s.Adaptive() {
		return s.IndexGranularity
	}

	var g int
	switch {
	case s.BlocksAreGranulesSize:
		g = rows
	case bytes >= s.IndexGranularityBytes:
		g = rows / (bytes / s.IndexGranularityBytes)
	default:
		rowSize := 1
		if rows > 0 {
			rowSize = max(bytes/rows, 1)
		}
		g = s.IndexGranularityBytes / rowSize
	}

	if !s.BlocksAreGranulesSize {
		g = min(g, s.IndexGranularity)
	}
	return max(g, 1)
}

// FillIndexGranularity appends marks of granularityForBlock rows covering a
// block of rowsInBlock rows. The first indexOffset rows of the block belong
// to the unfinished mark of a previous block.
func FillIndexGranularity(g *IndexGranularity, granularityForBlock, indexOffset, rowsInBlock int) {
	for row := indexOffset; row < rowsInBlock; row += granularityForBlock {
		g.AppendMark(uint64(granularityForBlock))
	}
}

// Granule is a row range of one block written into a single mark
type Granule struct {
	// StartRow is the first row inside the block
	StartRow int
	// RowsToWrite is the number of rows of the block in this granule
	RowsToWrite int
	// MarkNumber is the global number of the mark the rows belong to
	MarkNumber int
	// MarkOnStart is set when the granule opens its mark; otherwise it
	// continues a mark started by a previous block
	MarkOnStart bool
	// IsComplete is set when the granule fills its mark
	IsComplete bool
}

// Granules is the ordered list of granules of one block
type Granules []Granule

// LastIncomplete reports whether the last granule leaves its mark unfinished
func (gs Granules) LastIncomplete() bool {
	return len(gs) > 0 && !gs[len(gs)-1].IsComplete
}

// GranulesToWrite cuts a block of blockRows rows into granules, starting at
// currentMark. rowsWrittenInLastMark rows of currentMark were written by
// previous blocks.
func GranulesToWrite(g *IndexGranularity, blockRows, currentMark, rowsWrittenInLastMark int) (Granules, error) {
	var result Granules
	row := 0
	mark := currentMark

	if rowsWrittenInLastMark > 0 && blockRows > 0 {
		markRows, err := g.MarkRows(mark)
		if err != nil {
			return nil, err
		}
		if uint64(rowsWrittenInLastMark) >= markRows {
			return nil, fmt.Errorf("mark %d of %d rows already has %d rows written", mark, markRows, rowsWrittenInLastMark)
		}
		rowsLeftInMark := int(markRows) - rowsWrittenInLastMark
		result = append(result, Granule{
			StartRow:    0,
			RowsToWrite: min(blockRows, rowsLeftInMark),
			MarkNumber:  mark,
			MarkOnStart: false,
			IsComplete:  blockRows >= rowsLeftInMark,
		})
		row += result[0].RowsToWrite
		mark++
	}

	for row < blockRows {
		markRows, err := g.MarkRows(mark)
		if err != nil {
			return nil, err
		}
		if markRows == 0 {
			return nil, fmt.Errorf("mark %d has no rows", mark)
		}
		rowsLeftInBlock := blockRows - row
		result = append(result, Granule{
			StartRow:    row,
			RowsToWrite: min(rowsLeftInBlock, int(markRows)),
			MarkNumber:  mark,
			MarkOnStart: true,
			IsComplete:  rowsLeftInBlock >= int(markRows),
		})
		row += int(markRows)
		mark++
	}
	return result, nil
}
