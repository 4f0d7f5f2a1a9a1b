package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/soltixdb/widepart/internal/logging"
	"github.com/soltixdb/widepart/internal/part"
	"github.com/soltixdb/widepart/internal/types"
)

func main() {
	dir := flag.String("dir", "", "Part directory")
	indexGranularity := flag.Int("index-granularity", 8192, "Index granularity of parts with fixed granularity")
	column := flag.String("column", "", "Only show this column")
	showMarks := flag.Bool("marks", false, "Print every mark of every stream")
	showRows := flag.Int("rows", 0, "Print the first N rows of each column")
	verify := flag.Bool("verify", false, "Verify file checksums")
	flag.Parse()

	logger := logging.NewDevelopment()

	if *dir == "" {
		logger.Fatal("Error: -dir parameter is required")
	}

	storage, err := part.OpenStorage(afero.NewOsFs(), *dir)
	if err != nil {
		logger.Fatal("Failed to open part", "error", err)
	}
	r, err := part.OpenReader(storage, part.ReaderOptions{IndexGranularity: *indexGranularity})
	if err != nil {
		logger.Fatal("Failed to read part", "dir", *dir, "error", err)
	}

	g := r.IndexGranularity()
	fmt.Printf("Part:        %s\n", *dir)
	fmt.Printf("Rows:        %s\n", humanize.Comma(int64(r.Rows())))
	fmt.Printf("Adaptive:    %v\n", r.Adaptive())
	fmt.Printf("Marks:       %d (final mark: %v)\n", g.MarksCountWithoutFinal(), g.HasFinalMark())
	fmt.Printf("Granules:    %s\n", formatGranules(g.Rows()))

	cs, err := r.Checksums()
	if err != nil {
		logger.Fatal("Failed to read checksums", "error", err)
	}
	fmt.Printf("Files:       %d, %s\n\n", len(cs.Files), humanize.IBytes(cs.TotalSize()))
	for _, name := range cs.Names() {
		f := cs.Files[name]
		if f.IsCompressed {
			ratio := 0.0
			if f.FileSize > 0 {
				ratio = float64(f.UncompressedSize) / float64(f.FileSize)
			}
			fmt.Printf("  %-40s %10s  %016x  %10s uncompressed (x%.2f)\n",
				name, humanize.IBytes(f.FileSize), f.FileHash, humanize.IBytes(f.UncompressedSize), ratio)
		} else {
			fmt.Printf("  %-40s %10s  %016x\n", name, humanize.IBytes(f.FileSize), f.FileHash)
		}
	}
	fmt.Println()

	for _, c := range r.Columns() {
		if *column != "" && c.Name != *column {
			continue
		}
		if err := printColumn(r, c, *showMarks, *showRows); err != nil {
			logger.Fatal("Failed to inspect column", "column", c.Name, "error", err)
		}
	}

	if *verify {
		if err := r.Verify(); err != nil {
			fmt.Printf("Verify:      FAILED: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Verify:      OK")
	}
}

func printColumn(r *part.Reader, c types.NameAndType, showMarks bool, showRows int) error {
	streams, err := r.Marks(c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("Column %s %s, %d stream(s)\n", c.Name, c.Type, len(streams))
	for _, s := range streams {
		stem := s.Stem
		if stem != s.FullName {
			stem = fmt.Sprintf("%s (%s)", s.Stem, s.FullName)
		}
		fmt.Printf("  stream %s: %d marks\n", stem, len(s.Marks))
		if !showMarks {
			continue
		}
		for i, m := range s.Marks {
			if r.Adaptive() {
				fmt.Printf("    %6d  %s  rows=%d\n", i, m.Mark, m.Rows)
			} else {
				fmt.Printf("    %6d  %s\n", i, m.Mark)
			}
		}
	}

	if showRows > 0 && r.IndexGranularity().MarksCountWithoutFinal() > 0 {
		col, err := r.ReadColumn(c.Name, 0, 1)
		if err != nil {
			return err
		}
		fmt.Printf("  first rows: %s\n", formatRows(col, showRows))
	}
	fmt.Println()
	return nil
}

// formatGranules compresses runs of equal granule sizes: 8192x3, 1808, 0
func formatGranules(rows []uint64) string {
	var parts []string
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j] == rows[i] {
			j++
		}
		if j-i > 1 {
			parts = append(parts, fmt.Sprintf("%dx%d", rows[i], j-i))
		} else {
			parts = append(parts, fmt.Sprintf("%d", rows[i]))
		}
		i = j
	}
	return strings.Join(parts, ", ")
}

func formatRows(col types.Column, n int) string {
	n = min(n, col.Len())
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = formatValue(col, i)
	}
	return "[" + strings.Join(values, ", ") + "]"
}

func formatValue(col types.Column, i int) string {
	switch c := col.(type) {
	case *types.IntColumn:
		return fmt.Sprint(c.Values[i])
	case *types.UIntColumn:
		return fmt.Sprint(c.Values[i])
	case *types.FloatColumn:
		return fmt.Sprint(c.Values[i])
	case *types.BoolColumn:
		return fmt.Sprint(c.Values[i])
	case *types.StringColumn:
		return fmt.Sprintf("%q", c.Values[i])
	case *types.NullableColumn:
		if c.NullMap[i] {
			return "NULL"
		}
		return formatValue(c.Nested, i)
	case *types.ArrayColumn:
		start, size := int(c.OffsetAt(i)), int(c.SizeAt(i))
		values := make([]string, size)
		for j := 0; j < size; j++ {
			values[j] = formatValue(c.Elements, start+j)
		}
		return "[" + strings.Join(values, ", ") + "]"
	case *types.TupleColumn:
		values := make([]string, len(c.Elements))
		for j, e := range c.Elements {
			values[j] = formatValue(e, i)
		}
		return "(" + strings.Join(values, ", ") + ")"
	default:
		return "?"
	}
}
