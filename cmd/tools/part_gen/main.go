package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/soltixdb/widepart/internal/config"
	"github.com/soltixdb/widepart/internal/logging"
	"github.com/soltixdb/widepart/internal/part"
	"github.com/soltixdb/widepart/internal/queue"
	"github.com/soltixdb/widepart/internal/types"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
)

var devices = []string{"sensor-a", "sensor-b", "sensor-c", "sensor-d", "gateway-1"}

// Columns of the generated part
var columns = types.NamesAndTypes{
	{Name: "ts", Type: types.Int64()},
	{Name: "device", Type: types.LowCardinality(types.String())},
	{Name: "value", Type: types.Nullable(types.Float64())},
	{Name: "tags", Type: types.Array(types.String())},
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	name := flag.String("name", "", "Part name (default: all_<unix time>_0)")
	rows := flag.Int("rows", 100000, "Number of rows to generate")
	blockSize := flag.Int("block-size", 10000, "Rows per written block")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	if *rows < 0 || *blockSize <= 0 {
		logger.Fatal("Rows must not be negative and block size must be positive",
			"rows", *rows, "block_size", *blockSize)
	}
	if *name == "" {
		*name = fmt.Sprintf("all_%d_0", time.Now().Unix())
	}

	settings, err := part.SettingsFromConfig(cfg.Writer)
	if err != nil {
		logger.Fatal("Invalid writer configuration", "error", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("Failed to create data directory", "error", err)
	}

	fs := afero.NewOsFs()
	if cfg.Storage.FS == "memory" {
		fs = afero.NewMemMapFs()
	}

	announcer, err := queue.NewAnnouncerFromConfig(cfg.Announce)
	if err != nil {
		logger.Fatal("Failed to create announcer", "type", cfg.Announce.Type, "error", err)
	}
	if announcer != nil {
		defer func() { _ = announcer.Close() }()
	}

	reg := prometheus.NewRegistry()
	metrics := part.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Generating part",
		"version", Version, "commit", GitCommit,
		"name", *name, "rows", *rows, "block_size", *blockSize,
		"compression", cfg.Writer.Compression, "adaptive", cfg.Writer.Adaptive())

	out, err := part.NewOutputStream(fs, cfg.Storage.DataDir, *name, columns, settings, part.OutputOptions{
		Logger:    logger,
		Metrics:   metrics,
		Announcer: announcer,
	})
	if err != nil {
		logger.Fatal("Failed to create part", "error", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now()
	base := start.UnixMilli()
	for written := 0; written < *rows; written += *blockSize {
		if ctx.Err() != nil {
			if err := out.Cancel(); err != nil {
				logger.Error("Failed to cancel part", "error", err)
			}
			logger.Warn("Interrupted, part cancelled", "rows_written", written)
			os.Exit(1)
		}

		n := min(*blockSize, *rows-written)
		block, err := generateBlock(rng, base, written, n)
		if err != nil {
			logger.Fatal("Failed to generate block", "error", err)
		}
		if err := out.Write(block); err != nil {
			logger.Fatal("Failed to write block", "rows_written", written, "error", err)
		}
	}

	committed, err := out.Commit(ctx)
	if err != nil && committed == nil {
		logger.Fatal("Failed to commit part", "error", err)
	}
	if err != nil {
		logger.Error("Part committed without announcement", "error", err)
	}

	fmt.Printf("Part:      %s\n", committed.Dir)
	fmt.Printf("Rows:      %s\n", humanize.Comma(int64(committed.Rows)))
	fmt.Printf("Marks:     %d\n", committed.Marks)
	fmt.Printf("Files:     %d\n", committed.Files)
	fmt.Printf("Size:      %s\n", humanize.IBytes(committed.Bytes))
	fmt.Printf("Duration:  %s\n", time.Since(start).Round(time.Millisecond))
	printMetrics(reg)
}

// generateBlock builds n rows of synthetic sensor readings starting at row offset
func generateBlock(rng *rand.Rand, base int64, offset, n int) (*types.Block, error) {
	ts := make([]int64, n)
	device := make([]string, n)
	values := make([]float64, n)
	nulls := make([]bool, n)
	offsets := make([]uint64, n)
	var tags []string

	for i := 0; i < n; i++ {
		row := offset + i
		ts[i] = base + int64(row)*1000
		device[i] = devices[rng.Intn(len(devices))]
		if rng.Intn(20) == 0 {
			nulls[i] = true
		} else {
			values[i] = 20 + rng.NormFloat64()*2.5
		}
		for j := rng.Intn(3); j > 0; j-- {
			tags = append(tags, fmt.Sprintf("zone-%d", rng.Intn(8)))
		}
		offsets[i] = uint64(len(tags))
	}

	value, err := types.NewNullableColumn(types.NewFloat64Column(values...), nulls)
	if err != nil {
		return nil, err
	}
	tagColumn, err := types.NewArrayColumn(types.NewStringColumn(tags...), offsets)
	if err != nil {
		return nil, err
	}
	return types.NewBlock(
		types.ColumnWithName{Name: "ts", Column: types.NewInt64Column(ts...)},
		types.ColumnWithName{Name: "device", Column: types.NewLowCardinalityColumn(device...)},
		types.ColumnWithName{Name: "value", Column: value},
		types.ColumnWithName{Name: "tags", Column: tagColumn},
	), nil
}

func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		return
	}
	fmt.Println("Metrics:")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				value = m.GetHistogram().GetSampleSum()
			default:
				continue
			}
			fmt.Printf("  %-40s %-16s %g\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
}
