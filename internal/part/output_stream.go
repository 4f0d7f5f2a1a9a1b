package part

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/soltixdb/widepart/internal/checksum"
	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/logging"
	"github.com/soltixdb/widepart/internal/queue"
	"github.com/soltixdb/widepart/internal/serialization"
	"github.com/soltixdb/widepart/internal/types"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// OutputOptions are the optional collaborators of an OutputStream
type OutputOptions struct {
	Logger  *logging.Logger
	Metrics *Metrics
	// Announcer, if set, publishes every committed part
	Announcer *queue.Announcer
}

// CommittedPart describes a part after its directory got its final name
type CommittedPart struct {
	Name        string
	Dir         string
	Rows        uint64
	Marks       int
	Bytes       uint64
	Files       int
	Checksums   *checksum.Checksums
	CommittedAt time.Time
}

// OutputStream writes one part into a temporary directory and commits it by
// renaming the directory once all files are complete
type OutputStream struct {
	name      string
	finalDir  string
	storage   *Storage
	writer    *WideWriter
	settings  WriterSettings
	logger    *logging.Logger
	announcer *queue.Announcer
	done      bool
}

// NewOutputStream creates the temporary directory of part name under dataDir
func NewOutputStream(fs afero.Fs, dataDir, name string, columns types.NamesAndTypes, settings WriterSettings, opts OutputOptions) (*OutputStream, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid part name %q", name)
	}
	finalDir := filepath.Join(dataDir, name)
	if ok, _ := afero.DirExists(fs, finalDir); ok {
		return nil, fmt.Errorf("part %s already exists in %s", name, dataDir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}

	storage, err := NewStorage(fs, filepath.Join(dataDir, TmpPartPrefix+name))
	if err != nil {
		return nil, err
	}
	writer, err := NewWideWriter(storage, columns, settings, logger.With("part", name), opts.Metrics)
	if err != nil {
		return nil, multierr.Append(err, storage.RemoveAll())
	}

	return &OutputStream{
		name:      name,
		finalDir:  finalDir,
		storage:   storage,
		writer:    writer,
		settings:  settings,
		logger:    logger,
		announcer: opts.Announcer,
	}, nil
}

func (o *OutputStream) Name() string         { return o.name }
func (o *OutputStream) Writer() *WideWriter  { return o.writer }
func (o *OutputStream) Storage() *Storage    { return o.storage }
func (o *OutputStream) TemporaryDir() string { return o.storage.Dir() }
func (o *OutputStream) FinalDir() string     { return o.finalDir }

// Write appends block to the part. The part is cancelled if writing fails.
func (o *OutputStream) Write(block *types.Block) error {
	return o.WritePermuted(block, nil)
}

// WritePermuted appends the rows of block in the order given by perm
func (o *OutputStream) WritePermuted(block *types.Block, perm types.Permutation) error {
	if o.done {
		return fmt.Errorf("%w: part %s is already committed or cancelled", ErrWriterState, o.name)
	}
	if err := o.writer.Write(block, perm); err != nil {
		if o.writer.broken != nil {
			return multierr.Append(err, o.Cancel())
		}
		return err
	}
	return nil
}

// Commit writes the metadata files and the checksum manifest, then renames
// the temporary directory to the final part name. An announcement failure is
// returned but does not undo the commit.
func (o *OutputStream) Commit(ctx context.Context) (*CommittedPart, error) {
	if o.done {
		return nil, fmt.Errorf("%w: part %s is already committed or cancelled", ErrWriterState, o.name)
	}
	ctx = logging.WithLogger(ctx, o.logger)
	ctx = logging.WithPart(ctx, o.name)
	ctx = logging.WithWriteID(ctx, o.writer.ID())

	part, err := o.commit()
	if err != nil {
		logging.ErrorCtx(ctx, "Failed to commit part", "error", err)
		return nil, multierr.Append(err, o.Cancel())
	}
	o.done = true

	logging.InfoCtx(ctx, "Part committed",
		"dir", part.Dir,
		"rows", part.Rows,
		"marks", part.Marks,
		"files", part.Files,
		"size", humanize.IBytes(part.Bytes))

	if o.announcer != nil {
		msg := &queue.PartCommitted{
			Part:        part.Name,
			Path:        part.Dir,
			Rows:        part.Rows,
			Marks:       part.Marks,
			Bytes:       part.Bytes,
			Files:       part.Files,
			CommittedAt: part.CommittedAt,
		}
		if err := o.announcer.Announce(ctx, msg); err != nil {
			logging.WarnCtx(ctx, "Failed to announce part", "subject", o.announcer.Subject(), "error", err)
			return part, fmt.Errorf("part %s committed but not announced: %w", o.name, err)
		}
	}
	return part, nil
}

func (o *OutputStream) commit() (*CommittedPart, error) {
	cs, err := o.writer.FillChecksums()
	if err != nil {
		return nil, err
	}

	files := map[string]string{
		ColumnsFileName: o.writer.Columns().String(),
		CountFileName:   strconv.FormatUint(o.writer.Rows(), 10),
	}
	if codecs := o.codecsFile(); codecs != "" {
		files[CodecsFileName] = codecs
	}
	for name, content := range files {
		data := []byte(content)
		if err := o.storage.WriteFile(name, data, o.settings.SyncOnFinish); err != nil {
			return nil, err
		}
		cs.AddFile(name, uint64(len(data)), xxhash.Sum64(data))
	}

	if err := o.writer.Finish(o.settings.SyncOnFinish); err != nil {
		return nil, err
	}

	manifest := cs.String()
	if err := o.storage.WriteFile(ChecksumsFileName, []byte(manifest), true); err != nil {
		return nil, err
	}
	if err := o.storage.Rename(o.finalDir); err != nil {
		return nil, err
	}

	return &CommittedPart{
		Name:        o.name,
		Dir:         o.finalDir,
		Rows:        o.writer.Rows(),
		Marks:       o.writer.IndexGranularity().MarksCountWithoutFinal(),
		Bytes:       cs.TotalSize() + uint64(len(manifest)),
		Files:       len(cs.Files) + 1,
		Checksums:   cs,
		CommittedAt: time.Now().UTC(),
	}, nil
}

// codecsFile lists the columns stored with a non-plain value codec
func (o *OutputStream) codecsFile() string {
	var lines []string
	for _, c := range o.writer.Columns() {
		codec := o.settings.ColumnCodec(c.Name)
		if codec == compression.CodecPlain {
			continue
		}
		lines = append(lines, serialization.EscapeForFileName(c.Name)+"\t"+codec.String())
	}
	if len(lines) == 0 {
		return ""
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

// Cancel drops the part and its temporary directory
func (o *OutputStream) Cancel() error {
	if o.done {
		return fmt.Errorf("%w: part %s is already committed or cancelled", ErrWriterState, o.name)
	}
	o.done = true

	var err error
	if o.writer.state != stateFinished && o.writer.state != stateCancelled {
		err = o.writer.Cancel()
	}
	return multierr.Append(err, o.storage.RemoveAll())
}
