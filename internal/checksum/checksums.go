package checksum

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const formatHeader = "checksums format version: 1"

// ErrChecksumMismatch is returned by Verify when a file differs from the manifest
var ErrChecksumMismatch = errors.New("checksum mismatch")

// FileChecksum is the manifest entry of one file
type FileChecksum struct {
	FileSize uint64
	FileHash uint64

	// Set for compressed .bin files; describes the decompressed stream
	IsCompressed     bool
	UncompressedSize uint64
	UncompressedHash uint64
}

// Checksums is the manifest of all files of a part
type Checksums struct {
	Files map[string]FileChecksum
}

func New() *Checksums {
	return &Checksums{Files: make(map[string]FileChecksum)}
}

// AddFile records a plain file
func (c *Checksums) AddFile(name string, size, hash uint64) {
	c.Files[name] = FileChecksum{FileSize: size, FileHash: hash}
}

// AddCompressedFile records a compressed file with the size and hash of its
// decompressed content
func (c *Checksums) AddCompressedFile(name string, size, hash, uncompressedSize, uncompressedHash uint64) {
	c.Files[name] = FileChecksum{
		FileSize:         size,
		FileHash:         hash,
		IsCompressed:     true,
		UncompressedSize: uncompressedSize,
		UncompressedHash: uncompressedHash,
	}
}

// Clone returns an independent copy of the manifest
func (c *Checksums) Clone() *Checksums {
	out := &Checksums{Files: make(map[string]FileChecksum, len(c.Files))}
	for name, f := range c.Files {
		out.Files[name] = f
	}
	return out
}

func (c *Checksums) Remove(name string) {
	delete(c.Files, name)
}

func (c *Checksums) Has(name string) bool {
	_, ok := c.Files[name]
	return ok
}

// Names returns file names in sorted order
func (c *Checksums) Names() []string {
	names := make([]string, 0, len(c.Files))
	for name := range c.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalSize sums the on-disk size of all files
func (c *Checksums) TotalSize() uint64 {
	var total uint64
	for _, f := range c.Files {
		total += f.FileSize
	}
	return total
}

// Equal compares two manifests entry by entry
func (c *Checksums) Equal(other *Checksums) bool {
	if len(c.Files) != len(other.Files) {
		return false
	}
	for name, f := range c.Files {
		if o, ok := other.Files[name]; !ok || o != f {
			return false
		}
	}
	return true
}

// WriteTo writes the manifest in its text form, files sorted by name
func (c *Checksums) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	sb.WriteString(formatHeader)
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "%d files:\n", len(c.Files))
	for _, name := range c.Names() {
		f := c.Files[name]
		fmt.Fprintf(&sb, "%s\t%d\t%016x", name, f.FileSize, f.FileHash)
		if f.IsCompressed {
			fmt.Fprintf(&sb, "\t1\t%d\t%016x", f.UncompressedSize, f.UncompressedHash)
		} else {
			sb.WriteString("\t0")
		}
		sb.WriteByte('\n')
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (c *Checksums) String() string {
	var sb strings.Builder
	_, _ = c.WriteTo(&sb)
	return sb.String()
}

// Read parses the text form produced by WriteTo
func Read(r io.Reader) (*Checksums, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() || sc.Text() != formatHeader {
		return nil, fmt.Errorf("unexpected checksums header")
	}
	if !sc.Scan() {
		return nil, fmt.Errorf("missing file count")
	}
	var count int
	if _, err := fmt.Sscanf(sc.Text(), "%d files:", &count); err != nil {
		return nil, fmt.Errorf("parse file count: %w", err)
	}

	c := New()
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != 4 && len(fields) != 6 {
			return nil, fmt.Errorf("malformed checksum line %q", sc.Text())
		}
		var f FileChecksum
		var err error
		if f.FileSize, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return nil, fmt.Errorf("file %s size: %w", fields[0], err)
		}
		if f.FileHash, err = strconv.ParseUint(fields[2], 16, 64); err != nil {
			return nil, fmt.Errorf("file %s hash: %w", fields[0], err)
		}
		f.IsCompressed = fields[3] == "1"
		if f.IsCompressed {
			if len(fields) != 6 {
				return nil, fmt.Errorf("malformed checksum line %q", sc.Text())
			}
			if f.UncompressedSize, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
				return nil, fmt.Errorf("file %s uncompressed size: %w", fields[0], err)
			}
			if f.UncompressedHash, err = strconv.ParseUint(fields[5], 16, 64); err != nil {
				return nil, fmt.Errorf("file %s uncompressed hash: %w", fields[0], err)
			}
		}
		c.Files[fields[0]] = f
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(c.Files) != count {
		return nil, fmt.Errorf("expected %d files, found %d", count, len(c.Files))
	}
	return c, nil
}

// Verify re-hashes every file of the manifest found in dir
func (c *Checksums) Verify(fs afero.Fs, dir string) error {
	for _, name := range c.Names() {
		want := c.Files[name]
		f, err := fs.Open(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		size, hash, err := HashReader(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if size != want.FileSize {
			return fmt.Errorf("%w: %s has %d bytes, expected %d", ErrChecksumMismatch, name, size, want.FileSize)
		}
		if hash != want.FileHash {
			return fmt.Errorf("%w: %s hash %016x, expected %016x", ErrChecksumMismatch, name, hash, want.FileHash)
		}
	}
	return nil
}
