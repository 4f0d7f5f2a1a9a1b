package serialization

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SubstreamKind identifies one structural piece of a nested column
type SubstreamKind uint8

const (
	Regular SubstreamKind = iota
	NullMap
	NullableElements
	ArraySizes
	ArrayElements
	TupleElement
	DictionaryKeys
)

var substreamKindNames = map[SubstreamKind]string{
	Regular:          "Regular",
	NullMap:          "NullMap",
	NullableElements: "NullableElements",
	ArraySizes:       "ArraySizes",
	ArrayElements:    "ArrayElements",
	TupleElement:     "TupleElement",
	DictionaryKeys:   "DictionaryKeys",
}

func (k SubstreamKind) String() string {
	if name, ok := substreamKindNames[k]; ok {
		return name
	}
	return "SubstreamKind(" + strconv.Itoa(int(k)) + ")"
}

// Substream is one step of a SubstreamPath. Name is set for tuple elements.
type Substream struct {
	Kind SubstreamKind
	Name string
}

// SubstreamPath locates a physical stream inside a column's type tree
type SubstreamPath []Substream

// Append returns a copy of p extended with s
func (p SubstreamPath) Append(s Substream) SubstreamPath {
	out := make(SubstreamPath, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// Clone returns a copy that does not share memory with p
func (p SubstreamPath) Clone() SubstreamPath {
	out := make(SubstreamPath, len(p))
	copy(out, p)
	return out
}

func (p SubstreamPath) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		if s.Name != "" {
			parts[i] = s.Kind.String() + "(" + s.Name + ")"
		} else {
			parts[i] = s.Kind.String()
		}
	}
	return strings.Join(parts, ", ")
}

// Last returns the kind of the innermost substream, Regular for an empty path
func (p SubstreamPath) Last() SubstreamKind {
	if len(p) == 0 {
		return Regular
	}
	return p[len(p)-1].Kind
}

// HasArrays reports whether the path goes through array elements
func (p SubstreamPath) HasArrays() bool {
	for _, s := range p {
		if s.Kind == ArrayElements {
			return true
		}
	}
	return false
}

// StreamName returns the full, unhashed file stem of the stream at path of column
func StreamName(column string, path SubstreamPath) string {
	var sb strings.Builder
	sb.WriteString(EscapeForFileName(column))

	arrayLevel := 0
	for _, s := range path {
		switch s.Kind {
		case NullMap:
			sb.WriteString(".null")
		case ArraySizes:
			sb.WriteString(".size")
			sb.WriteString(strconv.Itoa(arrayLevel))
		case ArrayElements:
			arrayLevel++
		case TupleElement:
			sb.WriteByte('.')
			sb.WriteString(EscapeForFileName(s.Name))
		case DictionaryKeys:
			sb.WriteString(".dict")
		}
	}
	return sb.String()
}

// EscapeForFileName replaces every byte outside [A-Za-z0-9_] with %XX
func EscapeForFileName(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

// UnescapeFileName reverses EscapeForFileName
func UnescapeFileName(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			sb.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", fmt.Errorf("bad escape in %q: %w", s, err)
		}
		sb.WriteByte(b[0])
		i += 2
	}
	return sb.String(), nil
}

// NameMap keeps the two-way mapping between full stream names and the file
// stems actually used on disk. Stems differ from full names only when long
// names are replaced by their hash.
type NameMap struct {
	replaceLong bool
	maxLen      int

	toFile map[string]string
	toFull map[string]string
}

func NewNameMap(replaceLongNames bool, maxFileNameLength int) *NameMap {
	return &NameMap{
		replaceLong: replaceLongNames,
		maxLen:      maxFileNameLength,
		toFile:      make(map[string]string),
		toFull:      make(map[string]string),
	}
}

// Register returns the file stem for fullName, assigning it on first use
func (m *NameMap) Register(fullName string) (string, error) {
	if stem, ok := m.toFile[fullName]; ok {
		return stem, nil
	}

	stem := fullName
	if m.replaceLong && m.maxLen > 0 && len(fullName) > m.maxLen {
		sum := xxhash.Sum64String(fullName)
		stem = fmt.Sprintf("%016x", sum)
	}
	if other, ok := m.toFull[stem]; ok {
		return "", fmt.Errorf("stream %q maps to file %q already used by %q", fullName, stem, other)
	}

	m.toFile[fullName] = stem
	m.toFull[stem] = fullName
	return stem, nil
}

// FileName returns the file stem registered for fullName
func (m *NameMap) FileName(fullName string) (string, bool) {
	stem, ok := m.toFile[fullName]
	return stem, ok
}

// FullName returns the full stream name stored under a file stem
func (m *NameMap) FullName(stem string) (string, bool) {
	full, ok := m.toFull[stem]
	return full, ok
}

// Renamed returns full name -> stem for every hashed stream
func (m *NameMap) Renamed() map[string]string {
	out := make(map[string]string)
	for full, stem := range m.toFile {
		if full != stem {
			out[full] = stem
		}
	}
	return out
}

func (m *NameMap) Len() int {
	return len(m.toFile)
}
