// Package formats defines the on-disk artifact types produced and consumed
// by the engine, together with their validation predicates.
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"pepkit/internal/collection"
	"pepkit/internal/logging"
)

// Kind distinguishes single files from directory collections.
type Kind int

const (
	KindFile Kind = iota
	KindCollection
)

func (k Kind) String() string {
	if k == KindCollection {
		return "collection"
	}
	return "file"
}

// RowCheck validates the full content of a file after the header check.
type RowCheck func(r io.Reader) error

// Format describes one artifact type.
type Format struct {
	Name string
	Kind Kind

	// Header is the required prefix of the first line. Empty means the file
	// only needs to be non-empty.
	Header string

	// Rows optionally validates the body.
	Rows RowCheck

	// Canonical is the file name used when harvesting a single-file output.
	Canonical string

	// Collection members.
	Member    *Format
	Pattern   *collection.Pattern
	Sentinels []string
}

// ValidationError reports a file that does not satisfy its format.
type ValidationError struct {
	Format      string
	Path        string
	Expectation string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s", e.Format, e.Path, e.Expectation)
}

// ErrInvalid matches every *ValidationError through errors.Is.
var ErrInvalid = errors.New("invalid artifact")

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Expectation describes what ValidateFile checks, for messages.
func (f *Format) Expectation() string {
	switch {
	case f.Kind == KindCollection:
		return fmt.Sprintf("files named %s", f.Pattern.Layout())
	case f.Header != "":
		return fmt.Sprintf("first line starting with %q", f.Header)
	default:
		return "a non-empty file"
	}
}

// ValidateFile checks a single file against the format.
func (f *Format) ValidateFile(path string) error {
	if f.Kind != KindFile {
		return fmt.Errorf("%s is a directory collection", f.Name)
	}
	invalid := func(expectation string) error {
		return &ValidationError{Format: f.Name, Path: path, Expectation: expectation}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return invalid("file to exist")
		}
		return err
	}
	if info.IsDir() {
		return invalid("a regular file, found a directory")
	}
	if info.Size() == 0 {
		return invalid("a non-empty file")
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if f.Header != "" {
		line, err := bufio.NewReader(file).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if !strings.HasPrefix(line, f.Header) {
			return invalid(f.Expectation())
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}
	if f.Rows != nil {
		if err := f.Rows(file); err != nil {
			return invalid(err.Error())
		}
	}
	return nil
}

// Collection is the logical view of a directory artifact.
type Collection struct {
	Format   *Format
	Dir      string
	Pattern  *collection.Pattern
	Members  []collection.Member
	Excluded []string // non-matching files other than sentinels
	Present  []string // sentinels found in the directory
}

// OpenCollection scans dir with pattern p (the format's own pattern when nil)
// and validates every member with the member format.
func (f *Format) OpenCollection(dir string, p *collection.Pattern) (*Collection, error) {
	if f.Kind != KindCollection {
		return nil, fmt.Errorf("%s is not a directory collection", f.Name)
	}
	if p == nil {
		p = f.Pattern
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &ValidationError{Format: f.Name, Path: dir, Expectation: "a directory"}
	}

	members, others, err := collection.Scan(dir, p)
	if err != nil {
		return nil, err
	}
	c := &Collection{Format: f, Dir: dir, Pattern: p, Members: members}
	for _, name := range others {
		if f.isSentinel(name) {
			c.Present = append(c.Present, name)
			continue
		}
		c.Excluded = append(c.Excluded, name)
	}
	if len(c.Excluded) > 0 {
		logging.FormatsDebug("%s: excluded %d files not matching %s: %v", f.Name, len(c.Excluded), p.Layout(), c.Excluded)
	}
	for _, m := range members {
		if err := f.Member.ValidateFile(m.Path); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (f *Format) isSentinel(name string) bool {
	for _, s := range f.Sentinels {
		if s == name {
			return true
		}
	}
	return false
}

// Names returns member file names in order.
func (c *Collection) Names() []string {
	names := make([]string, len(c.Members))
	for i, m := range c.Members {
		names[i] = m.Name
	}
	return names
}

// ReadPeptideIDs reads a peptide id list: one id per line, blank lines skipped.
func ReadPeptideIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, scanner.Err()
}

// PeptideSets reads every member as a peptide id list, keyed by the
// comparison joined with the collection separator.
func (c *Collection) PeptideSets() (map[string][]string, error) {
	sets := make(map[string][]string, len(c.Members))
	for _, m := range c.Members {
		ids, err := ReadPeptideIDs(m.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", m.Name, err)
		}
		sets[c.Pattern.Join(m.Key.Comparison)] = ids
	}
	return sets, nil
}

// SortedKeys returns the keys of a PeptideSets result in order.
func SortedKeys(sets map[string][]string) []string {
	keys := make([]string, 0, len(sets))
	for k := range sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
