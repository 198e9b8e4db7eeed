package collection

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"pepkit/internal/logging"
)

// Member is one file of a directory collection.
type Member struct {
	Name string // collection-assigned file name
	Key  Key
	Path string // absolute or relative path of the file on disk
}

// Scan lists the files of dir matching p, sorted by name. Non-matching
// regular files are returned separately; subdirectories are ignored.
func Scan(dir string, p *Pattern) (members []Member, excluded []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key, ok := p.KeyFor(name)
		if !ok {
			excluded = append(excluded, name)
			continue
		}
		members = append(members, Member{Name: name, Key: key, Path: filepath.Join(dir, name)})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	sort.Strings(excluded)
	return members, excluded, nil
}

// CollisionError reports two members that would share a staged file name.
type CollisionError struct {
	Name   string
	First  string
	Second string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("name collision staging %q: %s and %s", e.Name, e.First, e.Second)
}

// Stage materializes members under their names in the flat directory dir,
// creating it if needed. Collisions are detected before anything is written
// and existing files are never overwritten. Files are hard linked when
// possible and copied otherwise.
func Stage(members []Member, dir string) error {
	seen := make(map[string]string, len(members))
	for _, m := range members {
		if m.Name == "" || m.Name != filepath.Base(m.Name) {
			return fmt.Errorf("invalid member name %q", m.Name)
		}
		if prev, ok := seen[m.Name]; ok {
			return &CollisionError{Name: m.Name, First: prev, Second: m.Path}
		}
		seen[m.Name] = m.Path
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	for _, m := range members {
		dst := filepath.Join(dir, m.Name)
		if _, err := os.Lstat(dst); err == nil {
			return &CollisionError{Name: m.Name, First: dst, Second: m.Path}
		}
		if err := os.Link(m.Path, dst); err == nil {
			continue
		}
		if err := copyFile(m.Path, dst); err != nil {
			return fmt.Errorf("failed to stage %s: %w", m.Path, err)
		}
	}
	logging.StagingDebug("staged %d members into %s", len(members), dir)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyFile copies src to a new file dst. dst must not exist.
func CopyFile(src, dst string) error { return copyFile(src, dst) }
