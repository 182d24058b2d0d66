// Package storage implements the authoritative file-backed note repository.
package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/notefile"
)

// Repository is the interface for the authoritative note store. It holds no
// derived state: everything the index contains is reproducible from here.
type Repository interface {
	// Put atomically writes the note's file, replacing any previous file
	// for the same id.
	Put(n *models.Note) error
	// Get loads a note by id. Returns apperr.NotFound for unknown ids.
	Get(id string) (*models.Note, error)
	// Exists reports whether a file for id is present.
	Exists(id string) bool
	// List loads every note, sorted by id.
	List() ([]*models.Note, error)
	// Delete removes the note's file. Returns apperr.NotFound for unknown ids.
	Delete(id string) error
	// Checksum returns the content digest of one note file.
	Checksum(id string) (string, error)
	// Checksums returns the content digest of every note file, keyed by id.
	Checksums() (map[string]string, error)
}

// Dir implements Repository over a flat directory of Markdown files named
// <id>-<slug>.md. The slug is cosmetic; the id is the key.
type Dir struct {
	root string
}

// NewDir creates a Dir repository rooted at the given directory, which must
// already exist.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute repository directory.
func (d *Dir) Root() string { return d.root }

// pathFor returns the absolute path a note with this id and title should
// live at.
func (d *Dir) pathFor(id, title string) string {
	return filepath.Join(d.root, id+"-"+notefile.Slug(title)+".md")
}

// find locates the current file for id, or "" when absent. Filenames embed a
// cosmetic slug, so lookup matches on the id prefix.
func (d *Dir) find(id string) string {
	matches, err := filepath.Glob(filepath.Join(d.root, id+"-*.md"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// Put atomically writes the note: tmp file, fsync, rename. A title change
// moves the note to a freshly slugged filename and drops the old one.
func (d *Dir) Put(n *models.Note) error {
	data, err := notefile.Render(n)
	if err != nil {
		return err
	}

	dst := d.pathFor(n.ID, n.Title)
	prev := d.find(n.ID)

	if err := d.writeAtomic(dst, data); err != nil {
		return err
	}
	if prev != "" && prev != dst {
		if err := os.Remove(prev); err != nil {
			return &apperr.IO{Op: "remove", Path: prev, Err: err}
		}
	}
	return nil
}

func (d *Dir) writeAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(d.root, ".ansuz-tmp-*")
	if err != nil {
		return &apperr.IO{Op: "create temp", Path: dst, Err: err}
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &apperr.IO{Op: "write", Path: dst, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &apperr.IO{Op: "fsync", Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &apperr.IO{Op: "close", Path: dst, Err: err}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return &apperr.IO{Op: "rename", Path: dst, Err: err}
	}
	success = true
	return nil
}

// Get loads and parses the note file for id.
func (d *Dir) Get(id string) (*models.Note, error) {
	p := d.find(id)
	if p == "" {
		return nil, &apperr.NotFound{ID: id}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &apperr.IO{Op: "read", Path: p, Err: err}
	}
	n, err := notefile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", filepath.Base(p), err)
	}
	return n, nil
}

// Exists reports whether a file for id is present.
func (d *Dir) Exists(id string) bool { return d.find(id) != "" }

// List parses every .md file in the repository, sorted by id. Files that do
// not parse are skipped: a hand-edited broken file must not take the whole
// corpus down.
func (d *Dir) List() ([]*models.Note, error) {
	var out []*models.Note
	err := d.walk(func(p string, data []byte) {
		if n, perr := notefile.Parse(data); perr == nil {
			out = append(out, n)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes the note file for id.
func (d *Dir) Delete(id string) error {
	p := d.find(id)
	if p == "" {
		return &apperr.NotFound{ID: id}
	}
	if err := os.Remove(p); err != nil {
		return &apperr.IO{Op: "remove", Path: p, Err: err}
	}
	return nil
}

// Checksum digests the note file for id.
func (d *Dir) Checksum(id string) (string, error) {
	p := d.find(id)
	if p == "" {
		return "", &apperr.NotFound{ID: id}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", &apperr.IO{Op: "read", Path: p, Err: err}
	}
	return checksum.Sum(data), nil
}

// Checksums digests every note file, keyed by id.
func (d *Dir) Checksums() (map[string]string, error) {
	out := make(map[string]string)
	err := d.walk(func(p string, data []byte) {
		base := filepath.Base(p)
		if i := strings.Index(base, "-"); i > 0 {
			out[base[:i]] = checksum.Sum(data)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dir) walk(fn func(path string, data []byte)) error {
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") || strings.HasPrefix(de.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		fn(p, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: walk: %w", err)
	}
	return nil
}
