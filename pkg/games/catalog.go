// Package games reads game packages from the read-only games medium.
package games

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/rxanders35/mesh/pkg/ledger"
)

var ErrBadName = errors.New("package name must be a plain file name")

// Catalog is the games filesystem, addressed by package file name.
type Catalog interface {
	Exists(name string) (bool, error)
	Size(name string) (int64, error)
	Read(name string) ([]byte, error)
	List() ([]string, error)
}

// Dir serves packages from the regular files of one host directory.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.Wrapf(ErrBadName, "%q", name)
	}
	return filepath.Join(d.root, name), nil
}

func (d *Dir) Exists(name string) (bool, error) {
	p, err := d.path(name)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", name)
	}
	return info.Mode().IsRegular(), nil
}

func (d *Dir) Size(name string) (int64, error) {
	p, err := d.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", name)
	}
	return info.Size(), nil
}

func (d *Dir) Read(name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return data, nil
}

// List returns the names of the regular files, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", d.root)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ParseDefaults reads the default games list, one "name major.minor" per
// line, into package names like "name-vmajor.minor". Blank lines and lines
// starting with '#' are skipped.
func ParseDefaults(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, errors.Errorf("defaults line %d: want \"name major.minor\"", line)
		}
		name := fields[0] + "-v" + fields[1]
		if _, _, err := ledger.ParseFullName(name); err != nil {
			return nil, errors.Wrapf(err, "defaults line %d", line)
		}
		out = append(out, name)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read defaults")
	}
	return out, nil
}
