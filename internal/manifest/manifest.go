package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"snapdiff/internal/snaperr"
)

// DefaultName is the manifest file looked up in the data directory.
const DefaultName = "order.txt"

// Entry is one snapshot listed in the manifest.
type Entry struct {
	Name string // as written in the manifest
	Path string // resolved against the data directory
}

// Manifest is the ordered list of snapshots. The first entry is the base file.
type Manifest struct {
	Dir     string
	Entries []Entry
}

// Load reads the manifest at dir/name.
func Load(dir, name string) (*Manifest, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, snaperr.Wrap(snaperr.CodeMissingManifest, err, "cannot open manifest").In(path, 0)
	}
	defer f.Close()

	m, err := Parse(dir, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse reads newline-delimited file names. Blank lines and lines starting
// with '#' are ignored.
func Parse(dir string, r io.Reader) (*Manifest, error) {
	m := &Manifest{Dir: dir}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.Entries = append(m.Entries, Entry{
			Name: line,
			Path: filepath.Join(dir, filepath.FromSlash(line)),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Base returns the first entry.
func (m *Manifest) Base() (Entry, bool) {
	if m == nil || len(m.Entries) == 0 {
		return Entry{}, false
	}
	return m.Entries[0], true
}

// Check verifies that every listed file exists before ingestion starts.
func (m *Manifest) Check() error {
	for _, e := range m.Entries {
		info, err := os.Stat(e.Path)
		if err != nil {
			return snaperr.Wrap(snaperr.CodeMissingFile, err, "manifest entry %q cannot be read", e.Name).In(e.Path, 0)
		}
		if info.IsDir() {
			return snaperr.New(snaperr.CodeMissingFile, "manifest entry %q is a directory", e.Name).In(e.Path, 0)
		}
	}
	return nil
}
