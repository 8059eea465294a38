package delta

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteTo serializes the document as indented UTF-8 XML.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.doc.WriteTo(w)
}

// String returns the serialized document for tests and diagnostics. A
// serialization failure yields ""; callers that write output use WriteTo.
func (d *Document) String() string {
	s, err := d.doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

// Empty reports whether the snapshot changed no entity.
func (d *Document) Empty() bool { return len(d.Entities) == 0 }

// Written describes one exported delta file.
type Written struct {
	File     string
	Path     string
	Entities int
}

// Export writes the delta of every snapshot except the base file into dir,
// under the snapshot's own file name.
func (s *Synthesizer) Export(ctx context.Context, dir string) ([]Written, error) {
	base, ok := s.cat.Base()
	if !ok {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create delta directory: %w", err)
	}

	var out []Written
	for _, src := range s.cat.Sources() {
		if src.Seq == base.Seq {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		doc := s.Synthesize(src)
		path := filepath.Join(dir, filepath.FromSlash(src.Name))
		if err := writeFile(path, doc); err != nil {
			return out, fmt.Errorf("failed to write delta %s: %w", src.Name, err)
		}
		out = append(out, Written{File: src.Name, Path: path, Entities: len(doc.Entities)})
	}
	return out, nil
}

func writeFile(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
