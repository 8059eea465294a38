package narrate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Divider separates the sections of the change report.
const Divider = "- - - - - - - - - - - - - - - - - - - - - - - - - - -"

// WriteReport writes sections in order, each introduced by the divider and the file name.
func WriteReport(w io.Writer, sections []Section) error {
	bw := bufio.NewWriter(w)
	for _, s := range sections {
		fmt.Fprintf(bw, "\n%s\n%s:\n", Divider, s.Source.Name)
		for _, c := range s.Changes {
			bw.WriteString(c.Line)
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// SaveReport writes the report to path, creating parent directories.
func SaveReport(path string, sections []Section) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := WriteReport(f, sections); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
