package version

import "fmt"

// Source identifies the snapshot file a version came from.
// Seq is the file's position in the manifest (0 = base file).
type Source struct {
	Seq  int
	Name string
}

func (s Source) String() string {
	return fmt.Sprintf("%s#%d", s.Name, s.Seq)
}

// Version is one immutable value in a chain.
type Version struct {
	source Source
	value  string
	prev   *Version
}

func (v *Version) Source() Source { return v.source }
func (v *Version) Value() string  { return v.value }

// Previous returns the version this one replaced, or nil for the first entry.
func (v *Version) Previous() *Version { return v.prev }

// OutOfOrderError is returned when an append would break manifest order.
type OutOfOrderError struct {
	Tail Source
	New  Source
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("version from %s appended after %s", e.New, e.Tail)
}

// Chain is the append-only history of one text value or attribute.
// The zero value is an empty chain.
type Chain struct {
	versions []*Version
}

// Append records value from src unless it equals the current tail.
// It reports whether a version was added.
func (c *Chain) Append(src Source, value string) (bool, error) {
	tail := c.Latest()
	if tail == nil {
		c.versions = append(c.versions, &Version{source: src, value: value})
		return true, nil
	}
	if src.Seq < tail.source.Seq {
		return false, &OutOfOrderError{Tail: tail.source, New: src}
	}
	if tail.value == value {
		return false, nil
	}
	c.versions = append(c.versions, &Version{source: src, value: value, prev: tail})
	return true, nil
}

func (c *Chain) Len() int { return len(c.versions) }

// At returns the i-th version, oldest first.
func (c *Chain) At(i int) *Version { return c.versions[i] }

// Latest returns the tail of the chain, or nil when empty.
func (c *Chain) Latest() *Version {
	if len(c.versions) == 0 {
		return nil
	}
	return c.versions[len(c.versions)-1]
}

// AsOf returns the newest version introduced at or before seq.
func (c *Chain) AsOf(seq int) *Version {
	for i := len(c.versions) - 1; i >= 0; i-- {
		if c.versions[i].source.Seq <= seq {
			return c.versions[i]
		}
	}
	return nil
}

// From returns the versions introduced by the file with the given sequence number.
// Under normal ingestion this is at most one version per file.
func (c *Chain) From(seq int) []*Version {
	var out []*Version
	for _, v := range c.versions {
		if v.source.Seq == seq {
			out = append(out, v)
		}
	}
	return out
}

// Versions returns a copy of the chain, oldest first.
func (c *Chain) Versions() []*Version {
	out := make([]*Version, len(c.versions))
	copy(out, c.versions)
	return out
}

// History is the read-only view of a Chain handed to readers of a finished catalog.
type History interface {
	Len() int
	At(i int) *Version
	Latest() *Version
	AsOf(seq int) *Version
	From(seq int) []*Version
	Versions() []*Version
}

var _ History = (*Chain)(nil)
