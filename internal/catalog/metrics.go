package catalog

// Stats summarises the size of a catalog.
type Stats struct {
	Entities int
	Nodes    int
	Versions int
}

func (c *Catalog) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{Entities: len(c.roots), Nodes: len(c.nodes)}
	for i := range c.nodes {
		n := &c.nodes[i]
		s.Versions += n.text.Len()
		for _, ch := range n.attrs {
			s.Versions += ch.Len()
		}
	}
	return s
}

// VersionsFrom counts the versions introduced by the snapshot with the given sequence.
func (c *Catalog) VersionsFrom(seq int) int {
	total := 0
	for i := range c.nodes {
		n := &c.nodes[i]
		total += len(n.text.From(seq))
		for _, ch := range n.attrs {
			total += len(ch.From(seq))
		}
	}
	return total
}
