package narrate

import (
	"fmt"
	"sort"

	"snapdiff/internal/catalog"
	"snapdiff/internal/version"
)

// Kind classifies a reported change.
type Kind string

const (
	KindNewEntity Kind = "new_entity"
	KindChanged   Kind = "changed"
	KindAdded     Kind = "added"
)

// Change is one human-readable line of the report with the facts behind it.
type Change struct {
	Source    version.Source
	Kind      Kind
	EntityID  string
	Path      string
	Attribute string // "" for text content
	Value     string
	Line      string
}

// Section groups the sorted changes of one snapshot.
type Section struct {
	Source  version.Source
	Changes []Change
}

// Lines returns the report lines of the section.
func (s Section) Lines() []string {
	out := make([]string, len(s.Changes))
	for i, c := range s.Changes {
		out[i] = c.Line
	}
	return out
}

// Options controls what the narrator reports.
type Options struct {
	// IncludeNewEmptyFields reports fields added to an existing entity even when empty.
	IncludeNewEmptyFields bool
}

// Narrator describes, per snapshot, what it changed in the catalog.
type Narrator struct {
	cat  *catalog.Catalog
	opts Options
}

func New(cat *catalog.Catalog, opts Options) *Narrator {
	return &Narrator{cat: cat, opts: opts}
}

// Sections returns one section per non-base snapshot that changed something,
// in manifest order, with lines sorted lexicographically.
func (n *Narrator) Sections() []Section {
	base, ok := n.cat.Base()
	if !ok {
		return nil
	}
	bySeq := make(map[int][]Change)
	for _, publicID := range n.cat.EntityIDs() {
		root, _ := n.cat.Root(publicID)
		n.collect(publicID, root, base.Seq, bySeq)
	}

	var out []Section
	for _, src := range n.cat.Sources() {
		changes := bySeq[src.Seq]
		if len(changes) == 0 {
			continue
		}
		sort.SliceStable(changes, func(i, j int) bool { return changes[i].Line < changes[j].Line })
		out = append(out, Section{Source: src, Changes: changes})
	}
	return out
}

func (n *Narrator) collect(publicID string, root catalog.NodeID, baseSeq int, bySeq map[int][]Change) {
	rootNode := n.cat.Node(root)
	introduced := rootNode.Introduced().Seq
	announced := make(map[int]bool)

	n.cat.Walk(root, func(id catalog.NodeID, _ int) bool {
		node := n.cat.Node(id)
		path := n.cat.Path(id)
		node.Fields(func(attr string, h version.History) bool {
			for _, v := range h.Versions() {
				seq := v.Source().Seq
				if seq == baseSeq {
					continue
				}
				c := Change{
					Source:    v.Source(),
					EntityID:  publicID,
					Path:      path,
					Attribute: attr,
					Value:     v.Value(),
				}
				switch {
				case v.Previous() != nil:
					c.Kind = KindChanged
				case seq == introduced:
					// Every field of a brand-new entity is covered by one line.
					if announced[seq] {
						continue
					}
					announced[seq] = true
					c.Kind = KindNewEntity
					c.Path = rootNode.Tag()
					c.Attribute = ""
					c.Value = ""
				default:
					if v.Value() == "" && !n.opts.IncludeNewEmptyFields {
						continue
					}
					c.Kind = KindAdded
				}
				c.Line = c.format(n.cat.IdentityAttribute())
				bySeq[seq] = append(bySeq[seq], c)
			}
			return true
		})
		return true
	})
}

func (c Change) format(idAttr string) string {
	target := c.Path
	if c.Attribute != "" {
		target += "@" + c.Attribute
	}
	switch c.Kind {
	case KindNewEntity:
		return fmt.Sprintf("Added new %s with %s: %s", c.Path, idAttr, c.EntityID)
	case KindChanged:
		return fmt.Sprintf("Changed %s for '%s' to '%s'", target, c.EntityID, c.Value)
	default:
		return fmt.Sprintf("Added %s for '%s' with value '%s'", target, c.EntityID, c.Value)
	}
}
