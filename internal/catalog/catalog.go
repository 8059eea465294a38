package catalog

import (
	"slices"
	"strings"

	"snapdiff/internal/version"
)

// Catalog is the finished, read-only forest of entities keyed by public-id.
// It is produced by Builder.Finish and shared by the read passes.
type Catalog struct {
	nodes        []Node
	roots        map[string]NodeID
	identityAttr string
	sources      []version.Source
}

func newCatalog(identityAttr string) *Catalog {
	return &Catalog{
		roots:        make(map[string]NodeID),
		identityAttr: identityAttr,
	}
}

// Node returns the node with the given ID.
func (c *Catalog) Node(id NodeID) *Node { return &c.nodes[id] }

// Len is the number of nodes in the arena.
func (c *Catalog) Len() int { return len(c.nodes) }

// IdentityAttribute is the attribute name that identifies entities and siblings.
func (c *Catalog) IdentityAttribute() string { return c.identityAttr }

// Root looks up an entity root by public-id.
func (c *Catalog) Root(publicID string) (NodeID, bool) {
	id, ok := c.roots[publicID]
	return id, ok
}

// EntityIDs returns all public-ids, sorted.
func (c *Catalog) EntityIDs() []string {
	ids := make([]string, 0, len(c.roots))
	for id := range c.roots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Sources returns the ingested snapshots in manifest order.
func (c *Catalog) Sources() []version.Source { return slices.Clone(c.sources) }

// Base returns the first snapshot in manifest order.
func (c *Catalog) Base() (version.Source, bool) {
	if len(c.sources) == 0 {
		return version.Source{}, false
	}
	return c.sources[0], true
}

// RootOf follows parent links up to the entity root.
func (c *Catalog) RootOf(id NodeID) NodeID {
	for c.nodes[id].parent != NoNode {
		id = c.nodes[id].parent
	}
	return id
}

// Path returns the dot-joined tag path from the entity root to id.
func (c *Catalog) Path(id NodeID) string {
	var tags []string
	for cur := id; cur != NoNode; cur = c.nodes[cur].parent {
		tags = append(tags, c.nodes[cur].tag)
	}
	slices.Reverse(tags)
	return strings.Join(tags, ".")
}

// Walk visits the subtree under root in pre-order, children in insertion order.
// Returning false from fn skips the node's children.
func (c *Catalog) Walk(root NodeID, fn func(id NodeID, depth int) bool) {
	type frame struct {
		id    NodeID
		depth int
	}
	stack := []frame{{id: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.id, f.depth) {
			continue
		}
		kids := c.nodes[f.id].children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: kids[i], depth: f.depth + 1})
		}
	}
}

// Group returns the siblings of id (id included) that share its tag, in insertion order.
func (c *Catalog) Group(id NodeID) []NodeID {
	n := &c.nodes[id]
	if n.parent == NoNode {
		return []NodeID{id}
	}
	var out []NodeID
	for _, sib := range c.nodes[n.parent].children {
		if c.nodes[sib].tag == n.tag {
			out = append(out, sib)
		}
	}
	return out
}
