package catalog

import (
	"slices"

	"snapdiff/internal/version"
)

// NodeID indexes a node in the catalog arena.
// IDs are allocated in creation order, so a child always has a larger ID than its parent.
type NodeID int32

// NoNode is the parent of a root.
const NoNode NodeID = -1

// Node represents one element occurrence tracked across snapshots.
type Node struct {
	tag        string
	identity   string
	parent     NodeID
	children   []NodeID
	text       version.Chain
	attrs      map[string]*version.Chain
	attrOrder  []string
	introduced version.Source
	// seen holds the sequence numbers of the snapshots the node occurred in, ascending.
	seen []int
}

func (n *Node) Tag() string { return n.tag }

// Identity is the value of the identity attribute the node was matched by, or "".
func (n *Node) Identity() string { return n.identity }

// Parent returns the parent ID, NoNode for roots.
func (n *Node) Parent() NodeID { return n.parent }

func (n *Node) IsRoot() bool { return n.parent == NoNode }

// Children returns the child IDs in insertion order.
func (n *Node) Children() []NodeID { return slices.Clone(n.children) }

func (n *Node) ChildCount() int { return len(n.children) }

// Text is the history of the node's own character content.
func (n *Node) Text() version.History { return &n.text }

// Attribute returns the history of the named attribute.
func (n *Node) Attribute(name string) (version.History, bool) {
	c, ok := n.attrs[name]
	if !ok {
		return nil, false
	}
	return c, true
}

// AttributeNames returns attribute names in the order they were first seen.
func (n *Node) AttributeNames() []string { return slices.Clone(n.attrOrder) }

// Introduced is the snapshot in which the node first appeared.
func (n *Node) Introduced() version.Source { return n.introduced }

// PresentIn reports whether the snapshot with the given sequence contained the node.
func (n *Node) PresentIn(seq int) bool {
	_, ok := slices.BinarySearch(n.seen, seq)
	return ok
}

// Occurrences returns the sequence numbers of the snapshots containing the node.
func (n *Node) Occurrences() []int { return slices.Clone(n.seen) }

func (n *Node) mark(seq int) {
	if len(n.seen) == 0 || n.seen[len(n.seen)-1] != seq {
		n.seen = append(n.seen, seq)
	}
}

// Fields calls fn for every attribute chain in first-seen order, then for the text chain
// (attr == ""). It stops when fn returns false.
func (n *Node) Fields(fn func(attr string, h version.History) bool) {
	for _, name := range n.attrOrder {
		if !fn(name, n.attrs[name]) {
			return
		}
	}
	fn("", &n.text)
}

func (n *Node) attr(name string) *version.Chain {
	if c, ok := n.attrs[name]; ok {
		return c
	}
	if n.attrs == nil {
		n.attrs = make(map[string]*version.Chain)
	}
	c := &version.Chain{}
	n.attrs[name] = c
	n.attrOrder = append(n.attrOrder, name)
	return c
}
