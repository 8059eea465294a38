package catalog

import (
	"errors"

	"snapdiff/internal/snaperr"
	"snapdiff/internal/version"
)

// Builder is the only way to mutate a catalog. Ingestion drives it one snapshot
// at a time; Finish hands the result to the read passes and seals the builder.
type Builder struct {
	cat      *Catalog
	pending  map[string]NodeID
	finished bool
}

// NewBuilder starts an empty catalog whose entities are identified by identityAttr.
func NewBuilder(identityAttr string) *Builder {
	return &Builder{
		cat:     newCatalog(identityAttr),
		pending: make(map[string]NodeID),
	}
}

// IdentityAttribute is the attribute name that identifies entities and siblings.
func (b *Builder) IdentityAttribute() string { return b.cat.identityAttr }

// AddSource registers the next manifest entry and returns its Source.
func (b *Builder) AddSource(name string) version.Source {
	b.mustOpen()
	src := version.Source{Seq: len(b.cat.sources), Name: name}
	b.cat.sources = append(b.cat.sources, src)
	return src
}

// IdentityKnown reports whether publicID is already bound to a root.
func (b *Builder) IdentityKnown(publicID string) bool {
	if _, ok := b.cat.roots[publicID]; ok {
		return true
	}
	_, ok := b.pending[publicID]
	return ok
}

// Provisional is an entity root seen before its public-id is known.
type Provisional struct {
	b   *Builder
	tag string
	src version.Source
}

// BeginEntity opens a provisional root for an entity element.
func (b *Builder) BeginEntity(tag string, src version.Source) *Provisional {
	b.mustOpen()
	return &Provisional{b: b, tag: tag, src: src}
}

// Bind resolves the provisional root against the catalog. An existing root with
// the same public-id is reused; otherwise a new root is allocated and left
// pending until Commit.
func (p *Provisional) Bind(publicID string) (NodeID, error) {
	b := p.b
	b.mustOpen()
	if id, ok := b.cat.roots[publicID]; ok {
		if existing := b.cat.nodes[id].tag; existing != p.tag {
			return NoNode, snaperr.New(snaperr.CodeIdentityCollision,
				"public-id %q already identifies a %s, not a %s", publicID, existing, p.tag)
		}
		b.cat.nodes[id].mark(p.src.Seq)
		return id, nil
	}
	if id, ok := b.pending[publicID]; ok {
		return id, nil
	}
	id := b.alloc(p.tag, publicID, NoNode, p.src)
	b.pending[publicID] = id
	return id, nil
}

// Commit registers a bound root under its public-id.
func (b *Builder) Commit(root NodeID) {
	b.mustOpen()
	publicID := b.cat.nodes[root].identity
	delete(b.pending, publicID)
	b.cat.roots[publicID] = root
}

// Child resolves the child of parent with the given tag. Identified children
// (identity != "") match on tag and identity; unidentified children match the
// ordinal-th unidentified child with that tag. A missing child is created and
// appended. The second result reports whether the child was created.
func (b *Builder) Child(parent NodeID, tag, identity string, ordinal int, src version.Source) (NodeID, bool) {
	b.mustOpen()
	seen := 0
	for _, kid := range b.cat.nodes[parent].children {
		n := &b.cat.nodes[kid]
		if n.tag != tag || n.identity != identity {
			continue
		}
		if identity != "" || seen == ordinal {
			n.mark(src.Seq)
			return kid, false
		}
		seen++
	}
	id := b.alloc(tag, identity, parent, src)
	b.cat.nodes[parent].children = append(b.cat.nodes[parent].children, id)
	return id, true
}

// SetText records the node's content for src. It reports whether a version was appended.
func (b *Builder) SetText(id NodeID, src version.Source, value string) (bool, error) {
	b.mustOpen()
	return appendVersion(&b.cat.nodes[id].text, src, value)
}

// SetAttr records an attribute value for src. It reports whether a version was appended.
func (b *Builder) SetAttr(id NodeID, src version.Source, name, value string) (bool, error) {
	b.mustOpen()
	return appendVersion(b.cat.nodes[id].attr(name), src, value)
}

// Path returns the dot-joined tag path of a node under construction.
func (b *Builder) Path(id NodeID) string { return b.cat.Path(id) }

// Finish seals the builder and returns the catalog. Roots still pending are dropped.
func (b *Builder) Finish() *Catalog {
	b.mustOpen()
	b.finished = true
	b.pending = nil
	return b.cat
}

func (b *Builder) alloc(tag, identity string, parent NodeID, src version.Source) NodeID {
	id := NodeID(len(b.cat.nodes))
	b.cat.nodes = append(b.cat.nodes, Node{
		tag:        tag,
		identity:   identity,
		parent:     parent,
		introduced: src,
		seen:       []int{src.Seq},
	})
	return id
}

func (b *Builder) mustOpen() {
	if b.finished {
		panic("catalog: builder used after Finish")
	}
}

func appendVersion(c *version.Chain, src version.Source, value string) (bool, error) {
	added, err := c.Append(src, value)
	if err != nil {
		var ooo *version.OutOfOrderError
		if errors.As(err, &ooo) {
			return false, snaperr.Wrap(snaperr.CodeOutOfOrder, err, "snapshot applied out of manifest order")
		}
		return false, err
	}
	return added, nil
}
