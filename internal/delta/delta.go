package delta

import (
	"slices"

	"snapdiff/internal/catalog"
	"snapdiff/internal/version"

	"github.com/beevik/etree"
)

// DefaultWrapper is the root element of every delta document.
const DefaultWrapper = "import"

// Options controls delta synthesis.
type Options struct {
	// IncludeNewEmptyFields keeps newly introduced fields whose value is empty.
	IncludeNewEmptyFields bool
	// Wrapper is the document root element. Defaults to DefaultWrapper.
	Wrapper string
}

// Synthesizer builds minimal per-snapshot documents from a finished catalog.
type Synthesizer struct {
	cat  *catalog.Catalog
	opts Options
}

func New(cat *catalog.Catalog, opts Options) *Synthesizer {
	if opts.Wrapper == "" {
		opts.Wrapper = DefaultWrapper
	}
	return &Synthesizer{cat: cat, opts: opts}
}

// Document is the delta of one snapshot.
type Document struct {
	Source   version.Source
	Entities []string
	doc      *etree.Document
}

// selection marks, for one snapshot, which nodes end up in its delta.
type selection struct {
	self   []bool // a version from the snapshot passes the inclusion rule
	sub    []bool // self or any descendant
	forced []bool // member of a repeated-sibling group that changed
}

func (s selection) emit(id catalog.NodeID) bool { return s.sub[id] || s.forced[id] }

// Synthesize builds the delta document of src. It works for the base file too,
// in which case it reproduces the snapshot.
func (s *Synthesizer) Synthesize(src version.Source) *Document {
	sel := s.selectNodes(src.Seq)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	wrapper := doc.CreateElement(s.opts.Wrapper)
	out := &Document{Source: src, doc: doc}

	elems := make(map[catalog.NodeID]*etree.Element)
	for _, publicID := range s.cat.EntityIDs() {
		root, _ := s.cat.Root(publicID)
		if !sel.emit(root) {
			continue
		}
		out.Entities = append(out.Entities, publicID)
		s.cat.Walk(root, func(id catalog.NodeID, _ int) bool {
			if !sel.emit(id) {
				return false
			}
			node := s.cat.Node(id)
			parent := wrapper
			if !node.IsRoot() {
				parent = elems[node.Parent()]
			}
			el := parent.CreateElement(node.Tag())
			s.writeAttrs(el, node)
			if sel.self[id] || sel.forced[id] {
				if v := node.Text().AsOf(src.Seq); v != nil && v.Value() != "" {
					el.SetText(v.Value())
				}
			}
			elems[id] = el
			return true
		})
	}
	doc.Indent(2)
	return out
}

func (s *Synthesizer) selectNodes(seq int) selection {
	n := s.cat.Len()
	sel := selection{
		self:   make([]bool, n),
		sub:    make([]bool, n),
		forced: make([]bool, n),
	}

	// Children always have larger IDs than their parents, so a descending scan
	// sees every subtree before its root.
	for i := n - 1; i >= 0; i-- {
		id := catalog.NodeID(i)
		node := s.cat.Node(id)
		if s.selfEligible(node, seq) {
			sel.self[id] = true
			sel.sub[id] = true
		}
		if sel.sub[id] && !node.IsRoot() {
			sel.sub[node.Parent()] = true
		}
	}

	// Ascending scan: parents are decided before their children.
	for i := 0; i < n; i++ {
		id := catalog.NodeID(i)
		node := s.cat.Node(id)
		if node.ChildCount() == 0 {
			continue
		}
		kids := present(s.cat, node.Children(), seq)
		if sel.forced[id] {
			for _, kid := range kids {
				sel.forced[kid] = true
			}
			continue
		}
		for _, group := range groups(s.cat, kids) {
			if len(group) < 2 || !slices.ContainsFunc(group, func(m catalog.NodeID) bool { return sel.sub[m] }) {
				continue
			}
			for _, m := range group {
				sel.forced[m] = true
			}
		}
	}
	return sel
}

func (s *Synthesizer) selfEligible(node *catalog.Node, seq int) bool {
	eligible := false
	node.Fields(func(_ string, h version.History) bool {
		for _, v := range h.From(seq) {
			if s.included(node, v) {
				eligible = true
				return false
			}
		}
		return true
	})
	return eligible
}

func (s *Synthesizer) included(node *catalog.Node, v *version.Version) bool {
	prev := v.Previous()
	if prev == nil {
		return v.Value() != "" || node.Identity() != "" || s.opts.IncludeNewEmptyFields
	}
	return prev.Value() != v.Value()
}

// writeAttrs writes the latest value of every attribute, identity attribute first.
func (s *Synthesizer) writeAttrs(el *etree.Element, node *catalog.Node) {
	idAttr := s.cat.IdentityAttribute()
	names := node.AttributeNames()
	if i := slices.Index(names, idAttr); i > 0 {
		names = append([]string{idAttr}, slices.Delete(names, i, i+1)...)
	}
	for _, name := range names {
		h, _ := node.Attribute(name)
		if v := h.Latest(); v != nil {
			el.CreateAttr(name, v.Value())
		}
	}
}

func present(cat *catalog.Catalog, ids []catalog.NodeID, seq int) []catalog.NodeID {
	out := ids[:0]
	for _, id := range ids {
		if cat.Node(id).PresentIn(seq) {
			out = append(out, id)
		}
	}
	return out
}

// groups splits siblings by tag, keeping first-seen order.
func groups(cat *catalog.Catalog, ids []catalog.NodeID) [][]catalog.NodeID {
	index := make(map[string]int)
	var out [][]catalog.NodeID
	for _, id := range ids {
		tag := cat.Node(id).Tag()
		i, ok := index[tag]
		if !ok {
			i = len(out)
			index[tag] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], id)
	}
	return out
}
