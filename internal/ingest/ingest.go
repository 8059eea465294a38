package ingest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"snapdiff/internal/catalog"
	"snapdiff/internal/manifest"
	"snapdiff/internal/snaperr"
	"snapdiff/internal/version"

	"golang.org/x/net/html/charset"
)

// DefaultWrapper is the root element every snapshot is wrapped in.
const DefaultWrapper = "import"

// ctxCheckInterval is how many tokens are read between context checks.
const ctxCheckInterval = 1024

// Options configures an Ingestor.
type Options struct {
	// Wrapper is the expected document root element. Defaults to DefaultWrapper.
	Wrapper string
	Logger  *slog.Logger
}

// Stats counts what one snapshot contributed to the catalog.
type Stats struct {
	File         string
	Elements     int
	Entities     int
	NewEntities  int
	NodesCreated int
	Versions     int
}

// Ingestor streams snapshots into a catalog.Builder, strictly one at a time.
type Ingestor struct {
	b       *catalog.Builder
	wrapper string
	logger  *slog.Logger
}

// New creates an ingestor feeding b.
func New(b *catalog.Builder, opts Options) *Ingestor {
	wrapper := opts.Wrapper
	if wrapper == "" {
		wrapper = DefaultWrapper
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{b: b, wrapper: wrapper, logger: logger}
}

// IngestFile opens a manifest entry and ingests it.
func (in *Ingestor) IngestFile(ctx context.Context, entry manifest.Entry) (Stats, error) {
	f, err := os.Open(entry.Path)
	if err != nil {
		return Stats{}, snaperr.Wrap(snaperr.CodeMissingFile, err, "cannot open snapshot").In(entry.Name, 0)
	}
	defer f.Close()
	return in.Ingest(ctx, entry.Name, f)
}

// Ingest registers name as the next snapshot and applies its content.
func (in *Ingestor) Ingest(ctx context.Context, name string, r io.Reader) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	src := in.b.AddSource(name)
	in.logger.Info("start: processing snapshot", "file", name, "seq", src.Seq)

	p := &fileParser{
		b:        in.b,
		src:      src,
		wrapper:  in.wrapper,
		idAttr:   in.b.IdentityAttribute(),
		entities: make(map[string]struct{}),
		stats:    Stats{File: name},
	}
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	if err := p.run(ctx, dec); err != nil {
		return p.stats, err
	}

	in.logger.Info("complete: processing snapshot",
		"file", name,
		"entities", p.stats.Entities,
		"new_entities", p.stats.NewEntities,
		"nodes_created", p.stats.NodesCreated,
		"versions", p.stats.Versions,
	)
	return p.stats, nil
}

type frame struct {
	id      catalog.NodeID
	text    strings.Builder
	unnamed map[string]int
	named   map[string]struct{}
}

type fileParser struct {
	b       *catalog.Builder
	src     version.Source
	wrapper string
	idAttr  string

	dec           *xml.Decoder
	stack         []*frame
	wrapperOpen   bool
	wrapperClosed bool
	// expectDeclaration is set once the wrapper opens: the next start tag names the entity type.
	expectDeclaration bool
	entityType        string
	entities          map[string]struct{}
	stats             Stats
}

func (p *fileParser) run(ctx context.Context, dec *xml.Decoder) error {
	p.dec = dec
	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return snaperr.Wrap(snaperr.CodeMalformed, err, "malformed document").In(p.src.Name, dec.InputOffset())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			err = p.start(t)
		case xml.CharData:
			if len(p.stack) > 0 {
				p.top().text.Write(t)
			}
		case xml.EndElement:
			err = p.end()
		}
		if err != nil {
			return err
		}
	}
	if !p.wrapperOpen {
		return p.fail(snaperr.New(snaperr.CodeMissingRoot, "missing <%s> root element", p.wrapper))
	}
	return nil
}

func (p *fileParser) start(t xml.StartElement) error {
	tag := t.Name.Local
	switch {
	case !p.wrapperOpen:
		if tag != p.wrapper {
			return p.fail(snaperr.New(snaperr.CodeMissingRoot, "missing <%s> root element, found <%s>", p.wrapper, tag))
		}
		p.wrapperOpen = true
		p.expectDeclaration = true
		return nil
	case p.wrapperClosed:
		return p.fail(snaperr.New(snaperr.CodeUnexpectedEntity, "element <%s> outside <%s>", tag, p.wrapper))
	}

	p.stats.Elements++
	identity := attrValue(t.Attr, p.idAttr)

	var id catalog.NodeID
	if len(p.stack) == 0 {
		var err error
		if id, err = p.startEntity(tag, identity); err != nil {
			return err
		}
	} else {
		parent := p.top()
		ordinal := 0
		if identity != "" {
			key := tag + "\x00" + identity
			if _, dup := parent.named[key]; dup {
				return p.fail(snaperr.New(snaperr.CodeDuplicateIdentity,
					"sibling <%s %s=%q> repeated", tag, p.idAttr, identity).At(p.b.Path(parent.id) + "." + tag))
			}
			if parent.named == nil {
				parent.named = make(map[string]struct{})
			}
			parent.named[key] = struct{}{}
		} else {
			if parent.unnamed == nil {
				parent.unnamed = make(map[string]int)
			}
			ordinal = parent.unnamed[tag]
			parent.unnamed[tag]++
		}
		var created bool
		id, created = p.b.Child(parent.id, tag, identity, ordinal, p.src)
		if created {
			p.stats.NodesCreated++
		}
	}
	p.stack = append(p.stack, &frame{id: id})

	for _, a := range t.Attr {
		if isNamespaceDecl(a.Name) {
			continue
		}
		added, err := p.b.SetAttr(id, p.src, a.Name.Local, a.Value)
		if err != nil {
			return p.fail(err)
		}
		if added {
			p.stats.Versions++
		}
	}
	return nil
}

// startEntity resolves a top-level element in two phases: a provisional root
// is opened, then bound to an existing root or promoted under its public-id.
func (p *fileParser) startEntity(tag, publicID string) (catalog.NodeID, error) {
	if p.expectDeclaration {
		p.entityType = tag
		p.expectDeclaration = false
	}
	if tag != p.entityType {
		return catalog.NoNode, p.fail(snaperr.New(snaperr.CodeUnexpectedEntity,
			"<%s> in a snapshot of %s entities", tag, p.entityType))
	}
	if publicID == "" {
		return catalog.NoNode, p.fail(snaperr.New(snaperr.CodeMissingIdentity,
			"<%s> has no %s attribute", tag, p.idAttr))
	}
	if _, dup := p.entities[publicID]; dup {
		return catalog.NoNode, p.fail(snaperr.New(snaperr.CodeDuplicateIdentity,
			"entity %s=%q appears twice", p.idAttr, publicID).At(tag))
	}
	p.entities[publicID] = struct{}{}

	before := p.b.IdentityKnown(publicID)
	id, err := p.b.BeginEntity(tag, p.src).Bind(publicID)
	if err != nil {
		return catalog.NoNode, p.fail(err)
	}
	if !before {
		p.stats.NewEntities++
		p.stats.NodesCreated++
	}
	return id, nil
}

func (p *fileParser) end() error {
	if len(p.stack) == 0 {
		p.wrapperClosed = true
		return nil
	}
	top := p.top()
	content := top.text.String()
	if strings.ContainsAny(content, "\r\n") {
		// Line breaks only appear in formatting whitespace between child elements.
		content = ""
	}
	added, err := p.b.SetText(top.id, p.src, content)
	if err != nil {
		return p.fail(err)
	}
	if added {
		p.stats.Versions++
	}
	if len(p.stack) == 1 {
		p.b.Commit(top.id)
		p.stats.Entities++
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

func (p *fileParser) top() *frame { return p.stack[len(p.stack)-1] }

// fail attaches the snapshot location to err.
func (p *fileParser) fail(err error) error {
	var se *snaperr.Error
	if errors.As(err, &se) {
		if se.File == "" {
			se.In(p.src.Name, p.dec.InputOffset())
		}
		return se
	}
	return fmt.Errorf("%s: %w", p.src.Name, err)
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name && !isNamespaceDecl(a.Name) {
			return a.Value
		}
	}
	return ""
}

func isNamespaceDecl(n xml.Name) bool {
	return n.Space == "xmlns" || (n.Space == "" && n.Local == "xmlns")
}
