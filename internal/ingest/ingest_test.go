package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snapdiff/internal/catalog"
	"snapdiff/internal/manifest"
	"snapdiff/internal/snaperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const baseDoc = `<?xml version="1.0" encoding="UTF-8"?>
<import>
  <Role public-id="r1">
    <Name>Admin</Name>
    <Description>Full access</Description>
  </Role>
</import>`

func newIngestor() (*catalog.Builder, *Ingestor) {
	b := catalog.NewBuilder("public-id")
	return b, New(b, Options{Logger: quietLogger})
}

func ingestAll(t *testing.T, docs ...string) (*catalog.Catalog, []Stats) {
	t.Helper()
	b, in := newIngestor()
	var stats []Stats
	for i, doc := range docs {
		st, err := in.Ingest(context.Background(), fmt.Sprintf("f%d.xml", i), strings.NewReader(doc))
		require.NoError(t, err)
		stats = append(stats, st)
	}
	return b.Finish(), stats
}

func childByTag(cat *catalog.Catalog, parent catalog.NodeID, tag string) catalog.NodeID {
	for _, kid := range cat.Node(parent).Children() {
		if cat.Node(kid).Tag() == tag {
			return kid
		}
	}
	return catalog.NoNode
}

func TestIngest_BuildsVersionChains(t *testing.T) {
	changed := strings.Replace(baseDoc, "Admin", "Administrator", 1)
	cat, stats := ingestAll(t, baseDoc, changed)

	require.Equal(t, []string{"r1"}, cat.EntityIDs())
	root, _ := cat.Root("r1")
	assert.Equal(t, "Role", cat.Node(root).Tag())

	name := childByTag(cat, root, "Name")
	require.NotEqual(t, catalog.NoNode, name)
	h := cat.Node(name).Text()
	require.Equal(t, 2, h.Len())
	assert.Equal(t, "Admin", h.At(0).Value())
	assert.Equal(t, "Administrator", h.At(1).Value())
	assert.Equal(t, "f1.xml", h.At(1).Source().Name)
	assert.Same(t, h.At(0), h.At(1).Previous())

	desc := childByTag(cat, root, "Description")
	assert.Equal(t, 1, cat.Node(desc).Text().Len())

	assert.Equal(t, 1, stats[0].NewEntities)
	assert.Equal(t, 0, stats[1].NewEntities)
	assert.Equal(t, 1, stats[1].Versions)
}

func TestIngest_Idempotent(t *testing.T) {
	cat, stats := ingestAll(t, baseDoc, baseDoc)
	assert.Equal(t, 0, stats[1].Versions)
	assert.Equal(t, 0, stats[1].NodesCreated)
	assert.Equal(t, stats[0].Versions, cat.Stats().Versions)
	assert.Equal(t, 0, cat.VersionsFrom(1))
}

func TestIngest_FormattingWhitespaceIsEmpty(t *testing.T) {
	cat, _ := ingestAll(t, baseDoc)
	root, _ := cat.Root("r1")
	h := cat.Node(root).Text()
	require.Equal(t, 1, h.Len(), "whitespace between children must collapse to one empty version")
	assert.Equal(t, "", h.Latest().Value())

	pid, ok := cat.Node(root).Attribute("public-id")
	require.True(t, ok)
	assert.Equal(t, "r1", pid.Latest().Value())
}

func TestIngest_EmptyElementRecordsEmptyValue(t *testing.T) {
	cleared := strings.Replace(baseDoc, "<Description>Full access</Description>", "<Description/>", 1)
	cat, _ := ingestAll(t, baseDoc, cleared)
	root, _ := cat.Root("r1")
	h := cat.Node(childByTag(cat, root, "Description")).Text()
	require.Equal(t, 2, h.Len())
	assert.Equal(t, "", h.Latest().Value())
}

func TestIngest_PlaceholderRebind(t *testing.T) {
	second := `<import>
  <Role public-id="r2"><Name>Guest</Name></Role>
  <Role public-id="r1"><Name>Admin</Name><Description>Full access</Description></Role>
</import>`
	cat, stats := ingestAll(t, baseDoc, second)

	assert.Equal(t, []string{"r1", "r2"}, cat.EntityIDs())
	assert.Equal(t, 1, stats[1].NewEntities)
	assert.Equal(t, 2, stats[1].Entities)

	r1, _ := cat.Root("r1")
	assert.Equal(t, "f0.xml", cat.Node(r1).Introduced().Name)
	r2, _ := cat.Root("r2")
	assert.Equal(t, "f1.xml", cat.Node(r2).Introduced().Name)
	assert.Equal(t, 2, cat.Node(r1).ChildCount(), "existing entity must not gain duplicate children")
}

func TestIngest_RepeatedSiblingsMatchByPosition(t *testing.T) {
	doc := func(a, b, c string) string {
		return fmt.Sprintf(`<import><Role public-id="r1"><Codes><Code>%s</Code><Code>%s</Code><Code>%s</Code></Codes></Role></import>`, a, b, c)
	}
	cat, _ := ingestAll(t, doc("a", "b", "c"), doc("a", "B", "c"))

	root, _ := cat.Root("r1")
	codes := childByTag(cat, root, "Codes")
	kids := cat.Node(codes).Children()
	require.Len(t, kids, 3)
	assert.Equal(t, 1, cat.Node(kids[0]).Text().Len())
	assert.Equal(t, 2, cat.Node(kids[1]).Text().Len())
	assert.Equal(t, "B", cat.Node(kids[1]).Text().Latest().Value())
	assert.Equal(t, 1, cat.Node(kids[2]).Text().Len())
}

func TestIngest_IdentifiedSiblingsMatchById(t *testing.T) {
	first := `<import><Role public-id="r1"><Perm public-id="p1">read</Perm><Perm public-id="p2">write</Perm></Role></import>`
	swapped := `<import><Role public-id="r1"><Perm public-id="p2">write</Perm><Perm public-id="p1">read</Perm></Role></import>`
	cat, stats := ingestAll(t, first, swapped)

	assert.Equal(t, 0, stats[1].Versions)
	root, _ := cat.Root("r1")
	kids := cat.Node(root).Children()
	require.Len(t, kids, 2)
	assert.Equal(t, "p1", cat.Node(kids[0]).Identity())
	assert.Equal(t, "p2", cat.Node(kids[1]).Identity())
}

func TestIngest_NamespaceDeclarationsAreNotAttributes(t *testing.T) {
	doc := `<import xmlns="urn:x"><Role xmlns:a="urn:a" public-id="r1" a:flag="y"><Name>n</Name></Role></import>`
	cat, _ := ingestAll(t, doc)
	root, _ := cat.Root("r1")
	assert.Equal(t, []string{"public-id", "flag"}, cat.Node(root).AttributeNames())
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code snaperr.Code
		want string
	}{
		{
			name: "missing wrapper",
			doc:  `<export><Role public-id="r1"/></export>`,
			code: snaperr.CodeMissingRoot,
			want: "<import>",
		},
		{
			name: "empty document",
			doc:  `<?xml version="1.0"?>`,
			code: snaperr.CodeMissingRoot,
			want: "<import>",
		},
		{
			name: "malformed",
			doc:  `<import><Role public-id="r1"><Name>x</Role></import>`,
			code: snaperr.CodeMalformed,
		},
		{
			name: "truncated",
			doc:  `<import><Role public-id="r1">`,
			code: snaperr.CodeMalformed,
		},
		{
			name: "entity without identity",
			doc:  `<import><Role><Name>x</Name></Role></import>`,
			code: snaperr.CodeMissingIdentity,
		},
		{
			name: "entity repeated in one file",
			doc:  `<import><Role public-id="r1"/><Role public-id="r1"/></import>`,
			code: snaperr.CodeDuplicateIdentity,
		},
		{
			name: "identified sibling repeated",
			doc:  `<import><Role public-id="r1"><Perm public-id="p"/><Perm public-id="p"/></Role></import>`,
			code: snaperr.CodeDuplicateIdentity,
			want: "Role.Perm",
		},
		{
			name: "mixed entity types",
			doc:  `<import><Role public-id="r1"/><Group public-id="g1"/></import>`,
			code: snaperr.CodeUnexpectedEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, in := newIngestor()
			_, err := in.Ingest(context.Background(), "bad.xml", strings.NewReader(tt.doc))
			require.Error(t, err)
			code, ok := snaperr.CodeOf(err)
			require.True(t, ok, "error should carry a code: %v", err)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, err.Error(), "bad.xml")
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestIngest_IdentityCollisionAcrossFiles(t *testing.T) {
	_, in := newIngestor()
	_, err := in.Ingest(context.Background(), "a.xml", strings.NewReader(baseDoc))
	require.NoError(t, err)
	_, err = in.Ingest(context.Background(), "b.xml", strings.NewReader(`<import><Group public-id="r1"/></import>`))
	assert.True(t, snaperr.Is(err, snaperr.CodeIdentityCollision))
}

func TestIngest_CanceledContext(t *testing.T) {
	_, in := newIngestor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Ingest(ctx, "a.xml", strings.NewReader(baseDoc))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "base.xml")
	require.NoError(t, os.WriteFile(path, []byte(baseDoc), 0644))

	b, in := newIngestor()
	st, err := in.IngestFile(context.Background(), manifest.Entry{Name: "base.xml", Path: path})
	require.NoError(t, err)
	assert.Equal(t, "base.xml", st.File)
	assert.Equal(t, 1, st.Entities)

	_, err = in.IngestFile(context.Background(), manifest.Entry{Name: "gone.xml", Path: filepath.Join(dir, "gone.xml")})
	assert.True(t, snaperr.Is(err, snaperr.CodeMissingFile))
	assert.Len(t, b.Finish().Sources(), 1)
}

func TestIngest_Latin1Charset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><import><Role public-id=\"r1\"><Name>Caf\xe9</Name></Role></import>"
	cat, _ := ingestAll(t, doc)
	root, _ := cat.Root("r1")
	assert.Equal(t, "Café", cat.Node(childByTag(cat, root, "Name")).Text().Latest().Value())
}
