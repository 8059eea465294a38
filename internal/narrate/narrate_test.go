package narrate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snapdiff/internal/catalog"
	"snapdiff/internal/ingest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	name string
	doc  string
}

func build(t *testing.T, snaps ...snapshot) *catalog.Catalog {
	t.Helper()
	b := catalog.NewBuilder("public-id")
	in := ingest.New(b, ingest.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	for _, s := range snaps {
		_, err := in.Ingest(context.Background(), s.name, strings.NewReader(s.doc))
		require.NoError(t, err)
	}
	return b.Finish()
}

func role(id, inner string) string {
	return fmt.Sprintf("<import>\n  <Role public-id=%q>\n    %s\n  </Role>\n</import>", id, inner)
}

func linesBySource(sections []Section) map[string][]string {
	out := make(map[string][]string)
	for _, s := range sections {
		out[s.Source.Name] = s.Lines()
	}
	return out
}

func TestSections_ChangedValue(t *testing.T) {
	cat := build(t,
		snapshot{"base.xml", role("1", "<name>A</name>")},
		snapshot{"second.xml", role("1", "<name>B</name>")},
	)
	sections := New(cat, Options{}).Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "second.xml", sections[0].Source.Name)

	c := sections[0].Changes[0]
	assert.Equal(t, KindChanged, c.Kind)
	assert.Equal(t, "Role.name", c.Path)
	assert.Equal(t, "Changed Role.name for '1' to 'B'", c.Line)
}

func TestSections_NewEntityReportedOnce(t *testing.T) {
	fields := "<a>1</a><b>2</b><c>3</c><d>4</d><e>5</e>"
	cat := build(t,
		snapshot{"base.xml", role("1", "<name>A</name>")},
		snapshot{"second.xml", "<import>" + `<Role public-id="1"><name>A</name></Role>` +
			`<Role public-id="2">` + fields + `</Role></import>`},
	)
	got := linesBySource(New(cat, Options{}).Sections())
	want := map[string][]string{
		"second.xml": {"Added new Role with public-id: 2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestSections_AddedFieldOnExistingEntity(t *testing.T) {
	snaps := []snapshot{
		{"base.xml", role("1", "<name>A</name>")},
		{"second.xml", role("1", "<name>A</name><email>a@x</email><note></note>")},
	}

	t.Run("empty fields suppressed", func(t *testing.T) {
		got := linesBySource(New(build(t, snaps...), Options{}).Sections())
		assert.Equal(t, []string{"Added Role.email for '1' with value 'a@x'"}, got["second.xml"])
	})

	t.Run("empty fields included", func(t *testing.T) {
		got := linesBySource(New(build(t, snaps...), Options{IncludeNewEmptyFields: true}).Sections())
		assert.Equal(t, []string{
			"Added Role.email for '1' with value 'a@x'",
			"Added Role.note for '1' with value ''",
		}, got["second.xml"])
	})
}

func TestSections_AttributeChange(t *testing.T) {
	cat := build(t,
		snapshot{"base.xml", `<import><Role public-id="1" level="1"><name>A</name></Role></import>`},
		snapshot{"second.xml", `<import><Role public-id="1" level="2"><name>A</name></Role></import>`},
	)
	got := linesBySource(New(cat, Options{}).Sections())
	assert.Equal(t, []string{"Changed Role@level for '1' to '2'"}, got["second.xml"])
}

func TestSections_OrderDecidesAttribution(t *testing.T) {
	base := snapshot{"base.xml", role("1", "<name>A</name>")}
	a := snapshot{"a.xml", role("1", "<name>A</name><email>a</email>")}
	b := snapshot{"b.xml", role("1", "<name>A</name><email>b</email>")}

	forward := linesBySource(New(build(t, base, a, b), Options{}).Sections())
	assert.Equal(t, []string{"Added Role.email for '1' with value 'a'"}, forward["a.xml"])
	assert.Equal(t, []string{"Changed Role.email for '1' to 'b'"}, forward["b.xml"])

	swapped := linesBySource(New(build(t, base, b, a), Options{}).Sections())
	assert.Equal(t, []string{"Added Role.email for '1' with value 'b'"}, swapped["b.xml"])
	assert.Equal(t, []string{"Changed Role.email for '1' to 'a'"}, swapped["a.xml"])
}

func TestSections_SortedAndUnchangedFilesOmitted(t *testing.T) {
	cat := build(t,
		snapshot{"base.xml", role("1", "<z>1</z><a>1</a>")},
		snapshot{"same.xml", role("1", "<z>1</z><a>1</a>")},
		snapshot{"third.xml", role("1", "<z>2</z><a>2</a>")},
	)
	sections := New(cat, Options{}).Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "third.xml", sections[0].Source.Name)
	assert.Equal(t, []string{
		"Changed Role.a for '1' to '2'",
		"Changed Role.z for '1' to '2'",
	}, sections[0].Lines())
}

func TestWriteReport(t *testing.T) {
	cat := build(t,
		snapshot{"base.xml", role("1", "<name>A</name>")},
		snapshot{"second.xml", role("1", "<name>B</name>")},
		snapshot{"third.xml", role("1", "<name>C</name>")},
	)
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, New(cat, Options{}).Sections()))

	want := "\n" + Divider + "\nsecond.xml:\nChanged Role.name for '1' to 'B'\n" +
		"\n" + Divider + "\nthird.xml:\nChanged Role.name for '1' to 'C'\n"
	assert.Equal(t, want, buf.String())
}

func TestSaveReport(t *testing.T) {
	cat := build(t,
		snapshot{"base.xml", role("1", "<name>A</name>")},
		snapshot{"second.xml", role("1", "<name>B</name>")},
	)
	path := filepath.Join(t.TempDir(), "out", "changes.txt")
	require.NoError(t, SaveReport(path, New(cat, Options{}).Sections()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "second.xml:\nChanged Role.name for '1' to 'B'\n")
}
