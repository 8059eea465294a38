package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snapdiff/internal/snaperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SkipsBlankAndComments(t *testing.T) {
	input := "base.xml\n\n# hotfix\n  second.xml  \r\nthird.xml"
	m, err := Parse("/data", strings.NewReader(input))
	require.NoError(t, err)

	var names []string
	for _, e := range m.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"base.xml", "second.xml", "third.xml"}, names)
	assert.Equal(t, filepath.Join("/data", "second.xml"), m.Entries[1].Path)

	base, ok := m.Base()
	require.True(t, ok)
	assert.Equal(t, "base.xml", base.Name)
}

func TestLoad_MissingManifest(t *testing.T) {
	_, err := Load(t.TempDir(), DefaultName)
	require.Error(t, err)
	assert.True(t, snaperr.Is(err, snaperr.CodeMissingManifest))
}

func TestCheck_MissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultName), []byte("a.xml\nb.xml\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("<import/>"), 0644))

	m, err := Load(dir, DefaultName)
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)

	err = m.Check()
	require.Error(t, err)
	assert.True(t, snaperr.Is(err, snaperr.CodeMissingFile))
	assert.Contains(t, err.Error(), "b.xml")
}

func TestBase_Empty(t *testing.T) {
	m, err := Parse(".", strings.NewReader("\n# nothing\n"))
	require.NoError(t, err)
	_, ok := m.Base()
	assert.False(t, ok)
}
