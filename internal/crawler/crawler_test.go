package crawler_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forgebuild/internal/crawler"
)

func writeProjectDir(t *testing.T, root, rel, manifestJSON string) {
	t.Helper()

	dir := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.json"), []byte(manifestJSON), 0o644))
}

func writeInstalledPackage(t *testing.T, root, idUnderscore string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, idUnderscore), 0o755))
}

func TestSearchFindsProjects(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectDir(t, root, "libfoo", `{"id": "libfoo", "type": "package", "language": "c"}`)
	writeProjectDir(t, root, "app", `{"id": "app", "type": "application", "language": "c", "use": ["libfoo"]}`)

	projects, err := crawler.Search(root)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	assert.Equal(t, filepath.Join(root, "libfoo"), projects["libfoo"].Path)
	assert.Equal(t, []string{"libfoo"}, projects["app"].Use)
}

func TestSearchStopsDescentAtNonRecursiveProject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectDir(t, root, "parent", `{"id": "parent", "type": "package", "language": "c"}`)
	writeProjectDir(t, root, "parent/child", `{"id": "child", "type": "package", "language": "c"}`)

	projects, err := crawler.Search(root)
	require.NoError(t, err)

	assert.Contains(t, projects, "parent")
	assert.NotContains(t, projects, "child", "descent must stop at a non-recursive project")
}

func TestSearchDescendsIntoRecursiveProject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectDir(t, root, "parent", `{"id": "parent", "type": "package", "language": "c", "recursive": true}`)
	writeProjectDir(t, root, "parent/child", `{"id": "child", "type": "package", "language": "c"}`)

	projects, err := crawler.Search(root)
	require.NoError(t, err)

	assert.Contains(t, projects, "parent")
	assert.Contains(t, projects, "child")
}

func TestSearchRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectDir(t, root, "one", `{"id": "dup", "type": "package", "language": "c"}`)
	writeProjectDir(t, root, "two", `{"id": "dup", "type": "package", "language": "c"}`)

	_, err := crawler.Search(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate project id")
}

func TestSearchPropagatesManifestErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectDir(t, root, "bad", `{"type": "package"}`)

	_, err := crawler.Search(root)
	assert.Error(t, err)
}
