package crawler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forgebuild/internal/crawler"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/project"
)

func newProject(id string, use ...string) *project.Project {
	p := project.New(id, project.KindPackage, "/src/"+id, "c")
	p.Use = use

	return p
}

func projectSet(ps ...*project.Project) map[string]*project.Project {
	out := make(map[string]*project.Project, len(ps))
	for _, p := range ps {
		out[p.ID] = p
	}

	return out
}

func TestWalkVisitsDependenciesFirst(t *testing.T) {
	t.Parallel()

	lib := newProject("libfoo")
	app := newProject("app", "libfoo")

	resolver := crawler.NewResolver(projectSet(lib, app), nil)
	require.NoError(t, resolver.Build())

	var order []string

	result := resolver.Walk(func(p *project.Project) error {
		// Every declared dependency must already be built when a project
		// is presented to the callback.
		for _, dep := range p.AllDependencyIDs() {
			assert.True(t, projectSet(lib, app)[dep].Built, "dependency %q of %q not built first", dep, p.ID)
		}

		order = append(order, p.ID)

		return nil
	})

	assert.True(t, result.Succeeded())
	assert.Equal(t, []string{"libfoo", "app"}, order)
	assert.Equal(t, []string{"app", "libfoo"}, result.Built)
}

func TestWalkDetectsCycle(t *testing.T) {
	t.Parallel()

	a := newProject("a", "b")
	b := newProject("b", "a")

	resolver := crawler.NewResolver(projectSet(a, b), nil)
	require.NoError(t, resolver.Build())

	var visited []string

	result := resolver.Walk(func(p *project.Project) error {
		visited = append(visited, p.ID)
		return nil
	})

	assert.Empty(t, visited, "neither member of a cycle may build")
	assert.False(t, result.Succeeded())
	assert.Equal(t, []string{"a", "b"}, result.Cycles)
	assert.Positive(t, a.UnresolvedDependencies())
	assert.Positive(t, b.UnresolvedDependencies())
}

func TestWalkPartialFailure(t *testing.T) {
	t.Parallel()

	a := newProject("a")
	b := newProject("b", "a")
	c := newProject("c")

	resolver := crawler.NewResolver(projectSet(a, b, c), nil)
	require.NoError(t, resolver.Build())

	result := resolver.Walk(func(p *project.Project) error {
		if p.ID == "a" {
			return errs.Errorf("link failed")
		}

		return nil
	})

	assert.False(t, result.Succeeded())
	assert.Equal(t, []string{"c"}, result.Built, "independent project must still build")
	assert.Equal(t, []string{"a"}, result.Failed)
	assert.Equal(t, []string{"b"}, result.Blocked)
	assert.Empty(t, result.Cycles)

	assert.False(t, b.Built)
	assert.False(t, b.Error, "a blocked project is not itself in error")
}

func TestWalkBlockedSetIsTransitive(t *testing.T) {
	t.Parallel()

	a := newProject("a")
	b := newProject("b", "a")
	c := newProject("c", "b")

	resolver := crawler.NewResolver(projectSet(a, b, c), nil)
	require.NoError(t, resolver.Build())

	result := resolver.Walk(func(p *project.Project) error {
		return errs.Errorf("boom")
	})

	assert.Equal(t, []string{"a"}, result.Failed)
	assert.Equal(t, []string{"b", "c"}, result.Blocked)
}

func TestBuildRejectsUnresolvedDependency(t *testing.T) {
	t.Parallel()

	app := newProject("app", "no/such/lib")

	resolver := crawler.NewResolver(projectSet(app), nil)
	err := resolver.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no/such/lib")
	assert.True(t, app.Error)

	result := resolver.Walk(func(p *project.Project) error {
		t.Fatalf("project %q with an unresolved dependency must not build", p.ID)
		return nil
	})

	assert.Equal(t, []string{"app"}, result.Failed)
}

func TestBuildResolvesExternalDependencyFromInstallRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeInstalledPackage(t, root, "ext_lib")

	app := newProject("app", "ext/lib")

	resolver := crawler.NewResolver(projectSet(app), []string{root})
	require.NoError(t, resolver.Build())

	assert.Equal(t, []string{"ext_lib"}, app.Link)

	result := resolver.Walk(func(p *project.Project) error { return nil })
	assert.True(t, result.Succeeded())
	assert.Equal(t, []string{"app"}, result.Built)
}
