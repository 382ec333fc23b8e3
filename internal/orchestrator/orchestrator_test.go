package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/crawler"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/log"
	"github.com/forgebuild/forgebuild/internal/orchestrator"
	"github.com/forgebuild/forgebuild/internal/project"
)

const fakeLang = "lang.fake"

// registerFakeDriver installs a toolchain-free driver: OBJECTS copies each
// *.src to an .o under the cache dir, ARTEFACT concatenates the objects
// into the bound artefact path. failProjects lists project ids whose
// ARTEFACT action fails, for the partial-failure scenarios.
func registerFakeDriver(registry *driver.Registry, failProjects ...string) {
	registry.RegisterLanguage("fake", fakeLang)
	registry.RegisterBuiltin(fakeLang, func(api *driver.API) error {
		if err := api.Pattern("SOURCES", "*.src"); err != nil {
			return err
		}

		objects := driver.TargetMapSpec(func(source string) string {
			return filepath.Join(".forgebuild", "obj", strings.TrimSuffix(source, ".src")+".o")
		})

		compile := func(_ *buildctx.Context, p *project.Project, sources []string, target string) error {
			data, err := os.ReadFile(filepath.Join(p.Path, sources[0]))
			if err != nil {
				return err
			}

			full := filepath.Join(p.Path, target)
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return err
			}

			return os.WriteFile(full, data, 0o644)
		}

		if err := api.Rule("OBJECTS", "SOURCES", objects, compile); err != nil {
			return err
		}

		link := func(_ *buildctx.Context, p *project.Project, sources []string, target string) error {
			for _, fail := range failProjects {
				if p.ID == fail {
					return errs.Errorf("link failed for %s", p.ID)
				}
			}

			var combined []byte

			for _, src := range sources {
				data, err := os.ReadFile(filepath.Join(p.Path, src))
				if err != nil {
					return err
				}

				combined = append(combined, data...)
			}

			full := filepath.Join(p.Path, target)
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return err
			}

			return os.WriteFile(full, combined, 0o644)
		}

		if err := api.Rule("ARTEFACT", "OBJECTS", driver.TargetFileSpec(".forgebuild/bin/ARTEFACT"), link); err != nil {
			return err
		}

		api.Artefact("ARTEFACT")

		api.OnClean(func(_ *buildctx.Context, p *project.Project) error {
			api.Remove(p, ".forgebuild")
			return nil
		})

		return nil
	})
}

func writeProject(t *testing.T, root, rel, manifestJSON string, sources map[string]string) string {
	t.Helper()

	dir := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.json"), []byte(manifestJSON), 0o644))

	for name, contents := range sources {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}

	return dir
}

func newTestContext(root string) *buildctx.Context {
	return buildctx.New(context.Background(), buildctx.Default(root), log.Default())
}

func runBuild(t *testing.T, root string, opts orchestrator.Options) crawler.Result {
	t.Helper()

	ctx := newTestContext(root)

	projects, err := crawler.Search(root)
	require.NoError(t, err)

	resolver := crawler.NewResolver(projects, ctx.InstallRoots)
	require.NoError(t, resolver.Build())

	return resolver.Walk(func(p *project.Project) error {
		return orchestrator.Build(ctx, p, opts)
	})
}

func TestBuildSingleApplication(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := writeProject(t, root, "hi",
		`{"id": "hi", "type": "application", "language": "fake"}`,
		map[string]string{"main.src": "print hi\n"})

	registry := driver.NewRegistry()
	registerFakeDriver(registry)

	result := runBuild(t, root, orchestrator.Options{Registry: registry})
	require.True(t, result.Succeeded(), "failed: %v blocked: %v", result.Failed, result.Blocked)
	assert.Equal(t, []string{"hi"}, result.Built)

	assert.FileExists(t, filepath.Join(dir, ".forgebuild", "obj", "main.o"))
	assert.FileExists(t, filepath.Join(dir, ".forgebuild", "bin", "hi"))
}

func TestBuildTwoProjectChainInOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProject(t, root, "libfoo",
		`{"id": "libfoo", "type": "package", "language": "fake"}`,
		map[string]string{"foo.src": "foo\n"})
	writeProject(t, root, "app",
		`{"id": "app", "type": "application", "language": "fake", "use": ["libfoo"]}`,
		map[string]string{"main.src": "main\n"})

	registry := driver.NewRegistry()
	registerFakeDriver(registry)

	ctx := newTestContext(root)

	projects, err := crawler.Search(root)
	require.NoError(t, err)

	resolver := crawler.NewResolver(projects, nil)
	require.NoError(t, resolver.Build())

	var order []string

	result := resolver.Walk(func(p *project.Project) error {
		order = append(order, p.ID)
		return orchestrator.Build(ctx, p, orchestrator.Options{Registry: registry})
	})

	require.True(t, result.Succeeded())
	assert.Equal(t, []string{"libfoo", "app"}, order)
	assert.Equal(t, []string{"libfoo"}, projects["app"].Link,
		"the resolver must record libfoo as a link target for app")
}

func TestBuildPartialFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProject(t, root, "a",
		`{"id": "a", "type": "package", "language": "fake"}`,
		map[string]string{"a.src": "a\n"})
	writeProject(t, root, "b",
		`{"id": "b", "type": "application", "language": "fake", "use": ["a"]}`,
		map[string]string{"b.src": "b\n"})
	writeProject(t, root, "c",
		`{"id": "c", "type": "application", "language": "fake"}`,
		map[string]string{"c.src": "c\n"})

	registry := driver.NewRegistry()
	registerFakeDriver(registry, "a")

	result := runBuild(t, root, orchestrator.Options{Registry: registry})

	assert.Equal(t, []string{"c"}, result.Built)
	assert.Equal(t, []string{"a"}, result.Failed)
	assert.Equal(t, []string{"b"}, result.Blocked)
	assert.False(t, result.Succeeded())
}

func TestBuildSkipsFreshArtefact(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProject(t, root, "hi",
		`{"id": "hi", "type": "application", "language": "fake"}`,
		map[string]string{"main.src": "print hi\n"})

	registry := driver.NewRegistry()
	registerFakeDriver(registry)

	ctx := newTestContext(root)

	projects, err := crawler.Search(root)
	require.NoError(t, err)

	first := projects["hi"]
	require.NoError(t, orchestrator.Build(ctx, first, orchestrator.Options{Registry: registry}))
	assert.True(t, first.Changed)
	assert.True(t, first.FreshlyBaked)

	// A second run over an unchanged tree fires nothing.
	again, err := crawler.Search(root)
	require.NoError(t, err)

	second := again["hi"]
	require.NoError(t, orchestrator.Build(ctx, second, orchestrator.Options{Registry: registry}))
	assert.False(t, second.Changed, "an up-to-date project must not re-fire its rules")
	assert.False(t, second.FreshlyBaked)
}

func TestCleanRemovesDeclaredIntermediates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := writeProject(t, root, "hi",
		`{"id": "hi", "type": "application", "language": "fake"}`,
		map[string]string{"main.src": "print hi\n"})

	registry := driver.NewRegistry()
	registerFakeDriver(registry)

	result := runBuild(t, root, orchestrator.Options{Registry: registry})
	require.True(t, result.Succeeded())
	require.DirExists(t, filepath.Join(dir, ".forgebuild"))

	ctx := newTestContext(root)

	projects, err := crawler.Search(root)
	require.NoError(t, err)

	require.NoError(t, orchestrator.Build(ctx, projects["hi"], orchestrator.Options{Registry: registry, RunClean: true}))
	assert.NoDirExists(t, filepath.Join(dir, ".forgebuild"))
	assert.FileExists(t, filepath.Join(dir, "main.src"), "clean must not touch sources")
}

func TestBuildInstallsArtefactAndHeaders(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProject(t, root, "libfoo",
		`{"id": "libfoo", "type": "package", "language": "fake"}`,
		map[string]string{"foo.src": "foo\n"})

	installDir := t.TempDir()

	registry := driver.NewRegistry()
	registerFakeDriver(registry)

	result := runBuild(t, root, orchestrator.Options{Registry: registry, InstallDir: installDir})
	require.True(t, result.Succeeded())

	entries, err := os.ReadDir(filepath.Join(installDir, "libfoo"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
