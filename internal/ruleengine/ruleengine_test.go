package ruleengine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/log"
	"github.com/forgebuild/forgebuild/internal/project"
	"github.com/forgebuild/forgebuild/internal/ruleengine"
)

const testDriverID = "test.copy"

// newTestDriver registers a SOURCES pattern (*.in) and a single TargetMap
// rule ("OBJECTS") that copies each *.in file to a sibling *.out file,
// mirroring the shape langc uses for its OBJECTS rule.
func newTestDriver(t *testing.T, ctx *buildctx.Context, actionCalls *int) *driver.Driver {
	t.Helper()

	registry := driver.NewRegistry()
	registry.RegisterBuiltin(testDriverID, func(api *driver.API) error {
		if err := api.Pattern("SOURCES", "*.in"); err != nil {
			return err
		}

		target := driver.TargetMapSpec(func(source string) string {
			return source[:len(source)-len(filepath.Ext(source))] + ".out"
		})

		action := func(_ *buildctx.Context, p *project.Project, sources []string, target string) error {
			*actionCalls++

			data, err := os.ReadFile(filepath.Join(p.Path, sources[0]))
			if err != nil {
				return err
			}

			return os.WriteFile(filepath.Join(p.Path, target), data, 0o644)
		}

		return api.Rule("OBJECTS", "SOURCES", target, action)
	})

	d, err := registry.Load(ctx, testDriverID)
	require.NoError(t, err)

	d.Root = "OBJECTS"

	return d
}

func newTestContext(root string) *buildctx.Context {
	cfg := buildctx.Default(root)
	return buildctx.New(context.Background(), cfg, log.Default())
}

func TestEvaluateFiresActionWhenTargetMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.in"), []byte("hello"), 0o644))

	ctx := newTestContext(dir)
	var calls int
	d := newTestDriver(t, ctx, &calls)

	p := project.New("demo", project.KindPackage, dir, "c")

	outputs, err := ruleengine.Evaluate(ctx, p, d, d.Root)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, outputs, "a.out")
	assert.FileExists(t, filepath.Join(dir, "a.out"))
}

func TestEvaluateSkipsActionWhenTargetFresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.in"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.out"), []byte("hello"), 0o644))

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.in"), now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.out"), now, now))

	ctx := newTestContext(dir)
	var calls int
	d := newTestDriver(t, ctx, &calls)

	p := project.New("demo", project.KindPackage, dir, "c")

	_, err := ruleengine.Evaluate(ctx, p, d, d.Root)
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "a fresh target must not re-fire its action")
}

func TestEvaluateRefiresWhenSourceNewerThanTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.out"), []byte("stale"), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.out"), past, past))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.in"), []byte("fresh"), 0o644))

	ctx := newTestContext(dir)
	var calls int
	d := newTestDriver(t, ctx, &calls)

	p := project.New("demo", project.KindPackage, dir, "c")

	_, err := ruleengine.Evaluate(ctx, p, d, d.Root)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEvaluateFailsWhenRootNodeUnknown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := newTestContext(dir)

	var calls int
	d := newTestDriver(t, ctx, &calls)

	p := project.New("demo", project.KindPackage, dir, "c")

	_, err := ruleengine.Evaluate(ctx, p, d, "NO_SUCH_RULE")
	assert.Error(t, err)
}
