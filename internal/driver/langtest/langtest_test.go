package langtest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/driver/langc"
	"github.com/forgebuild/forgebuild/internal/driver/langtest"
	"github.com/forgebuild/forgebuild/internal/log"
	"github.com/forgebuild/forgebuild/internal/project"
)

func loadDriver(t *testing.T) (*buildctx.Context, *driver.Driver) {
	t.Helper()

	ctx := buildctx.New(context.Background(), buildctx.Default(t.TempDir()), log.Default())

	registry := driver.NewRegistry()
	registry.RegisterBuiltin(langc.ID, langc.Register)
	registry.RegisterBuiltin(langtest.ID, langtest.Register)

	d, err := registry.Load(ctx, langtest.ID)
	require.NoError(t, err)

	return ctx, d
}

func newTestProject(t *testing.T, suites ...project.TestSuite) *project.Project {
	t.Helper()

	p := project.New("suite/math", project.KindApplication, t.TempDir(), "test")
	p.TestSuites = suites

	return p
}

func TestGenerateScaffoldsSuiteAndRunner(t *testing.T) {
	t.Parallel()

	ctx, d := loadDriver(t)

	generateCb, ok := d.Phase(driver.PhaseGenerate)
	require.True(t, ok)

	p := newTestProject(t, project.TestSuite{ID: "basic", TestCases: []string{"test_add", "test_sub"}})
	require.NoError(t, generateCb(ctx, p))

	suitePath := filepath.Join(p.Path, "src", "basic.c")
	require.FileExists(t, suitePath)

	suite, err := os.ReadFile(suitePath)
	require.NoError(t, err)
	assert.Contains(t, string(suite), "void test_add(void)")
	assert.Contains(t, string(suite), "void test_sub(void)")

	runnerPath := filepath.Join(p.Path, "src", "main.c")
	require.FileExists(t, runnerPath)

	runner, err := os.ReadFile(runnerPath)
	require.NoError(t, err)
	assert.Contains(t, string(runner), "extern void test_add(void);")
	assert.Contains(t, string(runner), "test_sub();")

	// The inherited generate phase still ran first.
	assert.FileExists(t, filepath.Join(p.Path, "suite_math_dependencies.h"))
}

func TestGeneratePreservesImplementedSuites(t *testing.T) {
	t.Parallel()

	ctx, d := loadDriver(t)

	generateCb, ok := d.Phase(driver.PhaseGenerate)
	require.True(t, ok)

	p := newTestProject(t, project.TestSuite{ID: "basic", TestCases: []string{"test_add"}})

	require.NoError(t, os.MkdirAll(filepath.Join(p.Path, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.Path, "src", "basic.c"), []byte("// implemented\n"), 0o644))

	require.NoError(t, generateCb(ctx, p))

	suite, err := os.ReadFile(filepath.Join(p.Path, "src", "basic.c"))
	require.NoError(t, err)
	assert.Equal(t, "// implemented\n", string(suite),
		"regeneration must not clobber an implemented suite")
}

func TestGenerateRejectsSuiteWithoutID(t *testing.T) {
	t.Parallel()

	ctx, d := loadDriver(t)

	generateCb, ok := d.Phase(driver.PhaseGenerate)
	require.True(t, ok)

	p := newTestProject(t, project.TestSuite{TestCases: []string{"test_add"}})

	err := generateCb(ctx, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestRunTestsFailsWhenArtefactMissing(t *testing.T) {
	t.Parallel()

	ctx, d := loadDriver(t)

	testCb, ok := d.Phase(driver.PhaseTest)
	require.True(t, ok)

	p := newTestProject(t)

	err := testCb(ctx, p)
	require.Error(t, err)
	assert.True(t, p.Error)
}
