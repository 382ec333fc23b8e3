package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchLiteral(t *testing.T) {
	t.Parallel()

	ok, err := Match("foo.c", "foo.c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match("foo.c", "bar.c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchSingleLevelWildcard(t *testing.T) {
	t.Parallel()

	ok, err := Match("*.c", "foo.c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match("*.c", "src/foo.c")
	require.NoError(t, err)
	assert.False(t, ok, "a single-level wildcard must not cross a path separator")
}

func TestMatchTreeWildcard(t *testing.T) {
	t.Parallel()

	testCases := []string{"include/foo.h", "include/nested/deep/foo.h"}

	for _, path := range testCases {
		ok, err := Match("include//*.h", path)
		require.NoError(t, err)
		assert.True(t, ok, "expected %q to match include//*.h", path)
	}

	// The tree scope starts below "include": a top-level header or one under
	// another directory does not match.
	for _, path := range []string{"foo.h", "src/foo.h"} {
		ok, err := Match("include//*.h", path)
		require.NoError(t, err)
		assert.False(t, ok, "expected %q not to match include//*.h", path)
	}
}

func TestMatchAnd(t *testing.T) {
	t.Parallel()

	ok, err := Match("*.c&foo.c", "foo.c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match("*.c&foo.c", "bar.c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchOr(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"foo.c", "foo.h"} {
		ok, err := Match("foo.c|foo.h", path)
		require.NoError(t, err)
		assert.True(t, ok, "expected %q to match foo.c|foo.h", path)
	}

	ok, err := Match("foo.c|foo.h", "bar.c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchCommaIsAlternation(t *testing.T) {
	t.Parallel()

	ok, err := Match("include//*.h,*.h", "foo.h")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match("include//*.h,*.h", "include/foo.h")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchNot(t *testing.T) {
	t.Parallel()

	ok, err := Match("^foo.c", "foo.c")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Match("^foo.c", "bar.c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchGlobSuite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		expr     string
		path     string
		expected bool
	}{
		{"src/**/*.c", "src/a/b.c", true},
		{"src/*.c", "src/a/b.c", false},
		{"src/*.c,src/**/*.cpp", "src/a/b.cpp", true},
		{"src/*.c&^src/test_*", "src/test_x.c", false},
		{"a/*", "a/b", true},
		{"a/*", "a/b/c", false},
		{"a//*", "a/b/c", true},
	}

	for _, testCase := range testCases {
		ok, err := Match(testCase.expr, testCase.path)
		require.NoError(t, err)
		assert.Equal(t, testCase.expected, ok, "for expr %q path %q", testCase.expr, testCase.path)
	}
}

func TestMatchTreeWildcardExcludesThis(t *testing.T) {
	t.Parallel()

	ok, err := Match("//*", ".")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, path := range []string{"a", "a/b", "deep/nested/path"} {
		ok, err := Match("//*", path)
		require.NoError(t, err)
		assert.True(t, ok, "expected %q to match //*", path)
	}
}

func TestMatchThis(t *testing.T) {
	t.Parallel()

	ok, err := Match(".", ".")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(".", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		expr     string
		expected Kind
	}{
		{"foo.c", KindExactID},
		{"*", KindSingleLevelWildcard},
		{"//*", KindTreeWildcard},
		{"include//*.h", KindGeneric},
		{"foo.c|bar.c", KindGeneric},
	}

	for _, testCase := range testCases {
		prog, err := Compile(testCase.expr)
		require.NoError(t, err)
		assert.Equal(t, testCase.expected, prog.Kind, "for expr %q", testCase.expr)
	}
}

func TestCompileRejectsBadAdjacency(t *testing.T) {
	t.Parallel()

	_, err := Compile("foo.c||bar.c")
	assert.Error(t, err)
}

func TestMustCompilePanicsOnError(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		MustCompile("foo.c||bar.c")
	})
}
