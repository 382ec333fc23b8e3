package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		path     string
		expected string
	}{
		{"", "."},
		{".", "."},
		{"a/./b", "a/b"},
		{"a//b", "a/b"},
		{"a/b/..", "a"},
		{"a/../../b", "../b"},
		{"/a/../../b", "/b"},
		{"/../a", "/a"},
		{"a/b/../../..", ".."},
	}

	for _, testCase := range testCases {
		actual := Clean(testCase.path)
		assert.Equal(t, testCase.expected, actual, "for path %q", testCase.path)
	}
}

func TestCombine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		parent   string
		child    string
		expected string
	}{
		{"a", "b", "a/b"},
		{"a", "", "a"},
		{"a", "/b", "/b"},
		{"", "b", "b"},
		{".", "b", "b"},
		{"/", "b", "/b"},
		{"a/b", "../c", "a/c"},
	}

	for _, testCase := range testCases {
		actual := Combine(testCase.parent, testCase.child)
		assert.Equal(t, testCase.expected, actual, "for parent %q child %q", testCase.parent, testCase.child)
	}
}

func TestDirnameBasename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Dirname("a"))
	assert.Equal(t, "a", Dirname("a/b"))
	assert.Equal(t, "/", Dirname("/a"))

	assert.Equal(t, "a", Basename("a"))
	assert.Equal(t, "b", Basename("a/b"))
}

func TestOffset(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from            string
		to              string
		allowParentRefs bool
		expected        string
	}{
		{"a", "a", true, "."},
		{"a", "a/b", true, "b"},
		{"a/b", "a", true, ".."},
		{"a/b/c", "a/x/y", true, "../../x/y"},
		{"a/b/c", "a/x/y", false, "a/x/y"},
	}

	for _, testCase := range testCases {
		actual := Offset(testCase.from, testCase.to, testCase.allowParentRefs)
		assert.Equal(t, testCase.expected, actual,
			"for from %q to %q allowParentRefs %v", testCase.from, testCase.to, testCase.allowParentRefs)
	}
}

func TestOffsetIdempotentRoundTrip(t *testing.T) {
	t.Parallel()

	from := "a/b/c"
	to := "a/x/y/z"

	rel := Offset(from, to, true)
	assert.Equal(t, to, Clean(Combine(from, rel)))
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	parts, err := Tokenize("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, parts)

	parts, err = Tokenize("")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestTokenizeRejectsExcessiveDepth(t *testing.T) {
	t.Parallel()

	p := ""
	for i := 0; i <= MaxDepth; i++ {
		p += "a/"
	}

	_, err := Tokenize(p)
	require.Error(t, err)
}
