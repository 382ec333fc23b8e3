// Package pathutil provides path manipulation over slash-separated
// component sequences: Clean, Combine, Dirname, Offset and Tokenize.
// Paths are always represented with "/" regardless of host OS; callers
// convert with filepath.FromSlash at the filesystem boundary.
package pathutil

import (
	"strings"

	"github.com/forgebuild/forgebuild/internal/errs"
)

// MaxDepth bounds the number of components Tokenize will return; paths
// exceeding it are rejected rather than silently truncated.
const MaxDepth = 256

const sep = "/"

// Clean removes "." components, resolves ".." against the prior component
// (never past the root), and collapses duplicate separators.
func Clean(p string) string {
	if p == "" {
		return "."
	}

	absolute := strings.HasPrefix(p, sep)
	parts := strings.Split(p, sep)

	stack := make([]string, 0, len(parts))

	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else if !absolute {
				stack = append(stack, "..")
			}
			// An absolute path silently discards a ".." that would walk
			// past the root.
		default:
			stack = append(stack, part)
		}
	}

	cleaned := strings.Join(stack, sep)

	switch {
	case absolute:
		return sep + cleaned
	case cleaned == "":
		return "."
	default:
		return cleaned
	}
}

// Combine joins parent and child, honoring an absolute child (which
// replaces parent outright) and never introducing a doubled separator when
// parent is the root.
func Combine(parent, child string) string {
	if child == "" {
		return Clean(parent)
	}

	if strings.HasPrefix(child, sep) {
		return Clean(child)
	}

	if parent == "" || parent == "." {
		return Clean(child)
	}

	if parent == sep {
		return Clean(sep + child)
	}

	return Clean(parent + sep + child)
}

// Dirname returns the parent portion of p, or "" if p has no separator.
func Dirname(p string) string {
	idx := strings.LastIndex(p, sep)
	if idx < 0 {
		return ""
	}

	if idx == 0 {
		return sep
	}

	return p[:idx]
}

// Basename returns the final path component of p.
func Basename(p string) string {
	idx := strings.LastIndex(p, sep)
	if idx < 0 {
		return p
	}

	return p[idx+1:]
}

// Offset returns a relative path that, combined with from, equals to. When
// allowParentRefs is false and the two paths diverge below a common
// ancestor, Offset refuses to emit ".." and returns to as given instead.
func Offset(from, to string, allowParentRefs bool) string {
	from = Clean(from)
	to = Clean(to)

	if from == to {
		return "."
	}

	fromParts := splitNonEmpty(from)
	toParts := splitNonEmpty(to)

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	ups := len(fromParts) - common
	if ups > 0 && !allowParentRefs {
		return to
	}

	var out []string
	for i := 0; i < ups; i++ {
		out = append(out, "..")
	}

	out = append(out, toParts[common:]...)

	if len(out) == 0 {
		return "."
	}

	return strings.Join(out, sep)
}

func splitNonEmpty(p string) []string {
	raw := strings.Split(strings.TrimPrefix(p, sep), sep)

	out := make([]string, 0, len(raw))

	for _, part := range raw {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}

	return out
}

// Tokenize splits p into its path components, capped at MaxDepth. Paths
// whose component count exceeds MaxDepth are rejected with an error rather
// than truncated.
func Tokenize(p string) ([]string, error) {
	parts := splitNonEmpty(Clean(p))
	if len(parts) > MaxDepth {
		return nil, errs.Errorf("pathutil: path %q exceeds maximum depth of %d components", p, MaxDepth)
	}

	return parts, nil
}
