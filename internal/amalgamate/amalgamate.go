// Package amalgamate emits a single-header/single-source distribution of
// a project by inlining transitive #include directives, with a
// content-addressed visited set guaranteeing each file contributes at
// most once per run.
package amalgamate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/log"
)

// softLineLengthWarning is the line length past which Run emits a
// diagnostic. Lines are never truncated; implausibly long ones are still
// emitted whole and flagged.
const softLineLengthWarning = 4096

var includeRe = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)

// VisitedSet tracks which files have already contributed their contents to
// the amalgamated output, ensuring each file is inlined at most once.
type VisitedSet struct {
	seen map[string]struct{}
}

// NewVisitedSet returns an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

func (v *VisitedSet) has(path string) bool {
	_, ok := v.seen[path]
	return ok
}

func (v *VisitedSet) mark(path string) {
	v.seen[path] = struct{}{}
}

// Options configures one amalgamation pass.
type Options struct {
	ProjectID   string // used to build the <PROJECT>_STATIC / <project>.h guard names
	IncludePath []string
	IsInclude   bool // true: generating the combined header; false: the combined source
	EntryFiles  []string
	Logger      *log.Logger
}

// Run performs one amalgamation pass and returns the combined output
// text.
func Run(opts Options) (string, error) {
	var out strings.Builder

	visited := NewVisitedSet()

	upper := strings.ToUpper(sanitizeMacro(opts.ProjectID))

	if opts.IsInclude {
		fmt.Fprintf(&out, "#define %s_STATIC\n", upper)
	} else {
		fmt.Fprintf(&out, "#ifndef %s_AMALGAMATED_HEADER\n#define %s_AMALGAMATED_HEADER\n#include \"%s.h\"\n#endif\n", upper, upper, opts.ProjectID)
	}

	for _, entry := range opts.EntryFiles {
		if err := inline(entry, opts, visited, &out); err != nil {
			return "", err
		}
	}

	return out.String(), nil
}

// inline reads path line by line (no fixed cap) and writes it to out,
// recursing into #include targets per resolveInclude's rules.
func inline(path string, opts Options, visited *VisitedSet, out *strings.Builder) error {
	if visited.has(path) {
		return nil
	}

	visited.mark(path)

	f, err := os.Open(path)
	if err != nil {
		return errs.WithStackTrace(err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if len(line) > softLineLengthWarning && opts.Logger != nil {
			opts.Logger.Warnf("amalgamate: %s: implausibly long line (%d bytes)", path, len(line))
		}

		m := includeRe.FindStringSubmatch(line)
		if m == nil {
			out.WriteString(line)
			out.WriteByte('\n')

			continue
		}

		style, target := m[1], m[2]

		resolved, recurse, ok := resolveInclude(path, target, style, opts, visited)
		if !ok {
			out.WriteString(line)
			out.WriteByte('\n')

			continue
		}

		if !recurse {
			continue // already visited, or resolved but intentionally not recursed into
		}

		if err := inline(resolved, opts, visited, out); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}

// resolveInclude applies the quoted-vs-angle include resolution rules.
// ok reports whether the include was resolved to a known file at
// all (false means: emit the directive verbatim, e.g. a system header).
// recurse reports whether the caller should inline it now (false when the
// file was already visited, so the #include line itself is simply
// dropped rather than re-emitted).
func resolveInclude(fromFile, target, style string, opts Options, visited *VisitedSet) (resolved string, recurse bool, ok bool) {
	if style == `"` {
		local := filepath.Join(filepath.Dir(fromFile), target)
		if fileExists(local) {
			return local, !visited.has(local), true
		}

		if opts.IsInclude {
			if p, found := searchIncludePath(target, opts.IncludePath); found {
				return p, !visited.has(p), true
			}
		}

		return "", false, false
	}

	// Angle include: search path only.
	p, found := searchIncludePath(target, opts.IncludePath)
	if !found {
		return "", false, false
	}

	if opts.IsInclude {
		return p, !visited.has(p), true
	}

	// Source pass: recurse even for angle includes so internal headers
	// the main header didn't pull in still get inlined.
	return p, !visited.has(p), true
}

func searchIncludePath(target string, includePath []string) (string, bool) {
	for _, dir := range includePath {
		candidate := filepath.Join(dir, target)
		if fileExists(candidate) {
			return candidate, true
		}
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func sanitizeMacro(id string) string {
	var b strings.Builder

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
