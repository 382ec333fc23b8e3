// Package fsiter resolves a compiled match.Program against a directory
// root, either as a single-file existence test, a non-recursive directory
// listing, or (when the program has tree scope) a recursive subtree walk.
//
// The recursive walk is delegated to github.com/mattn/go-zglob rather
// than hand-rolling filepath.Walk.
package fsiter

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"

	"github.com/forgebuild/forgebuild/internal/cache"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/match"
)

// treeCache memoizes the regular-file listing produced by zglob for a given
// root, since a project's SOURCES and HEADERS patterns (and any driver's own
// additional patterns) commonly re-walk the same subtree within one run.
var treeCache = cache.NewGenericCache[[]string]()

// InvalidateTree drops the memoized listing for root. The orchestrator
// calls this after the generate/prebuild phases, which may have written
// derived sources the cached listing predates.
func InvalidateTree(root string) {
	treeCache.Delete(root)
}

// Iterate returns the relative paths under root matched by expr, sorted for
// determinism (the rule engine requires sorted-source order).
//
// If expr is purely literal (no wildcards, no tree scope) it resolves as a
// single-file existence test: one element if the file exists, none
// otherwise. A missing root directory is a fatal error; a missing candidate
// file during a wildcard expansion is silently skipped.
func Iterate(root, expr string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, errs.WithStackTrace(err)
	}

	prog, err := match.Compile(expr)
	if err != nil {
		return nil, err
	}

	if isLiteral(expr) {
		candidate := filepath.Join(root, filepath.FromSlash(expr))
		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}

			return nil, errs.WithStackTrace(err)
		}

		return []string{expr}, nil
	}

	if prog.Kind == match.KindTreeWildcard || strings.Contains(expr, "//") || strings.Contains(expr, "**") {
		return walkRecursive(root, prog)
	}

	return walkFlat(root, prog)
}

// isLiteral reports whether expr contains no pattern metacharacters, making
// it resolvable as a plain path rather than requiring match evaluation.
func isLiteral(expr string) bool {
	return !strings.ContainsAny(expr, "*?&|^,") && !strings.Contains(expr, "//")
}

func walkFlat(root string, prog *match.Program) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errs.WithStackTrace(err)
	}

	var out []string

	for _, e := range entries {
		rel := e.Name()

		ok, err := prog.Match(rel)
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, rel)
		}
	}

	sort.Strings(out)

	return out, nil
}

func walkRecursive(root string, prog *match.Program) ([]string, error) {
	rels, err := treeFiles(root)
	if err != nil {
		return nil, err
	}

	var out []string

	for _, rel := range rels {
		ok, matchErr := prog.Match(rel)
		if matchErr != nil {
			return nil, matchErr
		}

		if ok {
			out = append(out, rel)
		}
	}

	sort.Strings(out)

	return out, nil
}

// treeFiles returns every regular file under root, relative to root and
// slash-separated, using zglob to do the actual subtree walk. Results are
// cached per root: zglob wants a single filesystem glob pattern, and since
// forgebuild's match expressions can be richer than a plain glob (and/or/not,
// alternation), this enumerates once and lets the compiled Program re-filter
// each candidate, which is the authoritative matcher.
func treeFiles(root string) ([]string, error) {
	if cached, ok := treeCache.Get(root); ok {
		return cached, nil
	}

	matches, err := zglob.Glob(filepath.Join(root, "**", "*"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errs.WithStackTrace(err)
	}

	var rels []string

	for _, m := range matches {
		info, statErr := os.Stat(m)
		if statErr != nil || info.IsDir() {
			continue
		}

		rel, relErr := filepath.Rel(root, m)
		if relErr != nil {
			continue
		}

		rels = append(rels, filepath.ToSlash(rel))
	}

	treeCache.Put(root, rels)

	return rels, nil
}
