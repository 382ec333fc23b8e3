// Package crawler discovers projects under a root directory and walks
// them in dependency order, releasing each project for building only once
// every project it depends on has built.
package crawler

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/manifest"
	"github.com/forgebuild/forgebuild/internal/project"
)

// Search walks root recursively looking for project manifests. Finding one
// manifest stops descent into that directory's children unless the
// manifest marks itself recursive, in which case the
// crawler continues into subdirectories to collect child projects.
// Duplicate ids across the discovered set are a fatal error.
func Search(root string) (map[string]*project.Project, error) {
	projects := make(map[string]*project.Project)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errs.WithStackTrace(err)
		}

		if !d.IsDir() {
			return nil
		}

		manifestPath := filepath.Join(path, manifest.FileName)
		if _, statErr := os.Stat(manifestPath); statErr != nil {
			return nil
		}

		p, parseErr := manifest.Parse(manifestPath, path)
		if parseErr != nil {
			return parseErr
		}

		if _, exists := projects[p.ID]; exists {
			return errs.Errorf("crawler: duplicate project id %q (at %s)", p.ID, path)
		}

		projects[p.ID] = p

		if !p.Recursive {
			return filepath.SkipDir
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return projects, nil
}
