// Package install stages built artefacts and public headers into a
// shared install root, and unpacks static library archives for linking.
package install

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/platform"
)

// ArtefactName computes the on-disk artefact file name for a project
// from its kind, the target platform and the static-artefact flag.
func ArtefactName(idUnderscore string, kind string, cfg buildctx.Config, static bool) string {
	switch kind {
	case "application":
		return idUnderscore + cfg.ExecutableExtension()
	case "package", "tool":
		if static {
			return staticPrefix(cfg) + idUnderscore + cfg.StaticLibExtension()
		}

		return dynamicPrefix(cfg) + idUnderscore + cfg.DynamicLibExtension()
	default:
		return idUnderscore
	}
}

func staticPrefix(cfg buildctx.Config) string {
	if cfg.IsWindows() {
		return ""
	}

	return "lib"
}

func dynamicPrefix(cfg buildctx.Config) string {
	if cfg.IsWindows() {
		return ""
	}

	return "lib"
}

// Root installs a single artefact (and its public headers, if any) into
// the configured install root, so dependent projects can resolve it
// without rediscovering the source project.
func Root(installRoot, idUnderscore, artefactPath string, headers []string, headerSrcDir string) error {
	destDir := filepath.Join(installRoot, idUnderscore)
	if err := platform.MkdirAll(destDir); err != nil {
		return err
	}

	if err := copyFile(artefactPath, filepath.Join(destDir, filepath.Base(artefactPath))); err != nil {
		return err
	}

	includeDir := filepath.Join(destDir, "include")
	if err := platform.MkdirAll(includeDir); err != nil {
		return err
	}

	for _, h := range headers {
		// Headers are declared relative to the project root; a conventional
		// include/ prefix is stripped so dependents get <root>/<id>/include
		// as a single -I directory.
		rel := strings.TrimPrefix(filepath.ToSlash(h), "include/")
		if err := copyFile(filepath.Join(headerSrcDir, h), filepath.Join(includeDir, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.WithStackTrace(err)
	}

	defer in.Close()

	if err := platform.MkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return errs.WithStackTrace(err)
	}

	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}

// ExtractStaticLib unpacks archivePath into a library-id-tagged temporary
// directory and returns its path. Every extraction gets its own
// uuid-tagged unpack directory passed to the child process as its working
// directory, so callers may invoke it from parallel goroutines without
// colliding on a shared process-wide chdir.
func ExtractStaticLib(ctx *buildctx.Context, archivePath string, libraryID string) (string, error) {
	tag := uuid.NewString()
	unpackDir := filepath.Join(ctx.Config.TargetDir, "unpack", libraryID+"-"+tag)

	if err := platform.MkdirAll(unpackDir); err != nil {
		return "", err
	}

	cmd := extractCommand(ctx.Config, archivePath, unpackDir)
	if err := platform.Run(ctx, unpackDir, cmd); err != nil {
		return "", err
	}

	return unpackDir, nil
}

// extractCommand builds the archive-extract invocation for the
// configured ArchiveTool. Neither form names the output directory: both
// extract into the child's working directory, which ExtractStaticLib sets
// to outDir through platform.Run's dir argument.
func extractCommand(cfg buildctx.Config, archivePath, outDir string) []string {
	if cfg.IsWindows() {
		// lib.exe has no "extract to directory" flag; the caller is
		// expected to have already set the process working directory to
		// outDir via platform.Run's dir argument.
		return []string{cfg.ArchiveTool(), "/EXTRACT:" + archivePath}
	}

	return []string{cfg.ArchiveTool(), "x", archivePath}
}
