// Package buildctx holds the build-configuration record and the explicit
// build-context struct threaded through every phase callback and rule
// action, so no subsystem depends on package-level mutable state.
package buildctx

import (
	"path/filepath"
	"runtime"
)

// Config is the immutable build-configuration record; it does not change
// during a build run.
type Config struct {
	Environment   string
	Configuration string // e.g. "debug" / "release"
	Architecture  string

	Symbols        bool
	Debug          bool
	Optimizations  bool
	Strict         bool
	Coverage       bool
	StaticLib      bool
	SanitizeAddr   bool
	SanitizeUB     bool
	SanitizeThread bool

	HomeDir   string
	TargetDir string
	MetaDir   string
	BinDir    string
	LibDir    string
}

// Default returns a Config with debug-friendly defaults rooted at root.
func Default(root string) Config {
	target := filepath.Join(root, ".forgebuild")

	return Config{
		Environment:   "local",
		Configuration: "debug",
		Architecture:  runtime.GOARCH,
		Symbols:       true,
		Debug:         true,
		Optimizations: false,
		HomeDir:       root,
		TargetDir:     target,
		MetaDir:       filepath.Join(target, "meta"),
		BinDir:        filepath.Join(target, "bin"),
		LibDir:        filepath.Join(target, "lib"),
	}
}

// IsWindows reports whether the host OS is Windows.
// Forgebuild cross-builds for at most one platform per run, so this reads
// the host OS rather than a per-Config field.
func (c Config) IsWindows() bool {
	return runtime.GOOS == "windows"
}

// ObjectExtension returns the object-file suffix for the configured platform.
func (c Config) ObjectExtension() string {
	return ".o"
}

// ExecutableExtension returns the artefact suffix for an APPLICATION project.
func (c Config) ExecutableExtension() string {
	if c.IsWindows() {
		return ".exe"
	}

	return ""
}

// DynamicLibExtension returns the artefact suffix for a dynamic PACKAGE.
func (c Config) DynamicLibExtension() string {
	switch {
	case c.IsWindows():
		return ".dll"
	case runtime.GOOS == "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// StaticLibExtension returns the artefact suffix for a static PACKAGE.
func (c Config) StaticLibExtension() string {
	if c.IsWindows() {
		return ".lib"
	}

	return ".a"
}

// ArchiveTool returns the platform's static-library archive tool: ar on
// POSIX hosts, lib.exe under MSVC.
func (c Config) ArchiveTool() string {
	if c.IsWindows() {
		return "lib.exe"
	}

	return "ar"
}
