// Package platform holds the filesystem and process-spawn primitives the
// rest of the module builds on, exposed through a small surface. Every
// child process is started through Run; other packages still call os.Stat
// and os file functions directly.
package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/errs"
)

// ProcessExecutionError reports a non-zero or failed child-process
// invocation, preserving captured output for diagnostic formatting.
type ProcessExecutionError struct {
	Err    error
	StdOut string
	Stderr string
}

func (e ProcessExecutionError) Error() string {
	return e.Err.Error()
}

func (e ProcessExecutionError) Unwrap() error {
	return e.Err
}

// Run executes cmd[0] with cmd[1:] as arguments, with dir as its working
// directory, capturing stdout/stderr into the returned
// ProcessExecutionError (the logger only records the command). Spec.md
// §4.4's "exec" and §5's "exec spawns a child process and waits for it
// before returning" are both satisfied by a direct (not backgrounded) call.
func Run(ctx *buildctx.Context, dir string, cmd []string) error {
	if len(cmd) == 0 {
		return errs.Errorf("platform: exec called with an empty command")
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = dir

	var stdout, stderr outputCollector

	c.Stdout = &stdout
	c.Stderr = &stderr

	if ctx.Logger != nil {
		ctx.Logger.Debugf("exec: %v (dir=%s)", cmd, dir)
	}

	if err := c.Run(); err != nil {
		return ProcessExecutionError{Err: errs.WithStackTrace(err), StdOut: stdout.String(), Stderr: stderr.String()}
	}

	return nil
}

// outputCollector collects process output into a growable buffer; kept as its
// own type (rather than bytes.Buffer directly) so Run can be extended to
// also forward to a live log sink without changing its signature.
type outputCollector struct {
	data []byte
}

func (o *outputCollector) Write(p []byte) (int, error) {
	o.data = append(o.data, p...)
	return len(p), nil
}

func (o *outputCollector) String() string {
	return string(o.data)
}

// Exists reports whether relPath exists beneath root.
func Exists(root, relPath string) bool {
	_, err := os.Stat(filepath.Join(root, relPath))
	return err == nil
}

// MkdirAll creates dir and any missing parents; "already exists" is not
// an error.
func MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}

// ModTime returns path's modification time, or the zero Time if it does
// not exist (the rule engine treats a missing target as infinitely stale).
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}

		return time.Time{}, errs.WithStackTrace(err)
	}

	return info.ModTime(), nil
}

// Touch creates path if absent and sets its modification time to the
// current time, used by test fixtures and by trivial build actions.
func Touch(path string) error {
	if err := MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.WithStackTrace(err)
	}

	defer f.Close()

	now := time.Now()

	return os.Chtimes(path, now, now)
}

// RemoveAll deletes path, tolerating an already-absent target.
func RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}
