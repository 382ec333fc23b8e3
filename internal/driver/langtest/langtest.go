// Package langtest is the built-in test driver. A test project is an
// ordinary C or C++ application whose manifest declares testsuites; this
// driver inherits the whole C toolchain via import, scaffolds one source
// file per suite (a stub per testcase plus a runner), and runs the built
// artefact during the test phase.
package langtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/driver/langc"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/install"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
)

// ID is the logical driver id; the "test" language tag resolves to it.
const ID = "test"

// Register is langtest's EntryPoint: it replays the C driver's
// registrations onto this driver, chains suite scaffolding after the
// inherited generate phase, and adds the test-phase runner.
func Register(api *driver.API) error {
	if _, err := api.Import(langc.ID); err != nil {
		return err
	}

	baseGenerate, _ := api.CurrentDriver().Phase(driver.PhaseGenerate)

	api.OnGenerate(func(ctx *buildctx.Context, p *project.Project) error {
		if baseGenerate != nil {
			if err := baseGenerate(ctx, p); err != nil {
				return err
			}
		}

		return scaffoldSuites(ctx, p)
	})

	api.OnTest(runTests)

	return nil
}

// scaffoldSuites writes one source file per declared testsuite and a
// runner entry point. Existing files are left untouched, so implemented
// testcases survive regeneration.
func scaffoldSuites(ctx *buildctx.Context, p *project.Project) error {
	if len(p.TestSuites) == 0 {
		ctx.Logger.Warnf("test project %s declares no testsuites", p.ID)
		return nil
	}

	if err := platform.MkdirAll(filepath.Join(p.Path, "src")); err != nil {
		return err
	}

	ext := "c"
	if langc.IsCpp(p) {
		ext = "cpp"
	}

	for _, suite := range p.TestSuites {
		if suite.ID == "" {
			return errs.Errorf("langtest: %s: testsuite is missing id", p.ID)
		}

		path := filepath.Join(p.Path, "src", suite.ID+"."+ext)
		if fileExists(path) {
			continue
		}

		var b strings.Builder

		for _, testcase := range suite.TestCases {
			fmt.Fprintf(&b, "void %s(void) {\n    /* implement testcase */\n}\n\n", testcase)
		}

		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return errs.WithStackTrace(err)
		}
	}

	return scaffoldRunner(p, ext)
}

// scaffoldRunner writes the main entry point invoking every testcase of
// every suite in declaration order.
func scaffoldRunner(p *project.Project, ext string) error {
	path := filepath.Join(p.Path, "src", "main."+ext)
	if fileExists(path) {
		return nil
	}

	var b strings.Builder

	b.WriteString("#include <stdio.h>\n\n")

	for _, suite := range p.TestSuites {
		for _, testcase := range suite.TestCases {
			fmt.Fprintf(&b, "extern void %s(void);\n", testcase)
		}
	}

	b.WriteString("\nint main(int argc, char *argv[]) {\n")

	for _, suite := range p.TestSuites {
		for _, testcase := range suite.TestCases {
			fmt.Fprintf(&b, "    printf(\"%s.%s\\n\");\n    %s();\n", suite.ID, testcase, testcase)
		}
	}

	b.WriteString("    return 0;\n}\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}

// runTests executes the built test artefact; a non-zero exit is a test
// failure and marks the project in error.
func runTests(ctx *buildctx.Context, p *project.Project) error {
	static := p.Attributes.Bool("static_artefact", false) || p.Attributes.Bool("static", false)
	name := install.ArtefactName(p.IDUnderscore(), p.Kind.String(), ctx.Config, static)

	artefact := filepath.Join(p.Path, ".forgebuild", "bin", name)
	if !fileExists(artefact) {
		p.Error = true
		return errs.Errorf("langtest: %s: test artefact %s missing", p.ID, artefact)
	}

	if err := platform.Run(ctx, p.Path, []string{artefact}); err != nil {
		p.Error = true
		return err
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
