// Package langcpp is the built-in C++ driver. It owns no toolchain logic
// of its own: Register imports the C driver, which replays the whole
// C/C++ rule graph and phase set onto this driver, and then overrides the
// setup scaffolding to emit C++ sources. Compile and link already pick
// the C++ compiler for "cpp"-language projects inside the replayed
// actions.
package langcpp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/driver/langc"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
)

// ID is the logical driver id; the "cpp" language tag resolves to it.
const ID = "lang.cpp"

// Register is langcpp's EntryPoint.
func Register(api *driver.API) error {
	if _, err := api.Import(langc.ID); err != nil {
		return err
	}

	api.OnSetup(onSetup)

	return nil
}

// onSetup scaffolds a freshly created C++ project: a src/main.cpp entry
// point and a project-named header that pulls in the generated
// dependency aggregator.
func onSetup(ctx *buildctx.Context, p *project.Project) error {
	for _, dir := range []string{"src", "include"} {
		if err := platform.MkdirAll(filepath.Join(p.Path, dir)); err != nil {
			return err
		}
	}

	mainPath := filepath.Join(p.Path, "src", "main.cpp")
	if !fileExists(mainPath) {
		main := fmt.Sprintf(
			"#include <%s.h>\n\nint main(int argc, char *argv[]) {\n    return 0;\n}\n",
			p.IDShort())

		if err := os.WriteFile(mainPath, []byte(main), 0o644); err != nil {
			return errs.WithStackTrace(err)
		}
	}

	headerPath := filepath.Join(p.Path, "include", p.IDShort()+".h")
	if !fileExists(headerPath) {
		upper := strings.ToUpper(p.IDUnderscore())
		header := fmt.Sprintf(
			"#ifndef %s_H\n#define %s_H\n\n#include \"%s_dependencies.h\"\n\n#endif\n",
			upper, upper, p.IDUnderscore())

		if err := os.WriteFile(headerPath, []byte(header), 0o644); err != nil {
			return errs.WithStackTrace(err)
		}
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
