// Package langc is the built-in C/C++ toolchain driver. Its source set
// and actions cover both languages: a project whose language is "cpp" (or
// that sets the c4cpp attribute) compiles and links with the C++
// compiler, while the rule graph stays identical. The langcpp driver
// inherits this whole registration via the API's import mechanism and
// only overrides the setup scaffolding.
//
// Registered in-process (not via the go-plugin boundary) since it ships
// with forgebuild itself; the registry maps the manifest language tag
// "c" to this id.
package langc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebuild/forgebuild/internal/attr"
	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/fsiter"
	"github.com/forgebuild/forgebuild/internal/install"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
)

// ID is the logical driver id; the "c" language tag resolves to it.
const ID = "lang.c"

// Register is langc's EntryPoint: it declares the pattern/file/rule graph
// that produces an ARTEFACT from a project's C or C++ sources.
func Register(api *driver.API) error {
	if err := api.Pattern("SOURCES", "src//*.c,src//*.cpp,src//*.cxx,*.c,*.cpp,*.cxx"); err != nil {
		return err
	}

	if err := api.Pattern("HEADERS", "include//*.h,*.h"); err != nil {
		return err
	}

	if err := api.Rule("OBJECTS", "SOURCES", driver.TargetMapSpec(objectPathForSource), compileAction); err != nil {
		return err
	}

	// The final artefact path depends on the project's Kind and static-lib
	// flag, neither of which a driver entry point can see at registration
	// time (one Driver is shared across every C project).
	// artefactPlaceholder is overwritten per project by the orchestrator
	// immediately before rule evaluation.
	if err := api.Rule("ARTEFACT", "OBJECTS", driver.TargetFileSpec(artefactPlaceholder), linkAction); err != nil {
		return err
	}

	api.Artefact("ARTEFACT")

	api.OnInit(onInit)
	api.OnGenerate(onGenerate)
	api.OnClean(onClean)
	api.OnLinkToLib(linkToLib)

	return nil
}

// objectPathForSource is the MAP function backing the OBJECTS rule:
// each source compiles to <cache-dir>/<source-path-with-.o>.
func objectPathForSource(source string) string {
	withoutExt := strings.TrimSuffix(source, filepath.Ext(source))
	return filepath.Join(".forgebuild", "obj", withoutExt+".o")
}

// artefactPlaceholder is the ARTEFACT rule's target until the orchestrator
// overwrites it per project; see the comment at its registration above.
const artefactPlaceholder = ".forgebuild/bin/ARTEFACT"

// IsCpp reports whether p builds with the C++ toolchain: either its
// language tag is "cpp", or it opted in via the c4cpp attribute.
func IsCpp(p *project.Project) bool {
	return p.Language == "cpp" || p.Attributes.Bool("c4cpp", false)
}

func compiler(cpp bool) string {
	if cpp {
		return "c++"
	}

	return "cc"
}

func onInit(ctx *buildctx.Context, p *project.Project) error {
	if IsCpp(p) {
		if _, ok := p.Attributes.Get("cpp-standard"); !ok {
			p.Attributes.SetString("cpp-standard", "c++17")
		}
	} else if _, ok := p.Attributes.Get("c-standard"); !ok {
		p.Attributes.SetString("c-standard", "c11")
	}

	// Record the project's public headers so the install layer can stage
	// them alongside the artefact for dependents to include.
	headers, err := fsiter.Iterate(p.Path, "include//*.h")
	if err != nil {
		return err
	}

	if len(headers) > 0 {
		elems := make([]attr.Attribute, len(headers))
		for i, h := range headers {
			elems[i] = attr.NewString("", h)
		}

		p.Attributes.SetArray("public_headers", elems)
	}

	return nil
}

// onClean removes the cached object and artefact directories; files a
// driver marked for removal via the API's Remove query are deleted by the
// orchestrator, not here.
func onClean(ctx *buildctx.Context, p *project.Project) error {
	return platform.RemoveAll(filepath.Join(p.Path, ".forgebuild"))
}

// linkToLib maps one dependency id to the linker arguments that pull its
// installed artefact into the link line: a search path per install root
// that actually carries the dependency, plus -l<id_underscore>.
func linkToLib(ctx *buildctx.Context, p *project.Project, depID string) []string {
	underscore := strings.ReplaceAll(depID, "/", "_")

	var args []string

	for _, root := range ctx.InstallRoots {
		depDir := filepath.Join(root, underscore)
		if _, err := os.Stat(depDir); err == nil {
			args = append(args, "-L"+depDir)
		}
	}

	return append(args, "-l"+underscore)
}

// onGenerate writes the dependency-aggregator header: public deps
// unconditionally, private deps behind the _IMPL guard, and the export
// macro selecting the right visibility attribute per compiler.
func onGenerate(ctx *buildctx.Context, p *project.Project) error {
	upper := strings.ToUpper(p.IDUnderscore())

	var b strings.Builder

	fmt.Fprintf(&b, "#ifndef %s_DEPENDENCIES_H\n#define %s_DEPENDENCIES_H\n", upper, upper)
	b.WriteString("/* public deps */\n")

	for _, dep := range p.Use {
		fmt.Fprintf(&b, "#include <%s/%s.h>\n", dep, shortID(dep))
	}

	fmt.Fprintf(&b, "#ifdef %s_IMPL\n/* private deps */\n", upper)

	for _, dep := range p.UsePrivate {
		fmt.Fprintf(&b, "#include <%s/%s.h>\n", dep, shortID(dep))
	}

	b.WriteString("#endif\n")
	b.WriteString("/* export macro */\n")
	fmt.Fprintf(&b, "#if %s_IMPL && defined _MSC_VER\n# define %s_EXPORT __declspec(dllexport)\n", upper, upper)
	fmt.Fprintf(&b, "#elif %s_IMPL\n# define %s_EXPORT __attribute__((__visibility__(\"default\")))\n", upper, upper)
	fmt.Fprintf(&b, "#elif defined _MSC_VER\n# define %s_EXPORT __declspec(dllimport)\n#else\n# define %s_EXPORT\n#endif\n", upper, upper)
	b.WriteString("#endif\n")

	outPath := filepath.Join(p.Path, p.IDUnderscore()+"_dependencies.h")

	return writeGenerated(outPath, b.String())
}

// writeGenerated writes contents to path, creating any missing parent
// directories. The dependency header is regenerated on every generate
// phase, so it always overwrites.
func writeGenerated(path, contents string) error {
	if err := platform.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}

func shortID(id string) string {
	parts := strings.Split(id, "/")
	return parts[len(parts)-1]
}

func compileAction(ctx *buildctx.Context, p *project.Project, sources []string, target string) error {
	cpp := IsCpp(p)
	args := []string{compiler(cpp)}

	if ctx.Config.Debug {
		args = append(args, "-g")
	}

	if ctx.Config.Optimizations {
		args = append(args, "-O2")
	}

	if ctx.Config.Strict {
		args = append(args, "-Wall", "-Wextra", "-Werror")
	}

	standardAttr := "c-standard"
	if cpp {
		standardAttr = "cpp-standard"
	}

	if standard, ok := p.Attributes.Get(standardAttr); ok {
		args = append(args, "-std="+standard.String())
	}

	args = append(args, "-I.")

	if platform.Exists(p.Path, "include") {
		args = append(args, "-Iinclude")
	}

	// Installed dependencies expose their headers under
	// <root>/<dep_underscore>/include (the install layer's layout).
	for _, dep := range p.AllDependencyIDs() {
		underscore := strings.ReplaceAll(dep, "/", "_")

		for _, root := range ctx.InstallRoots {
			incDir := filepath.Join(root, underscore, "include")
			if _, err := os.Stat(incDir); err == nil {
				args = append(args, "-I"+incDir)
			}
		}
	}

	for _, inc := range p.Attributes.StringSlice("include") {
		args = append(args, "-I"+inc)
	}

	for _, flag := range p.Attributes.StringSlice("cflags") {
		args = append(args, flag)
	}

	if cpp {
		for _, flag := range p.Attributes.StringSlice("cxxflags") {
			args = append(args, flag)
		}
	}

	absTarget := filepath.Join(p.Path, target)

	args = append(args, "-c", sources[0], "-o", absTarget)

	return exec(ctx, p, args)
}

func linkAction(ctx *buildctx.Context, p *project.Project, sources []string, target string) error {
	if p.Attributes.Bool("static_artefact", false) || p.Attributes.Bool("static", false) {
		return archiveAction(ctx, p, sources, target)
	}

	args := []string{compiler(IsCpp(p))}

	for _, src := range sources {
		args = append(args, src)
	}

	for _, libpath := range p.Attributes.StringSlice("libpath") {
		args = append(args, "-L"+libpath)
	}

	// Resolved dependency artefacts, filled in by the resolver from
	// use/use_private/use_build.
	for _, dep := range p.Link {
		args = append(args, linkToLib(ctx, p, dep)...)
	}

	for _, lib := range p.Attributes.StringSlice("lib") {
		args = append(args, "-l"+lib)
	}

	for _, static := range p.Attributes.StringSlice("static_lib") {
		args = append(args, static)
	}

	for _, flag := range p.Attributes.StringSlice("ldflags") {
		args = append(args, flag)
	}

	absTarget := filepath.Join(p.Path, target)

	args = append(args, "-o", absTarget)

	return exec(ctx, p, args)
}

// archiveAction produces a static-library artefact. Static libraries
// listed in the static_lib attribute are unpacked first and their objects
// folded into the new archive, so a static artefact is self-contained.
func archiveAction(ctx *buildctx.Context, p *project.Project, sources []string, target string) error {
	absTarget := filepath.Join(p.Path, target)

	var args []string
	if ctx.Config.IsWindows() {
		args = []string{ctx.Config.ArchiveTool(), "/OUT:" + absTarget}
	} else {
		args = []string{ctx.Config.ArchiveTool(), "rcs", absTarget}
	}

	args = append(args, sources...)

	for _, lib := range p.Attributes.StringSlice("static_lib") {
		libPath := lib
		if !filepath.IsAbs(libPath) {
			libPath = filepath.Join(p.Path, lib)
		}

		unpackDir, err := install.ExtractStaticLib(ctx, libPath, p.IDUnderscore())
		if err != nil {
			p.Error = true
			return err
		}

		objects, err := fsiter.Iterate(unpackDir, "*.o")
		if err != nil {
			return err
		}

		for _, obj := range objects {
			args = append(args, filepath.Join(unpackDir, obj))
		}
	}

	return exec(ctx, p, args)
}

// exec shells out to the platform layer, marking the project in error on
// a non-zero exit.
func exec(ctx *buildctx.Context, p *project.Project, cmd []string) error {
	if err := platform.Run(ctx, p.Path, cmd); err != nil {
		p.Error = true
		return err
	}

	return nil
}
