// Package cli configures the forgebuild CLI app and its commands atop
// github.com/urfave/cli/v2.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/forgebuild/forgebuild/internal/amalgamate"
	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/crawler"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/driver/langc"
	"github.com/forgebuild/forgebuild/internal/driver/langcpp"
	"github.com/forgebuild/forgebuild/internal/driver/langtest"
	"github.com/forgebuild/forgebuild/internal/fsiter"
	"github.com/forgebuild/forgebuild/internal/log"
	"github.com/forgebuild/forgebuild/internal/orchestrator"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
)

// AppName is the executable's declared name for --help / --version output.
const AppName = "forgebuild"

// NewApp builds the forgebuild CLI application.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = AppName
	app.Usage = "a project-oriented build orchestrator"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "root", Value: ".", Usage: "root directory to search for projects"},
		&cli.StringFlag{Name: "log-level", Value: "info"},
		&cli.StringFlag{Name: "install-dir", Usage: "directory to install built artefacts and headers into"},
		&cli.StringSliceFlag{Name: "install-root", Usage: "pre-installed package root to resolve external dependencies against"},
	}
	app.Commands = []*cli.Command{
		buildCommand(),
		cleanCommand(),
		testCommand(),
		listCommand(),
		amalgamateCommand(),
	}

	return app
}

func newContext(c *cli.Context) *buildctx.Context {
	l := log.New(c.String("log-level"), os.Stderr)
	cfg := buildctx.Default(c.String("root"))

	ctx := buildctx.New(c.Context, cfg, l)
	ctx.InstallRoots = c.StringSlice("install-root")

	return ctx
}

func newRegistry() *driver.Registry {
	r := driver.NewRegistry()
	r.RegisterBuiltin(langc.ID, langc.Register)
	r.RegisterBuiltin(langcpp.ID, langcpp.Register)
	r.RegisterBuiltin(langtest.ID, langtest.Register)

	// Projects dispatch by their manifest language tag; map each tag to
	// the driver serving it.
	r.RegisterLanguage("c", langc.ID)
	r.RegisterLanguage("cpp", langcpp.ID)
	r.RegisterLanguage("test", langtest.ID)

	return r
}

// discoverAndResolve runs the crawler's discovery and DAG-construction
// steps, shared by every subcommand that needs an ordered project set.
func discoverAndResolve(ctx *buildctx.Context, root string) (*crawler.Resolver, error) {
	projects, err := crawler.Search(root)
	if err != nil {
		return nil, err
	}

	resolver := crawler.NewResolver(projects, ctx.InstallRoots)
	if err := resolver.Build(); err != nil {
		return nil, err
	}

	return resolver, nil
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "discover, resolve and build every project under --root",
		Action: func(c *cli.Context) error {
			return runAll(c, orchestrator.Options{InstallDir: c.String("install-dir")})
		},
	}
}

func testCommand() *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "build every project and run its test phase",
		Action: func(c *cli.Context) error {
			return runAll(c, orchestrator.Options{RunTests: true, InstallDir: c.String("install-dir")})
		},
	}
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "remove every project's declared intermediate files",
		Action: func(c *cli.Context) error {
			return runAll(c, orchestrator.Options{RunClean: true})
		},
	}
}

// runAll discovers, resolves and walks every project under --root,
// dispatching each to orchestrator.Build, and reports the final summary
// (built / failed / blocked / cyclic).
func runAll(c *cli.Context, opts orchestrator.Options) error {
	ctx := newContext(c)

	resolver, err := discoverAndResolve(ctx, c.String("root"))
	if err != nil {
		return err
	}

	opts.Registry = newRegistry()

	result := resolver.Walk(func(p *project.Project) error {
		return orchestrator.Build(ctx, p, opts)
	})

	for _, id := range result.Built {
		fmt.Fprintf(c.App.Writer, "built: %s\n", id)
	}

	for _, id := range result.Failed {
		fmt.Fprintf(c.App.ErrWriter, "failed: %s\n", id)
	}

	for _, id := range result.Blocked {
		fmt.Fprintf(c.App.ErrWriter, "blocked: %s\n", id)
	}

	for _, id := range result.Cycles {
		fmt.Fprintf(c.App.ErrWriter, "cycle: %s\n", id)
	}

	if !result.Succeeded() {
		return cli.Exit("forgebuild: one or more projects failed to build", 1)
	}

	return nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list discovered projects in dependency order",
		Action: func(c *cli.Context) error {
			ctx := newContext(c)

			resolver, err := discoverAndResolve(ctx, c.String("root"))
			if err != nil {
				return err
			}

			var order []string

			resolver.Walk(func(p *project.Project) error {
				order = append(order, p.ID)
				return nil
			})

			for _, id := range order {
				fmt.Fprintln(c.App.Writer, id)
			}

			return nil
		},
	}
}

func amalgamateCommand() *cli.Command {
	return &cli.Command{
		Name:  "amalgamate",
		Usage: "produce a single-header/single-source distribution for one project",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Required: true, Usage: "id of the project to amalgamate"},
			&cli.StringFlag{Name: "out", Usage: "output directory (defaults to <project>/.forgebuild/dist)"},
		},
		Action: func(c *cli.Context) error {
			ctx := newContext(c)

			projects, err := crawler.Search(c.String("root"))
			if err != nil {
				return err
			}

			p, ok := projects[c.String("project")]
			if !ok {
				return cli.Exit(fmt.Sprintf("amalgamate: no project %q under %s", c.String("project"), c.String("root")), 1)
			}

			outDir := c.String("out")
			if outDir == "" {
				outDir = filepath.Join(p.Path, ".forgebuild", "dist")
			}

			header, source, err := amalgamateProject(ctx, p)
			if err != nil {
				return err
			}

			if err := platform.MkdirAll(outDir); err != nil {
				return err
			}

			short := p.IDShort()

			if err := os.WriteFile(filepath.Join(outDir, short+".h"), []byte(header), 0o644); err != nil {
				return err
			}

			if err := os.WriteFile(filepath.Join(outDir, short+".c"), []byte(source), 0o644); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "amalgamated: %s -> %s\n", p.ID, outDir)

			return nil
		},
	}
}

// amalgamateProject runs both amalgamation passes for p: the combined
// header (entry: the project-named header) and the combined source (entry:
// every source file).
func amalgamateProject(ctx *buildctx.Context, p *project.Project) (header, source string, err error) {
	short := p.IDShort()
	includeDir := filepath.Join(p.Path, "include")
	includePath := []string{includeDir, p.Path}

	headerEntry := filepath.Join(includeDir, short+".h")
	if _, statErr := os.Stat(headerEntry); statErr != nil {
		headerEntry = filepath.Join(p.Path, short+".h")
	}

	header, err = amalgamate.Run(amalgamate.Options{
		ProjectID:   short,
		IncludePath: includePath,
		IsInclude:   true,
		EntryFiles:  []string{headerEntry},
		Logger:      ctx.Logger,
	})
	if err != nil {
		return "", "", err
	}

	rels, err := fsiter.Iterate(p.Path, "src//*.c,*.c")
	if err != nil {
		return "", "", err
	}

	entries := make([]string, 0, len(rels))
	for _, rel := range rels {
		entries = append(entries, filepath.Join(p.Path, rel))
	}

	source, err = amalgamate.Run(amalgamate.Options{
		ProjectID:   short,
		IncludePath: includePath,
		IsInclude:   false,
		EntryFiles:  entries,
		Logger:      ctx.Logger,
	})
	if err != nil {
		return "", "", err
	}

	return header, source, nil
}
