// Package orchestrator drives a single project through the phase
// lifecycle, interleaving rule evaluation between the prebuild and build
// phases, and is invoked once per project by the crawler's topological
// Walk.
package orchestrator

import (
	"path/filepath"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/fsiter"
	"github.com/forgebuild/forgebuild/internal/install"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
	"github.com/forgebuild/forgebuild/internal/ruleengine"
)

// Options configures a single project's build run.
type Options struct {
	Registry   *driver.Registry
	InstallDir string
	RunTests   bool
	RunClean   bool
}

// Build runs p through init/generate/prebuild, rule evaluation,
// build/postbuild, test/coverage and install, stopping as soon as
// p.Error becomes true. It is the Callback the crawler's Walk invokes
// per project.
func Build(ctx *buildctx.Context, p *project.Project, opts Options) error {
	l := ctx.Logger.WithProject(p.ID)
	pctx := ctx.WithLogger(l)

	d, err := opts.Registry.Load(pctx, p.Language)
	if err != nil {
		p.Error = true
		return err
	}

	if opts.RunClean {
		return clean(pctx, p, d)
	}

	// The setup phase is not part of a regular build: it only runs when a
	// new project is instantiated from a template, so drivers register it
	// but the build loop starts at init.
	for _, phase := range []driver.Phase{driver.PhaseInit, driver.PhaseGenerate, driver.PhasePrebuild} {
		if err := runPhase(pctx, p, d, phase); err != nil {
			return err
		}

		if p.Error {
			return errs.Errorf("orchestrator: %s: phase %q failed", p.ID, phase)
		}
	}

	// generate/prebuild may have written derived sources; drop any memoized
	// listing of the project tree so pattern expansion sees them.
	fsiter.InvalidateTree(p.Path)

	artefactPath, err := bindArtefactTarget(pctx, p, d)
	if err != nil {
		p.Error = true
		return err
	}

	if _, err := ruleengine.Evaluate(pctx, p, d, d.Root); err != nil {
		p.Error = true
		return err
	}

	if p.Error {
		return errs.Errorf("orchestrator: %s: rule evaluation failed", p.ID)
	}

	if p.Changed {
		p.FreshlyBaked = true
	}

	if err := runPhase(pctx, p, d, driver.PhaseBuild); err != nil {
		return err
	}

	if err := runPhase(pctx, p, d, driver.PhasePostbuild); err != nil {
		return err
	}

	if p.Error {
		return errs.Errorf("orchestrator: %s: postbuild failed", p.ID)
	}

	if opts.RunTests {
		if err := runPhase(pctx, p, d, driver.PhaseTest); err != nil {
			return err
		}

		if ctx.Config.Coverage {
			if err := runPhase(pctx, p, d, driver.PhaseCoverage); err != nil {
				return err
			}
		}
	}

	if opts.InstallDir != "" {
		headers := p.Attributes.StringSlice("public_headers")
		if err := install.Root(opts.InstallDir, p.IDUnderscore(), filepath.Join(p.Path, artefactPath), headers, p.Path); err != nil {
			p.Error = true
			return err
		}
	}

	p.Built = true

	return nil
}

// clean runs init (so drivers can populate the attributes their clean
// callback reads) followed by the clean phase, then deletes any files the
// driver marked through the API's Remove query. It never evaluates rules:
// cleaning must not trigger a build.
func clean(ctx *buildctx.Context, p *project.Project, d *driver.Driver) error {
	for _, phase := range []driver.Phase{driver.PhaseInit, driver.PhaseClean} {
		if err := runPhase(ctx, p, d, phase); err != nil {
			return err
		}
	}

	for _, rel := range p.Attributes.StringSlice("__remove") {
		if err := platform.RemoveAll(filepath.Join(p.Path, rel)); err != nil {
			p.Error = true
			return err
		}
	}

	p.Built = true

	return nil
}

func runPhase(ctx *buildctx.Context, p *project.Project, d *driver.Driver, phase driver.Phase) error {
	cb, ok := d.Phase(phase)
	if !ok {
		return nil
	}

	if err := cb(ctx.WithLogger(ctx.Logger.WithPhase(string(phase))), p); err != nil {
		p.Error = true
		return errs.Errorf("orchestrator: %s: phase %q: %w", p.ID, phase, err)
	}

	return nil
}

// bindArtefactTarget computes the real on-disk artefact path for p and
// binds it onto the driver's shared root rule node, per
// driver.Driver.SetRuleTargetFile's contract.
func bindArtefactTarget(ctx *buildctx.Context, p *project.Project, d *driver.Driver) (string, error) {
	static := p.Attributes.Bool("static_artefact", false) || p.Attributes.Bool("static", false)

	name := install.ArtefactName(p.IDUnderscore(), p.Kind.String(), ctx.Config, static)
	rel := filepath.Join(".forgebuild", "bin", name)

	if err := d.SetRuleTargetFile(d.Root, rel); err != nil {
		return "", err
	}

	return rel, nil
}
