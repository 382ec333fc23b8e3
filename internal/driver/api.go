package driver

import (
	"encoding/json"

	"github.com/forgebuild/forgebuild/internal/attr"
	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/fsiter"
	"github.com/forgebuild/forgebuild/internal/match"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
)

// Phase identifies one stage of the per-project build lifecycle.
type Phase string

const (
	PhaseSetup     Phase = "setup"
	PhaseInit      Phase = "init"
	PhaseGenerate  Phase = "generate"
	PhasePrebuild  Phase = "prebuild"
	PhaseBuild     Phase = "build"
	PhasePostbuild Phase = "postbuild"
	PhaseTest      Phase = "test"
	PhaseCoverage  Phase = "coverage"
	PhaseClean     Phase = "clean"
)

// PhaseOrder is the fixed sequence phases run in for a single project.
// Rule evaluation runs between prebuild and the build callback and is
// driven by the ruleengine package, not listed here; the build callback
// itself is a hook for work a driver cannot express as rules.
var PhaseOrder = []Phase{PhaseSetup, PhaseInit, PhaseGenerate, PhasePrebuild, PhaseBuild, PhasePostbuild, PhaseTest, PhaseCoverage, PhaseClean}

// PhaseCallback is a driver's handler for one lifecycle phase.
type PhaseCallback func(ctx *buildctx.Context, p *project.Project) error

// LinkToLibFunc maps one dependency id to the linker arguments that pull
// its installed artefact into a dependent project's link line. Drivers
// that inherit another driver (e.g. C++ over C) reuse the delegate's
// mapping through LookupDriver.
type LinkToLibFunc func(ctx *buildctx.Context, p *project.Project, depID string) []string

// Driver is the vtable a driver entry point builds: its rule graph, phase
// callbacks and named patterns/files/conditions, keyed by logical id in
// the Registry.
type Driver struct {
	ID string

	Graph *Graph
	Root  string // the conventional root rule-graph node name, e.g. "ARTEFACT"

	phases    map[Phase]PhaseCallback
	linkToLib LinkToLibFunc

	patterns   map[string]*match.Program
	files      map[string]string
	conditions map[string]Condition

	// imported holds drivers this driver delegates to via API.Import, so
	// CurrentDriver/SetDriver can re-root API calls.
	imported map[string]*Driver
}

// Condition returns the predicate registered under name, if any.
func (d *Driver) Condition(name string) (Condition, bool) {
	c, ok := d.conditions[name]
	return c, ok
}

func newDriver(id string) *Driver {
	return &Driver{
		ID:       id,
		Graph:    NewGraph(),
		Root:     "ARTEFACT",
		phases:   make(map[Phase]PhaseCallback),
		patterns: make(map[string]*match.Program),
		files:    make(map[string]string),
		imported: make(map[string]*Driver),
	}
}

// Phase returns the registered callback for phase, if any.
func (d *Driver) Phase(phase Phase) (PhaseCallback, bool) {
	cb, ok := d.phases[phase]
	return cb, ok
}

// LinkToLib returns the linker arguments for depID, or nil when the driver
// registered no link_to_lib mapping.
func (d *Driver) LinkToLib(ctx *buildctx.Context, p *project.Project, depID string) []string {
	if d.linkToLib == nil {
		return nil
	}

	return d.linkToLib(ctx, p, depID)
}

// ResolvePattern returns the compiled match.Program registered under name.
func (d *Driver) ResolvePattern(name string) (*match.Program, bool) {
	p, ok := d.patterns[name]
	return p, ok
}

// ResolveFile returns the literal path registered under name.
func (d *Driver) ResolveFile(name string) (string, bool) {
	p, ok := d.files[name]
	return p, ok
}

// SetRuleTargetFile overwrites a TargetFile rule's target path, used by the
// orchestrator to bind a driver's placeholder artefact path to the real,
// per-project artefact name computed from the project's Kind and static
// flag, which a driver's shared rule graph cannot compute for itself at
// registration time.
func (d *Driver) SetRuleTargetFile(nodeName, path string) error {
	idx, ok := d.Graph.Resolve(nodeName)
	if !ok {
		return errs.Errorf("driver %s: unknown rule %q", d.ID, nodeName)
	}

	n := d.Graph.At(idx)
	if n.Kind != NodeRule || n.Target.Kind != TargetFile {
		return errs.Errorf("driver %s: rule %q is not a TargetFile rule", d.ID, nodeName)
	}

	n.Target.File = path

	return nil
}

// Finalize fixes up rule source references once an entry point has
// finished registering nodes. Called once by the registry right after
// the entry point returns.
func (d *Driver) Finalize() error {
	return d.Graph.resolveSourceRefs()
}

// API is the driver-facing table passed to a driver's entry point. One
// API value roots at a single Driver, but SetDriver/CurrentDriver allow
// temporarily re-rooting at an imported driver so an inheriting driver
// (e.g. C++ over C) can register rules on the delegate without restating
// its API surface. API is an explicit value threaded through the entry
// point call, never process-wide state.
type API struct {
	ctx      *buildctx.Context
	registry *Registry
	root     *Driver // the driver being registered (named by id at Load time)
	current  *Driver // the driver new registrations attach to; may be root or an imported driver
}

func newAPI(ctx *buildctx.Context, registry *Registry, root *Driver) *API {
	return &API{ctx: ctx, registry: registry, root: root, current: root}
}

// Pattern registers a named glob expression. Re-registering an existing
// pattern overwrites its expression, so an inheriting driver can narrow or
// widen a file set it replayed from its delegate; any other node kind
// under the same name is still a duplicate error.
func (a *API) Pattern(name, glob string) error {
	prog, err := match.Compile(glob)
	if err != nil {
		return errs.Errorf("driver %s: pattern %q: %w", a.current.ID, name, err)
	}

	a.current.patterns[name] = prog

	if idx, ok := a.current.Graph.Resolve(name); ok {
		n := a.current.Graph.At(idx)
		if n.Kind != NodePattern {
			return errs.Errorf("driver %s: node %q already registered as a non-pattern", a.current.ID, name)
		}

		n.Glob = glob

		return nil
	}

	_, err = a.current.Graph.addNode(Node{Kind: NodePattern, Name: name, Glob: glob})

	return err
}

// File registers a named literal path.
func (a *API) File(name, path string) error {
	a.current.files[name] = path

	_, err := a.current.Graph.addNode(Node{Kind: NodeFile, Name: name, Path: path})

	return err
}

// RuleOption customizes a Rule/DependencyRule registration beyond its
// required arguments; currently only WithCondition.
type RuleOption func(*Node)

// WithCondition gates the rule on a previously registered named
// precondition; the rule is skipped entirely (yielding no outputs) when
// the predicate returns false.
func WithCondition(conditionName string) RuleOption {
	return func(n *Node) { n.conditionRef = conditionName }
}

// Rule registers a build edge from a named source node to a TargetSpec.
func (a *API) Rule(name, sourceRef string, target TargetSpec, action Action, opts ...RuleOption) error {
	n := Node{
		Kind:      NodeRule,
		Name:      name,
		SourceRef: sourceRef,
		Target:    target,
		Action:    action,
	}

	for _, opt := range opts {
		opt(&n)
	}

	if n.conditionRef != "" {
		cond, ok := a.current.conditions[n.conditionRef]
		if !ok {
			return errs.Errorf("driver %s: rule %q: unknown condition %q", a.current.ID, name, n.conditionRef)
		}

		n.Condition = cond
	}

	_, err := a.current.Graph.addNode(n)

	return err
}

// DependencyRule is like Rule but its source set is a dependency-id list
// rather than a file pattern.
func (a *API) DependencyRule(name string, target TargetSpec, action Action, opts ...RuleOption) error {
	n := Node{
		Kind:       NodeRule,
		Name:       name,
		Target:     target,
		Action:     action,
		Dependency: true,
	}

	for _, opt := range opts {
		opt(&n)
	}

	if n.conditionRef != "" {
		cond, ok := a.current.conditions[n.conditionRef]
		if !ok {
			return errs.Errorf("driver %s: rule %q: unknown condition %q", a.current.ID, name, n.conditionRef)
		}

		n.Condition = cond
	}

	_, err := a.current.Graph.addNode(n)

	return err
}

// TargetPatternSpec builds a TargetSpec of kind TargetPattern.
func TargetPatternSpec(pattern string) TargetSpec { return TargetSpec{Kind: TargetPattern, Pattern: pattern} }

// TargetFileSpec builds a TargetSpec of kind TargetFile.
func TargetFileSpec(path string) TargetSpec { return TargetSpec{Kind: TargetFile, File: path} }

// TargetMapSpec builds a TargetSpec of kind TargetMap.
func TargetMapSpec(fn MapFunc) TargetSpec { return TargetSpec{Kind: TargetMap, Map: fn} }

// Condition attaches name to the gating predicate pred; rules reference it
// by name as SourceRef-style lookup during evaluation is the ruleengine's
// job, so API only records it for that package to consult.
func (a *API) Condition(name string, pred Condition) {
	if a.current.conditions == nil {
		a.current.conditions = make(map[string]Condition)
	}

	a.current.conditions[name] = pred
}

// registerPhase is the common body of the phase-registrar methods below.
func (a *API) registerPhase(phase Phase, cb PhaseCallback) {
	a.current.phases[phase] = cb
}

func (a *API) OnInit(cb PhaseCallback)      { a.registerPhase(PhaseInit, cb) }
func (a *API) OnSetup(cb PhaseCallback)     { a.registerPhase(PhaseSetup, cb) }
func (a *API) OnGenerate(cb PhaseCallback)  { a.registerPhase(PhaseGenerate, cb) }
func (a *API) OnPrebuild(cb PhaseCallback)  { a.registerPhase(PhasePrebuild, cb) }
func (a *API) OnBuild(cb PhaseCallback)     { a.registerPhase(PhaseBuild, cb) }
func (a *API) OnPostbuild(cb PhaseCallback) { a.registerPhase(PhasePostbuild, cb) }
func (a *API) OnTest(cb PhaseCallback)      { a.registerPhase(PhaseTest, cb) }
func (a *API) OnCoverage(cb PhaseCallback)  { a.registerPhase(PhaseCoverage, cb) }
func (a *API) OnClean(cb PhaseCallback)     { a.registerPhase(PhaseClean, cb) }

// Artefact names the root rule-graph node the rule engine evaluates for
// this driver (conventionally "ARTEFACT").
func (a *API) Artefact(nodeName string) { a.current.Root = nodeName }

// OnLinkToLib registers the dependency-id-to-linker-arguments mapping
// consulted when a dependent project links against this driver's artefacts.
func (a *API) OnLinkToLib(fn LinkToLibFunc) { a.current.linkToLib = fn }

// Use reports whether p declares id as a dependency.
func (a *API) Use(p *project.Project, id string) bool {
	for _, d := range p.AllDependencyIDs() {
		if d == id {
			return true
		}
	}

	return false
}

// Exists reports whether path exists relative to p's root.
func (a *API) Exists(p *project.Project, relPath string) bool {
	return platform.Exists(p.Path, relPath)
}

// Lookup expands the named pattern registered on the current driver
// against p's root and returns the matching relative paths.
func (a *API) Lookup(p *project.Project, patternName string) ([]string, error) {
	idx, ok := a.current.Graph.Resolve(patternName)
	if !ok {
		return nil, errs.Errorf("driver %s: unknown pattern %q", a.current.ID, patternName)
	}

	n := a.current.Graph.At(idx)
	if n.Kind != NodePattern {
		return nil, errs.Errorf("driver %s: node %q is not a pattern", a.current.ID, patternName)
	}

	return fsiter.Iterate(p.Path, n.Glob)
}

// IgnorePath appends relPath to p's "__ignore_path" attribute. The list is
// only recorded: neither the crawler nor the rule engine reads it, so the
// path is not excluded from discovery or pattern expansion.
func (a *API) IgnorePath(p *project.Project, relPath string) {
	p.Attributes.SetArray("__ignore_path", appendAttrString(p, "__ignore_path", relPath))
}

func appendAttrString(p *project.Project, name, v string) []attr.Attribute {
	existing := p.Attributes.StringSlice(name)
	existing = append(existing, v)

	out := make([]attr.Attribute, len(existing))
	for i, s := range existing {
		out[i] = attr.NewString("", s)
	}

	return out
}

// Remove marks relPath for deletion during the clean phase.
func (a *API) Remove(p *project.Project, relPath string) {
	p.Attributes.SetArray("__remove", appendAttrString(p, "__remove", relPath))
}

// Bool, String, StringSlice and SetBool/SetString/SetArray expose the
// project's attribute store to the driver.
func (a *API) Bool(p *project.Project, name string, def bool) bool { return p.Attributes.Bool(name, def) }

func (a *API) String(p *project.Project, name, def string) string {
	if v, ok := p.Attributes.Get(name); ok {
		return v.String()
	}

	return def
}

func (a *API) StringSlice(p *project.Project, name string) []string { return p.Attributes.StringSlice(name) }

func (a *API) SetBool(p *project.Project, name string, v bool) { p.Attributes.SetBool(name, v) }

func (a *API) SetString(p *project.Project, name, v string) { p.Attributes.SetString(name, v) }

// RawJSON renders the named attribute back to its JSON form, for drivers
// that forward a value block verbatim to an external tool.
func (a *API) RawJSON(p *project.Project, name string) (string, bool) {
	v, ok := p.Attributes.Get(name)
	if !ok {
		return "", false
	}

	data, err := json.Marshal(v.Interface())
	if err != nil {
		return "", false
	}

	return string(data), true
}

// Exec runs cmd synchronously via the platform layer; a non-zero exit
// marks p.Error.
func (a *API) Exec(p *project.Project, dir string, cmd []string) error {
	if err := platform.Run(a.ctx, dir, cmd); err != nil {
		p.Error = true
		return err
	}

	return nil
}

// Import loads driverID, records it for LookupDriver, and replays its
// registrations onto the importing driver, so an inheriting driver (e.g.
// C++ over C) starts from the delegate's full rule graph and phase set
// and then overrides piecewise. The replay runs under a scoped SetDriver
// swap so the registration target is restored on every exit path, even
// when the delegate's entry point fails or swaps drivers itself.
func (a *API) Import(driverID string) (*Driver, error) {
	d, err := a.registry.Load(a.ctx, driverID)
	if err != nil {
		return nil, err
	}

	a.current.imported[driverID] = d

	entry, ok := a.registry.entry(driverID)
	if !ok {
		return nil, errs.Errorf("driver %s: import %q: entry point unavailable", a.current.ID, driverID)
	}

	restore := a.SetDriver(a.current)
	defer restore()

	if err := entry(a); err != nil {
		return nil, errs.Errorf("driver %s: import %q: %w", a.current.ID, driverID, err)
	}

	return d, nil
}

// LookupDriver returns a previously imported driver by id.
func (a *API) LookupDriver(driverID string) (*Driver, bool) {
	d, ok := a.current.imported[driverID]
	return d, ok
}

// CurrentDriver returns the driver new registrations currently attach to.
func (a *API) CurrentDriver() *Driver { return a.current }

// SetDriver temporarily re-roots the API at d, returning a restore func
// that must be deferred immediately at the call site so every exit path
// restores the prior value.
func (a *API) SetDriver(d *Driver) (restore func()) {
	prev := a.current
	a.current = d

	return func() { a.current = prev }
}
