// Package project holds the in-memory representation of one discovered
// project: identity, kind, source path, declared dependencies, attributes
// and the runtime flags the resolver and rule engine maintain during a
// build run.
package project

import (
	"strings"
	"sync"

	"github.com/forgebuild/forgebuild/internal/attr"
)

// Kind is the project's declared type.
type Kind int

const (
	KindApplication Kind = iota
	KindPackage
	KindTool
)

func (k Kind) String() string {
	switch k {
	case KindApplication:
		return "application"
	case KindPackage:
		return "package"
	case KindTool:
		return "tool"
	default:
		return "unknown"
	}
}

// ParseKind maps a manifest's "type" string to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "application":
		return KindApplication, true
	case "package":
		return KindPackage, true
	case "tool":
		return KindTool, true
	default:
		return 0, false
	}
}

// Version is a semantic-version record whose fields are each optional as
// they descend; a patch without a minor is invalid.
type Version struct {
	Major *int
	Minor *int
	Patch *int
}

// TestSuite names a group of testcases declared in the manifest; the test
// driver scaffolds one source file per suite with one stub per testcase.
type TestSuite struct {
	ID        string   `json:"id" mapstructure:"id"`
	TestCases []string `json:"testcases" mapstructure:"testcases"`
}

// Project is the in-memory representation of one discovered project.
type Project struct {
	ID       string
	Kind     Kind
	Path     string // absolute source path
	Language string
	Version  Version

	Use        []string // public dependencies
	UsePrivate []string // private (build-time, not exposed) dependencies
	UseBuild   []string // build-only dependencies

	Link []string // external link targets resolved from Use*

	TestSuites []TestSuite

	Attributes *attr.Store

	// Runtime flags, mutated by the resolver and rule engine during a run.
	Error            bool
	FreshlyBaked     bool
	Changed          bool
	ArtefactOutdated bool
	SourcesOutdated  bool
	Built            bool
	Recursive        bool

	mu                     sync.Mutex
	dependents             map[string]struct{}
	unresolvedDependencies int
}

// New constructs an empty Project for id at path.
func New(id string, kind Kind, path, language string) *Project {
	return &Project{
		ID:         id,
		Kind:       kind,
		Path:       path,
		Language:   language,
		Attributes: attr.NewStore(),
		dependents: make(map[string]struct{}),
	}
}

// IDUnderscore returns ID with "/" separators replaced by "_".
func (p *Project) IDUnderscore() string {
	return strings.ReplaceAll(p.ID, "/", "_")
}

// IDShort returns the last "/"-separated segment of ID.
func (p *Project) IDShort() string {
	parts := strings.Split(p.ID, "/")
	return parts[len(parts)-1]
}

// AllDependencyIDs returns the union of Use, UsePrivate and UseBuild, in
// that order, used by the resolver to build dependency edges.
func (p *Project) AllDependencyIDs() []string {
	out := make([]string, 0, len(p.Use)+len(p.UsePrivate)+len(p.UseBuild))
	out = append(out, p.Use...)
	out = append(out, p.UsePrivate...)
	out = append(out, p.UseBuild...)

	return out
}

// AddDependent records dependent as having a dependency edge onto p. It is a
// weak back-reference filled in by the resolver, not an ownership link.
func (p *Project) AddDependent(dependentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dependents[dependentID] = struct{}{}
}

// Dependents returns the set of project ids that depend on p.
func (p *Project) Dependents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.dependents))
	for id := range p.dependents {
		out = append(out, id)
	}

	return out
}

// SetUnresolvedDependencies initializes the resolver's readiness counter.
func (p *Project) SetUnresolvedDependencies(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unresolvedDependencies = n
}

// DecrementUnresolvedDependencies decrements the readiness counter and
// reports whether it reached zero (the project is now ready to build).
func (p *Project) DecrementUnresolvedDependencies() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unresolvedDependencies--

	return p.unresolvedDependencies == 0
}

// UnresolvedDependencies reports the current readiness counter value.
func (p *Project) UnresolvedDependencies() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.unresolvedDependencies
}

// Ready reports whether p has no remaining unresolved dependencies.
func (p *Project) Ready() bool {
	return p.UnresolvedDependencies() == 0
}
