// Package driver implements the driver framework: the rule/pattern/target
// abstraction, the driver-facing API contract, and the phase-callback
// lifecycle.
//
// Rule nodes live in an arena (Graph) addressed by integer index rather
// than by pointer, so a rule's "source" reference is a name resolved
// through the Graph rather than a forward pointer. This keeps the
// structure acyclic by construction.
package driver

import (
	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/project"
)

// NodeKind distinguishes the three node shapes a driver's rule graph can
// contain.
type NodeKind int

const (
	NodePattern NodeKind = iota
	NodeFile
	NodeRule
)

// NodeIndex addresses a node within a Graph's arena.
type NodeIndex int

const invalidIndex NodeIndex = -1

// TargetKind distinguishes the three ways a Rule may compute its target set.
type TargetKind int

const (
	TargetPattern TargetKind = iota
	TargetFile
	TargetMap
)

// MapFunc computes a single target path from a single source path, used
// by a TargetSpec of kind TargetMap.
type MapFunc func(source string) string

// TargetSpec is the output half of a rule: a pattern, a single file, or a
// per-source mapping function.
type TargetSpec struct {
	Kind    TargetKind
	Pattern string
	File    string
	Map     MapFunc
}

// Action is invoked when a rule fires; it receives the resolved project,
// the (possibly joined) source set and the target path, and reports
// failure by returning an error (which the engine translates into
// project.Error).
type Action func(ctx *buildctx.Context, p *project.Project, sources []string, target string) error

// Condition gates whether a rule is even considered.
type Condition func(p *project.Project) bool

// Node is one entry in a driver's rule Graph.
type Node struct {
	Kind NodeKind
	Name string

	// NodePattern
	Glob string

	// NodeFile
	Path string

	// NodeRule
	Source       NodeIndex // resolved lazily via SourceRef
	SourceRef    string
	Target       TargetSpec
	Action       Action
	Condition    Condition
	conditionRef string
	Dependency   bool // true for a dependency_rule (source is a dependency id set, not a file pattern)
}

// Graph is a driver's arena of rule-graph nodes plus the name-to-index
// map used to resolve references.
type Graph struct {
	nodes  []Node
	byName map[string]NodeIndex
}

// NewGraph constructs an empty Graph.
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]NodeIndex)}
}

// addNode appends n to the arena under n.Name, which must be unique.
func (g *Graph) addNode(n Node) (NodeIndex, error) {
	if _, exists := g.byName[n.Name]; exists {
		return invalidIndex, errs.Errorf("driver: duplicate rule-graph node %q", n.Name)
	}

	idx := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.byName[n.Name] = idx

	return idx, nil
}

// Resolve looks up a node by name.
func (g *Graph) Resolve(name string) (NodeIndex, bool) {
	idx, ok := g.byName[name]
	return idx, ok
}

// At returns the node at idx. idx must have come from Resolve/addNode on
// this Graph.
func (g *Graph) At(idx NodeIndex) *Node {
	return &g.nodes[idx]
}

// resolveSourceRefs fixes up each NodeRule's Source index once all nodes
// have been registered (entry points register nodes in arbitrary order, so
// a rule may reference a pattern/file/rule declared later).
func (g *Graph) resolveSourceRefs() error {
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.Kind != NodeRule || n.Dependency {
			continue
		}

		idx, ok := g.byName[n.SourceRef]
		if !ok {
			return errs.Errorf("driver: rule %q references unknown source %q", n.Name, n.SourceRef)
		}

		n.Source = idx
	}

	return nil
}
