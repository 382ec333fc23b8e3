// Package ruleengine evaluates a driver's rule graph for a single
// project: pattern expansion, freshness comparison between sources and
// targets, and action scheduling in dependency order.
package ruleengine

import (
	"path/filepath"
	"sort"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/driver"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/fsiter"
	"github.com/forgebuild/forgebuild/internal/platform"
	"github.com/forgebuild/forgebuild/internal/project"
)

// Evaluate walks d's rule graph starting at the named root node
// (conventionally "ARTEFACT") for project p, firing stale rule
// actions in sorted-source, dependency order. It returns the final set of
// files the root node resolves to (the artefact's own output set).
func Evaluate(ctx *buildctx.Context, p *project.Project, d *driver.Driver, rootName string) ([]string, error) {
	idx, ok := d.Graph.Resolve(rootName)
	if !ok {
		return nil, errs.Errorf("ruleengine: %s: root node %q not found", p.ID, rootName)
	}

	e := &evaluator{ctx: ctx, p: p, d: d, rootName: rootName, memo: make(map[driver.NodeIndex][]string)}

	return e.resolve(idx)
}

type evaluator struct {
	ctx      *buildctx.Context
	p        *project.Project
	d        *driver.Driver
	rootName string
	memo     map[driver.NodeIndex][]string
}

// resolve yields the file set a node resolves to. Pattern expansion is
// computed lazily but memoized per evaluation run.
func (e *evaluator) resolve(idx driver.NodeIndex) ([]string, error) {
	if files, ok := e.memo[idx]; ok {
		return files, nil
	}

	n := e.d.Graph.At(idx)

	var (
		files []string
		err   error
	)

	switch n.Kind {
	case driver.NodePattern:
		files, err = fsiter.Iterate(e.p.Path, n.Glob)
	case driver.NodeFile:
		if !platform.Exists(e.p.Path, n.Path) {
			return nil, errs.Errorf("ruleengine: %s: missing source file %q", e.p.ID, n.Path)
		}

		files = []string{n.Path}
	case driver.NodeRule:
		files, err = e.resolveRule(n)
	default:
		err = errs.Errorf("ruleengine: %s: unknown node kind for %q", e.p.ID, n.Name)
	}

	if err != nil {
		return nil, err
	}

	e.memo[idx] = files

	return files, nil
}

// resolveRule resolves a rule's sources, computes its targets, determines
// staleness per (source set, target) pair, fires the action when stale,
// and yields the rule's target files as its own output set for any
// downstream consumer.
func (e *evaluator) resolveRule(n *driver.Node) ([]string, error) {
	if n.Condition != nil && !n.Condition(e.p) {
		return nil, nil
	}

	var sources []string

	if !n.Dependency {
		srcs, err := e.resolve(n.Source)
		if err != nil {
			return nil, err
		}

		sources = append([]string(nil), srcs...)
		sort.Strings(sources)
	} else {
		sources = append([]string(nil), e.p.AllDependencyIDs()...)
		sort.Strings(sources)
	}

	pairs, err := e.computeTargets(n, sources)
	if err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(pairs))

	for _, pair := range pairs {
		stale, err := e.isStale(pair.sources, pair.target)
		if err != nil {
			return nil, err
		}

		if stale {
			e.p.Changed = true

			if n.Name == e.rootName {
				e.p.ArtefactOutdated = true
			} else {
				e.p.SourcesOutdated = true
			}

			if n.Action != nil {
				actionSources := pair.sources
				if len(actionSources) > 1 {
					actionSources = append([]string(nil), actionSources...)
					sort.Strings(actionSources)
				}

				if err := n.Action(e.ctx, e.p, actionSources, pair.target); err != nil {
					e.p.Error = true
					return nil, errs.Errorf("ruleengine: %s: rule %q action failed: %w", e.p.ID, n.Name, err)
				}
			}

			if !platform.Exists(e.p.Path, pair.target) {
				e.p.Error = true
				return nil, errs.Errorf("ruleengine: %s: rule %q: target %q absent after action", e.p.ID, n.Name, pair.target)
			}
		}

		outputs = append(outputs, pair.target)
	}

	return outputs, nil
}

type sourceTargetPair struct {
	sources []string
	target  string
}

// computeTargets expands a rule's TargetSpec. For TargetMap, when two
// distinct sources map to the same target, the later source (by sort
// order) wins; this is a configuration smell, not an error.
func (e *evaluator) computeTargets(n *driver.Node, sources []string) ([]sourceTargetPair, error) {
	switch n.Target.Kind {
	case driver.TargetFile:
		return []sourceTargetPair{{sources: sources, target: n.Target.File}}, nil
	case driver.TargetPattern:
		return []sourceTargetPair{{sources: sources, target: n.Target.Pattern}}, nil
	case driver.TargetMap:
		byTarget := make(map[string]string, len(sources))
		order := make([]string, 0, len(sources))

		for _, src := range sources {
			tgt := n.Target.Map(src)
			if _, seen := byTarget[tgt]; !seen {
				order = append(order, tgt)
			}

			byTarget[tgt] = src
		}

		pairs := make([]sourceTargetPair, 0, len(order))
		for _, tgt := range order {
			pairs = append(pairs, sourceTargetPair{sources: []string{byTarget[tgt]}, target: tgt})
		}

		return pairs, nil
	default:
		return nil, errs.Errorf("ruleengine: %s: rule %q: unknown target kind", e.p.ID, n.Name)
	}
}

// isStale reports whether the target must be rebuilt: it is stale if it
// does not exist, or any source in its set is newer than it.
func (e *evaluator) isStale(sources []string, target string) (bool, error) {
	targetPath := filepath.Join(e.p.Path, target)

	targetTime, err := platform.ModTime(targetPath)
	if err != nil {
		return false, err
	}

	if targetTime.IsZero() {
		return true, nil
	}

	for _, src := range sources {
		srcTime, err := platform.ModTime(filepath.Join(e.p.Path, src))
		if err != nil {
			return false, err
		}

		if srcTime.After(targetTime) {
			return true, nil
		}
	}

	return false, nil
}
