package buildctx

import (
	"context"

	"github.com/forgebuild/forgebuild/internal/log"
)

// Context is the explicit build context passed to every driver phase
// callback and rule action: one struct built once per run and threaded
// through the call graph, rather than a package-level logger or a
// thread-local current-driver slot.
type Context struct {
	context.Context

	Config Config
	Logger *log.Logger

	// InstallRoots are additional pre-installed package roots consulted by
	// the resolver when a dependency id cannot be found among discovered
	// projects.
	InstallRoots []string
}

// New builds a root Context for a build run.
func New(ctx context.Context, cfg Config, logger *log.Logger) *Context {
	return &Context{
		Context: ctx,
		Config:  cfg,
		Logger:  logger,
	}
}

// WithLogger returns a shallow copy of c scoped to a derived logger, used by
// the orchestrator to attach per-project/per-phase fields without mutating
// the parent context that sibling projects still hold a reference to.
func (c *Context) WithLogger(logger *log.Logger) *Context {
	cp := *c
	cp.Logger = logger

	return &cp
}
