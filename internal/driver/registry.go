package driver

import (
	"sync"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/errs"
)

// EntryPoint is the function every driver exposes; the registry invokes
// it once with a driver API table and the driver registers its callbacks
// and rule graph through that table. Built-in drivers register this
// function directly; external drivers are loaded as
// github.com/hashicorp/go-plugin subprocesses and adapted into the same
// EntryPoint shape.
type EntryPoint func(api *API) error

// Registry loads drivers once by logical id and thereafter dispatches
// phase calls to the cached Driver. Entry points are retained after the
// first load so an inheriting driver can replay a delegate's
// registrations onto itself via API.Import.
type Registry struct {
	mu          sync.Mutex
	builtins    map[string]EntryPoint
	loaded      map[string]*Driver
	pluginPaths map[string]string // driver id -> external plug-in binary path
	languages   map[string]string // manifest language tag -> driver id
}

// NewRegistry constructs a Registry with no drivers loaded yet.
func NewRegistry() *Registry {
	return &Registry{
		builtins:    make(map[string]EntryPoint),
		loaded:      make(map[string]*Driver),
		pluginPaths: make(map[string]string),
		languages:   make(map[string]string),
	}
}

// RegisterBuiltin compiles entry in directly, bypassing plug-in loading
// entirely. This is how forgebuild ships its own language drivers
// (internal/driver/langc) rather than shelling out to a .so for them.
func (r *Registry) RegisterBuiltin(id string, entry EntryPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.builtins[id] = entry
}

// RegisterPlugin records the filesystem path of an external driver
// executable speaking the go-plugin protocol, resolved lazily on first
// Load: a missing plug-in is reported only when a project actually
// requests the driver.
func (r *Registry) RegisterPlugin(id, execPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pluginPaths[id] = execPath
}

// RegisterLanguage maps a manifest language tag (e.g. "c") to the driver
// id serving it (e.g. "lang.c"). Load accepts either form, so projects
// dispatch by their language field while drivers keep their logical ids.
func (r *Registry) RegisterLanguage(tag, driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.languages[tag] = driverID
}

// Load resolves id's entry point (built-in or plug-in), invokes it with a
// fresh API table, finalizes its rule graph, and caches the result. id may
// also be a registered language tag, which resolves to its driver id
// first.
func (r *Registry) Load(ctx *buildctx.Context, id string) (*Driver, error) {
	r.mu.Lock()

	if mapped, ok := r.languages[id]; ok {
		id = mapped
	}

	if d, ok := r.loaded[id]; ok {
		r.mu.Unlock()
		return d, nil
	}

	entry, ok := r.builtins[id]
	if !ok {
		execPath, ok := r.pluginPaths[id]
		if !ok {
			r.mu.Unlock()
			return nil, errs.Errorf("driver-load error: no driver registered for id %q", id)
		}

		var err error

		entry, err = loadPluginEntryPoint(execPath)
		if err != nil {
			r.mu.Unlock()
			return nil, errs.Errorf("driver-load error: %s: %w", id, err)
		}

		r.builtins[id] = entry
	}

	r.mu.Unlock()

	d := newDriver(id)
	api := newAPI(ctx, r, d)

	if err := entry(api); err != nil {
		return nil, errs.Errorf("driver-load error: %s: entry point failed: %w", id, err)
	}

	if err := d.Finalize(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.loaded[id] = d
	r.mu.Unlock()

	return d, nil
}

// entry returns the retained entry point for an already-registered driver
// id, used by API.Import to replay a delegate's registrations onto the
// importing driver.
func (r *Registry) entry(id string) (EntryPoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mapped, ok := r.languages[id]; ok {
		id = mapped
	}

	e, ok := r.builtins[id]

	return e, ok
}

// Get returns an already-loaded driver without triggering a load.
func (r *Registry) Get(id string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.loaded[id]

	return d, ok
}
