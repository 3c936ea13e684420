package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
)

const (
	entryPointFile = "plugin.tengo"
	factoryName    = "classFactory"
	loadTimeout    = 10 * time.Second
)

// Runtime loads plugin entry points as tengo scripts.
type Runtime struct {
	mu      sync.RWMutex
	host    Host
	loaded  map[string]*tengo.Compiled
	modules []string
}

// NewRuntime returns a Runtime exposing the host version to scripts.
func NewRuntime(h Host) *Runtime {
	return &Runtime{
		host:    h,
		loaded:  make(map[string]*tengo.Compiled),
		modules: []string{"fmt", "text", "times", "json", "math", "enum"},
	}
}

// Load runs the entry point in path and keeps the result under id.
// The script must define a top-level classFactory.
func (r *Runtime) Load(id, path string) error {
	src, err := os.ReadFile(filepath.Join(path, entryPointFile))
	if err != nil {
		return errutils.Wrapf(errutils.ErrNotFound, "plugin %s has no entry point: %v", id, err)
	}

	script := tengo.NewScript(src)
	script.SetImports(stdlib.GetModuleMap(r.modules...))
	vars := map[string]any{
		"plugin_id":   id,
		"plugin_path": path,
	}
	if r.host != nil {
		vars["host_version"] = r.host.Version().String()
	}
	for k, v := range vars {
		if err := script.Add(k, v); err != nil {
			return errutils.Wrapf(errutils.ErrInvalidValue, "failed to add variable %s: %v", k, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	compiled, err := script.RunContext(ctx)
	if err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "plugin %s failed to load: %v", id, err)
	}
	if !compiled.IsDefined(factoryName) {
		return errutils.Wrapf(errutils.ErrInvalidValue, "plugin %s does not define %s", id, factoryName)
	}

	r.mu.Lock()
	r.loaded[id] = compiled
	r.mu.Unlock()
	logger.Debug("Plugin loaded", logger.Fields{"plugin": id, "path": path})
	return nil
}

// Unload forgets a loaded plugin.
func (r *Runtime) Unload(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[id]; !ok {
		return errutils.Wrapf(errutils.ErrNotInstalled, "plugin %s is not loaded", id)
	}
	delete(r.loaded, id)
	logger.Debug("Plugin unloaded", logger.Fields{"plugin": id})
	return nil
}

// Loaded reports whether id is loaded.
func (r *Runtime) Loaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaded[id]
	return ok
}
