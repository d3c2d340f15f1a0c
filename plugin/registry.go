// Package plugin implements the type-indexed plugin registry and its
// structural contract validator: the registry stores plugins keyed by
// (kind, name) and rejects any registration whose value does not expose
// every required method of its kind as a callable.
package plugin

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/rlog"
)

// Registry stores plugins indexed by (kind, name). It is read-mostly
// after startup: registration is serialized under a single mutex, while
// Get/List take a read lock and never block each other.
type Registry struct {
	mu      sync.RWMutex
	byKind  map[model.PluginKind]map[string]any
}

// NewRegistry returns an empty registry ready for registration.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[model.PluginKind]map[string]any)}
}

// Register binds plugin to (kind, name). It fails with UnknownKind if
// kind is outside the closed PluginKind set, and with ContractViolation
// if plugin is missing any required method of kind. On success it
// overwrites any existing (kind, name) binding — last write wins.
func (r *Registry) Register(kind model.PluginKind, name string, plugin any) error {
	contract, ok := Contracts[kind]
	if !ok {
		return ragerr.Newf(ragerr.UnknownKind, "unknown plugin kind %q", kind)
	}

	missing := missingMethods(plugin, contract.Required)
	if len(missing) > 0 {
		sort.Strings(missing)
		return ragerr.Newf(ragerr.ContractViolation,
			"plugin %q of kind %q is missing required methods: %v", name, kind, missing)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byKind[kind] == nil {
		r.byKind[kind] = make(map[string]any)
	}
	if _, exists := r.byKind[kind][name]; exists {
		rlog.Plugin().Warn().Str("kind", string(kind)).Str("name", name).
			Msg("plugin already registered, overwriting")
	}
	r.byKind[kind][name] = plugin

	optional := missingMethods(plugin, contract.Optional)
	have := len(contract.Optional) - len(optional)
	rlog.Plugin().Info().Str("kind", string(kind)).Str("name", name).
		Int("optional_methods_present", have).Msg("registered plugin")
	return nil
}

// Get returns the plugin bound to (kind, name).
func (r *Registry) Get(kind model.PluginKind, name string) (any, error) {
	if !IsKnownKind(kind) {
		return nil, ragerr.Newf(ragerr.UnknownKind, "unknown plugin kind %q", kind)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.byKind[kind]
	plugin, ok := byName[name]
	if !ok {
		return nil, ragerr.Newf(ragerr.PluginNotFound, "no plugin %q registered for kind %q", name, kind)
	}
	return plugin, nil
}

// List returns the registered names for kind in no particular order.
func (r *Registry) List(kind model.PluginKind) ([]string, error) {
	if !IsKnownKind(kind) {
		return nil, ragerr.Newf(ragerr.UnknownKind, "unknown plugin kind %q", kind)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.byKind[kind]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	return names, nil
}

// missingMethods returns the subset of methodNames plugin does not
// expose as a callable method, checked structurally via reflection so
// that duck-typed plugins (not implementing a Go interface from this
// package) can still satisfy a contract.
func missingMethods(plugin any, methodNames []string) []string {
	if plugin == nil {
		return append([]string(nil), methodNames...)
	}
	v := reflect.ValueOf(plugin)
	var missing []string
	for _, name := range methodNames {
		m := v.MethodByName(name)
		if !m.IsValid() || m.Kind() != reflect.Func {
			missing = append(missing, name)
		}
	}
	return missing
}

// DescribeMissing formats a missing-methods slice for diagnostics, e.g.
// as surfaced in a ContractViolation error message.
func DescribeMissing(missing []string) string {
	return fmt.Sprintf("%v", missing)
}
