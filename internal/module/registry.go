package module

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownModule is returned by Registry.Get for unregistered names.
var ErrUnknownModule = errors.New("unknown module")

// Registry manages the collection of available modules.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// DefaultRegistry returns a registry holding every shipped module.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewLoginModule())
	r.Register(NewLogoutModule())
	r.Register(NewRequestModule())
	r.Register(NewCleanupModule())
	r.Register(NewJobStatusModule())
	r.Register(NewJobKillModule())
	r.Register(NewJobSuspendModule())
	r.Register(NewJobResumeModule())
	return r
}

// Register adds a module, replacing any module of the same name.
func (r *Registry) Register(m Module) {
	r.modules[m.Name()] = m
}

// Get returns a module by name. Underscores may stand in for dots, so
// "job_status" finds "job.status"; Ansible library file names cannot
// contain dots.
func (r *Registry) Get(name string) (Module, error) {
	if m, ok := r.modules[name]; ok {
		return m, nil
	}
	if m, ok := r.modules[strings.ReplaceAll(name, "_", ".")]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
}

// List returns the sorted module names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
