package provider

import "fmt"

// Spec selects a provider implementation at configuration time.
type Spec struct {
	Name string
	Type string // "static" or "disabled"

	// EventsFile is the JSON fixture backing a static provider.
	// Empty means the provider starts with no events.
	EventsFile string
}

// New builds a provider from its spec.
func New(spec Spec) (Provider, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("provider needs a name")
	}
	switch spec.Type {
	case "static":
		if spec.EventsFile != "" {
			return LoadStatic(spec.Name, spec.EventsFile)
		}
		return NewStatic(spec.Name, nil), nil
	case "disabled":
		return NewDisabled(spec.Name), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for %s", spec.Type, spec.Name)
	}
}

// Registry holds the configured providers in configuration order.
type Registry struct {
	providers []Provider
}

// NewRegistry builds all providers from their specs, failing on the
// first bad spec.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{}
	seen := make(map[string]bool)
	for _, spec := range specs {
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate provider name %q", spec.Name)
		}
		seen[spec.Name] = true
		p, err := New(spec)
		if err != nil {
			return nil, err
		}
		r.providers = append(r.providers, p)
	}
	return r, nil
}

// NewRegistryFrom wraps already-built providers, mainly for tests.
func NewRegistryFrom(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// All returns the providers in configuration order.
func (r *Registry) All() []Provider {
	return r.providers
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}
