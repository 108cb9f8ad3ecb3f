// Package registry turns the catalog's service definitions into an immutable,
// phase-ordered set of deployment descriptors. Everything downstream (render,
// scheduling, reconciliation) works from descriptors, never from raw config.
package registry

import (
	"fmt"
	"sort"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
)

// Scaling bounds one unit's instance count and per-instance resources.
type Scaling struct {
	MinInstances int
	MaxInstances int
	Concurrency  int
	CPU          string
	Memory       string
}

// Descriptor is the runtime form of one catalog service definition. Built
// once by Build and never mutated afterwards.
type Descriptor struct {
	Name           string
	Phase          int
	Image          string
	Template       string
	Scaling        Scaling
	RuntimeAccount string
	Invokers       []cloud.AccessBinding
	Overrides      map[string]string
	HealthPath     string
}

// PhaseGroup holds every unit of one phase, name-sorted.
type PhaseGroup struct {
	Number   int
	Services []Descriptor
}

// Registry is the validated, ordered catalog for one run.
type Registry struct {
	byName map[string]Descriptor
	phases []PhaseGroup
}

// Build validates definitions and groups them into ascending phases.
// Duplicate names, non-positive phases and unknown roles fail the build;
// nothing downstream re-checks these.
func Build(defs []config.ServiceDefinition) (*Registry, error) {
	byName := make(map[string]Descriptor, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, &cloud.ConfigError{Service: "(unnamed)", Field: "name", Reason: "service name is required"}
		}
		if _, exists := byName[def.Name]; exists {
			return nil, &cloud.ConfigError{Service: def.Name, Field: "name", Reason: "duplicate service name"}
		}
		if def.Phase < 1 {
			return nil, &cloud.ConfigError{Service: def.Name, Field: "phase", Reason: fmt.Sprintf("phase must be a positive integer, got %d", def.Phase)}
		}

		invokers, err := buildInvokers(def)
		if err != nil {
			return nil, err
		}

		byName[def.Name] = Descriptor{
			Name:     def.Name,
			Phase:    def.Phase,
			Image:    def.Image,
			Template: def.Template,
			Scaling: Scaling{
				MinInstances: def.Scaling.MinInstances,
				MaxInstances: def.Scaling.MaxInstances,
				Concurrency:  def.Scaling.Concurrency,
				CPU:          def.Scaling.CPU,
				Memory:       def.Scaling.Memory,
			},
			RuntimeAccount: def.RuntimeAccount,
			Invokers:       invokers,
			Overrides:      def.Overrides,
			HealthPath:     def.HealthPath,
		}
	}

	return &Registry{byName: byName, phases: groupPhases(byName)}, nil
}

// buildInvokers validates roles and drops duplicate grants.
func buildInvokers(def config.ServiceDefinition) ([]cloud.AccessBinding, error) {
	seen := make(map[cloud.AccessBinding]struct{}, len(def.Invokers))
	out := make([]cloud.AccessBinding, 0, len(def.Invokers))
	for _, grant := range def.Invokers {
		if grant.Principal == "" {
			return nil, &cloud.ConfigError{Service: def.Name, Field: "invokers", Reason: "invoker principal is required"}
		}
		role, err := cloud.ParseRole(grant.Role)
		if err != nil {
			return nil, &cloud.ConfigError{Service: def.Name, Field: "invokers", Reason: err.Error()}
		}
		binding := cloud.AccessBinding{Principal: cloud.Principal(grant.Principal), Role: role}
		if _, dup := seen[binding]; dup {
			continue
		}
		seen[binding] = struct{}{}
		out = append(out, binding)
	}
	return out, nil
}

func groupPhases(byName map[string]Descriptor) []PhaseGroup {
	grouped := make(map[int][]Descriptor)
	for _, desc := range byName {
		grouped[desc.Phase] = append(grouped[desc.Phase], desc)
	}
	numbers := make([]int, 0, len(grouped))
	for n := range grouped {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	phases := make([]PhaseGroup, 0, len(numbers))
	for _, n := range numbers {
		services := grouped[n]
		sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
		phases = append(phases, PhaseGroup{Number: n, Services: services})
	}
	return phases
}

// Get returns the descriptor for a service name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	desc, ok := r.byName[name]
	return desc, ok
}

// Len is the number of units in the registry.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Phases returns the phase groups in ascending order.
func (r *Registry) Phases() []PhaseGroup {
	return r.phases
}

// All returns every descriptor in deployment order (phase, then name).
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.byName))
	for _, phase := range r.phases {
		out = append(out, phase.Services...)
	}
	return out
}

// Select narrows the registry to the named services, preserving their phase
// structure. An unknown name fails before anything is deployed.
func (r *Registry) Select(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, &cloud.ConfigError{Service: "(selection)", Reason: "no services selected"}
	}
	subset := make(map[string]Descriptor, len(names))
	var unknown []string
	for _, name := range names {
		desc, ok := r.byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		subset[name] = desc
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &cloud.ConfigError{
			Service: "(selection)",
			Reason:  fmt.Sprintf("unknown services: %v", unknown),
		}
	}
	return &Registry{byName: subset, phases: groupPhases(subset)}, nil
}
