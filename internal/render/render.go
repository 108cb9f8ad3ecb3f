// Package render turns a deployment descriptor plus its template and target
// environment into a fully resolved service spec. Rendering is pure: no
// clock, no process environment, no control-plane reads, so the same inputs
// always produce the same spec.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
	"rolloutctl/internal/registry"
)

// Options tunes a render. SkipValidation drops the schema checks (required
// fields, scaling bounds, resource quantities); placeholder resolution is
// never skipped.
type Options struct {
	SkipValidation bool
}

const (
	defaultHealthPath = "/health"
	defaultCPU        = "1"
	defaultMemory     = "512Mi"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// Render resolves one unit against an environment. Placeholder values are
// looked up with service overrides winning over environment overrides
// winning over template vars.
func Render(desc registry.Descriptor, tmpl config.Template, env config.Environment, opts Options) (cloud.ServiceSpec, error) {
	vars := mergeVars(tmpl.Vars, env.Overrides, desc.Overrides)

	sub := func(field, value string) (string, error) {
		resolved, missing := substitute(value, vars)
		if len(missing) > 0 {
			return "", &cloud.ConfigError{
				Service: desc.Name,
				Field:   field,
				Reason:  fmt.Sprintf("unresolved placeholders: %v", missing),
			}
		}
		return resolved, nil
	}

	image, err := sub("image", desc.Image)
	if err != nil {
		return cloud.ServiceSpec{}, err
	}
	account, err := sub("runtimeAccount", desc.RuntimeAccount)
	if err != nil {
		return cloud.ServiceSpec{}, err
	}
	healthPath, err := sub("healthPath", desc.HealthPath)
	if err != nil {
		return cloud.ServiceSpec{}, err
	}
	if healthPath == "" {
		healthPath = defaultHealthPath
	}

	envVars := make(map[string]string, len(tmpl.Env))
	for key, raw := range tmpl.Env {
		value, err := sub("env."+key, raw)
		if err != nil {
			return cloud.ServiceSpec{}, err
		}
		envVars[key] = value
	}

	spec := cloud.ServiceSpec{
		Name:           desc.Name,
		Namespace:      env.EffectiveNamespace(),
		Image:          image,
		RuntimeAccount: account,
		MinInstances:   desc.Scaling.MinInstances,
		MaxInstances:   desc.Scaling.MaxInstances,
		Concurrency:    desc.Scaling.Concurrency,
		Env:            envVars,
		HealthPath:     healthPath,
		Labels: map[string]string{
			"app":                          desc.Name,
			"app.kubernetes.io/managed-by": "rolloutctl",
			"rollout.example.com/phase":    strconv.Itoa(desc.Phase),
			"rollout.example.com/env":      env.Name,
		},
	}
	if spec.Concurrency == 0 {
		spec.Concurrency = 1
	}

	if opts.SkipValidation {
		// Quantities are still parsed best-effort so the driver gets
		// resource requirements when the strings happen to be valid.
		spec.CPU, _ = parseQuantityOrDefault(desc.Scaling.CPU, defaultCPU)
		spec.Memory, _ = parseQuantityOrDefault(desc.Scaling.Memory, defaultMemory)
		return spec, nil
	}

	if err := validate(desc, spec); err != nil {
		return cloud.ServiceSpec{}, err
	}

	spec.CPU, err = parseQuantity(desc.Name, "cpu", desc.Scaling.CPU, defaultCPU)
	if err != nil {
		return cloud.ServiceSpec{}, err
	}
	spec.Memory, err = parseQuantity(desc.Name, "memory", desc.Scaling.Memory, defaultMemory)
	if err != nil {
		return cloud.ServiceSpec{}, err
	}

	return spec, nil
}

func validate(desc registry.Descriptor, spec cloud.ServiceSpec) error {
	fail := func(field, reason string) error {
		return &cloud.ConfigError{Service: desc.Name, Field: field, Reason: reason}
	}

	if spec.Image == "" {
		return fail("image", "image reference is required")
	}
	if spec.RuntimeAccount == "" {
		return fail("runtimeAccount", "runtime account is required")
	}
	if !strings.HasPrefix(spec.HealthPath, "/") {
		return fail("healthPath", fmt.Sprintf("must start with /, got %q", spec.HealthPath))
	}

	s := desc.Scaling
	if s.MinInstances < 0 {
		return fail("scaling.minInstances", fmt.Sprintf("must not be negative, got %d", s.MinInstances))
	}
	if s.MaxInstances < 1 {
		return fail("scaling.maxInstances", fmt.Sprintf("must be at least 1, got %d", s.MaxInstances))
	}
	if s.MinInstances > s.MaxInstances {
		return fail("scaling", fmt.Sprintf("minInstances %d exceeds maxInstances %d", s.MinInstances, s.MaxInstances))
	}
	if s.Concurrency < 0 {
		return fail("scaling.concurrency", fmt.Sprintf("must not be negative, got %d", s.Concurrency))
	}
	return nil
}

func parseQuantity(service, field, value, fallback string) (resource.Quantity, error) {
	if value == "" {
		value = fallback
	}
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		return resource.Quantity{}, &cloud.ConfigError{
			Service: service,
			Field:   "scaling." + field,
			Reason:  fmt.Sprintf("invalid quantity %q: %v", value, err),
		}
	}
	return qty, nil
}

func parseQuantityOrDefault(value, fallback string) (resource.Quantity, error) {
	if value == "" {
		value = fallback
	}
	return resource.ParseQuantity(value)
}

// mergeVars layers substitution sources; later maps win.
func mergeVars(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// substitute resolves ${key} references and reports any keys that have no
// value, sorted for stable error messages.
func substitute(value string, vars map[string]string) (string, []string) {
	missingSet := make(map[string]struct{})
	resolved := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		missingSet[key] = struct{}{}
		return match
	})
	if len(missingSet) == 0 {
		return resolved, nil
	}
	missing := make([]string, 0, len(missingSet))
	for k := range missingSet {
		missing = append(missing, k)
	}
	sort.Strings(missing)
	return "", missing
}
