package config

// Config is the top-level configuration structure for rolloutctl. It carries
// the deployment catalog (environments, templates, service definitions) plus
// tool-wide settings, assembled by layering defaults, user and project files.
type Config struct {
	GlobalSettings GlobalSettings      `yaml:"globalSettings"`
	Agent          AgentConfig         `yaml:"agent,omitempty"`
	Environments   []Environment       `yaml:"environments,omitempty"`
	Templates      []Template          `yaml:"templates,omitempty"`
	Services       []ServiceDefinition `yaml:"services,omitempty"`
}

// GlobalSettings holds knobs that apply to every command.
type GlobalSettings struct {
	LogLevel    string `yaml:"logLevel,omitempty"`
	ManifestDir string `yaml:"manifestDir,omitempty"`
	// HealthTimeoutSeconds bounds a single health probe request.
	HealthTimeoutSeconds int `yaml:"healthTimeoutSeconds,omitempty"`
}

// AgentConfig defines where the MCP agent endpoint listens.
type AgentConfig struct {
	Port int    `yaml:"port,omitempty"` // default 8090
	Host string `yaml:"host,omitempty"` // default localhost
}

// RetrySettings drives readiness polling. Zero values fall back to
// DefaultReadiness via OrDefault.
type RetrySettings struct {
	MaxAttempts     int `yaml:"maxAttempts,omitempty"`
	IntervalSeconds int `yaml:"intervalSeconds,omitempty"`
	DeadlineSeconds int `yaml:"deadlineSeconds,omitempty"`
}

// OrDefault fills unset fields from DefaultReadiness.
func (r RetrySettings) OrDefault() RetrySettings {
	out := r
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultReadiness.MaxAttempts
	}
	if out.IntervalSeconds <= 0 {
		out.IntervalSeconds = DefaultReadiness.IntervalSeconds
	}
	if out.DeadlineSeconds <= 0 {
		out.DeadlineSeconds = DefaultReadiness.DeadlineSeconds
	}
	return out
}

// GatewaySettings names the shared edge gateway of an environment. An
// environment without a gateway name skips route promotion entirely.
type GatewaySettings struct {
	Name string `yaml:"name,omitempty"`
	Host string `yaml:"host,omitempty"`
}

// Environment is a deployment target. Namespace defaults to the environment
// name when unset.
type Environment struct {
	Name           string            `yaml:"name"`
	Namespace      string            `yaml:"namespace,omitempty"`
	HealthTokenVar string            `yaml:"healthTokenVar,omitempty"` // process env var holding the probe bearer token
	Readiness      RetrySettings     `yaml:"readiness,omitempty"`
	Gateway        GatewaySettings   `yaml:"gateway,omitempty"`
	Overrides      map[string]string `yaml:"overrides,omitempty"`
}

// EffectiveNamespace returns the namespace units of this environment deploy
// into.
func (e Environment) EffectiveNamespace() string {
	if e.Namespace != "" {
		return e.Namespace
	}
	return e.Name
}

// ScalingSettings mirror the per-service scaling block of the catalog.
// CPU and Memory are resource quantity strings ("500m", "256Mi").
type ScalingSettings struct {
	MinInstances int    `yaml:"minInstances"`
	MaxInstances int    `yaml:"maxInstances"`
	Concurrency  int    `yaml:"concurrency,omitempty"`
	CPU          string `yaml:"cpu,omitempty"`
	Memory       string `yaml:"memory,omitempty"`
}

// InvokerGrant names a principal that must be able to call the service.
// Role defaults to "invoker".
type InvokerGrant struct {
	Principal string `yaml:"principal"`
	Role      string `yaml:"role,omitempty"`
}

// ServiceDefinition is the catalog entry for one deployable unit.
type ServiceDefinition struct {
	Name           string            `yaml:"name"`
	Phase          int               `yaml:"phase"`
	Image          string            `yaml:"image"`
	Template       string            `yaml:"template,omitempty"`
	Scaling        ScalingSettings   `yaml:"scaling"`
	RuntimeAccount string            `yaml:"runtimeAccount"`
	Invokers       []InvokerGrant    `yaml:"invokers,omitempty"`
	Overrides      map[string]string `yaml:"overrides,omitempty"`
	HealthPath     string            `yaml:"healthPath,omitempty"` // default /health
}

// Template is a parsed runtime template: env values may contain ${var}
// placeholders that the renderer resolves from vars, environment overrides
// and service overrides.
type Template struct {
	Name string            `yaml:"name"`
	Vars map[string]string `yaml:"vars,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

// FindEnvironment looks an environment up by name.
func (c Config) FindEnvironment(name string) (Environment, bool) {
	for _, env := range c.Environments {
		if env.Name == name {
			return env, true
		}
	}
	return Environment{}, false
}

// FindTemplate looks a template up by name.
func (c Config) FindTemplate(name string) (Template, bool) {
	for _, tmpl := range c.Templates {
		if tmpl.Name == name {
			return tmpl, true
		}
	}
	return Template{}, false
}
