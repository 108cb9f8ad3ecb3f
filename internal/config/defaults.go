package config

// DefaultReadiness is the readiness polling policy applied when an
// environment does not define its own.
var DefaultReadiness = RetrySettings{
	MaxAttempts:     30,
	IntervalSeconds: 2,
	DeadlineSeconds: 300,
}

// GetDefaultConfig returns the baseline configuration before user and
// project overlays are applied. The catalog itself (environments, templates,
// services) is expected to come from the overlays.
func GetDefaultConfig() Config {
	return Config{
		GlobalSettings: GlobalSettings{
			LogLevel:             "info",
			ManifestDir:          "manifests",
			HealthTimeoutSeconds: 10,
		},
		Agent: AgentConfig{
			Port: 8090,
			Host: "localhost",
		},
		Environments: []Environment{},
		Templates:    []Template{},
		Services:     []ServiceDefinition{},
	}
}
