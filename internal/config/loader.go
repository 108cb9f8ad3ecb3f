package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/rolloutctl"
	projectConfigDir = ".rolloutctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the rolloutctl configuration by layering default, user,
// and project settings. Later layers win; catalog entries merge by name.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, nil
}

// LoadConfigFromFile reads a single catalog file without layering. Used by
// commands that take an explicit --config path.
func LoadConfigFromFile(path string) (Config, error) {
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return mergeConfigs(GetDefaultConfig(), overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.GlobalSettings.LogLevel != "" {
		merged.GlobalSettings.LogLevel = overlay.GlobalSettings.LogLevel
	}
	if overlay.GlobalSettings.ManifestDir != "" {
		merged.GlobalSettings.ManifestDir = overlay.GlobalSettings.ManifestDir
	}
	if overlay.GlobalSettings.HealthTimeoutSeconds != 0 {
		merged.GlobalSettings.HealthTimeoutSeconds = overlay.GlobalSettings.HealthTimeoutSeconds
	}

	if overlay.Agent.Port != 0 {
		merged.Agent.Port = overlay.Agent.Port
	}
	if overlay.Agent.Host != "" {
		merged.Agent.Host = overlay.Agent.Host
	}

	merged.Environments = mergeByName(merged.Environments, overlay.Environments, func(e Environment) string { return e.Name })
	merged.Templates = mergeByName(merged.Templates, overlay.Templates, func(t Template) string { return t.Name })
	merged.Services = mergeByName(merged.Services, overlay.Services, func(s ServiceDefinition) string { return s.Name })

	return merged
}

// mergeByName replaces base entries with same-named overlay entries and
// appends new ones, returning a name-sorted slice so layering stays
// deterministic.
func mergeByName[T any](base, overlay []T, name func(T) string) []T {
	byName := make(map[string]T, len(base)+len(overlay))
	for _, item := range base {
		byName[name(item)] = item
	}
	for _, item := range overlay {
		byName[name(item)] = item
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]T, 0, len(names))
	for _, n := range names {
		out = append(out, byName[n])
	}
	return out
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
