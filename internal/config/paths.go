package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigName is the workflow configuration file shipped next to the binary.
const DefaultConfigName = "workflow_config.cfg"

// EnvConfigPath names the environment variable overriding the config location.
const EnvConfigPath = "SIMFLOW_CONFIG"

// ResolveConfigPath picks the workflow config location: the explicit flag value,
// then $SIMFLOW_CONFIG, then workflow_config.cfg next to the executable.
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	exe, err := os.Executable()
	if err != nil {
		return DefaultConfigName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), DefaultConfigName)
}
