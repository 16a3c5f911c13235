package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "CVANSIBLE_CONFIG"

// GetConfigPath returns the configuration file path: $CVANSIBLE_CONFIG if
// set, otherwise ~/.cvansible/config.
func GetConfigPath() (string, error) {
	if configPath := os.Getenv(EnvConfigPath); configPath != "" {
		return configPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".cvansible", "config"), nil
}
