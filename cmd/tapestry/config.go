// Config loading for the tapestry CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyDataDir = "data_dir"
	cfgKeyActor   = "actor"
	cfgKeySandbox = "sandbox_prefix"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Tapestry CLI configuration

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Audit actor recorded on every mutation (defaults to $USER)
# actor:

# Sandbox identifier prefix, a single uppercase letter (production when empty)
# sandbox_prefix:
`

// Resolved configuration, set by loadConfig. Flag > config file > env/default.
var (
	cfgDataDir string
	cfgActor   string
	cfgSandbox string
)

// loadConfig reads config.yaml from the config directory, creating the
// directory and a default file on first run. A missing config.yaml is not an
// error.
func loadConfig() error {
	configDir := flagConfigDir
	if configDir == "" {
		configDir = os.Getenv("TAPESTRY_CONFIG_DIR")
	}
	if configDir == "" {
		configDir = ".tapestry"
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cfgDataDir = firstOf(flagDataDir, v.GetString(cfgKeyDataDir), os.Getenv("TAPESTRY_DATA_DIR"), ".tapestry-db")
	cfgActor = firstOf(flagActor, v.GetString(cfgKeyActor), os.Getenv("USER"), "tapestry")
	cfgSandbox = firstOf(flagSandbox, v.GetString(cfgKeySandbox))
	return nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ensureDefaultConfigFile creates a default config.yaml if none exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
