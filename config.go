package allure

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultResultsDirectory = "allure-results"
	DefaultConfigFileName   = "allureConfig.json"

	ConfigEnvVar           = "ALLURE_CONFIG"
	ResultsDirectoryEnvVar = "ALLURE_RESULTS_DIRECTORY"
)

// Config holds the reporting configuration
type Config struct {
	Directory      string     `yaml:"directory" toml:"directory"`           // Results directory
	Title          string     `yaml:"title" toml:"title"`                   // Report title
	Links          []string   `yaml:"links" toml:"links"`                   // Link templates, e.g. https://tracker/{issue}
	FailExceptions []string   `yaml:"failExceptions" toml:"failExceptions"` // Error types (as printed by %T) reported as failed instead of broken
	IndentOutput   bool       `yaml:"indentOutput" toml:"indentOutput"`     // Indent written JSON
	CleanOnStart   bool       `yaml:"cleanOnStart" toml:"cleanOnStart"`     // Empty the results directory when the lifecycle is created
	Log            log.Logger `yaml:"-" toml:"-"`
}

// configFile accepts both a flat document and one wrapped in an "allure" section
type configFile struct {
	Allure *Config `yaml:"allure" toml:"allure"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() Config {
	return Config{
		Directory: DefaultResultsDirectory,
	}
}

// LoadConfig resolves the configuration file from ALLURE_CONFIG, falling back
// to allureConfig.json in the working directory and then to the defaults.
// ALLURE_RESULTS_DIRECTORY overrides the configured directory.
func LoadConfig() (Config, error) {
	path := os.Getenv(ConfigEnvVar)
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFileName
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
		cfg = DefaultConfig()
	}

	if dir := os.Getenv(ResultsDirectoryEnvVar); dir != "" {
		cfg.Directory = dir
	}
	return cfg, nil
}

// LoadConfigFile reads a configuration file. Files ending in .toml are decoded
// as TOML; anything else as YAML, which also covers JSON.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := parseConfig(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte, isTOML bool) (Config, error) {
	unmarshal := yaml.Unmarshal
	if isTOML {
		unmarshal = toml.Unmarshal
	}

	var wrapped configFile
	if err := unmarshal(data, &wrapped); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if wrapped.Allure != nil {
		cfg = *wrapped.Allure
	} else if err := unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Directory == "" {
		cfg.Directory = DefaultResultsDirectory
	}
	return cfg, nil
}
