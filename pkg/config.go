package dirhashtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// Config represents the dhtree configuration
type Config struct {
	configPath string
	ini        *ini.File
}

// TreeHashConfig represents tree fingerprint configuration
type TreeHashConfig struct {
	Algorithm string // Hash algorithm for file and directory digests
}

// OutputConfig represents output format configuration
type OutputConfig struct {
	Format string // Default output format: human, json
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // Default verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
	Debug string // Default debug flags (comma-separated)
}

// SymlinkConfig represents symlink handling configuration
type SymlinkConfig struct {
	Mode string // Default symlink mode: all, contained, none
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	HashWorkers int    // Number of concurrent hash workers (default: 4)
	HashBuffer  string // Buffer size for file hashing (default: "2M")
}

// AllConfig represents all configuration options
type AllConfig struct {
	TreeHash    *TreeHashConfig
	Output      *OutputConfig
	Verbose     *VerboseConfig
	Symlink     *SymlinkConfig
	Performance *PerformanceConfig
}

// LoadConfig loads configuration from the config file in stateDir, writing a
// default config on first use
func LoadConfig(stateDir string) (*Config, error) {
	configPath := filepath.Join(stateDir, ConfigFileName)

	cfg := &Config{
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	} else {
		iniFile, err := ini.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.ini = iniFile
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	defaults := []struct {
		section string
		key     string
		value   string
	}{
		{"treehash", "algorithm", "sha256"},
		{"output", "format", "human"},
		{"verbose", "level", "0"},
		{"verbose", "debug", ""},
		{"symlink", "mode", SymlinkModeNone},
		{"performance", "hash_workers", fmt.Sprintf("%d", DefaultHashWorkers)},
		{"performance", "hash_buffer", DefaultHashBuffer},
	}

	for _, def := range defaults {
		section := c.ini.Section(def.section)
		if _, err := section.NewKey(def.key, def.value); err != nil {
			return fmt.Errorf("failed to set default %s.%s: %w", def.section, def.key, err)
		}
	}

	return nil
}

// GetTreeHashConfig returns the tree hash configuration
func (c *Config) GetTreeHashConfig() *TreeHashConfig {
	treeHashConfig := &TreeHashConfig{
		Algorithm: "sha256", // fallback default
	}

	if c.ini.HasSection("treehash") {
		section := c.ini.Section("treehash")
		if section.HasKey("algorithm") {
			treeHashConfig.Algorithm = section.Key("algorithm").String()
		}
	}

	return treeHashConfig
}

// GetOutputConfig returns the output configuration
func (c *Config) GetOutputConfig() *OutputConfig {
	outputConfig := &OutputConfig{
		Format: "human", // fallback default
	}

	if c.ini.HasSection("output") {
		section := c.ini.Section("output")
		if section.HasKey("format") {
			outputConfig.Format = section.Key("format").String()
		}
	}

	return outputConfig
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	verboseConfig := &VerboseConfig{
		Level: 0,  // fallback default
		Debug: "", // fallback default
	}

	if c.ini.HasSection("verbose") {
		section := c.ini.Section("verbose")
		if section.HasKey("level") {
			if level, err := section.Key("level").Int(); err == nil {
				verboseConfig.Level = level
			}
		}
		if section.HasKey("debug") {
			verboseConfig.Debug = section.Key("debug").String()
		}
	}

	return verboseConfig
}

// GetSymlinkConfig returns the symlink configuration
func (c *Config) GetSymlinkConfig() *SymlinkConfig {
	symlinkConfig := &SymlinkConfig{
		Mode: SymlinkModeNone, // fallback default
	}

	if c.ini.HasSection("symlink") {
		section := c.ini.Section("symlink")
		if section.HasKey("mode") {
			symlinkConfig.Mode = section.Key("mode").String()
		}
	}

	return symlinkConfig
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	performanceConfig := &PerformanceConfig{
		HashWorkers: DefaultHashWorkers, // fallback default
		HashBuffer:  DefaultHashBuffer,  // fallback default
	}

	if c.ini.HasSection("performance") {
		section := c.ini.Section("performance")
		if section.HasKey("hash_workers") {
			if workers, err := section.Key("hash_workers").Int(); err == nil {
				performanceConfig.HashWorkers = workers
			}
		}
		if section.HasKey("hash_buffer") {
			if bufferSize := section.Key("hash_buffer").String(); bufferSize != "" {
				performanceConfig.HashBuffer = bufferSize
			}
		}
	}

	return performanceConfig
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		TreeHash:    c.GetTreeHashConfig(),
		Output:      c.GetOutputConfig(),
		Verbose:     c.GetVerboseConfig(),
		Symlink:     c.GetSymlinkConfig(),
		Performance: c.GetPerformanceConfig(),
	}
}

// SetTreeHashAlgorithm sets the tree hash algorithm
func (c *Config) SetTreeHashAlgorithm(algorithm string) error {
	c.ini.Section("treehash").Key("algorithm").SetValue(algorithm)
	return c.Save()
}

// SetOutputFormat sets the default output format
func (c *Config) SetOutputFormat(format string) error {
	c.ini.Section("output").Key("format").SetValue(format)
	return c.Save()
}

// SetVerboseLevel sets the default verbose level
func (c *Config) SetVerboseLevel(level int) error {
	c.ini.Section("verbose").Key("level").SetValue(fmt.Sprintf("%d", level))
	return c.Save()
}

// SetDebugFlags sets the default debug flags
func (c *Config) SetDebugFlags(debug string) error {
	c.ini.Section("verbose").Key("debug").SetValue(debug)
	return c.Save()
}

// SetSymlinkMode sets the default symlink mode
func (c *Config) SetSymlinkMode(mode string) error {
	c.ini.Section("symlink").Key("mode").SetValue(mode)
	return c.Save()
}

// SetHashWorkers sets the number of hash workers
func (c *Config) SetHashWorkers(workers int) error {
	c.ini.Section("performance").Key("hash_workers").SetValue(fmt.Sprintf("%d", workers))
	return c.Save()
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	return c.ini.SaveTo(c.configPath)
}

// ApplyOverrides applies command-line overrides to the configuration.
// Accepts strings like "algorithm:sha256", "format:json", "level:2",
// "debug:walk", "mode:contained", "hash_workers:8".
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "algorithm":
			c.ini.Section("treehash").Key("algorithm").SetValue(value)
		case "format":
			c.ini.Section("output").Key("format").SetValue(value)
		case "level":
			c.ini.Section("verbose").Key("level").SetValue(value)
		case "debug":
			c.ini.Section("verbose").Key("debug").SetValue(value)
		case "mode":
			c.ini.Section("symlink").Key("mode").SetValue(value)
		case "hash_workers":
			c.ini.Section("performance").Key("hash_workers").SetValue(value)
		case "hash_buffer":
			c.ini.Section("performance").Key("hash_buffer").SetValue(value)
		default:
			return fmt.Errorf("unsupported override key '%s' (supported: algorithm, format, level, debug, mode, hash_workers, hash_buffer)", key)
		}
	}

	return nil
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	switch strings.ToLower(algorithm) {
	case "sha1", "sha256", "sha512", "xxh64":
		return nil
	default:
		return fmt.Errorf("unsupported hash algorithm: %s (supported: sha1, sha256, sha512, xxh64)", algorithm)
	}
}

// ValidateOutputFormat validates that an output format is supported
func ValidateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case "human", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (supported: human, json)", format)
	}
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateSymlinkMode validates that a symlink mode is supported
func ValidateSymlinkMode(mode string) error {
	switch strings.ToLower(mode) {
	case SymlinkModeAll, SymlinkModeContained, SymlinkModeNone:
		return nil
	default:
		return fmt.Errorf("unsupported symlink mode: %s (supported: all, contained, none)", mode)
	}
}

// ValidateHashWorkers validates that the hash worker count is reasonable
func ValidateHashWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("hash workers must be at least 1, got: %d", workers)
	}
	if workers > 64 {
		return fmt.Errorf("hash workers should not exceed 64, got: %d", workers)
	}
	return nil
}
