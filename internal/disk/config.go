package disk

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
)

// DiskConfig holds configuration for device access
type DiskConfig struct {
	Backend           string `mapstructure:"backend" yaml:"backend"`
	DefaultSectorSize uint32 `mapstructure:"default_sector_size" yaml:"default_sector_size"`
	EnforceAlignment  bool   `mapstructure:"enforce_alignment" yaml:"enforce_alignment"`
	ChunkSize         int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	SnapshotChunkSize int    `mapstructure:"snapshot_chunk_size" yaml:"snapshot_chunk_size"`
	Compression       string `mapstructure:"compression" yaml:"compression"`
	LogLevel          string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string `mapstructure:"log_format" yaml:"log_format"`
	DryRun            bool   `mapstructure:"dry_run" yaml:"dry_run"`
}

// Default configuration values
const (
	DefaultBackend           = BackendFile
	DefaultChunkSize         = 1 << 20
	DefaultSnapshotChunkSize = 4 << 20
)

// LoadDiskConfig loads configuration using Viper. An empty path searches the
// standard locations; a missing config file is not an error.
func LoadDiskConfig(path string) (*DiskConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gptdisk-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.gptdisk")
		v.AddConfigPath("/etc/gptdisk")
	}

	// Set defaults
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("default_sector_size", 512)
	v.SetDefault("enforce_alignment", true)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("snapshot_chunk_size", DefaultSnapshotChunkSize)
	v.SetDefault("compression", CompressionNone)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("dry_run", false)

	// Allow environment variables
	v.SetEnvPrefix("GPTDISK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var config DiskConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks that the configured values are usable
func (c *DiskConfig) Validate() error {
	switch c.Backend {
	case BackendFile, BackendMmap, BackendMemory:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	if c.DefaultSectorSize < 512 || c.DefaultSectorSize&(c.DefaultSectorSize-1) != 0 {
		return fmt.Errorf("default sector size %d must be a power of two of at least 512", c.DefaultSectorSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.SnapshotChunkSize <= 0 {
		return fmt.Errorf("snapshot chunk size must be positive, got %d", c.SnapshotChunkSize)
	}
	if _, err := CompressionExtension(c.Compression); err != nil {
		return err
	}
	return nil
}

// NewBackend constructs the backend named in the configuration
func (c *DiskConfig) NewBackend() (interfaces.Backend, error) {
	return NewBackend(c.Backend, c)
}
