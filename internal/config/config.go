package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for medikeep
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Reminders RemindersConfig `mapstructure:"reminders"`
}

// ServerConfig holds the local HTTP API settings
type ServerConfig struct {
	Address      string   `mapstructure:"address"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	BadgerPath string `mapstructure:"badger_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RemindersConfig holds reminder scheduler settings
type RemindersConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	CheckInterval int  `mapstructure:"check_interval"` // seconds between due-job checks
	PerMinute     int  `mapstructure:"per_minute"`     // delivery rate limit (0 = unlimited)
	Burst         int  `mapstructure:"burst"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "medikeep.db"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medikeep.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDIKEEP_SERVER_PORT, MEDIKEEP_REMINDERS_ENABLED, etc.)
	v.SetEnvPrefix("MEDIKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// The API exists for the UI process on the same device; bind loopback only.
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.allow_origins", []string{"http://localhost:8787"})

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.check_interval", 30)
	v.SetDefault("reminders.per_minute", 30)
	v.SetDefault("reminders.burst", 5)
}

func getDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".medikeep"
	}
	return filepath.Join(home, ".medikeep")
}
