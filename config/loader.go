package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var globalConfig *Config

// Load reads configuration from the given path, or from the default search
// paths (./.murmur, ., ~/.murmur) when path is empty. Environment variables
// prefixed with MURMUR_ override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(".", ".murmur"))
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".murmur"))
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("MURMUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file present; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get returns the last loaded configuration, or nil if Load was never called.
func Get() *Config {
	return globalConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("database.path", "")

	v.SetDefault("embedding.provider", "openai_compatible")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dim", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("vector.backend", "local")
	v.SetDefault("vector.local.index_path", "")
	v.SetDefault("vector.local.dim", 1536)
	v.SetDefault("vector.local.save_every", 100)
	v.SetDefault("vector.qdrant.url", "http://127.0.0.1:6333")
	v.SetDefault("vector.qdrant.collection", "memory_v1")
	v.SetDefault("vector.qdrant.dim", 1536)
	v.SetDefault("vector.qdrant.timeout", 30*time.Second)

	v.SetDefault("ranking.alpha", 1.0)
	v.SetDefault("ranking.beta", 0.15)
	v.SetDefault("ranking.gamma", 0.10)
	v.SetDefault("ranking.delta", 0.50)
	v.SetDefault("ranking.halflife_hours", 72.0)

	v.SetDefault("pipeline.preplanner_enabled", true)
	v.SetDefault("pipeline.search_scope_days", 14)
	v.SetDefault("pipeline.same_session_only", true)
	v.SetDefault("pipeline.boundary_threshold", 0.7)
	v.SetDefault("pipeline.novelty_threshold", 0.85)
	v.SetDefault("pipeline.highlight_count", 3)
	v.SetDefault("pipeline.highlight_max_length", 150)
	v.SetDefault("pipeline.summary_max_bytes", 50000)
}

// DataDir resolves the directory holding local state (sqlite database and
// local index files), creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".murmur")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// DatabasePath resolves the sqlite database path for the given config.
func DatabasePath(cfg *Config) (string, error) {
	if cfg != nil && cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "memory.db"), nil
}

// LocalIndexPath resolves the local vector index path for the given config.
func LocalIndexPath(cfg *Config) (string, error) {
	if cfg != nil && cfg.Vector.Local.IndexPath != "" {
		return cfg.Vector.Local.IndexPath, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vectors.index"), nil
}
