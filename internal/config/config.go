package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/CosmoTheDev/procwatch/models"
)

const (
	DefaultConfigDir  = ".procwatch"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".procwatch/procwatch.db"
)

// Load reads the config file and returns a populated Config. The configPath
// flag may override the default location; environment variables override
// file values (e.g. PROCWATCH_DATABASE_DRIVER).
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("procwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			// Config file exists but is malformed.
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config yet — defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Database.Path = expandHome(cfg.Database.Path, home)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// setDefaults populates viper with out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("scheduler.interval_minutes", 360)
	v.SetDefault("scheduler.max_parallel_tenants", 5)
	v.SetDefault("scheduler.connection_timeout_seconds", 30)
	v.SetDefault("scheduler.run_on_startup", true)

	v.SetDefault("queue.capacity", 10)

	v.SetDefault("custom_detection.by_convention", true)

	v.SetDefault("gateway.port", 6390)
}

// validate rejects configs the scanner cannot act on.
func validate(cfg *Config) error {
	seen := make(map[int]string, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		if t.ID <= 0 {
			return fmt.Errorf("tenant %q: id must be positive", t.Code)
		}
		if t.Code == "" {
			return fmt.Errorf("tenant %d: code is required", t.ID)
		}
		if prev, dup := seen[t.ID]; dup {
			return fmt.Errorf("tenant id %d used by both %q and %q", t.ID, prev, t.Code)
		}
		seen[t.ID] = t.Code
		for _, env := range t.Environments {
			if !models.ValidEnvironment(env.Environment) {
				return fmt.Errorf("tenant %q: unknown environment %q", t.Code, env.Environment)
			}
			if env.Host == "" || env.Database == "" {
				return fmt.Errorf("tenant %q env %q: host and database are required", t.Code, env.Environment)
			}
		}
	}
	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
