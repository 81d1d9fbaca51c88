// Package config carries the daemon/CLI configuration and the setup
// payload collected by the wizard.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-level configuration. Values come from defaults,
// an optional YAML config file, and FORGEKEEPER_* environment variables,
// in ascending priority.
type Config struct {
	// StateDir is the durable root: state database, marker files, env file.
	StateDir string `mapstructure:"state_dir"`
	// DBPath is the state database. Defaults to <StateDir>/state.db.
	DBPath string `mapstructure:"db_path"`
	// CatalogPath optionally overrides the built-in module catalog.
	CatalogPath string `mapstructure:"catalog_path"`
	// MarkerDir is watched for legacy <module>.installed marker files.
	MarkerDir string `mapstructure:"marker_dir"`
	// BuildRoot holds docker-compose.yml, the base Dockerfile and the
	// per-language dockerfile snippets.
	BuildRoot string `mapstructure:"build_root"`
	// PortalPort is the HTTP API port.
	PortalPort int `mapstructure:"portal_port"`
	// ProfileDir receives the login-shell snippet that sources the env file.
	ProfileDir string `mapstructure:"profile_dir"`
	// InstallTimeout bounds a single install/remove action.
	InstallTimeout time.Duration `mapstructure:"install_timeout"`
	// StopGrace is the SIGTERM-to-SIGKILL delay when stopping a build.
	StopGrace time.Duration `mapstructure:"stop_grace"`
}

// Load reads configuration. cfgFile may be empty, in which case only the
// default file location is tried; a missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("state_dir", "/etc/forgekeeper")
	v.SetDefault("db_path", "")
	v.SetDefault("catalog_path", "")
	v.SetDefault("marker_dir", "")
	v.SetDefault("build_root", "/opt/forgekeeper")
	v.SetDefault("portal_port", 7000)
	v.SetDefault("profile_dir", "/etc/profile.d")
	v.SetDefault("install_timeout", 10*time.Minute)
	v.SetDefault("stop_grace", 8*time.Second)

	v.SetEnvPrefix("FORGEKEEPER")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/forgekeeper")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.StateDir, "state.db")
	}
	if cfg.MarkerDir == "" {
		cfg.MarkerDir = filepath.Join(cfg.StateDir, "langs")
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = filepath.Join(cfg.StateDir, "modules.toml")
	}
	return &cfg, nil
}

// EnvFilePath returns where WriteEnvFile puts the container environment.
func (c *Config) EnvFilePath() string {
	return filepath.Join(c.StateDir, "env")
}
