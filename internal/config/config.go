package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the server and CLI configuration.
type Config struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// Cache policy
	CacheTTLSec      int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	RefreshBeforeSec int `mapstructure:"refresh_before_sec" yaml:"refresh_before_sec"`
	MaxStaleSec      int `mapstructure:"max_stale_sec" yaml:"max_stale_sec"`
	NameCacheTTLSec  int `mapstructure:"name_cache_ttl_sec" yaml:"name_cache_ttl_sec"`

	// Engine tuning
	GroupThreshold   float64 `mapstructure:"group_threshold" yaml:"group_threshold"`
	SuggestThreshold float64 `mapstructure:"suggest_threshold" yaml:"suggest_threshold"`
	SampleRows       int     `mapstructure:"sample_rows" yaml:"sample_rows"`
	MaxFilterValues  int     `mapstructure:"max_filter_values" yaml:"max_filter_values"`
	TrendBuckets     int     `mapstructure:"trend_buckets" yaml:"trend_buckets"`
	TopGroups        int     `mapstructure:"top_groups" yaml:"top_groups"`
	DefaultPageSize  int     `mapstructure:"default_page_size" yaml:"default_page_size"`

	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Overlay persistence: file | sqlite | postgres
	OverlayStore string `mapstructure:"overlay_store" yaml:"overlay_store"`
	OverlayPath  string `mapstructure:"overlay_path" yaml:"overlay_path"`
	DatabaseURL  string `mapstructure:"database_url" yaml:"database_url"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

func (c *Config) CacheTTL() time.Duration      { return seconds(c.CacheTTLSec) }
func (c *Config) RefreshBefore() time.Duration { return seconds(c.RefreshBeforeSec) }
func (c *Config) MaxStale() time.Duration      { return seconds(c.MaxStaleSec) }
func (c *Config) NameCacheTTL() time.Duration  { return seconds(c.NameCacheTTLSec) }
func (c *Config) HTTPTimeout() time.Duration   { return seconds(c.HTTPTimeoutSec) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Path resolves the file Save writes to. An empty cfgFile means
// ~/.feedback/config.yaml.
func Path(cfgFile string) (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Save writes the configuration as YAML to Path(cfgFile).
func Save(c *Config, cfgFile string) error {
	path, err := Path(cfgFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "mkdir config dir")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "marshal yaml")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrap(err, "write config")
	}
	return nil
}

// Load reads configuration. Precedence: env (FEEDBACK_*) > config file >
// defaults. A .env file in the working directory is loaded first if present.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FEEDBACK")
	v.AutomaticEnv()

	v.SetDefault("port", 8001)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cache_ttl_sec", 300)
	v.SetDefault("refresh_before_sec", 120)
	v.SetDefault("max_stale_sec", 3600)
	v.SetDefault("name_cache_ttl_sec", 1800)
	v.SetDefault("group_threshold", 0.75)
	v.SetDefault("suggest_threshold", 0.65)
	v.SetDefault("sample_rows", 100)
	v.SetDefault("max_filter_values", 500)
	v.SetDefault("trend_buckets", 10)
	v.SetDefault("top_groups", 10)
	v.SetDefault("default_page_size", 50)
	v.SetDefault("http_timeout_sec", 30)
	v.SetDefault("overlay_store", "file")
	v.SetDefault("overlay_path", "")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "read config %s", cfgFile)
		}
	} else if dir, err := homeDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, eris.Wrapf(err, "read config %s", filepath.Join(dir, "config.yaml"))
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, eris.Wrap(err, "unmarshal config")
	}
	// Comma-separated env values may arrive split but untrimmed.
	c.AllowedOrigins = splitList(strings.Join(c.AllowedOrigins, ","))
	if c.OverlayPath == "" {
		if dir, err := homeDir(); err == nil {
			c.OverlayPath = filepath.Join(dir, "overlays.yaml")
		}
	}
	c.OverlayPath = expandHome(c.OverlayPath)
	return &c, nil
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "resolve home dir")
	}
	return filepath.Join(home, ".feedback"), nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
