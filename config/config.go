package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "TULULU"

// Config holds scraper configuration.
type Config struct {
	BaseURL         string        `mapstructure:"base_url"`
	Category        string        `mapstructure:"category"`
	StartPage       int           `mapstructure:"start_page"`
	EndPage         int           `mapstructure:"end_page"` // 0 discovers the last catalog page
	FallbackEndPage int           `mapstructure:"fallback_end_page"`
	SkipImages      bool          `mapstructure:"skip_imgs"`
	SkipText        bool          `mapstructure:"skip_txt"`
	JSONPath        string        `mapstructure:"json_path"`
	DestFolder      string        `mapstructure:"dest_folder"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxBodySize     int           `mapstructure:"max_body_size"`
	UserAgent       string        `mapstructure:"user_agent"`
	Verbose         bool          `mapstructure:"verbose"`
	NoProgress      bool          `mapstructure:"no_progress"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
}

// DefaultConfig returns defaults for the tululu.org sci-fi category.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://tululu.org",
		Category:        "l55",
		StartPage:       1,
		EndPage:         0,
		FallbackEndPage: 10,
		JSONPath:        "",
		DestFolder:      "",
		Timeout:         20 * time.Second,
		MaxBodySize:     0,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Load builds a Config from v, layering defaults, an optional config file,
// TULULU_* environment variables and any flags already bound to v.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	def := DefaultConfig()
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("category", def.Category)
	v.SetDefault("start_page", def.StartPage)
	v.SetDefault("end_page", def.EndPage)
	v.SetDefault("fallback_end_page", def.FallbackEndPage)
	v.SetDefault("skip_imgs", def.SkipImages)
	v.SetDefault("skip_txt", def.SkipText)
	v.SetDefault("json_path", def.JSONPath)
	v.SetDefault("dest_folder", def.DestFolder)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("max_body_size", def.MaxBodySize)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("verbose", def.Verbose)
	v.SetDefault("no_progress", def.NoProgress)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", cfgFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if strings.Trim(c.Category, "/") == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if c.StartPage < 1 {
		return fmt.Errorf("start page must be at least 1")
	}
	if c.EndPage < 0 {
		return fmt.Errorf("end page cannot be negative")
	}
	if c.EndPage != 0 && c.EndPage < c.StartPage {
		return fmt.Errorf("end page (%d) cannot precede start page (%d)", c.EndPage, c.StartPage)
	}
	if c.FallbackEndPage < 1 {
		return fmt.Errorf("fallback end page must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
