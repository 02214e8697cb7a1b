package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds portal client configuration.
type Config struct {
	Site          string
	SitesFile     string
	Username      string
	Password      string
	Stub          bool
	SaveHTML      bool
	FixtureDir    string
	Timeout       time.Duration
	UserAgent     string
	OutputFile    string
	OutputFormat  string // csv, json, dual or sqlite
	Workers       int
	DedupeMaxSize int
	MetricsAddr   string
	Verbose       bool
}

// DefaultConfig returns defaults for the Higashi-Osaka campus portal.
func DefaultConfig() *Config {
	return &Config{
		Site:          DefaultSite,
		FixtureDir:    ".",
		Timeout:       30 * time.Second,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		OutputFormat:  "csv",
		Workers:       4,
		DedupeMaxSize: 10000,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Site) == "" {
		return fmt.Errorf("site cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if (c.Stub || c.SaveHTML) && c.FixtureDir == "" {
		return fmt.Errorf("fixture directory cannot be empty in stub or save mode")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual or sqlite")
	}
	return nil
}

// ResolveSite looks the configured site up in the built-in table, extended by
// SitesFile when set.
func (c *Config) ResolveSite() (Site, error) {
	table := BuiltinSites()
	if c.SitesFile != "" {
		loaded, err := LoadSites(c.SitesFile)
		if err != nil {
			return Site{}, err
		}
		for key, site := range loaded {
			table[key] = site
		}
	}
	site, ok := table[c.Site]
	if !ok {
		return Site{}, fmt.Errorf("unknown site %q", c.Site)
	}
	return site, nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvBool parses key as a boolean when it is set.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
