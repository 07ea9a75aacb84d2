// Package config provides configuration management for the application
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// hostnameRe validates a bare DNS hostname (optionally with a port).
var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?(:[0-9]+)?$`)

// Config holds the application configuration. CLI flags override anything
// loaded here.
type Config struct {
	// TenantID is the cloud directory tenant, a GUID.
	TenantID string `mapstructure:"tenantId"`

	// ServerHost is the federation server's public hostname.
	ServerHost string `mapstructure:"serverHost"`

	// GraphBaseURL overrides the directory API base URL; useful for
	// sovereign clouds and tests. Empty = public cloud.
	GraphBaseURL string `mapstructure:"graphBaseUrl"`

	// ClientID overrides the public client used for password authentication.
	ClientID string `mapstructure:"clientId"`

	// DefaultDomainSuffix selects which federated domain gets promoted to
	// tenant default: a domain is promoted when its name ends with this
	// suffix. Empty disables promotion.
	DefaultDomainSuffix string `mapstructure:"defaultDomainSuffix"`

	DNS DNSConfig `mapstructure:"dns"`
}

// DNSConfig holds DNS verification settings.
type DNSConfig struct {
	// Wait enables bounded-backoff polling for the TXT proof instead of the
	// default single check.
	Wait bool `mapstructure:"wait"`

	// Timeout caps total polling time when Wait is enabled (default: "5m").
	Timeout string `mapstructure:"timeout"`

	// InitialInterval is the first delay between polls (default: "5s").
	InitialInterval string `mapstructure:"initialInterval"`
}

// LoadConfig loads the configuration from a file. An empty path returns a
// config carrying only environment overrides and defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind
	// every key explicitly or env-only values never reach Unmarshal.
	for _, key := range []string{
		"tenantId",
		"serverHost",
		"graphBaseUrl",
		"clientId",
		"defaultDomainSuffix",
		"dns.wait",
		"dns.timeout",
		"dns.initialInterval",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment key %s: %w", key, err)
		}
	}

	v.SetDefault("dns.timeout", "5m")
	v.SetDefault("dns.initialInterval", "5s")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate validates the fields required to run a federation operation.
// Called after CLI flags are merged in.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if _, err := uuid.Parse(c.TenantID); err != nil {
		return fmt.Errorf("tenant ID %q must be a GUID: %w", c.TenantID, err)
	}
	if c.ServerHost == "" {
		return fmt.Errorf("federation server host is required")
	}
	if !hostnameRe.MatchString(c.ServerHost) {
		return fmt.Errorf("federation server host %q is not a valid hostname", c.ServerHost)
	}
	if _, err := c.DNS.ParseTimeout(); err != nil {
		return err
	}
	if _, err := c.DNS.ParseInitialInterval(); err != nil {
		return err
	}
	return nil
}

// ParseTimeout parses the DNS polling timeout.
func (d *DNSConfig) ParseTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return 5 * time.Minute, nil
	}
	timeout, err := time.ParseDuration(d.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid dns.timeout %q: %w", d.Timeout, err)
	}
	return timeout, nil
}

// ParseInitialInterval parses the first DNS polling delay.
func (d *DNSConfig) ParseInitialInterval() (time.Duration, error) {
	if d.InitialInterval == "" {
		return 5 * time.Second, nil
	}
	interval, err := time.ParseDuration(d.InitialInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid dns.initialInterval %q: %w", d.InitialInterval, err)
	}
	return interval, nil
}
