// Package config loads the YAML configuration of the pkpauth service.
// Environment variables in the form ${VAR_NAME} are expanded before parsing
// and duration strings are parsed into time.Duration values.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/layer-3/pkpauth/core"
)

const (
	DefaultHTTPAddr    = ":9000"
	DefaultLogLevel    = "info"
	DefaultRedisPrefix = "pkpauth:session:"
	DefaultNodeTimeout = 30 * time.Second
	DefaultSessionTTL  = 24 * time.Hour
)

// Config is the complete service configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Relay     RelayConfig     `yaml:"relay"`
	Nodes     NodesConfig     `yaml:"nodes"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	Providers ProvidersConfig `yaml:"providers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig holds the HTTP listener and its per-client rate limit
type ServerConfig struct {
	HTTPAddr  string  `yaml:"http_addr"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst int     `yaml:"rate_burst"`
}

// RelayConfig holds relay server access
type RelayConfig struct {
	URL       string  `yaml:"url"`
	APIKey    string  `yaml:"api_key"`
	MaxPolls  int     `yaml:"max_polls"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	PollInterval    time.Duration `yaml:"-"`
	PollIntervalRaw string        `yaml:"poll_interval"`
}

// NodesConfig lists the signing nodes. With LocalKey set, delegations are
// signed in-process by that key instead of over HTTP.
type NodesConfig struct {
	URLs        []string `yaml:"urls"`
	LocalKey    string   `yaml:"local_key"`
	LocalDomain string   `yaml:"local_domain"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// SessionConfig tunes derived session signatures
type SessionConfig struct {
	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// RedisConfig enables the Redis session cache and event stream when URL is set
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// ProvidersConfig configures the auth method providers
type ProvidersConfig struct {
	AppID    string         `yaml:"app_id"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Google   OAuthConfig    `yaml:"google"`
	Discord  DiscordConfig  `yaml:"discord"`
	WebAuthn WebAuthnConfig `yaml:"webauthn"`
}

// WalletConfig configures the sign-in statements built for wallets
type WalletConfig struct {
	Domain string `yaml:"domain"`
	Origin string `yaml:"origin"`

	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// OAuthConfig configures a redirect login
type OAuthConfig struct {
	LoginURL    string `yaml:"login_url"`
	RedirectURI string `yaml:"redirect_uri"`
	ClientID    string `yaml:"client_id"`
	// VerifyTokens checks id_token signatures against the issuer keys.
	VerifyTokens bool `yaml:"verify_tokens"`
}

// DiscordConfig configures Discord logins and user lookups
type DiscordConfig struct {
	OAuthConfig `yaml:",inline"`
	APIURL      string `yaml:"api_url"`
}

// WebAuthnConfig configures the WebAuthn relying party
type WebAuthnConfig struct {
	RPID          string   `yaml:"rp_id"`
	RPDisplayName string   `yaml:"rp_display_name"`
	RPOrigins     []string `yaml:"rp_origins"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// Load reads a configuration file from path and returns the parsed Config
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses, fills defaults into and validates a YAML document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or nothing when unset
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVar.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Relay.PollInterval == 0 {
		c.Relay.PollInterval = core.DefaultPollInterval
	}
	if c.Relay.MaxPolls == 0 {
		c.Relay.MaxPolls = core.DefaultMaxPolls
	}
	if c.Nodes.Timeout == 0 {
		c.Nodes.Timeout = DefaultNodeTimeout
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultRedisPrefix
	}
}

// Validate checks required fields. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Relay.URL == "" {
		return errors.New("relay.url is required")
	}
	if err := checkURL("relay.url", c.Relay.URL); err != nil {
		return err
	}
	if c.Relay.MaxPolls < 0 {
		return errors.New("relay.max_polls must not be negative")
	}
	if c.Relay.RateLimit < 0 || c.Server.RateLimit < 0 {
		return errors.New("rate limits must not be negative")
	}

	if len(c.Nodes.URLs) == 0 {
		return errors.New("nodes.urls needs at least one node")
	}
	seen := make(map[string]bool, len(c.Nodes.URLs))
	for i, node := range c.Nodes.URLs {
		if err := checkURL(fmt.Sprintf("nodes.urls[%d]", i), node); err != nil {
			return err
		}
		if seen[node] {
			return fmt.Errorf("nodes.urls[%d]: duplicate node %s", i, node)
		}
		seen[node] = true
	}

	if c.Session.TTL < 0 {
		return errors.New("session.ttl must not be negative")
	}

	if wa := c.Providers.WebAuthn; wa.RPID != "" && len(wa.RPOrigins) == 0 {
		return errors.New("providers.webauthn.rp_origins is required when rp_id is set")
	}
	if c.Providers.Google.VerifyTokens && c.Providers.Google.ClientID == "" {
		return errors.New("providers.google.client_id is required to verify tokens")
	}

	return nil
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: %q is not an http(s) url", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: %q has no host", field, raw)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"relay.poll_interval", cfg.Relay.PollIntervalRaw, &cfg.Relay.PollInterval},
		{"nodes.timeout", cfg.Nodes.TimeoutRaw, &cfg.Nodes.Timeout},
		{"session.ttl", cfg.Session.TTLRaw, &cfg.Session.TTL},
		{"providers.wallet.ttl", cfg.Providers.Wallet.TTLRaw, &cfg.Providers.Wallet.TTL},
		{"providers.webauthn.timeout", cfg.Providers.WebAuthn.TimeoutRaw, &cfg.Providers.WebAuthn.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
