// Package config manages gateway configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/bookwire/internal/schema"
)

// Environment identifies the runtime environment where the gateway operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// GatewayConfig declares which markets the gateway follows and how events queue.
type GatewayConfig struct {
	Symbols     []string `yaml:"symbols"`
	QueueBuffer int      `yaml:"queueBuffer"`
}

// VenueConfig declares transport endpoints and credentials for the venue.
type VenueConfig struct {
	RESTURL          string        `yaml:"restUrl"`
	WSURL            string        `yaml:"wsUrl"`
	APIKey           string        `yaml:"apiKey"`
	APISecret        string        `yaml:"apiSecret"`
	HTTPTimeout      time.Duration `yaml:"httpTimeout"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	BookDepth        int           `yaml:"bookDepth"`
	SnapshotLimit    int           `yaml:"snapshotLimit"`
	UserStream       bool          `yaml:"userStream"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// Config is the unified gateway configuration sourced from YAML.
type Config struct {
	Environment Environment     `yaml:"environment"`
	Gateway     GatewayConfig   `yaml:"gateway"`
	Venue       VenueConfig     `yaml:"venue"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in gateway configuration.
func Default() Config {
	return Config{
		Environment: EnvDev,
		Gateway: GatewayConfig{
			Symbols:     []string{"BTC-USDT"},
			QueueBuffer: 256,
		},
		Venue: VenueConfig{
			RESTURL:          "https://api.nonkyc.io/api/v2",
			WSURL:            "wss://api.nonkyc.io",
			HTTPTimeout:      10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			BookDepth:        100,
			SnapshotLimit:    1000,
			UserStream:       false,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "bookwire-gateway",
			EnableMetrics: false,
			OTLPInsecure:  true,
		},
	}
}

// Load reads and validates a Config from the provided YAML file.
func Load(ctx context.Context, configPath string) (Config, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return Config{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration file when present, falling back to
// built-in defaults (still subject to env overrides) when path is empty or
// the file does not exist.
func LoadOrDefault(ctx context.Context, configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("BOOKWIRE_CONFIG"))
	}
	if path == "" {
		cfg := Default()
		cfg.normalise()
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	if _, err := os.Stat(filepath.Clean(path)); os.IsNotExist(err) {
		cfg := Default()
		cfg.normalise()
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return Load(ctx, path)
}

func (c *Config) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	symbols := make([]string, 0, len(c.Gateway.Symbols))
	seen := make(map[string]struct{}, len(c.Gateway.Symbols))
	for _, sym := range c.Gateway.Symbols {
		trimmed := strings.ToUpper(strings.TrimSpace(sym))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		symbols = append(symbols, trimmed)
	}
	c.Gateway.Symbols = symbols
	if c.Gateway.QueueBuffer <= 0 {
		c.Gateway.QueueBuffer = 256
	}

	c.Venue.RESTURL = strings.TrimRight(strings.TrimSpace(c.Venue.RESTURL), "/")
	c.Venue.WSURL = strings.TrimSpace(c.Venue.WSURL)
	if c.Venue.HTTPTimeout <= 0 {
		c.Venue.HTTPTimeout = 10 * time.Second
	}
	if c.Venue.HandshakeTimeout <= 0 {
		c.Venue.HandshakeTimeout = 10 * time.Second
	}
	if c.Venue.BookDepth <= 0 {
		c.Venue.BookDepth = 100
	}
	if c.Venue.SnapshotLimit <= 0 {
		c.Venue.SnapshotLimit = 1000
	}

	if v := strings.TrimSpace(os.Getenv("NONKYC_API_KEY")); v != "" {
		c.Venue.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("NONKYC_API_SECRET")); v != "" {
		c.Venue.APISecret = v
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "bookwire-gateway"
	}
}

// Validate performs semantic validation on the configuration.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if len(c.Gateway.Symbols) == 0 {
		return fmt.Errorf("gateway symbols required")
	}
	for _, sym := range c.Gateway.Symbols {
		if err := schema.ValidateInstrument(sym); err != nil {
			return fmt.Errorf("gateway symbol %q: %w", sym, err)
		}
	}
	if c.Gateway.QueueBuffer <= 0 {
		return fmt.Errorf("gateway queueBuffer must be >0")
	}

	if strings.TrimSpace(c.Venue.RESTURL) == "" {
		return fmt.Errorf("venue restUrl required")
	}
	if strings.TrimSpace(c.Venue.WSURL) == "" {
		return fmt.Errorf("venue wsUrl required")
	}
	if c.Venue.HTTPTimeout <= 0 {
		return fmt.Errorf("venue httpTimeout must be >0")
	}
	if c.Venue.HandshakeTimeout <= 0 {
		return fmt.Errorf("venue handshakeTimeout must be >0")
	}
	if c.Venue.BookDepth <= 0 {
		return fmt.Errorf("venue bookDepth must be >0")
	}
	if c.Venue.SnapshotLimit <= 0 {
		return fmt.Errorf("venue snapshotLimit must be >0")
	}
	if c.Venue.UserStream {
		if strings.TrimSpace(c.Venue.APIKey) == "" || strings.TrimSpace(c.Venue.APISecret) == "" {
			return fmt.Errorf("venue credentials required when userStream is enabled")
		}
	}

	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
