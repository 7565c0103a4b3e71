package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "JSONRPC_"

// Duration is a time.Duration that decodes from strings such as "1.5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Format    string `toml:"format" yaml:"format"`
	AddSource bool   `toml:"addSource" yaml:"addSource"`
}

// TCPConfig enables the newline-delimited TCP listener when Addr is set.
type TCPConfig struct {
	Addr        string `toml:"addr" yaml:"addr"`
	MaxLineSize int    `toml:"maxLineSize" yaml:"maxLineSize"`
}

// HTTPConfig enables the HTTP POST endpoint when Addr is set.
type HTTPConfig struct {
	Addr            string   `toml:"addr" yaml:"addr"`
	Path            string   `toml:"path" yaml:"path"`
	ReadTimeout     Duration `toml:"readTimeout" yaml:"readTimeout"`
	WriteTimeout    Duration `toml:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout Duration `toml:"shutdownTimeout" yaml:"shutdownTimeout"`
	MaxBodySize     int64    `toml:"maxBodySize" yaml:"maxBodySize"`
	CORS            bool     `toml:"cors" yaml:"cors"`
}

// WebSocketConfig enables the WebSocket endpoint when Addr is set.
type WebSocketConfig struct {
	Addr         string   `toml:"addr" yaml:"addr"`
	Path         string   `toml:"path" yaml:"path"`
	ReadTimeout  Duration `toml:"readTimeout" yaml:"readTimeout"`
	WriteTimeout Duration `toml:"writeTimeout" yaml:"writeTimeout"`
}

// RateLimitConfig configures the token bucket. A zero Rate disables it.
type RateLimitConfig struct {
	Rate      int      `toml:"rate" yaml:"rate"`
	Burst     int      `toml:"burst" yaml:"burst"`
	Interval  Duration `toml:"interval" yaml:"interval"`
	PerMethod bool     `toml:"perMethod" yaml:"perMethod"`
}

// AuthConfig configures request authentication. Auth is off when both
// APIKeys and JWTSecret are empty.
type AuthConfig struct {
	APIKeys     []string `toml:"apiKeys" yaml:"apiKeys"`
	JWTSecret   string   `toml:"jwtSecret" yaml:"jwtSecret"`
	SkipMethods []string `toml:"skipMethods" yaml:"skipMethods"`
}

// Enabled reports whether any credential source is configured.
func (a AuthConfig) Enabled() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

// TelemetryConfig toggles the OpenTelemetry middleware.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	ServiceName string `toml:"serviceName" yaml:"serviceName"`
}

// Config aggregates the server settings.
type Config struct {
	Logging        LoggingConfig   `toml:"logging" yaml:"logging"`
	Stdio          bool            `toml:"stdio" yaml:"stdio"`
	TCP            TCPConfig       `toml:"tcp" yaml:"tcp"`
	HTTP           HTTPConfig      `toml:"http" yaml:"http"`
	WebSocket      WebSocketConfig `toml:"websocket" yaml:"websocket"`
	Timeout        Duration        `toml:"timeout" yaml:"timeout"`
	MaxParamsBytes int64           `toml:"maxParamsBytes" yaml:"maxParamsBytes"`
	RateLimit      RateLimitConfig `toml:"rateLimit" yaml:"rateLimit"`
	Auth           AuthConfig      `toml:"auth" yaml:"auth"`
	Telemetry      TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

// Default returns the configuration used when no file is given: stdio only,
// info-level text logs.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Stdio:   true,
		HTTP: HTTPConfig{
			Path:            "/rpc",
			ReadTimeout:     Duration{30 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
		},
		WebSocket: WebSocketConfig{Path: "/"},
		Telemetry: TelemetryConfig{ServiceName: "jsonrpcd"},
	}
}

// Load reads the file at path over Default, applies JSONRPC_* environment
// variables and validates the result. The format follows the extension:
// .toml, .yaml or .yml. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.decode(filepath.Ext(path), data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(ext string, data []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		return toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

// LoadEnv loads .env style files into the process environment. Variables
// already set win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays values found through lookup, which is normally
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok
	}

	str := map[string]*string{
		"LOG_LEVEL":         &c.Logging.Level,
		"LOG_FORMAT":        &c.Logging.Format,
		"TCP_ADDR":          &c.TCP.Addr,
		"HTTP_ADDR":         &c.HTTP.Addr,
		"HTTP_PATH":         &c.HTTP.Path,
		"WS_ADDR":           &c.WebSocket.Addr,
		"WS_PATH":           &c.WebSocket.Path,
		"JWT_SECRET":        &c.Auth.JWTSecret,
		"OTEL_SERVICE_NAME": &c.Telemetry.ServiceName,
	}
	for name, dst := range str {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"STDIO":        &c.Stdio,
		"HTTP_CORS":    &c.HTTP.CORS,
		"OTEL_ENABLED": &c.Telemetry.Enabled,
	}
	for name, dst := range bools {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"RATE_LIMIT": &c.RateLimit.Rate,
		"RATE_BURST": &c.RateLimit.Burst,
	}
	for name, dst := range ints {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := get("TIMEOUT"); ok {
		if err := c.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
	}
	if v, ok := get("API_KEYS"); ok {
		c.Auth.APIKeys = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if !c.Stdio && c.TCP.Addr == "" && c.HTTP.Addr == "" && c.WebSocket.Addr == "" {
		return errors.New("no transport enabled")
	}
	for name, addr := range map[string]string{
		"tcp.addr":       c.TCP.Addr,
		"http.addr":      c.HTTP.Addr,
		"websocket.addr": c.WebSocket.Addr,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	if c.HTTP.Path == "" || c.HTTP.Path[0] != '/' {
		return fmt.Errorf("http.path must start with '/': %q", c.HTTP.Path)
	}
	if c.Timeout.Duration < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.MaxParamsBytes < 0 {
		return errors.New("maxParamsBytes must not be negative")
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rateLimit values must not be negative")
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.Rate
	}
	return nil
}
