package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	TMDB     TMDBConfig     `toml:"tmdb"`
	Backend  BackendConfig  `toml:"backend"`
	Cache    CacheConfig    `toml:"cache"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

// TMDBConfig contains metadata API settings.
type TMDBConfig struct {
	APIKey            string   `toml:"api_key"`
	BaseURL           string   `toml:"base_url"`
	ImageBaseURL      string   `toml:"image_base_url"`
	CacheTTL          Duration `toml:"cache_ttl"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// BackendConfig points the client at the backend serving auth and row storage.
type BackendConfig struct {
	URL      string `toml:"url"`
	AnonKey  string `toml:"anon_key"`
	ClientID string `toml:"client_id"`
}

// CacheConfig contains the local store location.
type CacheConfig struct {
	Path string `toml:"path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server and token settings.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	JWTSecret       string   `toml:"jwt_secret"`
	JWTIssuer       string   `toml:"jwt_issuer"`
	JWTAudience     string   `toml:"jwt_audience"`
	AccessTokenTTL  Duration `toml:"access_token_ttl"`
	RefreshTokenTTL Duration `toml:"refresh_token_ttl"`
}

// Addr joins host and port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from strings such as "1h" or "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values, and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the settings required by the client commands.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: backend.url is required", ErrInvalidConfig)
	}
	if c.TMDB.BaseURL == "" {
		return fmt.Errorf("%w: tmdb.base_url is required", ErrInvalidConfig)
	}
	if c.TMDB.CacheTTL.Duration < 0 {
		return fmt.Errorf("%w: tmdb.cache_ttl must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ValidateServer checks the settings required by the backend server.
func (c *Config) ValidateServer() error {
	if len(c.Server.JWTSecret) < 16 {
		return fmt.Errorf("%w: server.jwt_secret must be at least 16 bytes", ErrInvalidConfig)
	}
	if c.Server.JWTIssuer == "" || c.Server.JWTAudience == "" {
		return fmt.Errorf("%w: server.jwt_issuer and server.jwt_audience are required", ErrInvalidConfig)
	}
	if c.Server.AccessTokenTTL.Duration <= 0 || c.Server.RefreshTokenTTL.Duration <= 0 {
		return fmt.Errorf("%w: token ttls must be positive", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLX_TMDB_API_KEY"); v != "" {
		c.TMDB.APIKey = v
	}
	if v := os.Getenv("FLX_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("FLX_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
