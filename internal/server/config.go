// Package server provides configuration helpers that define runtime defaults,
// validation, and the layered loading of the relay's settings.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultPort           = ":3000"
	DefaultMaxMessageSize = 4096
	DefaultStaticDir      = "web/static"
	DefaultViewsDir       = "web/views"
	DefaultLogLevel       = "info"
)

// Config holds the server configuration settings.
type Config struct {
	// Port is the listen address for HTTP and WebSocket traffic.
	Port string `yaml:"port"`

	// AllowedOrigins lists the browser origins permitted to open a WebSocket.
	// "*" allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize caps a single inbound frame in bytes. Larger frames
	// close the connection.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// StaticDir is the root of the static asset tree.
	StaticDir string `yaml:"static_dir"`

	// ViewsDir holds the HTML templates.
	ViewsDir string `yaml:"views_dir"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// fileConfig is the layout of the optional YAML file.
type fileConfig struct {
	Server Config `yaml:"server"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		AllowedOrigins: []string{"*"},
		MaxMessageSize: DefaultMaxMessageSize,
		StaticDir:      DefaultStaticDir,
		ViewsDir:       DefaultViewsDir,
		LogLevel:       DefaultLogLevel,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	if cfg.StaticDir == "" {
		cfg.StaticDir = DefaultStaticDir
	}

	if cfg.ViewsDir == "" {
		cfg.ViewsDir = DefaultViewsDir
	}

	if _, ok := parseLogLevel(cfg.LogLevel); !ok {
		cfg.LogLevel = DefaultLogLevel
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins
	if allowAll {
		cfg.AllowedOrigins = append([]string{"*"}, cfg.AllowedOrigins...)
	}

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to
// defaults. It returns the sanitized configuration now in effect.
func SetConfig(cfg *Config) Config {
	if cfg == nil {
		return sanitizeConfig(defaultConfig())
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return &cfg
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path, then environment variables. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return NewConfigFromEnv(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	file := fileConfig{Server: *NewConfig()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg := file.Server
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDotEnv loads variables from the .env file at path into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	if dir := os.Getenv("VIEWS_DIR"); dir != "" {
		cfg.ViewsDir = dir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// ParseLogLevel maps a configured level name onto a slog level, defaulting
// to info for unknown names.
func ParseLogLevel(name string) slog.Level {
	level, _ := parseLogLevel(name)
	return level
}

func parseLogLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}
