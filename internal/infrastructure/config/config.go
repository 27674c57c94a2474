package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for gdogen.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Watch   WatchConfig   `yaml:"watch"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig contains settings for the generated source files.
type OutputConfig struct {
	// Dir is where generated files are written, one per device file.
	Dir string `yaml:"dir"`

	// Extension is appended to the device file's base name.
	// Default: ".cpp"
	Extension string `yaml:"extension"`

	// Function is the name of the generated setup function.
	// Default: "setup_secplus_gdo"
	Function string `yaml:"function"`
}

// WatchConfig contains settings for watch mode.
type WatchConfig struct {
	// DebounceMS is how long to wait for further changes before rebuilding.
	// Default: 500
	DebounceMS int `yaml:"debounce_ms"`
}

// ServerConfig contains settings for the preview server started by "gdogen serve".
type ServerConfig struct {
	Host      string              `yaml:"host"`
	Port      int                 `yaml:"port"`
	Timeouts  ServerTimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig          `yaml:"cors"`
	WebSocket WebSocketConfig     `yaml:"websocket"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the build event stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

var functionNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GDOGEN_SECTION_KEY
// For example: GDOGEN_OUTPUT_DIR, GDOGEN_SERVER_PORT, GDOGEN_LOG_LEVEL
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:       "generated",
			Extension: ".cpp",
			Function:  "setup_secplus_gdo",
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 6080,
			Timeouts: ServerTimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GDOGEN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Output
	if v := os.Getenv("GDOGEN_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("GDOGEN_OUTPUT_FUNCTION"); v != "" {
		cfg.Output.Function = v
	}

	// Server
	if v := os.Getenv("GDOGEN_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GDOGEN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Logging
	if v := os.Getenv("GDOGEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GDOGEN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Output validation
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir is required")
	}
	if !strings.HasPrefix(c.Output.Extension, ".") {
		errs = append(errs, "output.extension must start with a dot")
	}
	if !functionNameRegex.MatchString(c.Output.Function) {
		errs = append(errs, fmt.Sprintf("output.function %q is not a valid C++ identifier", c.Output.Function))
	}

	// Watch validation
	if c.Watch.DebounceMS < 0 {
		errs = append(errs, "watch.debounce_ms must not be negative")
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "server.websocket.max_message_size must be positive")
	}
	if c.Server.WebSocket.PingInterval <= 0 || c.Server.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "server.websocket ping_interval and pong_timeout must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDebounce returns the watch debounce window as a Duration.
func (c *Config) GetDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}
