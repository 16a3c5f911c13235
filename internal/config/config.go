package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration.
type Config struct {
	// Global options, e.g. log.level.
	Global map[string]string
	// Sessions controls where session files live and how long they last.
	Sessions SessionConfig
	// Client controls how the web server is reached.
	Client ClientConfig
	// Warnings contains any warnings generated during config loading
	Warnings []string
}

// SessionConfig is the [sessions] section.
type SessionConfig struct {
	// Dir holds session files. Empty means the system temporary directory.
	Dir                string
	StaleAfterHours    int
	LockTimeoutSeconds int
}

// ClientConfig is the [client] section.
type ClientConfig struct {
	Scheme              string
	TimeoutSeconds      int
	InsecureSkipVerify  bool
	PollIntervalSeconds int
}

// Known global options.
const (
	OptLogLevel     = "log.level"
	OptLogFile      = "log.file"
	OptLogFormat    = "log.format"
	OptLogMaxSizeMB = "log.max-size-mb"
	OptLogMaxFiles  = "log.max-files"
)

var globalOptions = map[string]bool{
	OptLogLevel:     true,
	OptLogFile:      true,
	OptLogFormat:    true,
	OptLogMaxSizeMB: true,
	OptLogMaxFiles:  true,
}

// NewConfig creates a configuration holding the defaults.
func NewConfig() *Config {
	return &Config{
		Global: make(map[string]string),
		Sessions: SessionConfig{
			StaleAfterHours:    24,
			LockTimeoutSeconds: 5,
		},
		Client: ClientConfig{
			Scheme:              "https",
			TimeoutSeconds:      300,
			PollIntervalSeconds: 10,
		},
		Warnings: make([]string, 0),
	}
}

// StaleAfter is the session cleanup threshold.
func (s SessionConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterHours) * time.Hour
}

// LockTimeout bounds the wait for a session lock.
func (s SessionConfig) LockTimeout() time.Duration {
	return time.Duration(s.LockTimeoutSeconds) * time.Second
}

// Timeout bounds each HTTP request.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval is the delay between job status checks.
func (c ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Load loads configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads configuration from the specified file path. A missing
// file yields the defaults. Symlinks are rejected.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads configuration from an io.Reader.
// The format is dnsmasq-style: "optionName remainingLineIsTheValue", with
// [section] headers and # comments.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()
	scanner := bufio.NewScanner(r)

	var section string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(strings.Trim(line, "[]"))
			switch section {
			case "sessions", "client":
			default:
				config.addWarning("line %d: unknown section [%s]", lineNo, section)
			}
			continue
		}

		name, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)

		var err error
		switch section {
		case "sessions":
			err = parseSessionOption(&config.Sessions, name, value)
		case "client":
			err = parseClientOption(&config.Client, name, value)
		case "":
			if !globalOptions[name] {
				config.addWarning("line %d: unknown option %q", lineNo, name)
			}
			config.Global[name] = value
		default:
			// Options under an unknown section are ignored.
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid [%s] option %q: %w", lineNo, section, name, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return config, nil
}

func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// parseSessionOption handles the [sessions] section:
//   - dir <path>
//   - staleAfterHours <int> (default 24)
//   - lockTimeoutSeconds <int> (default 5; 0 means try once)
func parseSessionOption(sc *SessionConfig, name, value string) error {
	switch name {
	case "dir":
		sc.Dir = value
	case "staleAfterHours":
		n, err := parsePositive(value)
		if err != nil {
			return err
		}
		sc.StaleAfterHours = n
	case "lockTimeoutSeconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value %q: %w", value, err)
		}
		if n < 0 {
			return fmt.Errorf("lockTimeoutSeconds cannot be negative: %d", n)
		}
		sc.LockTimeoutSeconds = n
	default:
		return fmt.Errorf("unknown session option: %s", name)
	}
	return nil
}

// parseClientOption handles the [client] section:
//   - scheme <http|https> (default https)
//   - timeoutSeconds <int> (default 300)
//   - insecureSkipVerify <bool> (default false)
//   - pollIntervalSeconds <int> (default 10)
func parseClientOption(cc *ClientConfig, name, value string) error {
	switch name {
	case "scheme":
		v := strings.ToLower(value)
		if v != "http" && v != "https" {
			return fmt.Errorf("scheme must be http or https: %q", value)
		}
		cc.Scheme = v
	case "timeoutSeconds":
		n, err := parsePositive(value)
		if err != nil {
			return err
		}
		cc.TimeoutSeconds = n
	case "insecureSkipVerify":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cc.InsecureSkipVerify = b
	case "pollIntervalSeconds":
		n, err := parsePositive(value)
		if err != nil {
			return err
		}
		cc.PollIntervalSeconds = n
	default:
		return fmt.Errorf("unknown client option: %s", name)
	}
	return nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value %q: %w", s, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("value must be at least 1: %d", n)
	}
	return n, nil
}

// parseBool parses a boolean value from string.
// Accepts: true, false, 1, 0, yes, no, on, off (case-insensitive)
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// GetGlobalOption returns a global configuration option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// GetInt returns a global option as an int, or 0 when unset or invalid.
func (c *Config) GetInt(name string) int {
	n, err := strconv.Atoi(c.Global[name])
	if err != nil {
		return 0
	}
	return n
}

// HasWarnings returns true if there are any warnings.
func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
