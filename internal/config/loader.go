// Package config provides configuration loading for rerankd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// sections are the top-level keys environment variables may address.
var sections = map[string]bool{
	"listen":    true,
	"backend":   true,
	"request":   true,
	"proxy":     true,
	"server":    true,
	"log":       true,
	"telemetry": true,
}

// LoadWithFile loads configuration from a YAML or TOML file, then overrides
// with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BACKEND_URL, LISTEN_PORT, REQUEST_TIMEOUT_MS, ...)
//  2. Config file (~/.config/rerankd/config.yaml by default)
//  3. Built-in defaults
//
// A missing file is not an error. The format is chosen by extension: .toml is
// parsed as TOML, anything else as YAML.
//
// # Security Considerations
//
// The file must live in ~/.config/rerankd/ or /etc/rerankd/, have 0600 or
// 0400 permissions, and be at most 1MB.
func LoadWithFile(configPath string) (*Config, error) {
	k, err := newKoanf()
	if err != nil {
		return nil, err
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "rerankd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate the descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if strings.EqualFold(filepath.Ext(configPath), ".toml") {
			err = k.Load(tomlProvider(content), nil)
		} else {
			err = k.Load(rawbytes.Provider(content), yaml.Parser())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	return unmarshal(k)
}

// newKoanf returns a koanf instance seeded with defaults.
func newKoanf() (*koanf.Koanf, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}
	return k, nil
}

// loadEnv overlays environment variables.
//
//	BACKEND_URL               -> backend.url
//	BACKEND_TRUNCATION_DIRECTION -> backend.truncation_direction
//	LISTEN_PORT               -> listen.port
//
// Split on the first underscore only; variables outside known sections are ignored.
func loadEnv(k *koanf.Koanf) error {
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func envKey(s string) string {
	parts := strings.SplitN(strings.ToLower(s), "_", 2)
	if len(parts) != 2 || !sections[parts[0]] || parts[1] == "" {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// unmarshal decodes k into a Config. Validation is left to the caller.
func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// tomlBytes is a koanf.Provider for TOML content.
type tomlBytes []byte

func tomlProvider(b []byte) tomlBytes {
	return tomlBytes(b)
}

// ReadBytes is not supported; koanf calls Read when no parser is given.
func (t tomlBytes) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("toml provider does not support ReadBytes")
}

// Read decodes the TOML document into a nested map.
func (t tomlBytes) Read() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if _, err := toml.Decode(string(t), &out); err != nil {
		return nil, fmt.Errorf("parsing toml: %w", err)
	}
	return out, nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "rerankd"),
		"/etc/rerankd",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/rerankd/ or /etc/rerankd/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
