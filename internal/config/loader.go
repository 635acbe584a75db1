package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	appDir = "crewai-expert"
)

// sections lists the top-level keys environment variables may set.
var sections = map[string]bool{
	"github":    true,
	"openai":    true,
	"qdrant":    true,
	"chunker":   true,
	"pipeline":  true,
	"store":     true,
	"server":    true,
	"nats":      true,
	"telemetry": true,
	"logging":   true,
}

// LoadWithFile loads configuration from a YAML file, a .env file and the
// environment.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (QDRANT_URL, OPENAI_API_KEY, GITHUB_AUTH_KEY, ...)
//  2. Variables from the .env files, which never override the environment
//  3. YAML config file (~/.config/crewai-expert/config.yaml)
//  4. Hardcoded defaults
//
// An empty configPath uses the default path. envFiles default to ".env" in
// the working directory; missing files are skipped.
//
// # Security Considerations
//
// The YAML file must have 0600 or 0400 permissions, be at most 1MB and live
// under ~/.config/crewai-expert/, /etc/crewai-expert/ or the working
// directory.
//
// # Environment Variable Mapping
//
// Variables are lowercased and split on the first underscore:
//
//	QDRANT_API_KEY      -> qdrant.api_key
//	PIPELINE_RUN_RETRIES -> pipeline.run_retries
//	GITHUB_EXTENSIONS=.md,.mdx -> github.extensions [.md .mdx]
//
// Variables whose first segment is not a known section are ignored.
func LoadWithFile(configPath string, envFiles ...string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", appDir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if err := loadYAML(k, configPath); err != nil {
		return nil, err
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{k: k}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func loadYAML(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate the opened descriptor, not the path, to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// loadDotEnv exports variables from the given files without overriding
// variables already set.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name.
func envKey(key, value string) (string, any) {
	lower := strings.ToLower(key)
	section, field, ok := strings.Cut(lower, "_")
	if !ok || field == "" || !sections[section] {
		return "", nil
	}

	path := section + "." + field
	if path == "github.extensions" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return path, parts
	}
	return path, value
}

// EnsureConfigDir creates the config directory with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", appDir)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories. Paths
	// that do not exist yet are checked as given.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", appDir),
		filepath.Join("/etc", appDir),
	}
	if wd, err := os.Getwd(); err == nil {
		allowedDirs = append(allowedDirs, wd)
	}

	for _, dir := range allowedDirs {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolved
		}
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/%s/, /etc/%s/ or the working directory", appDir, appDir)
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model.
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
