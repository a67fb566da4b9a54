package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix scopes environment overrides to this process.
	envPrefix = "DISCOVERYD_"
)

// envSections maps environment variable section prefixes to koanf key paths.
// Longest prefixes are listed first so compound sections win.
var envSections = []struct {
	prefix  string
	section string
}{
	{"VECTOR_CONFIG_", "vector_config."},
	{"MATCHER_CONFIG_", "matcher_config."},
	{"TRIGGER_CONFIG_", "trigger_config."},
	{"EMBEDDING_", "embedding."},
	{"STORE_", "store."},
	{"NATS_", "nats."},
	{"SERVER_", "server."},
	{"LOGGING_", "logging."},
}

// Load loads configuration from a YAML file, then overrides with environment
// variables, then validates.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DISCOVERYD_SERVER_PORT, DISCOVERYD_NATS_URL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The file may be absent; defaults plus environment are then used. Files
// larger than 1MB are rejected to prevent resource exhaustion.
//
// Example:
//
//	cfg, err := config.Load("/etc/discoveryd/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := readConfigFile(configPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	// Environment overrides. DISCOVERYD_VECTOR_CONFIG_BATCH_SIZE maps to
	// vector_config.batch_size, DISCOVERYD_NATS_URL to nats.url.
	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse loads configuration from raw YAML bytes plus defaults, then validates.
// Used by tests and by the registry's file-watch reload path, which reads the
// file itself to keep a single open/validate step.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile opens and reads a config file with a size guard. The file is
// opened once and validated through its descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file %s exceeds %d bytes",
			ErrInvalidConfig, path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// transformEnvKey maps an environment variable name (with envPrefix stripped
// by the provider) to a koanf key path.
func transformEnvKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	for _, sec := range envSections {
		if strings.HasPrefix(s, sec.prefix) {
			rest := strings.ToLower(strings.TrimPrefix(s, sec.prefix))
			return sec.section + rest
		}
	}
	return strings.ToLower(s)
}
