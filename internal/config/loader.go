package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/identity"
	"github.com/project-kessel/leakguard/internal/trust"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LEAKGUARD_"

// EnvConfigFile names the config file when --config is not given
const EnvConfigFile = EnvPrefix + "CONFIG"

// Loader is a lightweight wrapper around koanf for loading configuration
// from files and environment variables
type Loader struct {
	k          *koanf.Koanf
	configPath string
}

// NewLoader creates a loader that reads configPath (may be empty) and
// overlays LEAKGUARD_ environment variables.
//
// The file format (YAML, JSON, or TOML) is auto-detected from the extension.
// Environment variables like LEAKGUARD_SERVER__GRPC_PORT map to server.grpc_port.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LEAKGUARD_*)
//  2. Configuration file (if provided)
//  3. Built-in defaults
func NewLoader(configPath string) (*Loader, error) {
	return newLoader(configPath, nil)
}

// NewLoaderWithFlags additionally overlays explicitly set command-line flags,
// which take precedence over everything else.
func NewLoaderWithFlags(configPath string, flags *pflag.FlagSet) (*Loader, error) {
	return newLoader(configPath, flags)
}

// getDefaults returns the default configuration values
func getDefaults() map[string]any {
	return map[string]any{
		"server.grpc_port":               9090,
		"server.http_port":               8080,
		"site.rest_prefix":               "/wp-json",
		"rest.embed_flag":                guard.DefaultEmbedFlag,
		"identity.session_cookie":        trust.DefaultSessionCookie,
		"identity.privileged_expression": identity.DefaultPrivilegedExpression,
		"observability.type":             "logging",
		"observability.log_level":        "info",
		"observability.log_format":       "json",
	}
}

func newLoader(configPath string, flags *pflag.FlagSet) (*Loader, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(getDefaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		parser, err := getParserForFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(configPath), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Double underscore nests: LEAKGUARD_SITE__URL -> site.url,
	// single underscore stays in the key: LEAKGUARD_TEXTS__FEEDS_TEXT -> texts.feeds_text
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		flagMapping := GetFlagMapping()

		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			configKey, ok := flagMapping[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return configKey, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load command-line flags: %w", err)
		}
	}

	return &Loader{
		k:          k,
		configPath: configPath,
	}, nil
}

// Get unmarshals and validates the configuration
func (l *Loader) Get() (*Config, error) {
	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigPath returns the file the configuration was read from, if any
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// getParserForFile returns the appropriate koanf parser based on file extension
func getParserForFile(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// envTransform maps LEAKGUARD_SERVER__GRPC_PORT to server.grpc_port.
// LEAKGUARD_CONFIG names the file and is not a key.
func envTransform(s string) string {
	if s == EnvConfigFile {
		return ""
	}
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}
