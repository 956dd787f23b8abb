package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/project-kessel/leakguard/internal/identity"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewLoader_WithoutConfigFile(t *testing.T) {
	loader, err := NewLoader("")
	if err != nil {
		t.Fatalf("Expected loader to work without config file, got error: %v", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		t.Fatalf("Expected to get config without config file, got error: %v", err)
	}

	if cfg.Server.GRPCPort != 9090 {
		t.Errorf("Expected default GRPC port 9090, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("Expected default HTTP port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Site.RESTPrefix != "/wp-json" {
		t.Errorf("Expected default REST prefix '/wp-json', got %q", cfg.Site.RESTPrefix)
	}
	if cfg.REST.EmbedFlag != "_embed" {
		t.Errorf("Expected default embed flag '_embed', got %q", cfg.REST.EmbedFlag)
	}
	if cfg.Identity.SessionCookie != "leakguard_session" {
		t.Errorf("Expected default session cookie, got %q", cfg.Identity.SessionCookie)
	}
	if cfg.Identity.PrivilegedExpression != identity.DefaultPrivilegedExpression {
		t.Errorf("Expected default privileged expression, got %q", cfg.Identity.PrivilegedExpression)
	}
	if cfg.Texts.FeedsText != nil || cfg.Texts.LoginErrorText != nil {
		t.Error("Expected text overrides to be unset by default")
	}
	if cfg.Observability == nil || cfg.Observability.Type != "logging" {
		t.Errorf("Expected default logging observability, got %+v", cfg.Observability)
	}
}

func TestNewLoader_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("LEAKGUARD_SERVER__GRPC_PORT", "19090")
	t.Setenv("LEAKGUARD_SITE__TITLE", "Env Site")
	t.Setenv("LEAKGUARD_TEXTS__COMMENTS_TEXT", "Reader")

	loader, err := NewLoader("")
	if err != nil {
		t.Fatalf("Expected loader to work without config file, got error: %v", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		t.Fatalf("Expected to get config, got error: %v", err)
	}

	if cfg.Server.GRPCPort != 19090 {
		t.Errorf("Expected GRPC port 19090 from env, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Site.Title != "Env Site" {
		t.Errorf("Expected site title 'Env Site' from env, got %q", cfg.Site.Title)
	}
	if cfg.Texts.CommentsText == nil || *cfg.Texts.CommentsText != "Reader" {
		t.Errorf("Expected comments text override from env, got %v", cfg.Texts.CommentsText)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("Expected default HTTP port 8080, got %d", cfg.Server.HTTPPort)
	}
}

func TestNewLoader_ConfigFileEnvIsNotAKey(t *testing.T) {
	t.Setenv(EnvConfigFile, "/etc/leakguard.yaml")

	loader, err := NewLoader("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := loader.Get(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.k.Exists("config") {
		t.Error("LEAKGUARD_CONFIG must not become a config key")
	}
}

func TestNewLoader_FileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "leakguard.yaml",
			content: `
site:
  url: https://site.example
  title: My Site
rest:
  users_patterns:
    - type: contains
      pattern: wp/v2/users
texts:
  login_error_text: Nope.
hooks:
  - name: comments_text
    priority: 5
    lua: 'function filter(v) return "Reader" end'
identity:
  validators:
    - type: session_validator
      hash_key: 0123456789abcdef0123456789abcdef
`,
		},
		{
			name: "json",
			file: "leakguard.json",
			content: `{
  "site": {"url": "https://site.example", "title": "My Site"},
  "rest": {"users_patterns": [{"type": "contains", "pattern": "wp/v2/users"}]},
  "texts": {"login_error_text": "Nope."},
  "hooks": [{"name": "comments_text", "priority": 5, "lua": "function filter(v) return \"Reader\" end"}],
  "identity": {"validators": [{"type": "session_validator", "hash_key": "0123456789abcdef0123456789abcdef"}]}
}`,
		},
		{
			name: "toml",
			file: "leakguard.toml",
			content: `
[site]
url = "https://site.example"
title = "My Site"

[[rest.users_patterns]]
type = "contains"
pattern = "wp/v2/users"

[texts]
login_error_text = "Nope."

[[hooks]]
name = "comments_text"
priority = 5
lua = 'function filter(v) return "Reader" end'

[[identity.validators]]
type = "session_validator"
hash_key = "0123456789abcdef0123456789abcdef"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, err := NewLoader(writeConfig(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			cfg, err := loader.Get()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.Site.URL != "https://site.example" || cfg.Site.Title != "My Site" {
				t.Errorf("unexpected site config: %+v", cfg.Site)
			}
			if len(cfg.REST.UsersPatterns) != 1 || cfg.REST.UsersPatterns[0].Type != "contains" {
				t.Errorf("unexpected users patterns: %+v", cfg.REST.UsersPatterns)
			}
			if cfg.Texts.LoginErrorText == nil || *cfg.Texts.LoginErrorText != "Nope." {
				t.Errorf("unexpected login error text: %v", cfg.Texts.LoginErrorText)
			}
			if len(cfg.Hooks) != 1 || cfg.Hooks[0].Priority != 5 {
				t.Errorf("unexpected hooks: %+v", cfg.Hooks)
			}
			if len(cfg.Identity.Validators) != 1 || cfg.Identity.Validators[0].Type != "session_validator" {
				t.Errorf("unexpected validators: %+v", cfg.Identity.Validators)
			}
			if cfg.Server.GRPCPort != 9090 {
				t.Errorf("Expected defaults to survive the file, got port %d", cfg.Server.GRPCPort)
			}
		})
	}
}

func TestNewLoader_UnsupportedFormat(t *testing.T) {
	if _, err := NewLoader(writeConfig(t, "leakguard.ini", "x=1")); err == nil {
		t.Fatal("expected error for .ini file")
	}
}

func TestLoader_GetValidates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown pattern type",
			content: "rest:\n  users_patterns:\n    - type: glob\n      pattern: '*'\n",
			wantErr: "rest.users_patterns[0].type must be one of",
		},
		{
			name:    "jwt validator without issuer",
			content: "identity:\n  validators:\n    - type: jwt_validator\n",
			wantErr: "identity.validators[0].issuer is required",
		},
		{
			name:    "session validator block key length",
			content: "identity:\n  validators:\n    - type: session_validator\n      hash_key: abc\n      block_key: short\n",
			wantErr: "identity.validators[0].block_key must be 16, 24, 32 bytes long",
		},
		{
			name:    "unknown hook",
			content: "hooks:\n  - name: title_text\n    lua: 'function filter(v) return v end'\n",
			wantErr: "hooks[0].name must be one of",
		},
		{
			name:    "bad port",
			content: "server:\n  grpc_port: 70000\n",
			wantErr: "server.grpc_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, err := NewLoader(writeConfig(t, "leakguard.yaml", tt.content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, err = loader.Get()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewLoaderWithFlags(t *testing.T) {
	t.Setenv("LEAKGUARD_SERVER__HTTP_PORT", "18080")
	t.Setenv("LEAKGUARD_SITE__TITLE", "Env Site")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--http-port", "28080"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	loader, err := NewLoaderWithFlags("", fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := loader.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.HTTPPort != 28080 {
		t.Errorf("Expected flag to win over env, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Site.Title != "Env Site" {
		t.Errorf("Expected unset flag to keep env value, got %q", cfg.Site.Title)
	}
	if cfg.Site.RESTPrefix != "/wp-json" {
		t.Errorf("Expected unset flag to keep default, got %q", cfg.Site.RESTPrefix)
	}
}
