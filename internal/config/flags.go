package config

import (
	"github.com/spf13/pflag"
)

// flagMapping maps command-line flags to configuration keys
var flagMapping = map[string]string{
	"grpc-port":      "server.grpc_port",
	"http-port":      "server.http_port",
	"site-url":       "site.url",
	"site-title":     "site.title",
	"rest-prefix":    "site.rest_prefix",
	"session-cookie": "identity.session_cookie",
	"log-level":      "observability.log_level",
	"log-format":     "observability.log_format",
}

// RegisterFlags adds the configuration flags to fs.
// Defaults shown are informational; only flags set explicitly override config.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("grpc-port", 9090, "gRPC port for ext_authz and health")
	fs.Int("http-port", 8080, "HTTP port for the filter API and health endpoints")
	fs.String("site-url", "", "site root used for rewritten author URLs")
	fs.String("site-title", "", "site title shown instead of author names in feeds")
	fs.String("rest-prefix", "/wp-json", "path prefix of the REST API")
	fs.String("session-cookie", "leakguard_session", "name of the login session cookie")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json, text)")
}

// GetFlagMapping returns the flag-name to config-key mapping
func GetFlagMapping() map[string]string {
	return flagMapping
}
