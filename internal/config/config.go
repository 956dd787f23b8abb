package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration
type Config struct {
	Server        ServerConfig         `koanf:"server"`
	Site          SiteConfig           `koanf:"site"`
	REST          RESTConfig           `koanf:"rest"`
	Texts         TextsConfig          `koanf:"texts"`
	Hooks         []HookConfig         `koanf:"hooks" validate:"dive"`
	Identity      IdentityConfig       `koanf:"identity"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// ServerConfig configures the listeners
type ServerConfig struct {
	GRPCPort int `koanf:"grpc_port" validate:"gte=0,lte=65535"`
	HTTPPort int `koanf:"http_port" validate:"gte=0,lte=65535"`
}

// SiteConfig describes the protected site
type SiteConfig struct {
	// URL is the site root used for rewritten author URLs
	URL string `koanf:"url" validate:"omitempty,url"`

	// Title replaces author names in feeds
	Title string `koanf:"title"`

	// RESTPrefix is the path prefix of the REST API (e.g. /wp-json)
	RESTPrefix string `koanf:"rest_prefix"`
}

// RESTConfig configures the REST surface
type RESTConfig struct {
	EmbedFlag string `koanf:"embed_flag"`

	// Empty pattern lists fall back to the built-in users/posts routes
	UsersPatterns []PatternConfig `koanf:"users_patterns" validate:"dive"`
	PostsPatterns []PatternConfig `koanf:"posts_patterns" validate:"dive"`
}

// PatternConfig is a single route pattern
type PatternConfig struct {
	Type    string `koanf:"type" validate:"required,oneof=prefix contains regex cel"`
	Pattern string `koanf:"pattern" validate:"required"`
}

// TextsConfig holds static text overrides; nil keeps the built-in text
type TextsConfig struct {
	FeedsText      *string `koanf:"feeds_text"`
	CommentsText   *string `koanf:"comments_text"`
	RESTErrorText  *string `koanf:"rest_error_text"`
	LoginErrorText *string `koanf:"login_error_text"`
}

// HookConfig registers a Lua text filter
type HookConfig struct {
	Name     string        `koanf:"name" validate:"required,oneof=feeds_text comments_text rest_error_text login_error_text"`
	Priority int           `koanf:"priority"`
	Lua      string        `koanf:"lua" validate:"required"`
	Timeout  time.Duration `koanf:"timeout" validate:"gte=0"`
}

// IdentityConfig configures how callers are authenticated
type IdentityConfig struct {
	// SessionCookie names the login session cookie
	SessionCookie string `koanf:"session_cookie"`

	// PrivilegedExpression is a CEL expression over `subject`
	PrivilegedExpression string `koanf:"privileged_expression"`

	Validators []ValidatorConfig `koanf:"validators" validate:"dive"`
}

// ValidatorConfig configures a credential validator
type ValidatorConfig struct {
	Type string `koanf:"type" validate:"required,oneof=jwt_validator session_validator stub_validator"`

	// jwt_validator
	Issuer          string        `koanf:"issuer" validate:"required_if=Type jwt_validator"`
	Audience        string        `koanf:"audience"`
	JWKSURL         string        `koanf:"jwks_url" validate:"omitempty,url"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gte=0"`

	// session_validator
	HashKey  string        `koanf:"hash_key" validate:"required_if=Type session_validator"`
	BlockKey string        `koanf:"block_key" validate:"omitempty,oneof_len=16 24 32"`
	MaxAge   time.Duration `koanf:"max_age" validate:"gte=0"`

	// stub_validator
	Subject string         `koanf:"subject"`
	Claims  map[string]any `koanf:"claims"`
}

// ObservabilityConfig configures logging and evaluation observers
type ObservabilityConfig struct {
	// Type is one of logging, noop, composite
	Type      string `koanf:"type" validate:"omitempty,oneof=logging noop composite"`
	LogLevel  string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=json text"`

	// Evaluation tunes the guard_evaluation event
	Evaluation *EventLoggingConfig `koanf:"evaluation"`

	// Observers are the members of a composite observer
	Observers []ObservabilityConfig `koanf:"observers" validate:"dive"`
}

// EventLoggingConfig tunes a single log event
type EventLoggingConfig struct {
	Enabled  *bool  `koanf:"enabled"`
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("oneof_len", oneOfLen); err != nil {
		panic(err)
	}
	return v
}

// oneOfLen accepts strings whose length is one of the space-separated params
func oneOfLen(fl validator.FieldLevel) bool {
	n := fmt.Sprint(fl.Field().Len())
	for allowed := range strings.FieldsSeq(fl.Param()) {
		if n == allowed {
			return true
		}
	}
	return false
}

// Validate checks the configuration, reporting every invalid field by its
// configuration key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", key))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", key, fe.Param()))
		case "oneof_len":
			msgs = append(msgs, fmt.Sprintf("%s must be %s bytes long", key, strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed '%s' validation", key, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
