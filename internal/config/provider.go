package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/hooks"
	"github.com/project-kessel/leakguard/internal/identity"
	"github.com/project-kessel/leakguard/internal/server"
	"github.com/project-kessel/leakguard/internal/trust"
)

// Provider constructs all application components from configuration.
// Components are built lazily and cached.
type Provider struct {
	config *Config

	logger     *slog.Logger
	observer   guard.Observer
	hooks      *hooks.Registry
	trustStore trust.Store
	closers    []io.Closer
	resolver   guard.Resolver
	guard      *guard.Guard
}

// NewProvider creates a new provider from configuration
func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config,
	}
}

// SetLogger sets the logger shared by every component.
// Must be called before any component is built.
func (p *Provider) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

// SetObserver overrides the configured observer
func (p *Provider) SetObserver(observer guard.Observer) {
	p.observer = observer
}

// SetResolver overrides the configured identity resolver
func (p *Provider) SetResolver(resolver guard.Resolver) {
	p.resolver = resolver
}

// Logger returns the configured logger
func (p *Provider) Logger() *slog.Logger {
	if p.logger == nil {
		p.logger = NewLogger(p.config.Observability)
	}
	return p.logger
}

// Observer returns the configured evaluation observer
func (p *Provider) Observer() (guard.Observer, error) {
	if p.observer != nil {
		return p.observer, nil
	}

	observer, err := NewObserver(p.config.Observability, p.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	p.observer = observer
	return observer, nil
}

// Hooks returns the frozen hook registry: Lua filters at their configured
// priority, then static text overrides, which always run last.
func (p *Provider) Hooks() (*hooks.Registry, error) {
	if p.hooks != nil {
		return p.hooks, nil
	}

	registry := hooks.NewRegistry(p.Logger())

	for i, h := range p.config.Hooks {
		filter, err := hooks.NewLuaFilter(hooks.LuaFilterConfig{
			Hook:    h.Name,
			Script:  h.Lua,
			Timeout: h.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("hook %d (%s): %w", i, h.Name, err)
		}
		priority := h.Priority
		if priority == 0 {
			priority = hooks.DefaultPriority
		}
		if err := registry.Add(h.Name, priority, filter); err != nil {
			return nil, fmt.Errorf("hook %d (%s): %w", i, h.Name, err)
		}
	}

	overrides := []struct {
		name string
		text *string
	}{
		{guard.HookFeedsText, p.config.Texts.FeedsText},
		{guard.HookCommentsText, p.config.Texts.CommentsText},
		{guard.HookRESTErrorText, p.config.Texts.RESTErrorText},
		{guard.HookLoginErrorText, p.config.Texts.LoginErrorText},
	}
	for _, o := range overrides {
		if o.text == nil {
			continue
		}
		if err := registry.Add(o.name, hooks.OverridePriority, hooks.Replace(*o.text)); err != nil {
			return nil, fmt.Errorf("text override %s: %w", o.name, err)
		}
	}

	registry.Freeze()
	p.hooks = registry
	return registry, nil
}

// TrustStore returns the store of configured credential validators
func (p *Provider) TrustStore() (trust.Store, error) {
	if p.trustStore != nil {
		return p.trustStore, nil
	}

	store, closers, err := NewTrustStore(p.config.Identity.Validators, p.config.Identity.SessionCookie)
	if err != nil {
		return nil, fmt.Errorf("failed to create trust store: %w", err)
	}

	p.trustStore = store
	p.closers = append(p.closers, closers...)
	return store, nil
}

// Resolver returns the identity resolver
func (p *Provider) Resolver() (guard.Resolver, error) {
	if p.resolver != nil {
		return p.resolver, nil
	}

	store, err := p.TrustStore()
	if err != nil {
		return nil, err
	}

	resolver, err := identity.NewResolver(identity.Config{
		Store:                store,
		PrivilegedExpression: p.config.Identity.PrivilegedExpression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity resolver: %w", err)
	}

	p.resolver = resolver
	return resolver, nil
}

// Guard returns the configured leak guard
func (p *Provider) Guard() (*guard.Guard, error) {
	if p.guard != nil {
		return p.guard, nil
	}

	registry, err := p.Hooks()
	if err != nil {
		return nil, err
	}
	resolver, err := p.Resolver()
	if err != nil {
		return nil, err
	}
	observer, err := p.Observer()
	if err != nil {
		return nil, err
	}

	users, err := compilePatterns(p.config.REST.UsersPatterns)
	if err != nil {
		return nil, fmt.Errorf("rest.users_patterns: %w", err)
	}
	posts, err := compilePatterns(p.config.REST.PostsPatterns)
	if err != nil {
		return nil, fmt.Errorf("rest.posts_patterns: %w", err)
	}

	p.guard = guard.New(guard.Config{
		Resolver: resolver,
		REST: guard.NewRESTEvaluator(guard.RESTConfig{
			UsersPatterns: users,
			PostsPatterns: posts,
			EmbedFlag:     p.config.REST.EmbedFlag,
			Hooks:         registry,
		}),
		AuthorURL: guard.NewAuthorURLEvaluator(p.config.Site.URL),
		Text:      guard.NewPublicTextEvaluator(p.config.Site.Title, registry),
		Login:     guard.NewLoginErrorEvaluator(registry),
		Observer:  observer,
	})
	return p.guard, nil
}

// AuthzServer returns the Envoy ext_authz server
func (p *Provider) AuthzServer() (*server.AuthzServer, error) {
	g, err := p.Guard()
	if err != nil {
		return nil, err
	}
	return server.NewAuthzServer(server.AuthzConfig{
		Guard:         g,
		RESTPrefix:    p.config.Site.RESTPrefix,
		SessionCookie: p.config.Identity.SessionCookie,
	}), nil
}

// FilterAPI returns the HTTP filter API
func (p *Provider) FilterAPI() (*server.FilterAPI, error) {
	g, err := p.Guard()
	if err != nil {
		return nil, err
	}
	return server.NewFilterAPI(server.FilterAPIConfig{
		Guard:         g,
		RESTPrefix:    p.config.Site.RESTPrefix,
		SessionCookie: p.config.Identity.SessionCookie,
	}), nil
}

// ServerConfig returns the server configuration with every handler wired
func (p *Provider) ServerConfig() (server.Config, error) {
	authz, err := p.AuthzServer()
	if err != nil {
		return server.Config{}, err
	}
	filters, err := p.FilterAPI()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		GRPCPort:    p.config.Server.GRPCPort,
		HTTPPort:    p.config.Server.HTTPPort,
		AuthzServer: authz,
		FilterAPI:   filters,
		Logger:      p.Logger(),
	}, nil
}

// Close releases background resources such as JWKS refreshers
func (p *Provider) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// compilePatterns returns nil for an empty list so the guard keeps its defaults
func compilePatterns(cfgs []PatternConfig) ([]guard.RoutePattern, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	patterns := make([]guard.RoutePattern, 0, len(cfgs))
	for i, c := range cfgs {
		pattern, err := guard.CompilePattern(guard.PatternType(c.Type), c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}
