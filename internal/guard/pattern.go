package guard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/project-kessel/leakguard/internal/request"
)

// PatternType selects how a RoutePattern matches
type PatternType string

const (
	// PatternPrefix matches routes starting with the pattern (case-insensitive,
	// leading slashes ignored)
	PatternPrefix PatternType = "prefix"

	// PatternContains matches routes containing the pattern anywhere
	// (case-insensitive). This is the loosest form and also matches
	// unrelated routes whose slug happens to contain the text.
	PatternContains PatternType = "contains"

	// PatternRegex matches routes against a regular expression
	PatternRegex PatternType = "regex"

	// PatternCEL evaluates a boolean CEL expression over the request
	PatternCEL PatternType = "cel"
)

// RoutePattern decides whether a request addresses a guarded surface
type RoutePattern interface {
	Match(req *request.Descriptor) bool
	String() string
}

// CompilePattern builds a RoutePattern of the given type
func CompilePattern(typ PatternType, expr string) (RoutePattern, error) {
	if expr == "" {
		return nil, fmt.Errorf("%s pattern cannot be empty", typ)
	}

	switch typ {
	case PatternPrefix:
		return prefixPattern(normalizeRoute(expr)), nil
	case PatternContains:
		return containsPattern(strings.ToLower(expr)), nil
	case PatternRegex:
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", expr, err)
		}
		return &regexPattern{re: re}, nil
	case PatternCEL:
		return newCELPattern(expr)
	default:
		return nil, fmt.Errorf("unknown pattern type: %s (supported: prefix, contains, regex, cel)", typ)
	}
}

// MustCompilePattern is like CompilePattern but panics on error.
// It is intended for built-in defaults.
func MustCompilePattern(typ PatternType, expr string) RoutePattern {
	p, err := CompilePattern(typ, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultUsersPatterns matches the users collection and single-user routes.
// The namespace may appear after any path segment, so routes that still
// carry a host prefix (/index.php/wp-json/wp/v2/users) match as well.
func DefaultUsersPatterns() []RoutePattern {
	return []RoutePattern{MustCompilePattern(PatternRegex, `(?i)(^|/)wp/v2/users(/|$)`)}
}

// DefaultPostsPatterns matches the posts collection and single-post routes
func DefaultPostsPatterns() []RoutePattern {
	return []RoutePattern{MustCompilePattern(PatternRegex, `(?i)(^|/)wp/v2/posts(/|$)`)}
}

// matchAny evaluates patterns in order and stops at the first match
func matchAny(patterns []RoutePattern, req *request.Descriptor) bool {
	for _, p := range patterns {
		if p.Match(req) {
			return true
		}
	}
	return false
}

func normalizeRoute(r string) string {
	return strings.ToLower(strings.TrimLeft(r, "/"))
}

type prefixPattern string

func (p prefixPattern) Match(req *request.Descriptor) bool {
	return strings.HasPrefix(normalizeRoute(req.Route), string(p))
}

func (p prefixPattern) String() string {
	return "prefix:" + string(p)
}

type containsPattern string

func (p containsPattern) Match(req *request.Descriptor) bool {
	return strings.Contains(strings.ToLower(req.Route), string(p))
}

func (p containsPattern) String() string {
	return "contains:" + string(p)
}

type regexPattern struct {
	re *regexp.Regexp
}

func (p *regexPattern) Match(req *request.Descriptor) bool {
	return p.re.MatchString(req.Route)
}

func (p *regexPattern) String() string {
	return "regex:" + p.re.String()
}

// celPattern evaluates a CEL expression with a single `request` variable
// holding the descriptor (route, raw_path, method, host, query).
//
// Example expressions:
//   - request.route.startsWith("/wp/v2/users")
//   - request.route.matches("^/wp/v2/(posts|pages)") && "_embed" in request.query
type celPattern struct {
	program cel.Program
	script  string
}

func newCELPattern(script string) (*celPattern, error) {
	env, err := cel.NewEnv(cel.Variable("request", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL pattern: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &celPattern{program: program, script: script}, nil
}

// Match counts evaluation errors and non-boolean results as a match.
func (p *celPattern) Match(req *request.Descriptor) bool {
	result, _, err := p.program.Eval(map[string]any{"request": req.ToMap()})
	if err != nil {
		return true
	}
	if result.Type() == types.BoolType {
		return result.Value().(bool)
	}
	return true
}

func (p *celPattern) String() string {
	return "cel:" + p.script
}
