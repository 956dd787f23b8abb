// Package request provides the normalized request description consumed by the
// leak guard.
//
// Integration layers (Envoy ext_authz, the HTTP filter API, net/http
// middleware) build a Descriptor from whatever request shape they receive so
// that route matching never depends on a particular host framework.
package request

import (
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
)

// RESTRouteParam is the query parameter hosts accept as an alternative to
// pretty REST URLs (e.g. /?rest_route=/wp/v2/users).
const RESTRouteParam = "rest_route"

// FlagSet is the set of query parameter names present on a request.
// Values are irrelevant: ?_embed and ?_embed=1 both set the "_embed" flag.
type FlagSet map[string]struct{}

// NewFlagSet creates a FlagSet containing the given names
func NewFlagSet(names ...string) FlagSet {
	fs := make(FlagSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

// Has reports whether the flag is present
func (fs FlagSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// Add records a raw query parameter name under the key the host reads it
// as, e.g. _embed[] as _embed.
func (fs FlagSet) Add(raw string) {
	if name, _ := paramName(raw); name != "" {
		fs[name] = struct{}{}
	}
}

// Names returns the flag names in sorted order
func (fs FlagSet) Names() []string {
	names := make([]string, 0, len(fs))
	for n := range fs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Descriptor is the normalized shape of an incoming request.
// It is read-only once built.
type Descriptor struct {
	// Method is the HTTP method
	Method string `json:"method,omitempty"`

	// Host is the HTTP host header
	Host string `json:"host,omitempty"`

	// Route is the REST route being addressed, with any REST prefix
	// (e.g. /wp-json) removed and the path cleaned
	Route string `json:"route"`

	// Query holds the query flags present on the request
	Query FlagSet `json:"-"`

	// RawPath is the request target exactly as received
	RawPath string `json:"raw_path,omitempty"`
}

// New creates a Descriptor for a route with the given query flags
func New(route string, flags ...string) *Descriptor {
	return &Descriptor{
		Route: cleanRoute(route),
		Query: NewFlagSet(flags...),
	}
}

// FromHTTP builds a Descriptor from a net/http request
func FromHTTP(r *http.Request, restPrefix string) *Descriptor {
	return FromTarget(r.Method, r.Host, r.URL.RequestURI(), restPrefix)
}

// FromTarget builds a Descriptor from a raw request target (path plus query
// string) such as the one Envoy reports in its HTTP attributes.
//
// The query is read the way PHP hosts read it: parameter names drop a
// trailing [...] (so _embed[]=author sets _embed), dots and spaces in names
// become underscores, and the last rest_route value wins. The route comes
// from rest_route when it is non-empty, otherwise from the decoded path with
// the REST prefix removed. Percent-encoding is resolved before matching, so
// /wp-json/wp/v2/%75sers yields the route /wp/v2/users.
func FromTarget(method, host, target, restPrefix string) *Descriptor {
	d := &Descriptor{
		Method:  method,
		Host:    host,
		RawPath: target,
		Query:   FlagSet{},
	}

	p, rawQuery, _ := strings.Cut(target, "?")
	if u, err := url.ParseRequestURI(target); err == nil {
		p, rawQuery = u.Path, u.RawQuery
	}

	if rr := addFlags(d.Query, rawQuery); rr != "" {
		d.Route = cleanRoute(rr)
		return d
	}

	d.Route = TrimRESTPrefix(p, restPrefix)
	return d
}

// ToMap converts the descriptor into the map form used by CEL expressions
func (d *Descriptor) ToMap() map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return map[string]any{
		"method":   d.Method,
		"host":     d.Host,
		"route":    d.Route,
		"raw_path": d.RawPath,
		"query":    d.Query.Names(),
	}
}

// TrimRESTPrefix cleans route and removes restPrefix from it. The prefix is
// found at any segment boundary, so front-controller forms such as
// /index.php/wp-json/wp/v2/users yield /wp/v2/users too.
func TrimRESTPrefix(route, restPrefix string) string {
	route = cleanRoute(route)
	prefix := strings.ToLower(cleanRoute(restPrefix))
	if restPrefix == "" || prefix == "/" {
		return route
	}

	lower := strings.ToLower(route)
	for i := 0; i < len(lower); {
		j := strings.Index(lower[i:], prefix)
		if j < 0 {
			break
		}
		end := i + j + len(prefix)
		if end == len(lower) {
			return "/"
		}
		if lower[end] == '/' {
			return route[end:]
		}
		i += j + 1
	}
	return route
}

func cleanRoute(r string) string {
	if r == "" {
		return "/"
	}
	if !strings.HasPrefix(r, "/") {
		r = "/" + r
	}
	return path.Clean(r)
}

// addFlags records every query parameter name in fs and returns the last
// scalar rest_route value.
func addFlags(fs FlagSet, rawQuery string) string {
	var restRoute string
	for part := range strings.SplitSeq(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(part, "=")
		name, array := paramName(unescape(rawName))
		if name == "" {
			continue
		}
		fs[name] = struct{}{}
		if name == RESTRouteParam && !array {
			restRoute = unescape(rawValue)
		}
	}
	return restRoute
}

var paramNameReplacer = strings.NewReplacer(".", "_", " ", "_", "[", "_")

// paramName maps a raw parameter name to the key PHP stores it under and
// reports whether it was an array parameter.
func paramName(raw string) (string, bool) {
	raw = strings.TrimLeft(raw, " ")
	if i := strings.IndexByte(raw, '['); i > 0 && strings.IndexByte(raw[i:], ']') > 0 {
		return paramNameReplacer.Replace(raw[:i]), true
	}
	return paramNameReplacer.Replace(raw), false
}

func unescape(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}
