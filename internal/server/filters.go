package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/identity"
	"github.com/project-kessel/leakguard/internal/request"
)

// FiltersServiceName is the health service name of the HTTP filter API
const FiltersServiceName = "leakguard.v1.Filters"

// maxFilterBody bounds filter API request bodies
const maxFilterBody = 64 << 10

// FilterAPI exposes every guard surface over HTTP for hosts that call out
// per hook. Callers forward the end user's Authorization and Cookie headers.
type FilterAPI struct {
	guard         *guard.Guard
	restPrefix    string
	sessionCookie string
	marshaler     runtime.Marshaler
}

// FilterAPIConfig configures the filter API
type FilterAPIConfig struct {
	Guard         *guard.Guard
	RESTPrefix    string
	SessionCookie string
}

// NewFilterAPI creates the filter API
func NewFilterAPI(cfg FilterAPIConfig) *FilterAPI {
	g := cfg.Guard
	if g == nil {
		g = guard.New(guard.Config{})
	}
	return &FilterAPI{
		guard:         g,
		restPrefix:    cfg.RESTPrefix,
		sessionCookie: cfg.SessionCookie,
		marshaler:     &runtime.JSONBuiltin{},
	}
}

type restCheckRequest struct {
	Method  string   `json:"method"`
	Host    string   `json:"host"`
	Route   string   `json:"route"`
	RawPath string   `json:"raw_path"`
	Query   []string `json:"query"`
}

type restCheckResponse struct {
	Allowed bool `json:"allowed"`
}

type redirectRequest struct {
	RedirectURL  string `json:"redirect_url"`
	RequestedURL string `json:"requested_url"`
}

type redirectResponse struct {
	RedirectURL string `json:"redirect_url"`
	Redirect    bool   `json:"redirect"`
}

type authorURLRequest struct {
	URL    string `json:"url"`
	UserID int64  `json:"user_id"`
}

type authorURLResponse struct {
	URL string `json:"url"`
}

type textPayload struct {
	Text string `json:"text"`
}

// Register mounts the filter routes on mux
func (a *FilterAPI) Register(mux *runtime.ServeMux) error {
	routes := map[string]runtime.HandlerFunc{
		"/v1/rest/check":              a.handleRESTCheck,
		"/v1/filters/author_redirect": a.handleAuthorRedirect,
		"/v1/filters/author_url":      a.handleAuthorURL,
		"/v1/filters/feed_author":     a.textHandler(a.guard.FeedAuthor),
		"/v1/filters/comment_author":  a.textHandler(a.guard.CommentAuthor),
		"/v1/filters/login_error":     a.textHandler(a.guard.LoginError),
	}
	for path, h := range routes {
		if err := mux.HandlePath(http.MethodPost, path, h); err != nil {
			return fmt.Errorf("failed to register %s: %w", path, err)
		}
	}
	return nil
}

func (a *FilterAPI) handleRESTCheck(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in restCheckRequest
	if !a.decode(w, r, &in) {
		return
	}

	var desc *request.Descriptor
	if in.Route == "" && in.RawPath != "" {
		desc = request.FromTarget(in.Method, in.Host, in.RawPath, a.restPrefix)
	} else {
		desc = request.New(request.TrimRESTPrefix(in.Route, a.restPrefix))
		desc.Method = in.Method
		desc.Host = in.Host
		desc.RawPath = in.RawPath
	}
	for _, flag := range in.Query {
		desc.Query.Add(flag)
	}

	decision := a.guard.CheckREST(a.context(r), desc)
	if !decision.Allowed {
		decision.Denied().WriteHTTP(w)
		return
	}
	a.respond(w, http.StatusOK, restCheckResponse{Allowed: true})
}

func (a *FilterAPI) handleAuthorRedirect(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in redirectRequest
	if !a.decode(w, r, &in) {
		return
	}
	target, ok := a.guard.FilterRedirect(a.context(r), in.RedirectURL, in.RequestedURL)
	a.respond(w, http.StatusOK, redirectResponse{RedirectURL: target, Redirect: ok})
}

func (a *FilterAPI) handleAuthorURL(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in authorURLRequest
	if !a.decode(w, r, &in) {
		return
	}
	a.respond(w, http.StatusOK, authorURLResponse{URL: a.guard.AuthorURL(a.context(r), in.URL, in.UserID)})
}

func (a *FilterAPI) textHandler(filter func(context.Context, string) string) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		var in textPayload
		if !a.decode(w, r, &in) {
			return
		}
		a.respond(w, http.StatusOK, textPayload{Text: filter(a.context(r), in.Text)})
	}
}

// context carries the end user's credential, not the caller's
func (a *FilterAPI) context(r *http.Request) context.Context {
	return identity.WithCredential(r.Context(), identity.CredentialFromHeader(r.Header, a.sessionCookie))
}

func (a *FilterAPI) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxFilterBody)
	if err := a.marshaler.NewDecoder(body).Decode(v); err != nil && err != io.EOF {
		a.respond(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (a *FilterAPI) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", a.marshaler.ContentType(v))
	w.WriteHeader(code)
	_ = a.marshaler.NewEncoder(w).Encode(v)
}
