package server

import (
	"context"
	"encoding/json"
	"testing"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/grpc/codes"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/identity"
	"github.com/project-kessel/leakguard/internal/trust"
)

// newTestGuard builds a guard whose identity comes from bearer tokens:
// "member" is authenticated, "admin" is privileged, anything else is invalid.
func newTestGuard(t *testing.T) *guard.Guard {
	t.Helper()

	resolver, err := identity.NewResolver(identity.Config{
		Store: tokenStore{
			"member": {Subject: "2", Claims: map[string]any{"capabilities": []any{"read"}}},
			"admin":  {Subject: "1", Claims: map[string]any{"capabilities": []any{"manage_options"}}},
		},
	})
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	return guard.New(guard.Config{
		Resolver:  resolver,
		AuthorURL: guard.NewAuthorURLEvaluator("https://site.example"),
		Text:      guard.NewPublicTextEvaluator("Site Title", nil),
	})
}

// tokenStore maps bearer tokens and session values to fixed results
type tokenStore map[string]*trust.Result

func (s tokenStore) Validate(_ context.Context, cred trust.Credential) (*trust.Result, error) {
	var key string
	switch c := cred.(type) {
	case *trust.BearerCredential:
		key = c.Token
	case *trust.SessionCredential:
		key = c.Value
	}
	if r, ok := s[key]; ok {
		return r, nil
	}
	return nil, trust.ErrInvalidToken
}

func checkRequest(path string, headers map[string]string) *authv3.CheckRequest {
	return &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Method:  "GET",
					Host:    "site.example",
					Path:    path,
					Headers: headers,
				},
			},
		},
	}
}

func TestAuthzServer_Check(t *testing.T) {
	ctx := context.Background()
	authzServer := NewAuthzServer(AuthzConfig{
		Guard:         newTestGuard(t),
		RESTPrefix:    "/wp-json",
		SessionCookie: "leakguard_session",
	})

	t.Run("anonymous users route is denied", func(t *testing.T) {
		resp, err := authzServer.Check(ctx, checkRequest("/wp-json/wp/v2/users", nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if resp.Status.Code != int32(codes.PermissionDenied) {
			t.Errorf("expected PERMISSION_DENIED, got code %d", resp.Status.Code)
		}

		denied := resp.GetDeniedResponse()
		if denied == nil {
			t.Fatal("expected denied response, got nil")
		}
		if denied.Status.GetCode() != 401 {
			t.Errorf("expected HTTP 401, got %d", denied.Status.GetCode())
		}

		var contentType string
		for _, h := range denied.Headers {
			if h.Header.Key == "content-type" {
				contentType = h.Header.Value
			}
		}
		if contentType != "application/json; charset=utf-8" {
			t.Errorf("unexpected content-type %q", contentType)
		}

		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Data    struct {
				Status int `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(denied.Body), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if body.Code != "rest_forbidden" || body.Message != "authorization required" || body.Data.Status != 401 {
			t.Errorf("unexpected denial body: %s", denied.Body)
		}
	})

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		allowed bool
	}{
		{name: "single user", path: "/wp-json/wp/v2/users/1", allowed: false},
		{name: "rest_route form", path: "/?rest_route=/wp/v2/users", allowed: false},
		{name: "percent-encoded route", path: "/wp-json/wp/v2/%75sers", allowed: false},
		{name: "upper-case route", path: "/WP-JSON/WP/V2/USERS", allowed: false},
		{name: "embedded posts", path: "/wp-json/wp/v2/posts?_embed", allowed: false},
		{name: "embedded posts with value", path: "/wp-json/wp/v2/posts?per_page=5&_embed=1", allowed: false},
		{name: "front controller path", path: "/index.php/wp-json/wp/v2/users", allowed: false},
		{name: "last rest_route wins", path: "/?rest_route=/wp/v2/posts&rest_route=/wp/v2/users", allowed: false},
		{name: "array-style embed", path: "/wp-json/wp/v2/posts?_embed[]=author", allowed: false},
		{name: "encoded array-style embed", path: "/wp-json/wp/v2/posts?_embed%5B%5D=author", allowed: false},
		{name: "dotted rest_route name", path: "/?rest.route=/wp/v2/users", allowed: false},
		{name: "plain posts", path: "/wp-json/wp/v2/posts", allowed: true},
		{name: "last rest_route is posts", path: "/?rest_route=/wp/v2/users&rest_route=/wp/v2/posts", allowed: true},
		{name: "other route", path: "/wp-json/wp/v2/pages?_embed", allowed: true},
		{name: "site root", path: "/", allowed: true},
		{
			name:    "authenticated bearer",
			path:    "/wp-json/wp/v2/users",
			headers: map[string]string{"authorization": "Bearer member"},
			allowed: true,
		},
		{
			name:    "privileged session cookie",
			path:    "/wp-json/wp/v2/users",
			headers: map[string]string{"cookie": "leakguard_session=admin"},
			allowed: true,
		},
		{
			name:    "invalid token fails closed",
			path:    "/wp-json/wp/v2/users",
			headers: map[string]string{"authorization": "Bearer forged"},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := authzServer.Check(ctx, checkRequest(tt.path, tt.headers))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.allowed {
				if resp.Status.Code != int32(codes.OK) {
					t.Fatalf("expected OK, got code %d: %s", resp.Status.Code, resp.Status.Message)
				}
				if resp.GetOkResponse() == nil {
					t.Fatal("expected OK response")
				}
				ns := resp.DynamicMetadata.GetFields()[MetadataNamespace].GetStructValue()
				if got := ns.GetFields()["decision"].GetStringValue(); got != "allow" {
					t.Errorf("expected decision metadata 'allow', got %q", got)
				}
				return
			}

			if resp.Status.Code != int32(codes.PermissionDenied) {
				t.Errorf("expected PERMISSION_DENIED, got code %d", resp.Status.Code)
			}
			if resp.GetDeniedResponse() == nil {
				t.Error("expected denied response")
			}
		})
	}

	t.Run("missing HTTP attributes are allowed", func(t *testing.T) {
		resp, err := authzServer.Check(ctx, &authv3.CheckRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status.Code != int32(codes.OK) {
			t.Errorf("expected OK, got code %d", resp.Status.Code)
		}
	})
}
