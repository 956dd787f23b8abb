package server

import (
	"context"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/identity"
	"github.com/project-kessel/leakguard/internal/request"
)

// MetadataNamespace is the dynamic metadata namespace set on allowed checks
const MetadataNamespace = "leakguard"

// AuthzServer implements Envoy's ext_authz Authorization service.
// It guards the REST surface: anonymous requests that would enumerate
// users are answered with the 401 JSON denial and never reach the site.
type AuthzServer struct {
	authv3.UnimplementedAuthorizationServer

	guard         *guard.Guard
	restPrefix    string
	sessionCookie string
}

// AuthzConfig configures the ext_authz server
type AuthzConfig struct {
	Guard *guard.Guard

	// RESTPrefix is stripped from request paths to obtain the route (e.g. /wp-json)
	RESTPrefix string

	// SessionCookie names the login session cookie; empty disables cookie credentials
	SessionCookie string
}

// NewAuthzServer creates a new ext_authz server
func NewAuthzServer(cfg AuthzConfig) *AuthzServer {
	g := cfg.Guard
	if g == nil {
		g = guard.New(guard.Config{})
	}
	return &AuthzServer{
		guard:         g,
		restPrefix:    cfg.RESTPrefix,
		sessionCookie: cfg.SessionCookie,
	}
}

// Check implements the ext_authz check endpoint
func (s *AuthzServer) Check(ctx context.Context, req *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	httpReq := req.GetAttributes().GetRequest().GetHttp()

	// Envoy reports the full request target (path and query) in Path.
	desc := request.FromTarget(httpReq.GetMethod(), httpReq.GetHost(), httpReq.GetPath(), s.restPrefix)

	ctx = identity.WithCredential(ctx, identity.CredentialFromMap(httpReq.GetHeaders(), s.sessionCookie))

	decision := s.guard.CheckREST(ctx, desc)
	if !decision.Allowed {
		return s.denyResponse(decision.Denied()), nil
	}

	return s.okResponse(desc), nil
}

func (s *AuthzServer) okResponse(desc *request.Descriptor) *authv3.CheckResponse {
	resp := &authv3.CheckResponse{
		Status: &status.Status{
			Code: int32(codes.OK),
		},
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{},
		},
	}

	metadata, err := structpb.NewStruct(map[string]any{
		MetadataNamespace: map[string]any{
			"decision": "allow",
			"route":    desc.Route,
		},
	})
	if err == nil {
		resp.DynamicMetadata = metadata
	}
	return resp
}

// denyResponse answers with the denial as the terminal HTTP response
func (s *AuthzServer) denyResponse(d *guard.Denial) *authv3.CheckResponse {
	return &authv3.CheckResponse{
		Status: &status.Status{
			Code:    int32(codes.PermissionDenied),
			Message: d.Message,
		},
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status: &typev3.HttpStatus{
					Code: typev3.StatusCode(d.Status),
				},
				Headers: []*corev3.HeaderValueOption{
					{
						Header: &corev3.HeaderValue{
							Key:   "content-type",
							Value: "application/json; charset=utf-8",
						},
					},
				},
				Body: string(d.Body()),
			},
		},
	}
}
