package server

import (
	"encoding/json"
	"net/http"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// handleLiveness reports that the process is up
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleReadiness reports SERVING only when every guarded service is
// SERVING; otherwise it names the first one that is not.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	for _, svc := range healthServices {
		resp, err := s.healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{Service: svc})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			writeHealth(w, http.StatusServiceUnavailable, map[string]string{
				"status":  healthpb.HealthCheckResponse_NOT_SERVING.String(),
				"service": svc,
			})
			return
		}
	}
	writeHealth(w, http.StatusOK, map[string]string{"status": healthpb.HealthCheckResponse_SERVING.String()})
}

func writeHealth(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
