package gateway

import (
	"net/http"
	"time"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// handleHealth serves GET /health: process liveness plus a ledger ping. A
// failing check answers 503 so load balancers stop routing here, but the
// body still names the failing component.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	status := g.health.CheckReadiness(r.Context())

	resp := healthResponse{
		Status:        "healthy",
		Version:       g.version,
		UptimeSeconds: int64(time.Since(g.started).Seconds()),
		Checks:        make(map[string]string, len(status.Checks)),
	}

	code := http.StatusOK
	for name, result := range status.Checks {
		if result.Status == "ok" {
			resp.Checks[name] = "ok"
			continue
		}
		resp.Checks[name] = result.Message
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}
