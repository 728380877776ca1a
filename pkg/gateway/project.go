package gateway

import (
	"net/http"
	"strings"
)

// resolveProject attributes a request to a project: an explicit header wins,
// then the project_id query parameter, then the configured default. Project
// identifiers are free-form strings owned by the caller; the gateway never
// creates or validates projects beyond trimming whitespace.
func (g *Gateway) resolveProject(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderProjectID)); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("project_id")); v != "" {
		return v
	}
	return g.cfg.Defaults.ProjectID
}
