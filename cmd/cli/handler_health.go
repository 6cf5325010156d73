package main

import (
	"net/http"
)

// healthHandler returns server health status
func (rm *RouteManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "database": "healthy"}
	code := http.StatusOK
	if rm.Health != nil && !rm.Health.IsConnectionHealthy() {
		resp = map[string]string{"status": "degraded", "database": "unhealthy"}
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
