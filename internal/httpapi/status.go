package httpapi

import "net/http"

// Check is one component's readiness.
type Check struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

const (
	CheckOK    = "ok"
	CheckWarn  = "warn"
	CheckError = "error"
)

// handleReady reports 503 only when a component is in error; degraded
// components still serve fallback results.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	var checks []Check
	if s.deps.Checks != nil {
		checks = s.deps.Checks()
	}
	status, code := "ready", http.StatusOK
	for _, c := range checks {
		switch c.Status {
		case CheckError:
			status, code = "unavailable", http.StatusServiceUnavailable
		case CheckWarn:
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}
	if checks == nil {
		checks = []Check{}
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}
