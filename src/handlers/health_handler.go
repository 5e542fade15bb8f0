package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/services"
	"github.com/username/taxdeclaration/backend/src/utils"
)

const version = "2.0.0"

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthDeps groups everything the health check inspects.
type HealthDeps struct {
	Source   datasource.Source
	DB       Pinger
	Ledger   LedgerCacheControl
	Tasks    services.TaskService
	Failures *services.FailureTracker
}

type HealthHandler struct {
	deps HealthDeps
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type checkResult struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Detail interface{} `json:"detail,omitempty"`
}

// HandleHealth reports "healthy" when the workbook and the database are
// reachable, "degraded" with a 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]checkResult{}
	healthy := true

	if _, err := h.deps.Source.ModTime(); err != nil {
		checks["workbook"] = checkResult{Status: "unhealthy", Error: err.Error()}
		healthy = false
	} else {
		res := checkResult{Status: "healthy"}
		if d, ok := h.deps.Source.(datasource.Describer); ok {
			res.Detail = d.Describe()
		}
		checks["workbook"] = res
	}

	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(ctx); err != nil {
			checks["database"] = checkResult{Status: "unhealthy", Error: err.Error()}
			healthy = false
		} else {
			checks["database"] = checkResult{Status: "healthy"}
		}
	}

	if h.deps.Ledger != nil {
		checks["ledger_cache"] = checkResult{Status: "healthy", Detail: h.deps.Ledger.Stats()}
	}
	if h.deps.Tasks != nil {
		checks["task_queue"] = checkResult{Status: "healthy", Detail: map[string]int{"depth": h.deps.Tasks.QueueDepth()}}
	}
	if n := h.deps.Failures.Consecutive(); n > 0 {
		checks["data_source_failures"] = checkResult{Status: "degraded", Detail: map[string]int{"consecutive": n}}
		healthy = false
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	utils.SendJSON(w, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
		"checks":    checks,
	}, code)
}
