package handlers

import (
	"context"
	"net/http"

	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/services"
	"github.com/username/taxdeclaration/backend/src/utils"
)

// CredentialVerifier checks operator credentials.
type CredentialVerifier interface {
	Verify(user, password string) error
}

// LedgerCacheControl is the operator-facing side of the ledger cache.
type LedgerCacheControl interface {
	Invalidate()
	Load(ctx context.Context) (*models.LedgerSnapshot, error)
	Stats() services.CacheStats
}

type AdminHandler struct {
	auth         CredentialVerifier
	ledger       LedgerCacheControl
	declarations services.DeclarationService
}

func NewAdminHandler(auth CredentialVerifier, ledger LedgerCacheControl, declarations services.DeclarationService) *AdminHandler {
	return &AdminHandler{auth: auth, ledger: ledger, declarations: declarations}
}

// BasicAuth guards operator routes.
func (h *AdminHandler) BasicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || h.auth.Verify(user, password) != nil {
			logger.Get().Warn("Admin authentication failed", "path", r.URL.Path, "remoteAddr", utils.ClientIP(r))
			w.Header().Set("WWW-Authenticate", `Basic realm="admin", charset="UTF-8"`)
			utils.SendJSONError(w, "Credenciais inválidas", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// HandleInvalidateCache drops the ledger snapshot and every memoized
// declaration. With ?reload=true the ledger is rebuilt before answering.
func (h *AdminHandler) HandleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.ledger.Invalidate()
	h.declarations.InvalidateResults()

	if r.URL.Query().Get("reload") == "true" {
		if _, err := h.ledger.Load(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	logger.Get().Info("Caches invalidated by operator", "remoteAddr", utils.ClientIP(r))
	utils.SendJSON(w, map[string]interface{}{
		"success": true,
		"cache":   h.ledger.Stats(),
	}, http.StatusOK)
}
