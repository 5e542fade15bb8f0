package handlers

import "net/http"

// RouteLimits holds the per-client requests-per-minute of each limited route.
// Zero disables limiting for that route.
type RouteLimits struct {
	Search   int
	Generate int
	Async    int
	Download int
	Admin    int
}

// RegisterRoutes mounts the API on mux.
func RegisterRoutes(mux *http.ServeMux, dh *DeclarationHandler, ah *AdminHandler, hh *HealthHandler, limiter *RateLimiter, limits RouteLimits) {
	mux.Handle("POST /api/buscar-cliente", limiter.Limit("search", limits.Search, http.HandlerFunc(dh.HandleSearchClient)))
	mux.Handle("POST /api/gerar-pdf", limiter.Limit("generate", limits.Generate, http.HandlerFunc(dh.HandleGenerateDocument)))
	mux.Handle("POST /api/buscar-e-gerar-pdf", limiter.Limit("async", limits.Async, http.HandlerFunc(dh.HandleSubmitAsync)))
	mux.HandleFunc("GET /api/task-status/{id}", dh.HandleTaskStatus)
	mux.Handle("GET /api/download-pdf/{filename}", limiter.Limit("download", limits.Download, http.HandlerFunc(dh.HandleDownload)))
	// Limited ahead of BasicAuth so failed guesses never reach bcrypt.
	mux.Handle("POST /api/admin/cache/invalidate", limiter.Limit("admin", limits.Admin, ah.BasicAuth(ah.HandleInvalidateCache)))
	mux.HandleFunc("GET /api/health", hh.HandleHealth)
}
