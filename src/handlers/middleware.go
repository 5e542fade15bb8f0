package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/utils"
	"golang.org/x/time/rate"
)

var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline' https://fonts.googleapis.com https://cdnjs.cloudflare.com; font-src 'self' https://fonts.gstatic.com https://cdnjs.cloudflare.com; img-src 'self' data:;",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
}

// SecurityHeaders sets the hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured origins and answers preflight requests.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowedOrigins[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
				w.Header().Set("Access-Control-Expose-Headers", "ETag, Content-Disposition")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				logger.Get().Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request for auditing.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Get().Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remoteAddr", utils.ClientIP(r),
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RateLimiter hands out one token bucket per client and route. Idle buckets
// expire from the cache.
type RateLimiter struct {
	buckets *cache.Cache
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: cache.New(10*time.Minute, 5*time.Minute)}
}

// Limit allows perMinute requests per client on the wrapped route, with a
// burst of the same size. perMinute <= 0 disables limiting.
func (l *RateLimiter) Limit(route string, perMinute int, next http.Handler) http.Handler {
	if perMinute <= 0 {
		return next
	}
	every := rate.Every(time.Minute / time.Duration(perMinute))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := route + "|" + utils.ClientIP(r)
		if !l.bucket(key, every, perMinute).Allow() {
			logger.Get().Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"remoteAddr", utils.ClientIP(r))
			w.Header().Set("Retry-After", "60")
			utils.SendJSONError(w, "Muitas requisições. Tente novamente em instantes.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) bucket(key string, every rate.Limit, burst int) *rate.Limiter {
	if v, found := l.buckets.Get(key); found {
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(every, burst)
	if err := l.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost a race with another request for the same key.
		if v, found := l.buckets.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return lim
}
