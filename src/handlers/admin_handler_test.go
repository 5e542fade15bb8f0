package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func adminRequest(path, user, password string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, nil)
	if user != "" || password != "" {
		r.SetBasicAuth(user, password)
	}
	return r
}

func TestAdminRequiresCredentials(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name           string
		user, password string
	}{
		{"no credentials", "", ""},
		{"wrong password", adminUser, "errada"},
		{"wrong user", "root", adminPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(adminRequest("/api/admin/cache/invalidate", tt.user, tt.password))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestAdminInvalidateCache(t *testing.T) {
	app := newTestApp(t)

	// Warm both caches.
	if rec := app.postJSON("/api/buscar-cliente", map[string]string{"cpf": "52998224725"}); rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if !app.ledger.Stats().Loaded {
		t.Fatal("ledger cache should be loaded after a search")
	}

	rec := app.do(adminRequest("/api/admin/cache/invalidate", adminUser, adminPassword))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	cache, _ := decodeBody(t, rec)["cache"].(map[string]interface{})
	if cache["loaded"] != false {
		t.Errorf("cache = %v, want unloaded", cache)
	}

	body := decodeBody(t, app.postJSON("/api/buscar-cliente", map[string]string{"cpf": "52998224725"}))
	if data, _ := body["data"].(map[string]interface{}); data["from_cache"] != false {
		t.Error("memoized declarations should be flushed too")
	}

	rec = app.do(adminRequest("/api/admin/cache/invalidate?reload=true", adminUser, adminPassword))
	cache, _ = decodeBody(t, rec)["cache"].(map[string]interface{})
	if rec.Code != http.StatusOK || cache["loaded"] != true {
		t.Errorf("reload: status %d cache %v", rec.Code, cache)
	}
}

func TestAdminReloadFailure(t *testing.T) {
	app := newTestApp(t)
	app.src.FailModTime(errors.New("file locked"))
	rec := app.do(adminRequest("/api/admin/cache/invalidate?reload=true", adminUser, adminPassword))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAdminRouteIsRateLimited(t *testing.T) {
	app := newLimitedTestApp(t, RouteLimits{Admin: 2})

	for i := 0; i < 2; i++ {
		if rec := app.do(adminRequest("/api/admin/cache/invalidate", adminUser, "errada")); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i, rec.Code)
		}
	}
	// Even the right password is refused once the bucket is empty.
	rec := app.do(adminRequest("/api/admin/cache/invalidate", adminUser, adminPassword))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
