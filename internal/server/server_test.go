package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmishra/bookflix/internal/config"
	"github.com/vmishra/bookflix/internal/home"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	cm, err := config.NewManager("")
	if err != nil {
		t.Fatalf("config.NewManager() error = %v", err)
	}
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}

	srv, err := New(Config{
		ConfigManager: cm,
		Home:          h,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestNew_RequiresConfigManager(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() with no config manager: expected error, got nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	srv := testServer(t)

	if srv.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	if srv.Addr() == "" {
		t.Error("Addr() is empty")
	}
}

func TestRequireInit_BeforeStart(t *testing.T) {
	srv := testServer(t)

	handler := srv.requireInit(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler called before initialization")
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/api/v1/books", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected error message in response body")
	}
}

func TestHealthRoute_ServesWithoutInit(t *testing.T) {
	srv := testServer(t)

	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestWithCORS(t *testing.T) {
	srv := testServer(t)
	srv.corsOrigins = []string{"http://localhost:3000"}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := srv.withCORS(inner)

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/books", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/books", nil)
		r.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest("OPTIONS", "/api/v1/books", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}

func TestOriginAllowed(t *testing.T) {
	srv := testServer(t)

	t.Run("empty allowlist accepts all", func(t *testing.T) {
		srv.corsOrigins = nil
		r := httptest.NewRequest("GET", "/ws/processing", nil)
		r.Header.Set("Origin", "http://anywhere.example")
		if !srv.originAllowed(r) {
			t.Error("originAllowed() = false with empty allowlist")
		}
	})

	t.Run("allowlist enforced", func(t *testing.T) {
		srv.corsOrigins = []string{"http://localhost:3000"}
		r := httptest.NewRequest("GET", "/ws/processing", nil)
		r.Header.Set("Origin", "http://other.example")
		if srv.originAllowed(r) {
			t.Error("originAllowed() = true for origin outside allowlist")
		}
	})
}
