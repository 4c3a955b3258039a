package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.StoreOperationsTotal.WithLabelValues("roles", "create", "success").Add(0)
		metrics.ResolutionsTotal.WithLabelValues("computed").Add(0)
		metrics.CacheHitsTotal.WithLabelValues("memory").Add(0)
		metrics.GuardDenialsTotal.WithLabelValues("assign_role", "scope_rank").Add(0)
		metrics.DBConnectionsActive.Set(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expectedMetrics := []string{
			"gatehouse_http_requests_total",
			"gatehouse_store_operations_total",
			"gatehouse_resolutions_total",
			"gatehouse_cache_hits_total",
			"gatehouse_guard_denials_total",
			"gatehouse_db_connections_active",
		}

		for _, name := range expectedMetrics {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration, but didn't panic")
			}
		}()

		NewMetrics(registry)
	})
}

func TestMetrics_ResolutionMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ResolutionsTotal.WithLabelValues("cache").Inc()
	metrics.ResolutionsTotal.WithLabelValues("computed").Inc()
	metrics.ResolutionsTotal.WithLabelValues("computed").Inc()

	expected := `
# HELP gatehouse_resolutions_total Total number of effective-permission resolutions
# TYPE gatehouse_resolutions_total counter
gatehouse_resolutions_total{source="cache"} 1
gatehouse_resolutions_total{source="computed"} 2
`
	if err := testutil.CollectAndCompare(metrics.ResolutionsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	metrics.ResolutionDuration.WithLabelValues("computed").Observe(0.002)
	metrics.ResolutionDepth.Observe(3)

	if count := testutil.CollectAndCount(metrics.ResolutionDuration); count != 1 {
		t.Errorf("Expected 1 duration metric family, got %d", count)
	}
}

func TestMetrics_CacheMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
	metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	metrics.CacheInvalidationsTotal.WithLabelValues("memory", "role_changed").Inc()

	expected := `
# HELP gatehouse_cache_hits_total Total number of resolution cache hits
# TYPE gatehouse_cache_hits_total counter
gatehouse_cache_hits_total{cache_type="memory"} 1
`
	if err := testutil.CollectAndCompare(metrics.CacheHitsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	expected = `
# HELP gatehouse_cache_invalidations_total Total number of cache invalidations
# TYPE gatehouse_cache_invalidations_total counter
gatehouse_cache_invalidations_total{cache_type="memory",reason="role_changed"} 1
`
	if err := testutil.CollectAndCompare(metrics.CacheInvalidationsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestMetrics_GuardMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.GuardDenialsTotal.WithLabelValues("assign_role", "scope_rank").Inc()
	metrics.GuardDenialsTotal.WithLabelValues("grant", "hierarchy").Inc()

	if count := testutil.CollectAndCount(metrics.GuardDenialsTotal); count != 2 {
		t.Errorf("Expected 2 metrics, got %d", count)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		rw.WriteHeader(http.StatusCreated)

		if rw.statusCode != http.StatusCreated {
			t.Errorf("Expected status code %d, got %d", http.StatusCreated, rw.statusCode)
		}

		if recorder.Code != http.StatusCreated {
			t.Errorf("Expected recorder status code %d, got %d", http.StatusCreated, recorder.Code)
		}
	})

	t.Run("accumulates bytes across multiple writes", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		rw.Write([]byte("Hello, "))
		rw.Write([]byte("World!"))

		expected := len("Hello, ") + len("World!")
		if rw.bytesWritten != expected {
			t.Errorf("Expected %d bytes written, got %d", expected, rw.bytesWritten)
		}
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records HTTP metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		wrappedHandler.ServeHTTP(rec, req)

		expected := `
# HELP gatehouse_http_requests_total Total number of HTTP requests
# TYPE gatehouse_http_requests_total counter
gatehouse_http_requests_total{method="GET",path="/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}

		if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
			t.Errorf("Expected 1 duration metric, got %d", count)
		}
	})

	t.Run("uses route template as path label", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		router := mux.NewRouter()
		router.Use(HTTPMetricsMiddleware(metrics))
		router.HandleFunc("/roles/{roleId}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/roles/abc-123", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		expected := `
# HELP gatehouse_http_requests_total Total number of HTTP requests
# TYPE gatehouse_http_requests_total counter
gatehouse_http_requests_total{method="GET",path="/roles/{roleId}",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
	})

	t.Run("records different status codes", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		testCases := []struct {
			statusCode int
			path       string
		}{
			{http.StatusOK, "/ok"},
			{http.StatusNotFound, "/notfound"},
			{http.StatusInternalServerError, "/error"},
		}

		middleware := HTTPMetricsMiddleware(metrics)

		for _, tc := range testCases {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			})

			wrappedHandler := middleware(handler)
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(rec, req)
		}

		if count := testutil.CollectAndCount(metrics.HTTPRequestsTotal); count != 3 {
			t.Errorf("Expected 3 metrics, got %d", count)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ResolutionsTotal.WithLabelValues("computed").Inc()

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "gatehouse_resolutions_total") {
		t.Error("Expected gatehouse_resolutions_total in metrics output")
	}
	if !strings.Contains(body, "# HELP") {
		t.Error("Expected # HELP lines in output")
	}
}
