package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "test")

	req := httptest.NewRequest("GET", "/health/live", nil)
	rr := httptest.NewRecorder()

	checker.Liveness(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Liveness check returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != StatusHealthy {
		t.Errorf("Expected status %s, got %v", StatusHealthy, response["status"])
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("no dependencies is healthy", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil, "test")

		req := httptest.NewRequest("GET", "/health/ready", nil)
		rr := httptest.NewRecorder()

		checker.Readiness(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("Readiness check returned wrong status code: got %v want %v", status, http.StatusOK)
		}
	})

	t.Run("failed database is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection failed"))

		checker := NewHealthChecker(db, nil, "test")

		req := httptest.NewRequest("GET", "/health/ready", nil)
		rr := httptest.NewRecorder()

		checker.Readiness(rr, req)

		if status := rr.Code; status != http.StatusServiceUnavailable {
			t.Errorf("Expected status %v for unhealthy, got %v", http.StatusServiceUnavailable, status)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if response.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, response.Status)
		}
	})

	t.Run("failed redis with healthy database is degraded", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(10)
		mock.ExpectPing().WillReturnError(nil)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		redisClient := redis.NewClient(&redis.Options{
			Addr: "localhost:1",
		})
		defer redisClient.Close()

		checker := NewHealthChecker(db, redisClient, "test")

		req := httptest.NewRequest("GET", "/health/ready", nil)
		rr := httptest.NewRecorder()

		checker.Readiness(rr, req)

		// degraded still serves traffic
		if status := rr.Code; status != http.StatusOK {
			t.Errorf("Expected status %v for degraded, got %v", http.StatusOK, status)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if response.Status != StatusDegraded {
			t.Errorf("Expected status %s, got %s", StatusDegraded, response.Status)
		}
	})
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("reports version", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil, "1.2.3")

		status := checker.Check(context.Background())

		if status.Status != StatusHealthy {
			t.Errorf("Expected status %s, got %s", StatusHealthy, status.Status)
		}
		if status.Version != "1.2.3" {
			t.Errorf("Expected version 1.2.3, got %s", status.Version)
		}
	})

	t.Run("healthy database and redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(10)
		mock.ExpectPing().WillReturnError(nil)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer redisClient.Close()

		checker := NewHealthChecker(db, redisClient, "test")

		status := checker.Check(context.Background())

		if len(status.Dependencies) != 2 {
			t.Errorf("Expected 2 dependencies, got %d", len(status.Dependencies))
		}
		if dbStatus := status.Dependencies["database"]; dbStatus.Status == StatusUnhealthy {
			t.Errorf("Database should not be unhealthy, got: %s", dbStatus.Message)
		}
		if redisStatus := status.Dependencies["redis"]; redisStatus.Status != StatusHealthy {
			t.Errorf("Expected redis status %s, got %s", StatusHealthy, redisStatus.Status)
		}
	})
}

func TestHealthChecker_checkDatabase(t *testing.T) {
	t.Run("ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		checker := NewHealthChecker(db, nil, "test")
		status := checker.checkDatabase(context.Background())

		if status.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, status.Status)
		}
		if status.Message != "connection refused" {
			t.Errorf("Expected 'connection refused', got %s", status.Message)
		}
	})

	t.Run("query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		mock.ExpectPing().WillReturnError(nil)
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("query timeout"))

		checker := NewHealthChecker(db, nil, "test")
		status := checker.checkDatabase(context.Background())

		if status.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, status.Status)
		}
		if !strings.Contains(status.Message, "query failed") {
			t.Errorf("Expected message to contain 'query failed', got %s", status.Message)
		}
	})
}

func TestHealthChecker_checkRedis(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer redisClient.Close()

		checker := NewHealthChecker(nil, redisClient, "test")
		status := checker.checkRedis(context.Background())

		if status.Status != StatusHealthy {
			t.Errorf("Expected status %s, got %s", StatusHealthy, status.Status)
		}
		if status.Latency == 0 {
			t.Error("Expected non-zero latency")
		}
	})

	t.Run("ping fails", func(t *testing.T) {
		redisClient := redis.NewClient(&redis.Options{Addr: "localhost:1"})
		defer redisClient.Close()

		checker := NewHealthChecker(nil, redisClient, "test")
		status := checker.checkRedis(context.Background())

		if status.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, status.Status)
		}
		if status.Message == "" {
			t.Error("Expected error message")
		}
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	router := mux.NewRouter()
	checker := NewHealthChecker(nil, nil, "test")

	RegisterHealthRoutes(router, checker)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("%s returned wrong status code: got %v want %v", path, status, http.StatusOK)
		}
	}
}
