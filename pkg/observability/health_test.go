package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	checker.Liveness(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Equal(t, StatusHealthy, response["status"])
	assert.Contains(t, response, "timestamp")
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil).WithVersion("1.2.3")

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var response HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.Equal(t, StatusHealthy, response.Status)
		assert.Equal(t, "1.2.3", response.Version)
	})

	t.Run("failed database is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection failed"))

		checker := NewHealthChecker(db, nil)
		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		var response HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.Equal(t, StatusUnhealthy, response.Status)
		assert.Equal(t, "connection failed", response.Dependencies["database"].Message)
	})

	t.Run("failed redis is degraded", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		redisClient := redis.NewClient(&redis.Options{Addr: "localhost:9999"})
		defer redisClient.Close()

		checker := NewHealthChecker(db, redisClient)
		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var response HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.Equal(t, StatusDegraded, response.Status)
	})
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("healthy database and redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		db.SetMaxOpenConns(10)

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		mr := miniredis.RunT(t)
		redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer redisClient.Close()

		status := NewHealthChecker(db, redisClient).Check(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		assert.Len(t, status.Dependencies, 2)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("relation missing"))

		status := NewHealthChecker(db, nil).Check(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["database"].Message, "query failed")
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, nil))

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}
