package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func okCheck(context.Context) (bool, error)   { return true, nil }
func downCheck(context.Context) (bool, error) { return false, errors.New("bucket unreachable") }

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, ServiceName, status.Service)
}

func TestReadinessHandler_AllHealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"storage":    okCheck,
		"generation": okCheck,
		"ledger":     nil,
	}
	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "ready", status.Status)
	assert.Len(t, status.Dependencies, 2)
	assert.Equal(t, "healthy", status.Dependencies["storage"].Status)
}

func TestReadinessHandler_Unhealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"storage":    downCheck,
		"generation": okCheck,
	}
	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "not_ready", status.Status)
	assert.Equal(t, "unhealthy", status.Dependencies["storage"].Status)
	assert.Equal(t, "bucket unreachable", status.Dependencies["storage"].Message)
	assert.Equal(t, "healthy", status.Dependencies["generation"].Status)
}

func TestCheckNames(t *testing.T) {
	names := CheckNames(map[string]HealthCheckFunc{
		"storage":    okCheck,
		"bus":        nil,
		"generation": okCheck,
	})
	assert.Equal(t, []string{"generation", "storage"}, names)
}

func TestGRPCHealthServer_Refresh(t *testing.T) {
	s := NewGRPCHealthServer(map[string]HealthCheckFunc{
		"storage":    okCheck,
		"generation": downCheck,
	}, 0)

	assert.False(t, s.Refresh(context.Background()))

	ctx := context.Background()
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "storage"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "generation"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
