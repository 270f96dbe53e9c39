package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/enlisted/internal/services"
	"github.com/jwebster45206/enlisted/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name            string
		storageErr      error
		cache           func() services.Cache
		expectedStatus  int
		expectedHealth  string
		expectedStorage string
		expectedCache   string
	}{
		{
			name:            "all healthy",
			cache:           func() services.Cache { return services.NewMockCache() },
			expectedStatus:  http.StatusOK,
			expectedHealth:  "healthy",
			expectedStorage: "healthy",
			expectedCache:   "healthy",
		},
		{
			name:            "no cache configured",
			cache:           func() services.Cache { return nil },
			expectedStatus:  http.StatusOK,
			expectedHealth:  "healthy",
			expectedStorage: "healthy",
		},
		{
			name:            "unhealthy storage",
			storageErr:      errors.New("connection refused"),
			cache:           func() services.Cache { return services.NewMockCache() },
			expectedStatus:  http.StatusServiceUnavailable,
			expectedHealth:  "degraded",
			expectedStorage: "unhealthy",
			expectedCache:   "healthy",
		},
		{
			name: "unhealthy cache",
			cache: func() services.Cache {
				c := services.NewMockCache()
				c.SetPingError(errors.New("connection failed"))
				return c
			},
			expectedStatus:  http.StatusServiceUnavailable,
			expectedHealth:  "degraded",
			expectedStorage: "healthy",
			expectedCache:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.NewMockStorage()
			st.SetPingError(tt.storageErr)
			handler := NewHealthHandler(st, tt.cache(), testLogger())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)

			var response HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
			assert.Equal(t, tt.expectedHealth, response.Status)
			assert.Equal(t, "enlisted", response.Service)
			assert.Equal(t, tt.expectedStorage, response.Components["storage"])
			assert.Equal(t, tt.expectedCache, response.Components["cache"])
			assert.False(t, response.Timestamp.IsZero())
		})
	}
}
