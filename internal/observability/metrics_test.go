package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewMetrics builds its own registry, so concurrent callers never collide
func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Push)
			assert.NotNil(t, m.HTTP)
		}()
	}
	wg.Wait()
}

func TestHandlerExposesPushMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Push.RecordRegistration("registered")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tabla_push_token_registrations_total{result="registered"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
