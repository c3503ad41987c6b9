package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRedisPool(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterRedisPool(reg, client))

	n, err := testutil.GatherAndCount(reg, "docverify_redis_pool_total_conns")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// registering twice on the same registry is rejected
	assert.Error(t, RegisterRedisPool(reg, client))
}

func TestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(prometheus.NewRegistry()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
