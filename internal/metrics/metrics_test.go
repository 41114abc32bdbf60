package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	router := gin.New()
	router.Use(m.MetricsMiddleware())
	router.GET("/attempts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", m.PrometheusHandler())

	for _, path := range []string{"/attempts/1", "/attempts/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/attempts/:id", "200")); got != 2 {
		t.Errorf("route counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched counter = %v, want 1", got)
	}

	m.AttemptsFinished.WithLabelValues("submitted").Inc()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `assessment_engine_attempts_finished_total{status="submitted"} 1`) {
		t.Error("/metrics does not expose attempts_finished_total")
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.AttemptsStarted.Inc()

	if testutil.ToFloat64(b.AttemptsStarted) != 0 {
		t.Error("registries share state")
	}
	if n := testutil.CollectAndCount(a.OptimisticConflicts); n != 0 {
		t.Errorf("unexpected conflict series: %d", n)
	}
}
