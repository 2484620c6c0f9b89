//go:build !integration

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister_IdempotentAndExposed(t *testing.T) {
	MustRegister()
	MustRegister()

	ObserveJob("Merge", "ok", 120*time.Millisecond)
	IncQuotaDecision("pdf", "rejected")
	IncWorkspaceCleanupFailure()

	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("merge", "ok")); got < 1 {
		t.Fatalf("jobs_total{merge,ok} = %v, want >= 1", got)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"jobs_total", "quota_decisions_total", "workspace_cleanup_failures_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition is missing %s", name)
		}
	}
}
