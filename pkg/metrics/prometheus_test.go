package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"referral_ledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestMetricsCollector_RecordApproval(t *testing.T) {
	m := NewMetricsCollector(nil)

	m.RecordApproval(20*time.Millisecond, 3, decimal.NewFromInt(75))
	m.RecordApproval(10*time.Millisecond, 1, decimal.NewFromInt(20))

	if got := testutil.ToFloat64(m.activationsApproved); got != 2 {
		t.Errorf("expected 2 approvals, got %v", got)
	}
	if got := testutil.ToFloat64(m.commissionPaid); got != 95 {
		t.Errorf("expected 95 paid, got %v", got)
	}
}

func TestMetricsCollector_UpdateStatsAndHandler(t *testing.T) {
	m := NewMetricsCollector(nil)
	m.UpdateStats(domain.Stats{TotalUsers: 4, ActiveUsers: 2, TotalHoldings: decimal.RequireFromString("120.5")})
	m.RecordFailure("approve_activation", "invalid_state")

	w := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{"accounts_total 4", "accounts_holdings 120.5", `operations_failed_total{operation="approve_activation",reason="invalid_state"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
