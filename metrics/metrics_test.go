package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	SetDangerLevel("TESTIDX", 3, -1.6)
	assert.Equal(t, 3.0, testutil.ToFloat64(dangerLevel.WithLabelValues("TESTIDX")))
	assert.Equal(t, -1.6, testutil.ToFloat64(sessionChangePct.WithLabelValues("TESTIDX")))

	before := testutil.ToFloat64(riskActionsTotal.WithLabelValues("HARD_EXIT", "failure"))
	RecordRiskAction("HARD_EXIT", false)
	assert.Equal(t, before+1, testutil.ToFloat64(riskActionsTotal.WithLabelValues("HARD_EXIT", "failure")))

	SetPortfolio(-10500, 2, true)
	assert.Equal(t, -10500.0, testutil.ToFloat64(dailyPnL))
	assert.Equal(t, 2.0, testutil.ToFloat64(openPositions))
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreaker))
	SetPortfolio(0, 0, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreaker))

	RecordSkippedCheck("testcheck")
	assert.Equal(t, 1.0, testutil.ToFloat64(checksSkippedTotal.WithLabelValues("testcheck")))

	ObserveCheck("testcheck", time.Now().Add(-time.Second))
	assert.Equal(t, 1, testutil.CollectAndCount(checkDuration))
}

func TestHandlerServesCollectors(t *testing.T) {
	RecordCollaboratorError("pricing")
	RecordDangerAlert("TESTIDX", "CRITICAL", "CRITICAL_FIRST")

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `risk_sentinel_collaborator_errors_total{collaborator="pricing"}`)
	assert.Contains(t, string(body), `risk_sentinel_danger_alerts_total{level="CRITICAL",reason="CRITICAL_FIRST",symbol="TESTIDX"}`)
}
