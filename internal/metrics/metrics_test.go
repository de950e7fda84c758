package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCollectorServesMetrics(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDelivery("dfrn", "ok")
	c.RecordDelivery("dfrn", "failed")
	c.RecordClaimLost()
	c.RecordResolve("dfrn", true)
	c.RecordReconciled(3)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(err)
	require.Contains(string(body), `fedinode_deliveries_total{protocol="dfrn",result="ok"} 1`)
	require.Contains(string(body), `fedinode_delivery_claims_lost_total 1`)
	require.Contains(string(body), `fedinode_resolves_total{cached="hit",protocol="dfrn"} 1`)
	require.Contains(string(body), `fedinode_reconciled_items_total 3`)
}

func TestDiscard(t *testing.T) {
	// must not panic
	Discard.RecordDelivery("mail", "ok")
	Discard.RecordClaimLost()
	Discard.RecordResolve("feed", false)
	Discard.RecordReconciled(1)
}
