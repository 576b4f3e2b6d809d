package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"flowswap/internal/chain"
	"flowswap/internal/model"
)

var (
	pair    = common.HexToAddress("0x9999999999999999999999999999999999999999")
	auction = common.HexToAddress("0xaaaa00000000000000000000000000000000a0c7")
)

func TestObserveLogs(t *testing.T) {
	m := NewMetrics()
	m.Observe([]chain.Log{
		{Address: pair, Data: model.SyncEventData{Reserve0: "5000000000000000000", Reserve1: "10"}},
		{Address: pair, Data: model.SwapEventData{}},
		{Address: pair, Data: model.SwapEventData{}},
		{Address: auction, Data: model.PlaceBidEventData{Pool: pair.Hex()}},
		{Address: auction, Data: model.RefundBidEventData{Pool: pair.Hex()}},
		{Address: auction, Data: model.ExecuteWinningBidEventData{Pool: pair.Hex()}},
		{Address: pair, Data: model.RetrieveFundsEventData{}},
		{Address: common.Address{}, Data: model.PairCreatedEventData{}},
		{Address: pair},
	})

	require.Equal(t, 2.0, testutil.ToFloat64(m.SwapsTotal.WithLabelValues(pair.Hex())))
	require.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(model.EventSwap)))
	require.Equal(t, 5e18, testutil.ToFloat64(m.Reserves.WithLabelValues(pair.Hex(), "0")))
	require.Equal(t, 10.0, testutil.ToFloat64(m.Reserves.WithLabelValues(pair.Hex(), "1")))
	for _, outcome := range []string{"placed", "refunded", "settled"} {
		require.Equal(t, 1.0, testutil.ToFloat64(m.BidsTotal.WithLabelValues(pair.Hex(), outcome)), outcome)
	}
	require.Equal(t, 1.0, testutil.ToFloat64(m.RetrievalsTotal.WithLabelValues(pair.Hex())))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PairsTotal))
}

func TestObserveStep(t *testing.T) {
	m := NewMetrics()
	m.ObserveStep("bid", nil)
	m.ObserveStep("bid", errors.New("reverted"))
	require.Equal(t, 2.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("bid")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RevertsTotal.WithLabelValues("bid")))

	var nilMetrics *Metrics
	nilMetrics.ObserveStep("bid", nil)
	nilMetrics.Observe([]chain.Log{{Data: model.SwapEventData{}}})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveStep("mine", nil)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `flowswap_sim_steps_total{kind="mine"} 1`))

	require.Nil(t, NewServer("", m))
	var disabled *Server
	require.NoError(t, disabled.Start())
	require.NoError(t, disabled.Stop(context.Background()))
}
