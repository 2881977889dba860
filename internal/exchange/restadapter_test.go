package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/hedgemesh/internal/execution"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*RESTAdapter, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := NewRESTAdapter(map[string]VenueEndpoint{"alpha": {BaseURL: srv.URL, APIKey: "k"}})
	return a, srv
}

func TestPlaceOrder_ReturnsAckOnSuccess(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		var req placeOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "buy", req.Side)
		json.NewEncoder(w).Encode(placeOrderResponse{OrderID: "o1", Status: "accepted"})
	})

	ack, err := a.PlaceOrder(context.Background(), "alpha", "BTC-PERP", venue.SideBuy, 1.5, execution.OrderSpec{Market: true})
	require.NoError(t, err)
	assert.Equal(t, "o1", ack.OrderID)
	assert.Equal(t, "accepted", ack.Status)
}

func TestPlaceOrder_UnknownVenueErrors(t *testing.T) {
	a := NewRESTAdapter(map[string]VenueEndpoint{})
	_, err := a.PlaceOrder(context.Background(), "missing", "BTC-PERP", venue.SideBuy, 1, execution.OrderSpec{})
	assert.Error(t, err)
}

func TestPlaceOrder_VenueRejectionSurfacesAsError(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(placeOrderResponse{Error: "insufficient margin"})
	})
	_, err := a.PlaceOrder(context.Background(), "alpha", "BTC-PERP", venue.SideSell, 1, execution.OrderSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient margin")
}

func TestPlaceOrder_ServerErrorStatusReturnsError(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})
	_, err := a.PlaceOrder(context.Background(), "alpha", "BTC-PERP", venue.SideBuy, 1, execution.OrderSpec{})
	require.Error(t, err)
	assert.Equal(t, int64(1), a.errorCount)
}

func TestCancelOrder_Success(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/o1/cancel", r.URL.Path)
		json.NewEncoder(w).Encode(placeOrderResponse{Status: "canceled"})
	})
	err := a.CancelOrder(context.Background(), "alpha", "o1")
	assert.NoError(t, err)
}

func TestWatchFills_ReturnsNil(t *testing.T) {
	a := NewRESTAdapter(nil)
	assert.Nil(t, a.WatchFills(context.Background(), "alpha"))
}

func TestPollFill_ReturnsFillStatus(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/o1", r.URL.Path)
		json.NewEncoder(w).Encode(fillStatusResponse{Filled: true, FilledPrice: 101.5, Fee: 0.02})
	})
	status, err := a.PollFill(context.Background(), "alpha", "o1")
	require.NoError(t, err)
	assert.True(t, status.Filled)
	assert.Equal(t, 101.5, status.FilledPrice)
	assert.Equal(t, 0.02, status.Fee)
}
