package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/hedgemesh/internal/marketdata"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newMockFeedServer serves a handful of quote messages then closes the
// socket, mirroring tests/integration/ws_failover_test.go's mock server.
func newMockFeedServer(t *testing.T, messages []message) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return strings.Replace(srv.URL, "http://", "ws://", 1)
}

func TestFeed_ConnectPushesQuotesIntoPipeline(t *testing.T) {
	now := time.Now().UnixMilli()
	srv := newMockFeedServer(t, []message{
		{Symbol: "BTC-PERP", Bid: 100, Ask: 101, BidSize: 2, AskSize: 2, EventTS: now},
	})

	pipe := marketdata.New(marketdata.DefaultConfig())
	f := New("alpha", wsURL(t, srv), pipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Connect(ctx))
	defer f.Close()

	require.Eventually(t, func() bool {
		_, ok := pipe.BestQuote("alpha", "BTC-PERP")
		return ok
	}, time.Second, 10*time.Millisecond)

	q, ok := pipe.BestQuote("alpha", "BTC-PERP")
	require.True(t, ok)
	assert.Equal(t, 100.0, q.Bid)
	assert.Equal(t, 101.0, q.Ask)
}

func TestFeed_ConnectTwiceErrors(t *testing.T) {
	srv := newMockFeedServer(t, nil)
	pipe := marketdata.New(marketdata.DefaultConfig())
	f := New("alpha", wsURL(t, srv), pipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Connect(ctx))
	defer f.Close()

	err := f.Connect(ctx)
	assert.Error(t, err)
}

func TestFeed_ReconnectSignalOnServerClose(t *testing.T) {
	srv := newMockFeedServer(t, []message{{Symbol: "BTC-PERP", Bid: 1, Ask: 2, EventTS: time.Now().UnixMilli()}})
	pipe := marketdata.New(marketdata.DefaultConfig())
	f := New("alpha", wsURL(t, srv), pipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Connect(ctx))
	defer f.Close()

	select {
	case <-f.Reconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reconnect signal after the server closed the socket")
	}
	assert.False(t, f.IsConnected())
}
