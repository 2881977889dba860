package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnRawQuote_AcceptsValidQuote(t *testing.T) {
	p := New(DefaultConfig())
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnRawQuote(RawQuote{
		Venue: "kraken", Symbol: "BTC-USD",
		Bid: 50000, Ask: 50001, BidSize: 1, AskSize: 1,
		EventTS: now,
	})

	q, ok := p.BestQuote("kraken", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, QualityGood, q.Quality)
	assert.InDelta(t, 50000.5, q.Mid, 1e-9)
}

func TestOnRawQuote_RejectsCrossedBook(t *testing.T) {
	p := New(DefaultConfig())
	now := time.Now()
	p.OnRawQuote(RawQuote{Venue: "okx", Symbol: "ETH-USD", Bid: 100, Ask: 99, EventTS: now})

	_, ok := p.BestQuote("okx", "ETH-USD")
	assert.False(t, ok)
	assert.EqualValues(t, 1, p.RejectedCount("okx"))
}

func TestOnRawQuote_RejectsStale(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	now := time.Now()
	p.now = func() time.Time { return now }

	stale := now.Add(-3 * time.Second)
	p.OnRawQuote(RawQuote{Venue: "kraken", Symbol: "BTC-USD", Bid: 1, Ask: 2, EventTS: stale})

	_, ok := p.BestQuote("kraken", "BTC-USD")
	assert.False(t, ok)
}

func TestOnRawQuote_RejectsLargeDeviation(t *testing.T) {
	p := New(DefaultConfig())
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnRawQuote(RawQuote{Venue: "kraken", Symbol: "BTC-USD", Bid: 50000, Ask: 50001, EventTS: now})
	p.OnRawQuote(RawQuote{Venue: "kraken", Symbol: "BTC-USD", Bid: 51000, Ask: 51500, EventTS: now.Add(time.Millisecond)})

	q, _ := p.BestQuote("kraken", "BTC-USD")
	assert.InDelta(t, 50000.5, q.Mid, 1e-9, "deviating update should be rejected, keeping the prior quote")
}

func TestOnRawQuote_MonotonicEventTS(t *testing.T) {
	p := New(DefaultConfig())
	now := time.Now()
	p.now = func() time.Time { return now }

	later := now
	earlier := now.Add(-time.Second)

	p.OnRawQuote(RawQuote{Venue: "kraken", Symbol: "BTC-USD", Bid: 100, Ask: 101, EventTS: later})
	p.OnRawQuote(RawQuote{Venue: "kraken", Symbol: "BTC-USD", Bid: 200, Ask: 201, EventTS: earlier})

	q, ok := p.BestQuote("kraken", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 100.0, q.Bid, "an older event_ts must never replace a newer one")
}

func TestBestBidAsk_AcrossVenues(t *testing.T) {
	p := New(DefaultConfig())
	now := time.Now()
	p.now = func() time.Time { return now }

	p.OnRawQuote(RawQuote{Venue: "A", Symbol: "BTC-USD", Bid: 50000, Ask: 50001, EventTS: now})
	p.OnRawQuote(RawQuote{Venue: "B", Symbol: "BTC-USD", Bid: 50060, Ask: 50061, EventTS: now})

	bidVenue, bid, askVenue, ask, ok := p.BestBidAsk("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, "B", bidVenue)
	assert.Equal(t, 50060.0, bid)
	assert.Equal(t, "A", askVenue)
	assert.Equal(t, 50001.0, ask)
}
