// Package marketdata implements C1, the Quote Pipeline: it normalizes
// raw feed updates, filters staleness and noise, scores source
// quality, and exposes best-bid/ask lookups to the rest of the
// control plane. Grounded on the usual per-key striped state
// pattern (internal/microstructure/venue_health.go) and its
// freshness-banding idiom (internal/domain/freshness.go).
package marketdata

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/marketdata/depthcache"
)

type key struct {
	venue  string
	symbol string
}

type shard struct {
	mu    sync.RWMutex
	quotes map[key]Quote
}

// Pipeline is C1. Reads are lock-scoped per shard (read-mostly RWMutex
// rather than a single global lock) so many readers across symbols
// never contend; writes to a given (venue, symbol) key serialize
// through that key's shard.
type Pipeline struct {
	cfg    Config
	shards []*shard

	symbolMu sync.Mutex
	venuesBySymbol map[string]map[string]struct{}

	rejectedMu sync.Mutex
	rejectedByVenue map[string]int64

	now func() time.Time

	// cache is an optional cross-instance view of the latest quote per
	// key, written through on every accepted update and read through on
	// a local shard miss. Nil in a single-process deployment.
	cache    depthcache.Cache
	cacheTTL time.Duration
}

// SetCache attaches a cross-instance quote cache. ttl bounds how long
// a written quote stays visible to other instances if this process
// stops updating it.
func (p *Pipeline) SetCache(c depthcache.Cache, ttl time.Duration) {
	p.cache = c
	p.cacheTTL = ttl
}

// New creates a quote pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 32
	}
	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{quotes: make(map[key]Quote)}
	}
	return &Pipeline{
		cfg:             cfg,
		shards:          shards,
		venuesBySymbol:  make(map[string]map[string]struct{}),
		rejectedByVenue: make(map[string]int64),
		now:             time.Now,
	}
}

func (p *Pipeline) shardFor(k key) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.venue))
	h.Write([]byte{0})
	h.Write([]byte(k.symbol))
	return p.shards[int(h.Sum32())%len(p.shards)]
}

// OnRawQuote is the feed adapter push callback. It never returns an
// error and never panics on bad input — rejected updates are counted
// and dropped silently.
func (p *Pipeline) OnRawQuote(raw RawQuote) {
	processedAt := p.now()
	q, ok := p.normalize(raw, processedAt)
	if !ok {
		p.reject(raw.Venue)
		return
	}

	k := key{venue: raw.Venue, symbol: raw.Symbol}
	sh := p.shardFor(k)

	sh.mu.Lock()
	prev, hadPrev := sh.quotes[k]
	if hadPrev && q.EventTS.Before(prev.EventTS) {
		// Ordering guarantee: never let an
		// earlier-event-timestamped quote replace a later one.
		sh.mu.Unlock()
		p.reject(raw.Venue)
		return
	}

	refMid := 0.0
	if hadPrev {
		refMid = prev.Mid
	}
	if !p.passesNoiseFilter(q, refMid, processedAt) {
		sh.mu.Unlock()
		p.reject(raw.Venue)
		return
	}

	q.Quality = p.scoreQuality(q, processedAt)
	if q.Quality == QualityBad {
		sh.mu.Unlock()
		p.reject(raw.Venue)
		return
	}

	sh.quotes[k] = q
	sh.mu.Unlock()

	p.recordVenueForSymbol(raw.Venue, raw.Symbol)
	p.writeThrough(k, q)
}

func (p *Pipeline) writeThrough(k key, q Quote) {
	if p.cache == nil {
		return
	}
	b, err := json.Marshal(q)
	if err != nil {
		return
	}
	p.cache.Set(cacheKey(k), b, p.cacheTTL)
}

func cacheKey(k key) string {
	return "quote:" + k.venue + ":" + k.symbol
}

// normalize is pipeline stage 1.
func (p *Pipeline) normalize(raw RawQuote, processedAt time.Time) (Quote, bool) {
	if raw.Bid <= 0 || raw.Ask <= 0 || raw.Bid >= raw.Ask {
		return Quote{}, false
	}
	m := mid(raw.Bid, raw.Ask)
	q := Quote{
		Venue:       raw.Venue,
		Symbol:      raw.Symbol,
		Bid:         raw.Bid,
		Ask:         raw.Ask,
		BidSize:     raw.BidSize,
		AskSize:     raw.AskSize,
		EventTS:     raw.EventTS,
		ReceiveTS:   processedAt,
		ProcessedTS: processedAt,
		Mid:         m,
		SpreadBps:   spreadBps(raw.Bid, raw.Ask, m),
	}
	return q, true
}

// passesNoiseFilter is pipeline stage 2.
func (p *Pipeline) passesNoiseFilter(q Quote, refMid float64, now time.Time) bool {
	if now.Sub(q.EventTS) > p.cfg.staleDuration() {
		return false
	}
	if refMid > 0 {
		dev := absf(q.Mid-refMid) / refMid
		if dev > p.cfg.MaxDeviation {
			return false
		}
	}
	return true
}

// scoreQuality is pipeline stage 3.
func (p *Pipeline) scoreQuality(q Quote, now time.Time) Quality {
	score := 100.0

	latencyMs := now.Sub(q.ReceiveTS).Milliseconds()
	switch {
	case latencyMs > p.cfg.LatencyBadMs:
		score -= 40
	case latencyMs > p.cfg.LatencyWarnMs:
		score -= 15
	}

	freshMs := now.Sub(q.EventTS).Milliseconds()
	switch {
	case freshMs > p.cfg.FreshnessBadMs:
		score -= 40
	case freshMs > p.cfg.FreshnessWarnMs:
		score -= 15
	}

	// Variance band reuses spread-bps as the variance proxy: a quote
	// whose spread is wide relative to mid is noisier.
	variancePct := q.SpreadBps / 10000
	switch {
	case variancePct > p.cfg.VarianceBadPct:
		score -= 20
	case variancePct > p.cfg.VarianceWarnPct:
		score -= 8
	}

	switch {
	case score >= p.cfg.QualityGoodThresh:
		return QualityGood
	case score >= p.cfg.QualityWarnThresh:
		return QualityWarn
	default:
		return QualityBad
	}
}

func (p *Pipeline) reject(venueID string) {
	p.rejectedMu.Lock()
	p.rejectedByVenue[venueID]++
	p.rejectedMu.Unlock()
	log.Debug().Str("venue", venueID).Msg("quote rejected")
}

// RejectedCount returns the number of rejected updates for a venue.
func (p *Pipeline) RejectedCount(venueID string) int64 {
	p.rejectedMu.Lock()
	defer p.rejectedMu.Unlock()
	return p.rejectedByVenue[venueID]
}

// BestQuote returns the cached quote for (venue, symbol), if any. A
// local shard miss falls through to the cross-instance cache, if one
// is attached, so a reader on an instance that never saw this venue's
// feed traffic directly can still see another instance's last update.
func (p *Pipeline) BestQuote(venueID, symbol string) (Quote, bool) {
	k := key{venue: venueID, symbol: symbol}
	sh := p.shardFor(k)
	sh.mu.RLock()
	q, ok := sh.quotes[k]
	sh.mu.RUnlock()
	if ok {
		return q, true
	}
	return p.readThrough(k)
}

func (p *Pipeline) readThrough(k key) (Quote, bool) {
	if p.cache == nil {
		return Quote{}, false
	}
	b, ok := p.cache.Get(cacheKey(k))
	if !ok {
		return Quote{}, false
	}
	var q Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return Quote{}, false
	}
	return q, true
}

// recordVenueForSymbol registers that venueID has quoted symbol, so
// BestBidAsk knows which shards to probe. Called from the same path
// that commits a quote.
func (p *Pipeline) recordVenueForSymbol(venueID, symbol string) {
	p.symbolMu.Lock()
	defer p.symbolMu.Unlock()
	set, ok := p.venuesBySymbol[symbol]
	if !ok {
		set = make(map[string]struct{})
		p.venuesBySymbol[symbol] = set
	}
	set[venueID] = struct{}{}
}

// BestBidAsk scans all venues known to quote symbol and returns the
// highest bid and lowest ask across venues.
func (p *Pipeline) BestBidAsk(symbol string) (bidVenue string, bid float64, askVenue string, ask float64, ok bool) {
	p.symbolMu.Lock()
	venues := make([]string, 0, len(p.venuesBySymbol[symbol]))
	for v := range p.venuesBySymbol[symbol] {
		venues = append(venues, v)
	}
	p.symbolMu.Unlock()

	haveBid, haveAsk := false, false
	for _, v := range venues {
		q, found := p.BestQuote(v, symbol)
		if !found {
			continue
		}
		if !haveBid || q.Bid > bid {
			bid = q.Bid
			bidVenue = v
			haveBid = true
		}
		if !haveAsk || q.Ask < ask {
			ask = q.Ask
			askVenue = v
			haveAsk = true
		}
	}
	ok = haveBid && haveAsk
	return
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
