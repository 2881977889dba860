// Package wsfeed is a minimal push-callback WebSocket feed adapter for
// C1, the Quote Pipeline. Grounded on
// internal/providers/kraken/websocket.go's connect/message-loop/
// ping-loop/reconnect shape, generalized from Kraken's specific
// subscribe/channel-ID wire protocol to a single generic per-venue
// quote message, since this system's venues share no common wire
// format worth modeling beyond "a JSON quote arrives on this socket".
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/marketdata"
)

// message is the wire shape this feed expects from a venue socket: one
// JSON object per update, already in control-plane terms rather than a
// venue-specific envelope.
type message struct {
	Symbol  string  `json:"symbol"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	BidSize float64 `json:"bid_size"`
	AskSize float64 `json:"ask_size"`
	EventTS int64   `json:"event_ts_ms"`
}

// Feed connects one venue's WebSocket endpoint and pushes every
// decoded message into the quote pipeline as a RawQuote.
type Feed struct {
	venueID string
	url     string
	pipe    *marketdata.Pipeline

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	reconnectCh chan struct{}
}

// New creates a feed for one venue's WebSocket URL. Quotes it decodes
// are pushed into pipe via OnRawQuote.
func New(venueID, url string, pipe *marketdata.Pipeline) *Feed {
	return &Feed{
		venueID:     venueID,
		url:         url,
		pipe:        pipe,
		reconnectCh: make(chan struct{}, 1),
	}
}

// Connect dials the socket and starts the read and ping loops. It
// returns once the initial handshake succeeds; message processing
// continues in background goroutines until ctx is canceled or the
// connection drops.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.connected {
		f.mu.Unlock()
		return fmt.Errorf("feed for venue %s already connected", f.venueID)
	}

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("dial %s feed at %s: %w", f.venueID, f.url, err)
	}
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	log.Info().Str("venue", f.venueID).Str("url", f.url).Msg("quote feed connected")

	go f.readLoop(ctx)
	go f.pingLoop(ctx)
	return nil
}

// IsConnected reports whether the socket is currently open.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Reconnected signals every time readLoop observes the connection drop,
// so a caller can redial with its own backoff policy.
func (f *Feed) Reconnected() <-chan struct{} {
	return f.reconnectCh
}

// Close tears down the socket.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil
	}
	f.connected = false
	err := f.conn.Close()
	f.conn = nil
	return err
}

func (f *Feed) readLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("venue", f.venueID).Interface("panic", r).Msg("quote feed read loop panic")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.Lock()
		conn := f.conn
		connected := f.connected
		f.mu.Unlock()
		if !connected {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Str("venue", f.venueID).Err(err).Msg("quote feed read error, marking disconnected")
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			select {
			case f.reconnectCh <- struct{}{}:
			default:
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		f.handleMessage(data)
	}
}

func (f *Feed) handleMessage(data []byte) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Debug().Str("venue", f.venueID).Err(err).Msg("dropping malformed quote feed message")
		return
	}
	f.pipe.OnRawQuote(marketdata.RawQuote{
		Venue:   f.venueID,
		Symbol:  m.Symbol,
		Bid:     m.Bid,
		Ask:     m.Ask,
		BidSize: m.BidSize,
		AskSize: m.AskSize,
		EventTS: time.UnixMilli(m.EventTS),
	})
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			connected := f.connected
			f.mu.Unlock()
			if !connected {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Str("venue", f.venueID).Err(err).Msg("quote feed ping failed")
			}
		}
	}
}
