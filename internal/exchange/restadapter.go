// Package exchange implements the execution engine's Adapter contract
// over plain REST order-entry endpoints, one base URL per venue.
// Grounded on internal/data/exchanges/kraken/adapter.go's http.Client
// usage (timeout, latency/error counters, JSON decode of a typed
// response envelope), generalized from a single hardcoded exchange to
// a per-venue base-URL map since the execution engine must place
// orders against whichever two venues a hedge names.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/execution"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// VenueEndpoint is one venue's REST order-entry surface.
type VenueEndpoint struct {
	BaseURL string
	APIKey  string
}

// RESTAdapter implements execution.Adapter by posting order-entry
// requests against each venue's REST API. It does not implement
// WatchFills; the engine falls back to polling.
type RESTAdapter struct {
	endpoints  map[string]VenueEndpoint
	httpClient *http.Client

	errorCount int64
	totalReqs  int64
}

// NewRESTAdapter builds an adapter over the given venue endpoints.
func NewRESTAdapter(endpoints map[string]VenueEndpoint) *RESTAdapter {
	return &RESTAdapter{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type placeOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Size     float64 `json:"size"`
	Market   bool    `json:"market"`
	Price    float64 `json:"price,omitempty"`
	PostOnly bool    `json:"post_only,omitempty"`
}

type placeOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

func (a *RESTAdapter) PlaceOrder(ctx context.Context, venueID, symbol string, side venue.Side, size float64, spec execution.OrderSpec) (execution.OrderAck, error) {
	ep, ok := a.endpoints[venueID]
	if !ok {
		return execution.OrderAck{}, fmt.Errorf("no REST endpoint configured for venue %q", venueID)
	}

	req := placeOrderRequest{
		Symbol:   symbol,
		Side:     string(side),
		Size:     size,
		Market:   spec.Market,
		Price:    spec.Price,
		PostOnly: !spec.Market,
	}

	var resp placeOrderResponse
	if err := a.postJSON(ctx, ep, "/orders", req, &resp); err != nil {
		return execution.OrderAck{}, err
	}
	if resp.Error != "" {
		return execution.OrderAck{}, fmt.Errorf("venue %s rejected order: %s", venueID, resp.Error)
	}
	return execution.OrderAck{OrderID: resp.OrderID, Status: resp.Status}, nil
}

func (a *RESTAdapter) CancelOrder(ctx context.Context, venueID, orderID string) error {
	ep, ok := a.endpoints[venueID]
	if !ok {
		return fmt.Errorf("no REST endpoint configured for venue %q", venueID)
	}
	var resp placeOrderResponse
	if err := a.postJSON(ctx, ep, "/orders/"+orderID+"/cancel", nil, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("venue %s rejected cancel: %s", venueID, resp.Error)
	}
	return nil
}

// WatchFills returns nil; this adapter is poll-only.
func (a *RESTAdapter) WatchFills(ctx context.Context, venueID string) <-chan execution.FillEvent {
	return nil
}

type fillStatusResponse struct {
	Filled      bool    `json:"filled"`
	FilledPrice float64 `json:"filled_price"`
	Fee         float64 `json:"fee"`
	Error       string  `json:"error,omitempty"`
}

func (a *RESTAdapter) PollFill(ctx context.Context, venueID, orderID string) (execution.FillStatus, error) {
	ep, ok := a.endpoints[venueID]
	if !ok {
		return execution.FillStatus{}, fmt.Errorf("no REST endpoint configured for venue %q", venueID)
	}

	var resp fillStatusResponse
	if err := a.getJSON(ctx, ep, "/orders/"+orderID, &resp); err != nil {
		return execution.FillStatus{}, err
	}
	if resp.Error != "" {
		return execution.FillStatus{}, fmt.Errorf("venue %s fill lookup failed: %s", venueID, resp.Error)
	}
	return execution.FillStatus{Filled: resp.Filled, FilledPrice: resp.FilledPrice, Fee: resp.Fee}, nil
}

func (a *RESTAdapter) postJSON(ctx context.Context, ep VenueEndpoint, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("X-API-Key", ep.APIKey)
	}
	return a.do(req, out)
}

func (a *RESTAdapter) getJSON(ctx context.Context, ep VenueEndpoint, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if ep.APIKey != "" {
		req.Header.Set("X-API-Key", ep.APIKey)
	}
	return a.do(req, out)
}

func (a *RESTAdapter) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := a.httpClient.Do(req)
	a.totalReqs++
	if err != nil {
		a.errorCount++
		return fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	if resp.StatusCode >= 500 {
		a.errorCount++
		log.Warn().Str("host", req.URL.Host).Int("status", resp.StatusCode).Dur("latency", latency).Msg("exchange request server error")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("venue returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
