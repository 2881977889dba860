package execution

import (
	"context"

	"github.com/sawpanic/hedgemesh/internal/venue"
)

// OrderSpec is what an adapter needs to place one order: either a
// plain market (Taker) order, or a post-only Maker order pinned at
// Price.
type OrderSpec struct {
	Market bool
	Price  float64 // post-only limit price when Market is false
}

// OrderAck is an adapter's immediate response to PlaceOrder.
type OrderAck struct {
	OrderID string
	Status  string
}

// FillStatus is a point-in-time read of an order's fill state.
type FillStatus struct {
	Filled      bool
	FilledPrice float64
	Fee         float64
}

// Adapter is the exchange-adapter contract C6 depends on. Wire
// protocols, authentication, and connection management are the
// adapter's concern. The engine calls it directly: the calls are not
// gated by Supervisor.Allow nor reported through
// Supervisor.RecordResult; the engine consults the supervisor only
// through IsDegraded when it selects a mode.
type Adapter interface {
	PlaceOrder(ctx context.Context, venueID, symbol string, side venue.Side, size float64, spec OrderSpec) (OrderAck, error)
	CancelOrder(ctx context.Context, venueID, orderID string) error
	// WatchFills returns a channel of push fill notifications; a nil
	// channel means the adapter only supports polling. The engine does
	// not read this channel: it observes fills through PollFill.
	WatchFills(ctx context.Context, venueID string) <-chan FillEvent
	PollFill(ctx context.Context, venueID, orderID string) (FillStatus, error)
}

// FillEvent is a push notification of an order's fill state.
type FillEvent struct {
	OrderID     string
	Filled      bool
	FilledPrice float64
	Fee         float64
}
