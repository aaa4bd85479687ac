package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

// materializeOrder sells l to buyerID at itemPrice. It must only be called
// inside l's critical section, from auction close or offer acceptance.
func (e *Engine) materializeOrder(tx store.Tx, l *core.Listing, b *batch, source core.OrderSource, sourceID, buyerID string, itemPrice decimal.Decimal, now time.Time) (*core.Order, error) {
	existing, err := tx.OrderForListing()
	if err != nil {
		return nil, err
	}
	if existing != nil || l.Status == core.ListingSold {
		ev := e.logger.Error().
			Str("listing_id", l.ID).
			Str("status", string(l.Status)).
			Str("source", string(source)).
			Str("source_id", sourceID)
		if existing != nil {
			ev = ev.Str("order_id", existing.ID)
		}
		ev.Msg("invariant violation: second order for listing")
		return nil, fmt.Errorf("%w: %s", core.ErrAlreadySold, l.ID)
	}

	if err := l.Transition(core.ListingSold, now); err != nil {
		return nil, err
	}
	l.QuantitySold++

	s := e.fees.Settle(itemPrice, l.ShippingPrice)
	order := &core.Order{
		ID:            uuid.NewString(),
		ListingID:     l.ID,
		BuyerID:       buyerID,
		SellerID:      l.SellerID,
		Source:        source,
		SourceID:      sourceID,
		ItemPrice:     s.ItemPrice,
		ShippingPrice: s.ShippingPrice,
		Total:         s.Total,
		PlatformFee:   s.PlatformFee,
		SellerPayout:  s.SellerPayout,
		Status:        core.OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if e.sealer != nil {
		receipt, err := e.sealer.Seal(*order, tx.Bids())
		if err != nil {
			return nil, fmt.Errorf("failed to seal receipt for listing %s: %w", l.ID, err)
		}
		order.Receipt = receipt
	}

	if err := tx.SaveListing(l); err != nil {
		return nil, err
	}
	if err := tx.InsertOrder(order); err != nil {
		return nil, err
	}

	b.emit(core.EventOrderCreated, l.ID, buyerID, order.ID, order.Total, now)
	b.after(func() {
		e.metrics.OrdersMaterialized.With("source", string(source)).Add(1)
		e.logger.Info().
			Str("listing_id", l.ID).
			Str("order_id", order.ID).
			Str("buyer_id", buyerID).
			Str("amount", itemPrice.StringFixed(2)).
			Str("source", string(source)).
			Msg("order created")
	})
	return order, nil
}

// deactivateInstructions turns off every standing instruction on a closed
// listing.
func deactivateInstructions(tx store.Tx, now time.Time) error {
	for _, in := range tx.AutoBids() {
		if !in.Active {
			continue
		}
		in.Active = false
		in.UpdatedAt = now
		if err := tx.SaveAutoBid(&in); err != nil {
			return err
		}
	}
	return nil
}

// Payment is the payment collaborator's confirmation for an order.
type Payment struct {
	Reference       string
	ShippingAddress string
}

// MarkOrderPaid records a captured payment.
func (e *Engine) MarkOrderPaid(ctx context.Context, orderID string, p Payment) (*core.Order, error) {
	return e.updateOrder(ctx, "order_paid", orderID, func(o *core.Order, now time.Time) error {
		if err := o.Advance(core.OrderPaid, now); err != nil {
			return err
		}
		o.PaymentRef = p.Reference
		o.ShippingAddress = p.ShippingAddress
		return nil
	})
}

// ShipOrder records tracking details. Only the seller may ship.
func (e *Engine) ShipOrder(ctx context.Context, orderID, sellerID, trackingNumber, carrier string) (*core.Order, error) {
	return e.updateOrder(ctx, "order_shipped", orderID, func(o *core.Order, now time.Time) error {
		if err := core.RequireOwner(o, sellerID); err != nil {
			return err
		}
		if err := o.Advance(core.OrderShipped, now); err != nil {
			return err
		}
		o.TrackingNumber = trackingNumber
		o.TrackingCarrier = carrier
		return nil
	})
}

// ConfirmDelivery is the buyer acknowledging receipt.
func (e *Engine) ConfirmDelivery(ctx context.Context, orderID, buyerID string) (*core.Order, error) {
	return e.updateOrder(ctx, "order_delivered", orderID, func(o *core.Order, now time.Time) error {
		if buyerID == "" || o.BuyerID != buyerID {
			return core.ErrNotOwner
		}
		return o.Advance(core.OrderDelivered, now)
	})
}

// CompleteOrder closes out a delivered order.
func (e *Engine) CompleteOrder(ctx context.Context, orderID string) (*core.Order, error) {
	return e.updateOrder(ctx, "order_completed", orderID, func(o *core.Order, now time.Time) error {
		return o.Advance(core.OrderCompleted, now)
	})
}

// GetOrder returns the order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	return e.updateOrder(ctx, "read", orderID, nil)
}

// updateOrder applies fn to the order within its listing's critical
// section. A nil fn only reads.
func (e *Engine) updateOrder(ctx context.Context, op, orderID string, fn func(*core.Order, time.Time) error) (*core.Order, error) {
	listingID, err := e.store.OrderListing(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var result *core.Order
	err = e.atomic(ctx, op, listingID, func(tx store.Tx, b *batch) error {
		o, err := tx.OrderForListing()
		if err != nil {
			return err
		}
		if o == nil || o.ID != orderID {
			return fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
		}
		if fn != nil {
			now := e.clock.Now()
			if err := fn(o, now); err != nil {
				return err
			}
			if err := tx.UpdateOrder(o); err != nil {
				return err
			}
			b.emit(core.EventOrderUpdated, o.ListingID, "", o.ID, o.Total, now)
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
