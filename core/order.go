package core

import (
	"fmt"
	"time"
)

var orderSequence = []OrderStatus{
	OrderPending,
	OrderPaid,
	OrderShipped,
	OrderDelivered,
	OrderCompleted,
}

func nextOrderStatus(s OrderStatus) (OrderStatus, bool) {
	for i, status := range orderSequence {
		if status == s && i+1 < len(orderSequence) {
			return orderSequence[i+1], true
		}
	}
	return "", false
}

// Advance moves the order one step along pending → paid → shipped →
// delivered → completed and stamps the matching timestamp.
func (o *Order) Advance(to OrderStatus, now time.Time) error {
	next, ok := nextOrderStatus(o.Status)
	if !ok || next != to {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidTransition, o.ID, o.Status, to)
	}

	o.Status = to
	o.UpdatedAt = now
	switch to {
	case OrderPaid:
		o.PaidAt = now
	case OrderShipped:
		o.ShippedAt = now
	case OrderDelivered:
		o.DeliveredAt = now
	case OrderCompleted:
		o.CompletedAt = now
	}
	return nil
}
