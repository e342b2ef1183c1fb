package order

import (
	"context"

	"ms-storefront/internal/models"
)

// EventPublisher receives order lifecycle events. Implementations log their own
// delivery failures; an event that cannot be delivered never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent)
}

// Publishers sends each event to every publisher in turn.
type Publishers []EventPublisher

func (p Publishers) Publish(ctx context.Context, event models.OrderEvent) {
	for _, pub := range p {
		if pub != nil {
			pub.Publish(ctx, event)
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.OrderEvent) {}

// NopPublisher drops every event.
var NopPublisher EventPublisher = nopPublisher{}
