package sse

import (
	"context"
	"sync"

	"ms-storefront/internal/models"
)

// OrderEventEmitter fans order events out to SSE connections. Subscribers either follow
// one order (the checkout return page) or every order (the staff dashboard).
type OrderEventEmitter struct {
	orderClients     map[string][]chan models.OrderEvent
	orderClientMutex sync.RWMutex

	allClients     []chan models.OrderEvent
	allClientMutex sync.RWMutex
}

func NewOrderEventEmitter() *OrderEventEmitter {
	return &OrderEventEmitter{
		orderClients: make(map[string][]chan models.OrderEvent),
	}
}

// SubscribeToOrder adds a client for one order's events. The channel is closed once ctx is done.
func (e *OrderEventEmitter) SubscribeToOrder(ctx context.Context, orderNumber string) chan models.OrderEvent {
	clientChan := make(chan models.OrderEvent, 10)

	e.orderClientMutex.Lock()
	e.orderClients[orderNumber] = append(e.orderClients[orderNumber], clientChan)
	e.orderClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeOrderClient(orderNumber, clientChan)
	}()

	return clientChan
}

// SubscribeToAll adds a client for every order event.
func (e *OrderEventEmitter) SubscribeToAll(ctx context.Context) chan models.OrderEvent {
	clientChan := make(chan models.OrderEvent, 50)

	e.allClientMutex.Lock()
	e.allClients = append(e.allClients, clientChan)
	e.allClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeAllClient(clientChan)
	}()

	return clientChan
}

// Emit broadcasts event without blocking. Slow clients miss the event.
func (e *OrderEventEmitter) Emit(event models.OrderEvent) {
	e.orderClientMutex.RLock()
	for _, clientChan := range e.orderClients[event.OrderNumber] {
		select {
		case clientChan <- event:
		default:
		}
	}
	e.orderClientMutex.RUnlock()

	e.allClientMutex.RLock()
	for _, clientChan := range e.allClients {
		select {
		case clientChan <- event:
		default:
		}
	}
	e.allClientMutex.RUnlock()
}

// Publish lets the emitter stand in as an order event publisher.
func (e *OrderEventEmitter) Publish(ctx context.Context, event models.OrderEvent) {
	e.Emit(event)
}

func (e *OrderEventEmitter) removeOrderClient(orderNumber string, clientChan chan models.OrderEvent) {
	e.orderClientMutex.Lock()
	defer e.orderClientMutex.Unlock()

	clients := e.orderClients[orderNumber]
	for i, ch := range clients {
		if ch == clientChan {
			e.orderClients[orderNumber] = append(clients[:i:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.orderClients[orderNumber]) == 0 {
		delete(e.orderClients, orderNumber)
	}
}

func (e *OrderEventEmitter) removeAllClient(clientChan chan models.OrderEvent) {
	e.allClientMutex.Lock()
	defer e.allClientMutex.Unlock()

	for i, ch := range e.allClients {
		if ch == clientChan {
			e.allClients = append(e.allClients[:i:i], e.allClients[i+1:]...)
			close(clientChan)
			break
		}
	}
}

func (e *OrderEventEmitter) OrderClientCount(orderNumber string) int {
	e.orderClientMutex.RLock()
	defer e.orderClientMutex.RUnlock()
	return len(e.orderClients[orderNumber])
}

func (e *OrderEventEmitter) AllClientCount() int {
	e.allClientMutex.RLock()
	defer e.allClientMutex.RUnlock()
	return len(e.allClients)
}
