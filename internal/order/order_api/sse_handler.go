package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-storefront/internal/access"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

// OrderEvents streams payment status changes of one order to the checkout return page.
// Access follows the order view rules.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	actor := auth.ActorFrom(r.Context())

	current, err := h.OrderService.GetOrderByNumber(r.Context(), orderNumber, actor, guestEmailParam(r))
	if err != nil {
		h.writeServiceError(w, "Failed to subscribe to order", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ctx := r.Context()
	eventChan := h.Events.SubscribeToOrder(ctx, orderNumber)

	h.setupSSEHeaders(w)
	initial := models.NewOrderEvent("order.snapshot", current, time.Now().UTC())
	h.writeEvent(w, "status", initial)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to order events for %s", orderNumber))

	lastStatus, lastPayment := current.Status, current.PaymentStatus
	h.stream(w, r, flusher, eventChan, func(event models.OrderEvent) bool {
		// repeated deliveries of the same state are not re-sent
		if event.Status == lastStatus && event.PaymentStatus == lastPayment {
			return false
		}
		lastStatus, lastPayment = event.Status, event.PaymentStatus
		return true
	})
	h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from order events for %s", orderNumber))
}

// AllOrderEvents streams every order event to staff.
func (h *Handler) AllOrderEvents(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	if err := access.CanUpdateStatus(actor); err != nil {
		h.writeServiceError(w, "Failed to subscribe to orders", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	eventChan := h.Events.SubscribeToAll(r.Context())
	h.setupSSEHeaders(w)
	fmt.Fprint(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("%s connected to the order feed", actor))

	h.stream(w, r, flusher, eventChan, func(models.OrderEvent) bool { return true })
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, flusher http.Flusher, events chan models.OrderEvent, send func(models.OrderEvent) bool) {
	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !send(event) {
				continue
			}
			h.writeEvent(w, "status", event)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, name string, event models.OrderEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize order event: %v", err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func (h *Handler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
