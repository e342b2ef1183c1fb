package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ms-storefront/internal/access"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/entitlement"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	orderredis "ms-storefront/internal/order/redis"
	"ms-storefront/internal/paymaya"
	"ms-storefront/internal/reconcile"
	"ms-storefront/internal/sse"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	OrderService *order.OrderService
	Downloads    *entitlement.Service
	Webhooks     *reconcile.Reconciler
	Events       *sse.OrderEventEmitter
	Logger       *logger.Logger
	// Heartbeat is how often idle SSE streams get a keep-alive comment.
	Heartbeat time.Duration
}

func NewHandler(orders *order.OrderService, downloads *entitlement.Service, webhooks *reconcile.Reconciler, events *sse.OrderEventEmitter, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orders,
		Downloads:    downloads,
		Webhooks:     webhooks,
		Events:       events,
		Logger:       log,
		Heartbeat:    25 * time.Second,
	}
}

// Routes mounts every endpoint of the service on r.
func (h *Handler) Routes(r chi.Router, resolver *auth.Resolver) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Post("/webhooks/paymaya", h.PayMayaWebhook)
		r.Get("/downloads/{token}", h.Download)
		r.Get("/downloads/{token}/info", h.DownloadInfo)
		r.Get("/downloads/{token}/qr", h.DownloadQR)

		// guests and signed-in callers alike
		r.Group(func(r chi.Router) {
			r.Use(resolver.OptionalActor)
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Get("/orders/number/{orderNumber}", h.GetOrderByNumber)
			r.Get("/orders/number/{orderNumber}/events", h.OrderEvents)
			r.Post("/payments/paymaya/checkout", h.Checkout)
		})

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(resolver.RequireActor)
			r.Put("/orders/{id}/status", h.UpdateOrderStatus)
			r.Get("/orders/events", h.AllOrderEvents)
			r.Get("/downloads", h.ListDownloads)
		})
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ---------------- ORDERS ----------------

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: actor=%s", actor))

	var req order.OrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), &req, actor)
	if err != nil {
		h.writeServiceError(w, "Failed to create order", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Order created successfully",
		"order":   created,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, order.ErrOrderNotFound.Error())
		return
	}
	actor := auth.ActorFrom(r.Context())
	h.Logger.Debug("API", fmt.Sprintf("GetOrder: id=%d actor=%s", id, actor))

	found, err := h.OrderService.GetOrder(r.Context(), id, actor, guestEmailParam(r))
	if err != nil {
		h.writeServiceError(w, "Failed to retrieve order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": found})
}

func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	actor := auth.ActorFrom(r.Context())
	h.Logger.Debug("API", fmt.Sprintf("GetOrderByNumber: %s actor=%s", orderNumber, actor))

	found, err := h.OrderService.GetOrderByNumber(r.Context(), orderNumber, actor, guestEmailParam(r))
	if err != nil {
		h.writeServiceError(w, "Failed to retrieve order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": found})
}

type pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := order.ListQuery{
		Status:     q.Get("status"),
		GuestEmail: q.Get("guest_email"),
		Page:       atoiDefault(q.Get("page"), 1),
		PerPage:    atoiDefault(q.Get("per_page"), 15),
	}
	if q.Has("payment_status") {
		ps := q.Get("payment_status")
		query.PaymentStatus = &ps
	}

	page, err := h.OrderService.ListOrders(r.Context(), auth.ActorFrom(r.Context()), query)
	if err != nil {
		h.writeServiceError(w, "Failed to retrieve orders", err)
		return
	}

	lastPage := int(math.Ceil(float64(page.Total) / float64(page.PerPage)))
	if lastPage < 1 {
		lastPage = 1
	}
	orders := page.Orders
	if orders == nil {
		orders = []*models.Order{}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  orders,
		"pagination": pagination{
			CurrentPage: page.Page,
			LastPage:    lastPage,
			PerPage:     page.PerPage,
			Total:       page.Total,
		},
	})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, order.ErrOrderNotFound.Error())
		return
	}

	var update order.StatusUpdate
	if !h.decode(w, r, &update) {
		return
	}

	updated, err := h.OrderService.UpdateStatus(r.Context(), id, auth.ActorFrom(r.Context()), update)
	if err != nil {
		h.writeServiceError(w, "Failed to update order status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Order status updated successfully",
		"order":   updated,
	})
}

// ---------------- HELPERS ----------------

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("%s %s: invalid body: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

func guestEmailParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("guest_email"))
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// writeServiceError maps every error the services return onto a status and envelope.
func (h *Handler) writeServiceError(w http.ResponseWriter, failMessage string, err error) {
	var verr *order.ValidationError
	var perr *order.ProductError
	var gerr *paymaya.GatewayError

	switch {
	case errors.As(err, &verr):
		utils.WriteJSON(w, http.StatusUnprocessableEntity, utils.ValidationResponse(verr.Fields))
	case errors.As(err, &perr):
		status := http.StatusBadRequest
		if errors.Is(perr, order.ErrProductNotFound) {
			status = http.StatusNotFound
		}
		utils.WriteError(w, status, perr.Error())
	case errors.Is(err, order.ErrOrderNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, access.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrGuestEmailRequired):
		utils.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrAmountMismatch):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrOrderNotPayable):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orderredis.ErrLockNotAcquired):
		utils.WriteError(w, http.StatusConflict, "Order is being updated, please retry")
	case errors.Is(err, paymaya.ErrMissingCredentials):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gerr):
		utils.WriteJSON(w, gerr.StatusCode, utils.ErrorResponse(gerr.Message, failMessage))
	case errors.Is(err, entitlement.ErrTokenNotFound),
		errors.Is(err, entitlement.ErrNoProductFile),
		errors.Is(err, entitlement.ErrFileMissing):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entitlement.ErrNotDownloadable):
		utils.WriteError(w, http.StatusForbidden, err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", failMessage, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse(failMessage, err.Error()))
	}
}
