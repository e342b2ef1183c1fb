package order_api

import (
	"fmt"
	"io"
	"net/http"

	"ms-storefront/internal/order"
	"ms-storefront/internal/paymaya"
	"ms-storefront/internal/utils"
)

// maxWebhookBody bounds what we read from the gateway.
const maxWebhookBody = 1 << 20

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var params order.CheckoutParams
	if !h.decode(w, r, &params) {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Checkout: order_number=%q", params.OrderNumber))

	result, err := h.OrderService.StartCheckout(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, "Failed to create checkout session", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"checkout": result,
	})
}

// PayMayaWebhook reads the raw body so the signature is checked over the exact bytes sent.
func (h *Handler) PayMayaWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: false, Message: "Error processing webhook"})
		return
	}

	ack := h.Webhooks.Handle(r.Context(), body, r.Header.Get(paymaya.SignatureHeader))
	utils.WriteJSON(w, ack.Status, ack)
}
