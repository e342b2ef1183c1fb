package order_api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/entitlement"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Download streams the whole file on every request. Each one is counted, so conditional
// and range requests are not honoured.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	file, err := h.Downloads.Redeem(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, "Failed to download file", err)
		return
	}
	defer file.Body.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file.Body); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Download %s interrupted: %v", token, err))
	}
}

func (h *Handler) DownloadInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Downloads.Info(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, "Failed to load download", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "download": info})
}

func (h *Handler) DownloadQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Downloads.QR(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, "Failed to generate QR code", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ListDownloads is for signed-in customers only.
func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	customerID, ok := actor.CustomerID()
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("ListDownloads: customer=%d", customerID))

	downloads, err := h.Downloads.ListForCustomer(r.Context(), customerID)
	if err != nil {
		h.writeServiceError(w, "Failed to retrieve downloads", err)
		return
	}
	if downloads == nil {
		downloads = []entitlement.Info{}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "downloads": downloads})
}
