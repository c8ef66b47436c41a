// Package httpapi exposes the order orchestrator over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"orderflow/internal/observability"
	"orderflow/internal/orders"
)

const maxBodyBytes = 1 << 20

// Handler serves the order API.
type Handler struct {
	service *orders.Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandler constructs the HTTP handler around the order service. A nil
// metrics receiver disables counting.
func NewHandler(service *orders.Service, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, metrics: metrics}
}

// SubmitOrder handles POST /orders.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.SubmitOrder(r.Context(), orders.SubmitRequest{
		CustomerID:      req.CustomerID,
		ProductID:       req.ProductID,
		Amount:          req.Amount,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		if orders.CodeOf(err) == orders.CodeRejected {
			h.metrics.AddOrderRejected()
		}
		h.logger.Warn("order submission failed",
			"customer_id", req.CustomerID, "product_id", req.ProductID,
			"code", orders.CodeOf(err), "error", err)
		writeDomainError(w, err)
		return
	}

	message := "order confirmed"
	if result.StockWarning != "" {
		h.metrics.AddStockWarning()
		message = result.StockWarning
	}
	writeData(w, http.StatusCreated, submitOrderResponse{
		Order:         toOrderResponse(result.Order),
		PaymentStatus: result.PaymentStatus,
		StockWarning:  result.StockWarning,
	}, message)
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(order), "")
}

// ListCustomerOrders handles GET /customers/{id}/orders.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	page, err := h.service.ListByCustomer(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toPageResponse(page), "")
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(order), "status updated")
}

// CancelOrder handles POST /orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(order), "order cancelled")
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// decode reads a JSON body into dst. Writes a VALIDATION failure and returns
// false on malformed input.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, orders.CodeValidation, "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, orders.CodeValidation, "invalid JSON body")
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter. Zero
// means unset; the service applies its own defaults.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, orders.CodeValidation, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
