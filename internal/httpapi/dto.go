package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"orderflow/internal/orders"
)

// envelope is the uniform response shape. Success responses carry data and
// optionally message; failures carry message and error.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type submitOrderRequest struct {
	CustomerID      string  `json:"customerId"`
	ProductID       string  `json:"productId"`
	Amount          float64 `json:"amount"`
	ShippingAddress string  `json:"shippingAddress"`
	PaymentMethod   string  `json:"paymentMethod"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	OrderID         string    `json:"orderId"`
	CustomerID      string    `json:"customerId"`
	ProductID       string    `json:"productId"`
	Amount          float64   `json:"amount"`
	Status          string    `json:"status"`
	ShippingAddress string    `json:"shippingAddress,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type submitOrderResponse struct {
	Order         orderResponse `json:"order"`
	PaymentStatus string        `json:"paymentStatus"`
	StockWarning  string        `json:"stockWarning,omitempty"`
}

type orderPageResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func toOrderResponse(o orders.Order) orderResponse {
	return orderResponse{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		ProductID:       o.ProductID,
		Amount:          o.Amount,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toPageResponse(p orders.Page) orderPageResponse {
	out := orderPageResponse{
		Orders: make([]orderResponse, 0, len(p.Orders)),
		Total:  p.Total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	for _, o := range p.Orders {
		out.Orders = append(out.Orders, toOrderResponse(o))
	}
	return out
}

// statusFromCode maps domain error codes to HTTP statuses.
func statusFromCode(code orders.Code) int {
	switch code {
	case orders.CodeValidation, orders.CodeRejected:
		return http.StatusBadRequest
	case orders.CodeNotFound:
		return http.StatusNotFound
	case orders.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	code := orders.CodeOf(err)
	writeJSON(w, statusFromCode(code), envelope{
		Success: false,
		Message: orders.MessageOf(err),
		Error:   string(code),
	})
}

func writeError(w http.ResponseWriter, status int, code orders.Code, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Error: string(code)})
}
