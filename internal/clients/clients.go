// Package clients holds the HTTP clients for the collaborators the order
// saga consumes: the customer directory and the inventory service. Both
// speak the shared {success, data, message, error} JSON envelope.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orderflow/internal/orders"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// doJSON issues the request and decodes the envelope, classifying transport
// and HTTP-level failures into the saga error taxonomy.
func doJSON(client *http.Client, req *http.Request, service string) (envelope, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return envelope{}, err
		}
		// Connection refused, DNS failure, timeout: the collaborator is
		// unreachable, which the saga treats as a terminal step failure.
		return envelope{}, orders.WrapError(orders.CodeUnavailable,
			fmt.Sprintf("%s unreachable", service), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return envelope{}, orders.WrapError(orders.CodeUnavailable,
			fmt.Sprintf("%s response truncated", service), err)
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode < 400 {
			return envelope{}, orders.WrapError(orders.CodeInternal,
				fmt.Sprintf("%s returned malformed response", service), err)
		}
	}

	if resp.StatusCode >= 400 {
		return envelope{}, classifyStatus(resp.StatusCode, service, env)
	}
	return env, nil
}

func classifyStatus(status int, service string, env envelope) error {
	message := env.Message
	if message == "" {
		message = env.Error
	}
	if message == "" {
		message = fmt.Sprintf("%s returned status %d", service, status)
	}

	switch {
	case status == http.StatusNotFound:
		return orders.NewError(orders.CodeNotFound, message)
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return orders.NewError(orders.CodeRejected, message)
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		return orders.NewError(orders.CodeUnavailable, message)
	default:
		return orders.NewError(orders.CodeInternal, message)
	}
}

// CustomerClient talks to the customer directory.
type CustomerClient struct {
	baseURL string
	http    *http.Client
}

// NewCustomerClient constructs a directory client. A nil http client gets a
// sane default with a transport timeout.
func NewCustomerClient(baseURL string, client *http.Client) *CustomerClient {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &CustomerClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

type customerPayload struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	IsActive   bool   `json:"isActive"`
}

// GetCustomer looks up a customer by id.
func (c *CustomerClient) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/customers/"+id, nil)
	if err != nil {
		return orders.Customer{}, err
	}

	env, err := doJSON(c.http, req, "customer directory")
	if err != nil {
		return orders.Customer{}, err
	}

	var payload customerPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return orders.Customer{}, orders.WrapError(orders.CodeInternal,
			"customer directory returned malformed customer", err)
	}
	return orders.Customer{ID: payload.CustomerID, Active: payload.IsActive}, nil
}

// ProductClient talks to the inventory service.
type ProductClient struct {
	baseURL string
	http    *http.Client
}

// NewProductClient constructs an inventory client.
func NewProductClient(baseURL string, client *http.Client) *ProductClient {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &ProductClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

type productPayload struct {
	ProductID string  `json:"productId"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
	IsActive  bool    `json:"isActive"`
}

// GetProduct looks up a product by id.
func (c *ProductClient) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+id, nil)
	if err != nil {
		return orders.Product{}, err
	}

	env, err := doJSON(c.http, req, "inventory service")
	if err != nil {
		return orders.Product{}, err
	}

	var payload productPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return orders.Product{}, orders.WrapError(orders.CodeInternal,
			"inventory service returned malformed product", err)
	}
	return orders.Product{
		ID:     payload.ProductID,
		Price:  payload.Price,
		Stock:  payload.Stock,
		Active: payload.IsActive,
	}, nil
}

type stockPatch struct {
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

// DecrementStock applies a conditional stock decrease. The inventory service
// answers 400 when stock is insufficient, which surfaces as REJECTED.
func (c *ProductClient) DecrementStock(ctx context.Context, id string, quantity int) error {
	body, err := json.Marshal(stockPatch{Quantity: quantity, Operation: "decrease"})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/products/"+id+"/stock", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = doJSON(c.http, req, "inventory service")
	return err
}
