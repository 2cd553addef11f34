// Package restaurant calls the restaurant service for open status and menu
// pricing. Any transport failure fails the order closed.
package restaurant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// StatusResponse is the body of GET /restaurants/{id}/status.
type StatusResponse struct {
	RestaurantID string  `json:"restaurantId"`
	Name         string  `json:"name"`
	IsOpen       bool    `json:"isOpen"`
	DeliveryFee  float64 `json:"deliveryFee"`
}

type ValidateRequest struct {
	Items []interfaces.MenuSelection `json:"items"`
}

type ValidatedItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type ValidateResponse struct {
	Valid  bool            `json:"valid"`
	Items  []ValidatedItem `json:"items"`
	Errors []string        `json:"errors,omitempty"`
}

func (c *Client) GetStatus(ctx context.Context, restaurantID string) (*interfaces.RestaurantStatus, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, c.path(restaurantID, "status"), nil, &resp); err != nil {
		return nil, err
	}
	return &interfaces.RestaurantStatus{
		RestaurantID: resp.RestaurantID,
		Name:         resp.Name,
		IsOpen:       resp.IsOpen,
		DeliveryFee:  resp.DeliveryFee,
	}, nil
}

func (c *Client) ValidateMenu(ctx context.Context, restaurantID string, items []interfaces.MenuSelection) ([]domain.OrderItem, error) {
	var resp ValidateResponse
	if err := c.do(ctx, http.MethodPost, c.path(restaurantID, "menu", "validate"), ValidateRequest{Items: items}, &resp); err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, domain.Validationf("menu validation failed: %s", strings.Join(resp.Errors, "; "))
	}

	out := make([]domain.OrderItem, len(resp.Items))
	for i, item := range resp.Items {
		out[i] = domain.OrderItem{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}
	return out, nil
}

func (c *Client) path(restaurantID string, parts ...string) string {
	return c.baseURL + "/restaurants/" + url.PathEscape(restaurantID) + "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Upstream(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Validationf("restaurant not found")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.Validationf("restaurant rejected request: %s", readError(resp.Body))
	case resp.StatusCode >= 300:
		return domain.Upstream(fmt.Errorf("restaurant service returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Upstream(fmt.Errorf("failed to decode restaurant response: %w", err))
	}
	return nil
}

func readError(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
