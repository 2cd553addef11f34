package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type OrderHandler struct {
	service interfaces.OrderService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.OrderService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /orders/{id}/history", h.GetOrderHistory)
}

type CreateOrderRequest struct {
	RestaurantID    string             `json:"restaurantId"`
	UserID          string             `json:"userId"`
	DeliveryAddress string             `json:"deliveryAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Items           []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type OrderItemResponse struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type OrderResponse struct {
	OrderID         string              `json:"orderId"`
	RestaurantID    string              `json:"restaurantId"`
	UserID          string              `json:"userId"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"paymentStatus"`
	DeliveryAddress string              `json:"deliveryAddress"`
	Items           []OrderItemResponse `json:"items"`
	DeliveryFee     float64             `json:"deliveryFee"`
	Total           float64             `json:"total"`
	CreatedAt       time.Time           `json:"createdAt"`
	ConfirmedAt     *time.Time          `json:"confirmedAt,omitempty"`
	DeliveredAt     *time.Time          `json:"deliveredAt,omitempty"`
}

type StatusLogResponse struct {
	Status    string    `json:"status"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
	Notes     *string   `json:"notes,omitempty"`
}

var paymentMethods = map[string]bool{
	"card":   true,
	"wallet": true,
	"cash":   true,
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, "order_creation_failed", err)
		return
	}

	if validationErrors := validateCreateOrderRequest(req); len(validationErrors) > 0 {
		h.logger.Debug("validation_failed", "Order validation failed", RequestID(r.Context()), map[string]interface{}{
			"errors": validationErrors,
		})
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Errors: validationErrors})
		return
	}

	cmd := interfaces.CreateOrderCommand{
		RestaurantID:    strings.TrimSpace(req.RestaurantID),
		UserID:          strings.TrimSpace(req.UserID),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		PaymentMethod:   req.PaymentMethod,
		Items:           convertItemsToCommand(req.Items),
	}

	order, err := h.service.CreateOrder(r.Context(), cmd)
	if err != nil {
		writeError(w, r, h.logger, "order_creation_failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, "order_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.GetOrderHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, "order_history_failed", err)
		return
	}

	resp := make([]StatusLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, StatusLogResponse{
			Status:    l.Status,
			ChangedBy: l.ChangedBy,
			ChangedAt: l.ChangedAt,
			Notes:     l.Notes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// validateCreateOrderRequest checks request shape only; menu and price
// checks belong to the restaurant.
func validateCreateOrderRequest(req CreateOrderRequest) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(req.RestaurantID) == "" {
		errors = append(errors, ValidationError{
			Field:   "restaurantId",
			Message: "restaurant id is required",
		})
	}
	if strings.TrimSpace(req.UserID) == "" {
		errors = append(errors, ValidationError{
			Field:   "userId",
			Message: "user id is required",
		})
	}

	address := strings.TrimSpace(req.DeliveryAddress)
	if len(address) < 5 {
		errors = append(errors, ValidationError{
			Field:   "deliveryAddress",
			Message: "delivery address must be at least 5 characters",
		})
	} else if len(address) > 500 {
		errors = append(errors, ValidationError{
			Field:   "deliveryAddress",
			Message: "delivery address must not exceed 500 characters",
		})
	}

	if !paymentMethods[req.PaymentMethod] {
		errors = append(errors, ValidationError{
			Field:   "paymentMethod",
			Message: "payment method must be one of: card, wallet, cash",
		})
	}

	if len(req.Items) < 1 {
		errors = append(errors, ValidationError{
			Field:   "items",
			Message: "order must contain at least 1 item",
		})
	} else if len(req.Items) > 50 {
		errors = append(errors, ValidationError{
			Field:   "items",
			Message: "order must not contain more than 50 items",
		})
	}

	for i, item := range req.Items {
		itemPrefix := fmt.Sprintf("items[%d]", i)

		if strings.TrimSpace(item.ItemID) == "" {
			errors = append(errors, ValidationError{
				Field:   itemPrefix + ".itemId",
				Message: "item id is required",
			})
		}
		if item.Quantity < 1 || item.Quantity > 20 {
			errors = append(errors, ValidationError{
				Field:   itemPrefix + ".quantity",
				Message: "item quantity must be between 1 and 20",
			})
		}
	}

	return errors
}

func convertItemsToCommand(items []OrderItemRequest) []interfaces.CreateOrderItemCommand {
	result := make([]interfaces.CreateOrderItemCommand, len(items))
	for i, item := range items {
		result[i] = interfaces.CreateOrderItemCommand{
			ItemID:   strings.TrimSpace(item.ItemID),
			Quantity: item.Quantity,
		}
	}
	return result
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}
	return OrderResponse{
		OrderID:         o.ID,
		RestaurantID:    o.RestaurantID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		DeliveryAddress: o.DeliveryAddress,
		Items:           items,
		DeliveryFee:     o.DeliveryFee,
		Total:           o.Total,
		CreatedAt:       o.CreatedAt,
		ConfirmedAt:     o.ConfirmedAt,
		DeliveredAt:     o.DeliveredAt,
	}
}
