package http

import (
	"net/http"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type KitchenHandler struct {
	service interfaces.KitchenService
	logger  logger.Logger
}

func NewKitchenHandler(service interfaces.KitchenService, logger logger.Logger) *KitchenHandler {
	return &KitchenHandler{
		service: service,
		logger:  logger,
	}
}

func (h *KitchenHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /kitchen/orders/{orderId}", h.GetKitchenOrder)
}

type KitchenOrderResponse struct {
	OrderID                string     `json:"orderId"`
	RestaurantID           string     `json:"restaurantId"`
	Status                 string     `json:"status"`
	ReceivedAt             time.Time  `json:"receivedAt"`
	StartedAt              *time.Time `json:"startedAt,omitempty"`
	EstimatedReadyTime     *time.Time `json:"estimatedReadyTime,omitempty"`
	ReadyAt                *time.Time `json:"readyAt,omitempty"`
	PreparationTimeSeconds int        `json:"preparationTimeSeconds"`
}

func (h *KitchenHandler) GetKitchenOrder(w http.ResponseWriter, r *http.Request) {
	k, err := h.service.GetKitchenOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, r, h.logger, "kitchen_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, KitchenOrderResponse{
		OrderID:                k.OrderID,
		RestaurantID:           k.RestaurantID,
		Status:                 string(k.Status),
		ReceivedAt:             k.ReceivedAt,
		StartedAt:              k.StartedAt,
		EstimatedReadyTime:     k.EstimatedReadyTime,
		ReadyAt:                k.ReadyAt,
		PreparationTimeSeconds: k.PreparationTimeSeconds,
	})
}
