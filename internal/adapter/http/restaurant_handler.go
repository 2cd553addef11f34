package http

import (
	"errors"
	"net/http"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/restaurant"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// RestaurantHandler serves the restaurant collaborator API that
// restaurant.Client calls.
type RestaurantHandler struct {
	restaurants interfaces.RestaurantClient
	logger      logger.Logger
}

func NewRestaurantHandler(restaurants interfaces.RestaurantClient, logger logger.Logger) *RestaurantHandler {
	return &RestaurantHandler{
		restaurants: restaurants,
		logger:      logger,
	}
}

func (h *RestaurantHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /restaurants/{id}/status", h.GetStatus)
	mux.HandleFunc("POST /restaurants/{id}/menu/validate", h.ValidateMenu)
}

func (h *RestaurantHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.restaurants.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			err = domain.NotFoundf("restaurant %s", r.PathValue("id"))
		}
		writeError(w, r, h.logger, "restaurant_status_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, restaurant.StatusResponse{
		RestaurantID: status.RestaurantID,
		Name:         status.Name,
		IsOpen:       status.IsOpen,
		DeliveryFee:  status.DeliveryFee,
	})
}

// ValidateMenu answers 200 with valid=false for unknown or unavailable
// items; only a malformed request is a 400.
func (h *RestaurantHandler) ValidateMenu(w http.ResponseWriter, r *http.Request) {
	var req restaurant.ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, "menu_validation_failed", err)
		return
	}

	items, err := h.restaurants.ValidateMenu(r.Context(), r.PathValue("id"), req.Items)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			writeError(w, r, h.logger, "menu_validation_failed", err)
			return
		}
		writeJSON(w, http.StatusOK, restaurant.ValidateResponse{
			Valid:  false,
			Items:  []restaurant.ValidatedItem{},
			Errors: []string{err.Error()},
		})
		return
	}

	resp := restaurant.ValidateResponse{Valid: true, Items: make([]restaurant.ValidatedItem, len(items))}
	for i, item := range items {
		resp.Items[i] = restaurant.ValidatedItem{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
