package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type DeliveryHandler struct {
	service  interfaces.DeliveryService
	tracking interfaces.TrackingService
	logger   logger.Logger
}

func NewDeliveryHandler(service interfaces.DeliveryService, tracking interfaces.TrackingService, logger logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		service:  service,
		tracking: tracking,
		logger:   logger,
	}
}

func (h *DeliveryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /deliveries/{id}", h.GetDelivery)
	mux.HandleFunc("POST /deliveries/{id}/accept", h.Accept)
	mux.HandleFunc("POST /deliveries/{id}/decline", h.Decline)
	mux.HandleFunc("POST /deliveries/{id}/pickup", h.PickUp)
	mux.HandleFunc("POST /deliveries/{id}/complete", h.Complete)

	mux.HandleFunc("GET /drivers", h.ListDrivers)
	mux.HandleFunc("PATCH /drivers/{id}/availability", h.ToggleAvailability)
	mux.HandleFunc("POST /drivers/{id}/heartbeat", h.Heartbeat)
}

type DriverActionRequest struct {
	DriverID string `json:"driverId"`
	Reason   string `json:"reason,omitempty"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"isAvailable"`
}

type DeliveryResponse struct {
	DeliveryID            string     `json:"deliveryId"`
	OrderID               string     `json:"orderId"`
	DriverID              *string    `json:"driverId"`
	Status                string     `json:"status"`
	AcceptanceStatus      string     `json:"acceptanceStatus"`
	DeclinedByDrivers     []string   `json:"declinedByDrivers"`
	DeliveryAddress       string     `json:"deliveryAddress"`
	AssignedAt            *time.Time `json:"assignedAt,omitempty"`
	EstimatedDeliveryTime *time.Time `json:"estimatedDeliveryTime,omitempty"`
	PickedUpAt            *time.Time `json:"pickedUpAt,omitempty"`
	ActualDeliveryTime    *time.Time `json:"actualDeliveryTime,omitempty"`
}

type DriverResponse struct {
	DriverID        string          `json:"driverId"`
	Name            string          `json:"name"`
	IsAvailable     bool            `json:"isAvailable"`
	OnDuty          bool            `json:"onDuty"`
	Rating          float64         `json:"rating"`
	TotalDeliveries int             `json:"totalDeliveries"`
	Location        domain.Location `json:"location"`
}

func (h *DeliveryHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDelivery(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, "delivery_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) Accept(w http.ResponseWriter, r *http.Request) {
	req, ok := h.driverAction(w, r)
	if !ok {
		return
	}
	d, err := h.service.Accept(r.Context(), r.PathValue("id"), req.DriverID)
	if err != nil {
		writeError(w, r, h.logger, "delivery_accept_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) Decline(w http.ResponseWriter, r *http.Request) {
	req, ok := h.driverAction(w, r)
	if !ok {
		return
	}
	d, err := h.service.Decline(r.Context(), r.PathValue("id"), req.DriverID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, r, h.logger, "delivery_decline_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) PickUp(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.PickUp(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, "delivery_pickup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) Complete(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, "delivery_complete_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (h *DeliveryHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	roster, err := h.tracking.GetDriversStatus(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "driver_roster_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (h *DeliveryHandler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, "driver_availability_failed", err)
		return
	}
	if req.IsAvailable == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Errors: []ValidationError{{Field: "isAvailable", Message: "isAvailable is required"}},
		})
		return
	}

	driver, err := h.service.ToggleAvailability(r.Context(), r.PathValue("id"), *req.IsAvailable)
	if err != nil {
		writeError(w, r, h.logger, "driver_availability_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, DriverResponse{
		DriverID:        driver.ID,
		Name:            driver.Name,
		IsAvailable:     driver.IsAvailable,
		OnDuty:          driver.OnDuty,
		Rating:          driver.Rating,
		TotalDeliveries: driver.TotalDeliveries,
		Location:        driver.Location,
	})
}

func (h *DeliveryHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var loc domain.Location
	if err := decodeJSON(w, r, &loc); err != nil {
		writeError(w, r, h.logger, "driver_heartbeat_failed", err)
		return
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		writeError(w, r, h.logger, "driver_heartbeat_failed", domain.Validationf("location out of range"))
		return
	}
	if err := h.service.Heartbeat(r.Context(), r.PathValue("id"), loc); err != nil {
		writeError(w, r, h.logger, "driver_heartbeat_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeliveryHandler) driverAction(w http.ResponseWriter, r *http.Request) (DriverActionRequest, bool) {
	var req DriverActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, "delivery_action_failed", err)
		return req, false
	}
	req.DriverID = strings.TrimSpace(req.DriverID)
	if req.DriverID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Errors: []ValidationError{{Field: "driverId", Message: "driver id is required"}},
		})
		return req, false
	}
	return req, true
}

func toDeliveryResponse(d *domain.Delivery) DeliveryResponse {
	declined := d.DeclinedByDrivers
	if declined == nil {
		declined = []string{}
	}
	return DeliveryResponse{
		DeliveryID:            d.ID,
		OrderID:               d.OrderID,
		DriverID:              d.DriverID,
		Status:                string(d.Status),
		AcceptanceStatus:      string(d.AcceptanceStatus),
		DeclinedByDrivers:     declined,
		DeliveryAddress:       d.DeliveryAddress,
		AssignedAt:            d.AssignedAt,
		EstimatedDeliveryTime: d.EstimatedDeliveryTime,
		PickedUpAt:            d.PickedUpAt,
		ActualDeliveryTime:    d.ActualDeliveryTime,
	}
}
