package http

import (
	"io"
	"net/http"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// SignatureHeader carries the hex HMAC-SHA256 of a provider callback body.
const SignatureHeader = "X-Signature"

type PaymentHandler struct {
	service interfaces.PaymentService
	logger  logger.Logger
}

func NewPaymentHandler(service interfaces.PaymentService, logger logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

func (h *PaymentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/payments", h.ProviderCallback)
	mux.HandleFunc("GET /payments/{orderId}", h.GetPayment)
}

type PaymentResponse struct {
	PaymentID     string     `json:"paymentId"`
	OrderID       string     `json:"orderId"`
	Amount        float64    `json:"amount"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID *string    `json:"transactionId,omitempty"`
	FailureReason *string    `json:"failureReason,omitempty"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
}

func (h *PaymentHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		writeError(w, r, h.logger, "webhook_rejected", domain.Validationf("unreadable body: %v", err))
		return
	}

	payment, err := h.service.HandleProviderCallback(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		writeError(w, r, h.logger, "webhook_rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPayment(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, r, h.logger, "payment_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Method:        p.Method,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		ProcessedAt:   p.ProcessedAt,
	}
}
