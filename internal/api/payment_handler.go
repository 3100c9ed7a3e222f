package api

import (
	"net/http"

	"duka-be/internal/auth"
	"duka-be/internal/order"
	"duka-be/internal/payment"
	"duka-be/internal/utils"

	"github.com/shopspring/decimal"
)

const defaultInitiateMessage = "Payment request sent. Check your phone to complete payment."

type PaymentHandler struct {
	initiator payment.Initiator
}

func NewPaymentHandler(initiator payment.Initiator) *PaymentHandler {
	return &PaymentHandler{initiator: initiator}
}

type initiateRequest struct {
	Amount        decimal.Decimal     `json:"amount"`
	Phone         string              `json:"phone"`
	OrderID       string              `json:"orderId"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
}

type initiateResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	Warning           string `json:"warning,omitempty"`
}

// Initiate handles POST /payments/initiate.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req initiateRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.initiator.Initiate(r.Context(), p, payment.InitiateInput{
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Phone:   req.Phone,
		Method:  req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := res.CustomerMessage
	if msg == "" {
		msg = defaultInitiateMessage
	}

	utils.WriteJSON(w, http.StatusOK, initiateResponse{
		Success:           true,
		Message:           msg,
		CheckoutRequestID: res.CheckoutRequestID,
		Warning:           res.Warning,
	})
}
