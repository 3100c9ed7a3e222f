package api

import (
	"net/http"

	"duka-be/internal/apperror"
	"duka-be/internal/auth"
	"duka-be/internal/order"
	"duka-be/internal/utils"

	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	orders order.Service
}

func NewOrderHandler(orders order.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  *string         `json:"imageUrl"`
	Price     decimal.Decimal `json:"price"`
	Shade     *string         `json:"shade"`
	Quantity  int             `json:"quantity"`
}

type createOrderRequest struct {
	Items           []createOrderItem     `json:"items"`
	ShippingFee     decimal.Decimal       `json:"shippingFee"`
	PaymentMethod   order.PaymentMethod   `json:"paymentMethod"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

type updateStatusResponse struct {
	Order   orderResponse `json:"order"`
	Warning string        `json:"warning,omitempty"`
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req createOrderRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]order.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemInput{
			ProductID:    it.ProductID,
			ProductName:  it.Name,
			ProductImage: it.ImageURL,
			Price:        it.Price,
			Shade:        it.Shade,
			Quantity:     it.Quantity,
		})
	}

	o, err := h.orders.CreateOrder(r.Context(), order.CreateOrderInput{
		UserID:          p.UserID,
		Items:           items,
		ShippingFee:     req.ShippingFee,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]orderResponse{"order": toOrderResponse(o)})
}

// GetOrder handles GET /orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	o, err := h.orders.GetOrderForUser(r.Context(), r.PathValue("id"), p.UserID, p.IsAdmin() || p.System)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]orderResponse{"order": toOrderResponse(o)})
}

// UpdateStatus handles PATCH /admin/orders/{id}/status. It is an override:
// no expected status, but the state machine still applies.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req updateStatusRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		writeError(w, r, apperror.Validation("status is required"))
		return
	}

	tr, err := h.orders.SetStatus(r.Context(), order.SetStatusInput{
		OrderID: r.PathValue("id"),
		Status:  req.Status,
		Actor:   p.Actor(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, updateStatusResponse{
		Order:   toOrderResponse(tr.Order),
		Warning: tr.Warning,
	})
}
