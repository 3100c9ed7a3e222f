package api

import (
	"net/http"
	"time"

	"duka-be/internal/apperror"
	"duka-be/internal/logger"
	"duka-be/internal/order"
	"duka-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type orderItemResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  *string         `json:"imageUrl,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Shade     *string         `json:"shade,omitempty"`
	Quantity  int             `json:"quantity"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId"`
	Status          order.Status          `json:"status"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	ShippingFee     decimal.Decimal       `json:"shippingFee"`
	Total           decimal.Decimal       `json:"total"`
	PaymentMethod   order.PaymentMethod   `json:"paymentMethod"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Items           []orderItemResponse   `json:"items"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.ProductName,
			ImageURL:  it.ProductImage,
			Price:     it.Price,
			Shade:     it.Shade,
			Quantity:  it.Quantity,
		})
	}

	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		Total:           o.Total,
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// writeError maps err to its HTTP status. Gateway and storage details stay
// in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError && !apperror.IsKind(err, apperror.KindGateway) {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	utils.WriteJSONError(w, apperror.PublicMessage(err), status)
}
