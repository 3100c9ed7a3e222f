package webhook

import (
	"context"
	"io"
	"net/http"
	"time"

	"duka-be/internal/logger"
	"duka-be/internal/payment"
	"duka-be/internal/utils"

	"go.uber.org/zap"
)

const (
	maxCallbackBody = 1 << 20
	reconcileBudget = 15 * time.Second
)

// ack is the only body the gateway ever sees from us.
var ack = map[string]bool{"success": true}

type Handler struct {
	reconciler payment.Reconciler
}

func NewWebhookHandler(reconciler payment.Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// MpesaCallback receives STK push results. It acknowledges every request with
// 200 so the gateway stops retrying; unusable payloads are kept as orphans by
// the reconciler.
func (h *Handler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("handler", "mpesa_callback"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	defer r.Body.Close()
	if err != nil {
		log.Warn("Failed to read callback body", zap.Error(err), zap.Int("read_bytes", len(body)))
	}

	// the gateway may hang up once it has its ack; finish the write anyway
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), reconcileBudget)
	defer cancel()

	res, err := h.reconciler.Reconcile(logger.WithLogger(ctx, log), body)
	if err != nil {
		log.Error("Callback reconciliation failed", zap.Error(err))
	} else {
		log.Info("Callback reconciled", zap.String("result", string(res)))
	}

	utils.WriteJSON(w, http.StatusOK, ack)
}
