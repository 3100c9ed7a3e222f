package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"duka-be/internal/apperror"
	"duka-be/internal/auth"
	"duka-be/internal/metrics"
	"duka-be/internal/order"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInitiator(h *harness) Initiator {
	return NewInitiator(h.svc, h.attempts, map[order.PaymentMethod]Gateway{
		order.MethodMpesa: h.gateway,
		order.MethodCard:  UnsupportedGateway{Method: order.MethodCard},
	}, metrics.NewPayments())
}

var owner = auth.Principal{UserID: "user-1", Role: auth.RoleUser}

func mpesaInput(amount int64, phone string) InitiateInput {
	o := pendingOrder()
	return InitiateInput{OrderID: o.ID, Amount: decimal.NewFromInt(amount), Phone: phone, Method: order.MethodMpesa}
}

func TestInitiator_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		h := newHarness(pendingOrder())
		svc := newTestInitiator(h)

		res, err := svc.Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)

		pushes := h.gateway.pushes()
		require.Len(t, pushes, 1)
		assert.Equal(t, "254712345678", pushes[0].Phone)
		assert.Equal(t, int64(5000), pushes[0].Amount)
		assert.Equal(t, "7F3C2A1E9B4D", pushes[0].AccountReference)

		o := pendingOrder()
		assert.Equal(t, order.StatusProcessing, h.orders.status(o.ID))

		attempts, _ := h.attempts.ListAttemptsByOrder(ctx, o.ID)
		require.Len(t, attempts, 1)
		assert.Equal(t, OutcomePending, attempts[0].Outcome)
		assert.Equal(t, "ws_CO_1", attempts[0].CheckoutRequestID)
		assert.True(t, attempts[0].Amount.Equal(decimal.NewFromInt(5000)))

		sent := h.notifier.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, order.StatusProcessing, sent[0].To)
	})

	t.Run("SystemPrincipal", func(t *testing.T) {
		h := newHarness(pendingOrder())
		_, err := newTestInitiator(h).Initiate(ctx, auth.Principal{System: true}, mpesaInput(5000, "0712345678"))
		assert.NoError(t, err)
	})

	t.Run("NotOwner", func(t *testing.T) {
		h := newHarness(pendingOrder())
		_, err := newTestInitiator(h).Initiate(ctx, auth.Principal{UserID: "user-2"}, mpesaInput(5000, "0712345678"))
		assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
		assert.Empty(t, h.gateway.pushes())
	})

	t.Run("AmountMismatch", func(t *testing.T) {
		h := newHarness(pendingOrder())
		_, err := newTestInitiator(h).Initiate(ctx, owner, mpesaInput(4000, "0712345678"))

		assert.True(t, apperror.IsKind(err, apperror.KindAmountMismatch))
		assert.Equal(t, order.StatusPending, h.orders.status(pendingOrder().ID))
		assert.Empty(t, h.gateway.pushes())
	})

	t.Run("AlreadyProcessing", func(t *testing.T) {
		o := pendingOrder()
		o.Status = order.StatusProcessing
		h := newHarness(o)

		_, err := newTestInitiator(h).Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		assert.True(t, apperror.IsKind(err, apperror.KindState))
		assert.Empty(t, h.gateway.pushes())
	})

	t.Run("SecondCallFailsFast", func(t *testing.T) {
		h := newHarness(pendingOrder())
		svc := newTestInitiator(h)

		_, err := svc.Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		require.NoError(t, err)

		_, err = svc.Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		assert.True(t, apperror.IsKind(err, apperror.KindState))
		assert.Len(t, h.gateway.pushes(), 1)
	})

	t.Run("InvalidPhone", func(t *testing.T) {
		h := newHarness(pendingOrder())
		_, err := newTestInitiator(h).Initiate(ctx, owner, mpesaInput(5000, "12345"))
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		assert.ErrorIs(t, err, ErrInvalidPhone)
	})

	t.Run("GatewayRejected", func(t *testing.T) {
		h := newHarness(pendingOrder())
		h.gateway.err = &RejectedError{Code: "400.002.02", Description: "Bad Request - Invalid PhoneNumber"}

		_, err := newTestInitiator(h).Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		assert.True(t, apperror.IsKind(err, apperror.KindGateway))
		assert.Equal(t, "Bad Request - Invalid PhoneNumber", apperror.PublicMessage(err))
		assert.Equal(t, order.StatusPending, h.orders.status(pendingOrder().ID))

		attempts, _ := h.attempts.ListAttemptsByOrder(ctx, pendingOrder().ID)
		assert.Empty(t, attempts)
	})

	t.Run("GatewayUnavailable", func(t *testing.T) {
		h := newHarness(pendingOrder())
		h.gateway.err = errors.New("dial tcp: i/o timeout")

		_, err := newTestInitiator(h).Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		assert.True(t, apperror.IsKind(err, apperror.KindGateway))
		assert.Equal(t, "payment provider unavailable", apperror.PublicMessage(err))
	})

	t.Run("CardNotSupported", func(t *testing.T) {
		h := newHarness(pendingOrder())
		in := mpesaInput(5000, "")
		in.Method = order.MethodCard

		_, err := newTestInitiator(h).Initiate(ctx, owner, in)
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		assert.ErrorIs(t, err, ErrMethodNotSupported)
		assert.Equal(t, order.StatusPending, h.orders.status(pendingOrder().ID))
	})

	t.Run("Validation", func(t *testing.T) {
		h := newHarness(pendingOrder())
		svc := newTestInitiator(h)

		_, err := svc.Initiate(ctx, owner, InitiateInput{Amount: decimal.NewFromInt(5000), Method: order.MethodMpesa})
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))

		_, err = svc.Initiate(ctx, owner, InitiateInput{OrderID: "x", Amount: decimal.NewFromInt(5000), Method: "paypal"})
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))

		_, err = svc.Initiate(ctx, owner, InitiateInput{OrderID: "x", Amount: decimal.Zero, Method: order.MethodMpesa})
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	})

	t.Run("FractionalTotalRejected", func(t *testing.T) {
		o := pendingOrder()
		o.Subtotal = decimal.RequireFromString("4499.50")
		o.Total = decimal.RequireFromString("4999.50")
		h := newHarness(o)

		in := mpesaInput(0, "0712345678")
		in.Amount = decimal.RequireFromString("4999.50")

		_, err := newTestInitiator(h).Initiate(ctx, owner, in)
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		assert.Empty(t, h.gateway.pushes())
		assert.Equal(t, order.StatusPending, h.orders.status(o.ID))
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		h := newHarness()
		_, err := newTestInitiator(h).Initiate(ctx, owner, mpesaInput(5000, "0712345678"))
		assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	})
}

func TestInitiator_ConcurrentInitiation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(pendingOrder())
	svc := newTestInitiator(h)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		stateErrs int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(ctx, owner, mpesaInput(5000, "0712345678"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperror.IsKind(err, apperror.KindState):
				stateErrs++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, stateErrs)
	assert.Equal(t, order.StatusProcessing, h.orders.status(pendingOrder().ID))

	attempts, _ := h.attempts.ListAttemptsByOrder(ctx, pendingOrder().ID)
	assert.Len(t, attempts, 1)
}

func TestAccountReference(t *testing.T) {
	assert.Equal(t, "7F3C2A1E9B4D", accountReference("7f3c2a1e-9b4d-4e2f-8a6c-1d2e3f4a5b6c"))
	assert.Equal(t, "ORD42", accountReference("ord-42"))
}
