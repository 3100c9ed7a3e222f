package logger

import "go.uber.org/zap"

// Field names shared by every payment log line so operators can grep one key
// across initiator, reconciler and sweeper output.

func OrderID(id string) zap.Field { return zap.String("order_id", id) }

func CheckoutRequestID(id string) zap.Field { return zap.String("checkout_request_id", id) }

func MerchantRequestID(id string) zap.Field { return zap.String("merchant_request_id", id) }

func Status(s string) zap.Field { return zap.String("status", s) }
