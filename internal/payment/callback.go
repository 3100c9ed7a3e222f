package payment

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ResultCodeSuccess is the only callback result code that means money moved.
const ResultCodeSuccess = 0

// CallbackEnvelope is the body the gateway posts to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the result of one push. ResultCode is nil when the gateway
// omitted it; a zero value would otherwise read as success.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *int              `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// ParseCallback decodes a raw callback. Numbers stay json.Number so
// receipt-like numeric values keep every digit.
func ParseCallback(raw []byte) (*CallbackEnvelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env CallbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Succeeded reports whether the gateway explicitly said the payment went through.
func (cb STKCallback) Succeeded() bool {
	return cb.ResultCode != nil && *cb.ResultCode == ResultCodeSuccess
}

// Lookup finds a metadata value by name. The gateway does not guarantee
// item order, so positions are never used.
func (m *CallbackMetadata) Lookup(name string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, item := range m.Item {
		if item.Name == name && item.Value != nil {
			return item.Value, true
		}
	}
	return nil, false
}

func (m *CallbackMetadata) String(name string) (string, bool) {
	v, ok := m.Lookup(name)
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	}
	return "", false
}

func (m *CallbackMetadata) Decimal(name string) (decimal.Decimal, bool) {
	s, ok := m.String(name)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Time reads a yyyyMMddHHmmss value in the given zone.
func (m *CallbackMetadata) Time(name string, loc *time.Location) (time.Time, bool) {
	s, ok := m.String(name)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(mpesaTimestampLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
