package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

const tokenBody = `{"access_token":"tok-123","expires_in":"3599"}`

func newTestGateway(t *testing.T) *mpesaGateway {
	t.Helper()
	gw := NewMpesaGateway(MpesaConfig{
		BaseURL:        "https://sandbox.safaricom.co.ke",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Passkey:        "passkey",
		Shortcode:      "174379",
		CallbackURL:    "https://shop.example/payments/mpesa/callback",
	}).(*mpesaGateway)

	fixed := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
	gw.now = func() time.Time { return fixed }
	return gw
}

func TestMpesaGateway_Push(t *testing.T) {
	pushReq := PushRequest{Phone: "254712345678", Amount: 5000, AccountReference: "ORD12345678", Description: "Order ORD12345678"}

	t.Run("Success", func(t *testing.T) {
		gw := newTestGateway(t)
		var pushed stkPushRequest

		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			switch req.URL.Path {
			case "/oauth/v1/generate":
				user, pass, ok := req.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "key", user)
				assert.Equal(t, "secret", pass)
				assert.Equal(t, "client_credentials", req.URL.Query().Get("grant_type"))
				return jsonResponse(http.StatusOK, tokenBody)
			case "/mpesa/stkpush/v1/processrequest":
				assert.Equal(t, http.MethodPost, req.Method)
				assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(req.Body).Decode(&pushed))
				return jsonResponse(http.StatusOK, `{
					"MerchantRequestID": "29115-34620561-1",
					"CheckoutRequestID": "ws_CO_191220191020363925",
					"ResponseCode": "0",
					"ResponseDescription": "Success. Request accepted for processing",
					"CustomerMessage": "Success. Request accepted for processing"
				}`)
			}
			t.Fatalf("unexpected request to %s", req.URL)
			return nil
		})

		res, err := gw.Push(context.Background(), pushReq)
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_191220191020363925", res.CheckoutRequestID)
		assert.Equal(t, "29115-34620561-1", res.MerchantRequestID)

		// 09:30:15 UTC is 12:30:15 in Nairobi
		assert.Equal(t, "20240301123015", pushed.Timestamp)
		wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + "20240301123015"))
		assert.Equal(t, wantPassword, pushed.Password)
		assert.Equal(t, int64(5000), pushed.Amount)
		assert.Equal(t, "254712345678", pushed.PartyA)
		assert.Equal(t, "254712345678", pushed.PhoneNumber)
		assert.Equal(t, "174379", pushed.PartyB)
		assert.Equal(t, "CustomerPayBillOnline", pushed.TransactionType)
		assert.Equal(t, "ORD12345678", pushed.AccountReference)
		assert.Equal(t, "https://shop.example/payments/mpesa/callback", pushed.CallBackURL)
	})

	t.Run("TokenIsCached", func(t *testing.T) {
		gw := newTestGateway(t)
		tokenCalls := 0

		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			if req.URL.Path == "/oauth/v1/generate" {
				tokenCalls++
				return jsonResponse(http.StatusOK, tokenBody)
			}
			return jsonResponse(http.StatusOK, `{"MerchantRequestID":"m","CheckoutRequestID":"c","ResponseCode":"0"}`)
		})

		for i := 0; i < 3; i++ {
			_, err := gw.Push(context.Background(), pushReq)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, tokenCalls)
	})

	t.Run("TokenRefreshedAfterExpiry", func(t *testing.T) {
		gw := newTestGateway(t)
		tokenCalls := 0
		now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		gw.now = func() time.Time { return now }

		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			if req.URL.Path == "/oauth/v1/generate" {
				tokenCalls++
				return jsonResponse(http.StatusOK, tokenBody)
			}
			return jsonResponse(http.StatusOK, `{"MerchantRequestID":"m","CheckoutRequestID":"c","ResponseCode":"0"}`)
		})

		_, err := gw.Push(context.Background(), pushReq)
		require.NoError(t, err)

		now = now.Add(59 * time.Minute)
		_, err = gw.Push(context.Background(), pushReq)
		require.NoError(t, err)

		assert.Equal(t, 2, tokenCalls)
	})

	t.Run("Rejected", func(t *testing.T) {
		gw := newTestGateway(t)
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			if req.URL.Path == "/oauth/v1/generate" {
				return jsonResponse(http.StatusOK, tokenBody)
			}
			return jsonResponse(http.StatusBadRequest, `{
				"requestId": "11728-2929992-1",
				"errorCode": "400.002.02",
				"errorMessage": "Bad Request - Invalid PhoneNumber"
			}`)
		})

		_, err := gw.Push(context.Background(), pushReq)
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "400.002.02", rejected.Code)
		assert.Equal(t, "Bad Request - Invalid PhoneNumber", rejected.Description)
	})

	t.Run("NonZeroResponseCode", func(t *testing.T) {
		gw := newTestGateway(t)
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			if req.URL.Path == "/oauth/v1/generate" {
				return jsonResponse(http.StatusOK, tokenBody)
			}
			return jsonResponse(http.StatusOK, `{"ResponseCode":"1","ResponseDescription":"Unable to lock subscriber"}`)
		})

		_, err := gw.Push(context.Background(), pushReq)
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "Unable to lock subscriber", rejected.Description)
	})

	t.Run("UnauthorizedDropsCachedToken", func(t *testing.T) {
		gw := newTestGateway(t)
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			if req.URL.Path == "/oauth/v1/generate" {
				return jsonResponse(http.StatusOK, tokenBody)
			}
			return jsonResponse(http.StatusUnauthorized, `{"errorCode":"404.001.03","errorMessage":"Invalid Access Token"}`)
		})

		_, err := gw.Push(context.Background(), pushReq)
		assert.Error(t, err)
		assert.Empty(t, gw.token)
	})

	t.Run("TokenFailure", func(t *testing.T) {
		gw := newTestGateway(t)
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusBadRequest, `{"errorMessage":"Invalid credentials"}`)
		})

		_, err := gw.Push(context.Background(), pushReq)
		assert.ErrorContains(t, err, "mpesa token error")
	})

	t.Run("NetworkError", func(t *testing.T) {
		gw := newTestGateway(t)
		gw.httpClient.Transport = MockRoundTripperWithError(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/oauth/v1/generate" {
				return jsonResponse(http.StatusOK, tokenBody), nil
			}
			return nil, errors.New("connection refused")
		})

		_, err := gw.Push(context.Background(), pushReq)
		assert.ErrorContains(t, err, "connection refused")
		var rejected *RejectedError
		assert.False(t, errors.As(err, &rejected))
	})
}

func TestUnsupportedGateway(t *testing.T) {
	_, err := UnsupportedGateway{Method: "card"}.Push(context.Background(), PushRequest{})
	assert.ErrorIs(t, err, ErrMethodNotSupported)
}
