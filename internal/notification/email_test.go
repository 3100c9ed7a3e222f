package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRoundTripper func(req *http.Request) (*http.Response, error)

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestEmailClient(rt MockRoundTripper) Sender {
	c := NewEmailClient(EmailConfig{
		APIURL: "https://api.resend.com/",
		APIKey: "re_test",
		From:   "orders@duka.local",
	}).(*emailClient)
	c.httpClient.Transport = rt
	return c
}

func TestEmailClient_Send(t *testing.T) {
	ctx := context.Background()
	email := Email{To: "wanjiku@example.com", Subject: "Payment Confirmed", Text: "Asante"}

	t.Run("Success", func(t *testing.T) {
		c := newTestEmailClient(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "https://api.resend.com/emails", req.URL.String())
			assert.Equal(t, "Bearer re_test", req.Header.Get("Authorization"))

			var body sendEmailRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "orders@duka.local", body.From)
			assert.Equal(t, []string{"wanjiku@example.com"}, body.To)
			assert.Equal(t, "Payment Confirmed", body.Subject)

			return jsonResponse(http.StatusOK, `{"id":"msg_1"}`), nil
		})

		assert.NoError(t, c.Send(ctx, email))
	})

	t.Run("Rejected", func(t *testing.T) {
		c := newTestEmailClient(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnprocessableEntity, `{"message":"invalid to address"}`), nil
		})

		err := c.Send(ctx, email)
		var sendErr *SendError
		require.ErrorAs(t, err, &sendErr)
		assert.Equal(t, http.StatusUnprocessableEntity, sendErr.StatusCode)
		assert.Contains(t, sendErr.Body, "invalid to address")
	})

	t.Run("NetworkError", func(t *testing.T) {
		c := newTestEmailClient(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		err := c.Send(ctx, email)
		assert.ErrorContains(t, err, "connection refused")
	})
}
