package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDelivery(t *testing.T) {
	body, err := RenderDelivery(DeliveryData{
		CustomerName: "Ana",
		OrderRef:     "a1b2c3d4",
		AppURL:       "https://loja.example.com",
		Items: []DeliveryItem{
			{
				Title: "Go em Português",
				Grants: []DeliveryGrant{
					{Format: "pdf", Token: "tok-pdf"},
					{Format: "epub", Token: "tok-epub"},
				},
			},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Olá Ana")
	assert.Contains(t, body, "#a1b2c3d4")
	assert.Contains(t, body, "Go em Português")
	assert.Contains(t, body, "https://loja.example.com/api/download/tok-pdf")
	assert.Contains(t, body, "https://loja.example.com/api/download/tok-epub")
	assert.Contains(t, body, "https://loja.example.com/biblioteca")
}

func TestRenderDeliveryDefaultsName(t *testing.T) {
	body, err := RenderDelivery(DeliveryData{OrderRef: "a1b2c3d4"})
	require.NoError(t, err)
	assert.Contains(t, body, "Olá Leitor")
}

func TestResendMailerSend(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer srv.Close()

	m := NewResendMailer("re_key", "Fude Kotoba <loja@example.com>")
	m.baseURL = srv.URL

	err := m.Send(context.Background(), Message{
		To:      "leitor@example.com",
		Subject: "Seus e-books estão prontos!",
		HTML:    "<p>olá</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Fude Kotoba <loja@example.com>", got.From)
	assert.Equal(t, []string{"leitor@example.com"}, got.To)
	assert.Equal(t, "Seus e-books estão prontos!", got.Subject)
}

func TestResendMailerSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewResendMailer("bad", "loja@example.com")
	m.baseURL = srv.URL

	assert.Error(t, m.Send(context.Background(), Message{To: "leitor@example.com"}))
}
