package lnproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const originalInvoice = "lnbc100u1p3pj257pp5qqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqypq"
const proxyInvoice = "lnbc100u1pwr4ppedpp5yyysyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqzpw"

func setupRelay(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	assert.NoError(t, err)
	return client
}

func Test_WrapInvoice_HappyFlow(t *testing.T) {
	client := setupRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/spec", r.URL.Path)

		var req wrapRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, originalInvoice, req.Invoice)

		json.NewEncoder(w).Encode(wrapResponse{ProxyInvoice: proxyInvoice})
	})

	wrapped, err := client.WrapInvoice(context.Background(), originalInvoice)

	assert.NoError(t, err)
	assert.Equal(t, proxyInvoice, wrapped)
}

func Test_WrapInvoice_RelayRefusesWithReason(t *testing.T) {
	client := setupRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(wrapResponse{Status: "ERROR", Reason: "amount too small"})
	})

	_, err := client.WrapInvoice(context.Background(), originalInvoice)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}

func Test_WrapInvoice_EmptyProxyInvoice(t *testing.T) {
	client := setupRelay(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wrapResponse{})
	})

	_, err := client.WrapInvoice(context.Background(), originalInvoice)

	assert.Error(t, err)
}

func Test_Available_RelayAnswers(t *testing.T) {
	client := setupRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	assert.True(t, client.Available(context.Background()))
}

func Test_Available_RelayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(server.URL)
	assert.NoError(t, err)
	server.Close()

	assert.False(t, client.Available(context.Background()))
}
