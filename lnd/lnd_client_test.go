package lnd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testInvoice = "lnbc100u1p3pj257pp5qqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqypq"
const testHash = "0000000000000000000000000000000000000000000000000000000000000001"
const testMacaroon = "0201036c6e640258"

func setupLnd(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, testMacaroon)
	assert.NoError(t, err)
	return client
}

func Test_DecodeInvoice_HappyFlow(t *testing.T) {
	client := setupLnd(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payreq/"+testInvoice, r.URL.Path)
		assert.Equal(t, testMacaroon, r.Header.Get("Grpc-Metadata-macaroon"))
		json.NewEncoder(w).Encode(payReqResponse{PaymentHash: testHash, NumSatoshis: "10000"})
	})

	hash, err := client.DecodeInvoice(context.Background(), testInvoice)

	assert.NoError(t, err)
	assert.Equal(t, testHash, hash)
}

func Test_DecodeInvoice_NoPaymentHash(t *testing.T) {
	client := setupLnd(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payReqResponse{})
	})

	_, err := client.DecodeInvoice(context.Background(), testInvoice)

	assert.Error(t, err)
}

func Test_DecodeInvoice_ErrorStatus(t *testing.T) {
	client := setupLnd(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid checksum", http.StatusInternalServerError)
	})

	_, err := client.DecodeInvoice(context.Background(), testInvoice)

	assert.Error(t, err)
}

func Test_CheckSettled_Settled(t *testing.T) {
	hashBytes, err := hex.DecodeString(testHash)
	assert.NoError(t, err)
	expectedPath := "/v1/invoice/" + base64.URLEncoding.EncodeToString(hashBytes)

	client := setupLnd(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, expectedPath, r.URL.Path)
		json.NewEncoder(w).Encode(invoiceResponse{Settled: true, State: "SETTLED"})
	})

	settled, err := client.CheckSettled(context.Background(), testHash)

	assert.NoError(t, err)
	assert.True(t, settled)
}

func Test_CheckSettled_AcceptedIsNotSettled(t *testing.T) {
	client := setupLnd(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invoiceResponse{Settled: false, State: "ACCEPTED"})
	})

	settled, err := client.CheckSettled(context.Background(), testHash)

	assert.NoError(t, err)
	assert.False(t, settled)
}

func Test_CheckSettled_InvalidHash(t *testing.T) {
	client := setupLnd(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	_, err := client.CheckSettled(context.Background(), "unknown")

	assert.Error(t, err)
}
