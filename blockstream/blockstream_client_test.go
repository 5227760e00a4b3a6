package blockstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const depositAddress = "bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3"
const depositTxid = "5ff2f95e1e43ad07b6d6a09e93c9ed4e2b3e78b4a0cbd82de988392ae0d0b4b8"

type esploraStub struct {
	utxos       []utxoResponse
	tx          txResponse
	tipHeight   int64
	tipRequests int
}

func (s *esploraStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(s.utxos)
	})
	mux.HandleFunc("/tx/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(s.tx)
	})
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		s.tipRequests++
		fmt.Fprintf(w, "%d", s.tipHeight)
	})
	return mux
}

func setupEsplora(t *testing.T, stub *esploraStub) *Client {
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	assert.NoError(t, err)
	return client
}

func Test_LookupPayment_Found(t *testing.T) {
	stub := &esploraStub{
		utxos: []utxoResponse{{
			Txid:   depositTxid,
			Vout:   0,
			Value:  10000,
			Status: txStatus{Confirmed: true, BlockHeight: 800000},
		}},
		tipHeight: 800002,
	}
	client := setupEsplora(t, stub)

	lookup, err := client.LookupPayment(context.Background(), depositAddress, 10000, depositTxid)

	assert.NoError(t, err)
	assert.True(t, lookup.Found)
	assert.Equal(t, int32(3), lookup.Confirmations)
	assert.True(t, lookup.Confirmed)
}

func Test_LookupPayment_WrongAmountNotFound(t *testing.T) {
	stub := &esploraStub{
		utxos: []utxoResponse{{
			Txid:   depositTxid,
			Value:  9999,
			Status: txStatus{Confirmed: true, BlockHeight: 800000},
		}},
		tipHeight: 800002,
	}
	client := setupEsplora(t, stub)

	lookup, err := client.LookupPayment(context.Background(), depositAddress, 10000, depositTxid)

	assert.NoError(t, err)
	assert.False(t, lookup.Found)
}

func Test_LookupPayment_TxidFilter(t *testing.T) {
	other := "d5ada2c2ed93e7449b9c9c9d8e54b67f1df8750d7c465f5ad0dce2b366a91603"
	stub := &esploraStub{
		utxos: []utxoResponse{
			{Txid: other, Value: 10000, Status: txStatus{Confirmed: true, BlockHeight: 800000}},
		},
		tipHeight: 800002,
	}
	client := setupEsplora(t, stub)

	lookup, err := client.LookupPayment(context.Background(), depositAddress, 10000, depositTxid)

	assert.NoError(t, err)
	assert.False(t, lookup.Found)
}

func Test_LookupPayment_UnconfirmedUtxo(t *testing.T) {
	stub := &esploraStub{
		utxos: []utxoResponse{{
			Txid:   depositTxid,
			Value:  10000,
			Status: txStatus{Confirmed: false},
		}},
	}
	client := setupEsplora(t, stub)

	lookup, err := client.LookupPayment(context.Background(), depositAddress, 10000, depositTxid)

	assert.NoError(t, err)
	assert.True(t, lookup.Found)
	assert.Equal(t, int32(0), lookup.Confirmations)
	assert.False(t, lookup.Confirmed)
	assert.Zero(t, stub.tipRequests)
}

func Test_GetConfirmations_ConfirmedTx(t *testing.T) {
	stub := &esploraStub{
		tx:        txResponse{Txid: depositTxid, Status: txStatus{Confirmed: true, BlockHeight: 799999}},
		tipHeight: 800001,
	}
	client := setupEsplora(t, stub)

	confirmations, err := client.GetConfirmations(context.Background(), depositTxid)

	assert.NoError(t, err)
	assert.Equal(t, int32(3), confirmations)
}

func Test_GetConfirmations_UnconfirmedTx(t *testing.T) {
	stub := &esploraStub{
		tx: txResponse{Txid: depositTxid, Status: txStatus{Confirmed: false}},
	}
	client := setupEsplora(t, stub)

	confirmations, err := client.GetConfirmations(context.Background(), depositTxid)

	assert.NoError(t, err)
	assert.Equal(t, int32(0), confirmations)
	assert.Zero(t, stub.tipRequests)
}

func Test_GetConfirmations_TipHeightCached(t *testing.T) {
	stub := &esploraStub{
		tx:        txResponse{Txid: depositTxid, Status: txStatus{Confirmed: true, BlockHeight: 800000}},
		tipHeight: 800000,
	}
	client := setupEsplora(t, stub)

	_, err := client.GetConfirmations(context.Background(), depositTxid)
	assert.NoError(t, err)
	_, err = client.GetConfirmations(context.Background(), depositTxid)
	assert.NoError(t, err)

	assert.Equal(t, 1, stub.tipRequests)
}
