package chain

import "context"

// PaymentLookup is the result of checking a deposit address for an expected
// payment.
type PaymentLookup struct {
	Found         bool
	Confirmations int32
	Confirmed     bool
}

// Verifier answers questions about on-chain payments. Implementations are
// fallible and latent; callers treat every answer as a snapshot.
type Verifier interface {
	// LookupPayment checks whether a payment of exactly amountSat reached
	// address. A non-empty txid restricts the match to that transaction.
	LookupPayment(ctx context.Context, address string, amountSat int64, txid string) (*PaymentLookup, error)

	// GetConfirmations returns the current confirmation count of txid, 0 for
	// unconfirmed transactions.
	GetConfirmations(ctx context.Context, txid string) (int32, error)
}
