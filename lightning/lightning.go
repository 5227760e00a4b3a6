package lightning

import "context"

// Verifier answers questions about Lightning invoices. Settlement answers are
// authoritative: a deal only advances on an explicit positive result.
type Verifier interface {
	// DecodeInvoice returns the hex encoded payment hash of a bolt11 invoice.
	DecodeInvoice(ctx context.Context, invoice string) (string, error)

	// CheckSettled reports whether the invoice with the given payment hash
	// has been settled.
	CheckSettled(ctx context.Context, paymentHash string) (bool, error)
}
