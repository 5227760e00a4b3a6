package swap

import (
	"errors"
	"time"
)

type OfferKind string

const (
	// The offer creator sells sats over Lightning and receives on-chain.
	OfferKindSellLightning OfferKind = "sell_lightning"
	// The offer creator buys sats over Lightning and pays on-chain.
	OfferKindBuyLightning OfferKind = "buy_lightning"
)

type OfferStatus string

const (
	OfferActive    OfferStatus = "active"
	OfferTaken     OfferStatus = "taken"
	OfferExpired   OfferStatus = "expired"
	OfferCancelled OfferStatus = "cancelled"
)

type Offer struct {
	Id           int64
	Creator      int64
	Kind         OfferKind
	AmountSat    int64
	Status       OfferStatus
	VisibleUntil time.Time
	TakenBy      *int64
	TakenAt      *time.Time
	CreatedAt    time.Time
}

// Status is the externally visible lifecycle of a deal.
type Status string

const (
	StatusPending                 Status = "pending"
	StatusAccepted                Status = "accepted"
	StatusBitcoinSent             Status = "bitcoin_sent"
	StatusBitcoinConfirmed        Status = "bitcoin_confirmed"
	StatusAwaitingPrivacyDecision Status = "awaiting_privacy_decision"
	StatusPrivacyRetry            Status = "privacy_retry"
	StatusInvoiceReceived         Status = "invoice_received"
	StatusAwaitingAddress         Status = "awaiting_address"
	StatusPaymentPending          Status = "payment_pending"
	StatusReadyForBatch           Status = "ready_for_batch"
	StatusCompleted               Status = "completed"
	StatusCancelled               Status = "cancelled"
	StatusExpired                 Status = "expired"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// NonTerminalStatuses returns every status a deal can still move out of.
func NonTerminalStatuses() []Status {
	return []Status{
		StatusPending,
		StatusAccepted,
		StatusBitcoinSent,
		StatusBitcoinConfirmed,
		StatusAwaitingPrivacyDecision,
		StatusPrivacyRetry,
		StatusInvoiceReceived,
		StatusAwaitingAddress,
		StatusPaymentPending,
		StatusReadyForBatch,
	}
}

// Stage names which timer or poller currently owns a deal. It moves together
// with the status but drives timeout dispatch rather than user messaging.
type Stage string

const (
	StageNone               Stage = ""
	StageAcceptRequired     Stage = "accept_required"
	StageTxidRequired       Stage = "txid_required"
	StageConfirmingBitcoin  Stage = "confirming_bitcoin"
	StageInvoiceRequired    Stage = "invoice_required"
	StagePrivacyRetry       Stage = "privacy_retry"
	StageAddressRequired    Stage = "address_required"
	StagePaymentRequired    Stage = "payment_required"
)

// PlaceholderPaymentHash is recorded instead of a real payment hash when
// invoice decoding fails. A deal carrying it can never settle through the
// settlement poller and falls to the payment timeout instead.
const PlaceholderPaymentHash = "unknown"

// Cancel reasons recorded on the deal row.
const (
	ReasonUserRejected        = "user_rejected"
	ReasonAcceptTimeout       = "accept_timeout"
	ReasonTxidTimeout         = "txid_timeout"
	ReasonConfirmationTimeout = "confirmation_timeout"
	ReasonInvoiceTimeout      = "invoice_timeout"
	ReasonAddressTimeout      = "address_timeout"
	ReasonPaymentTimeout      = "payment_timeout"
	ReasonPrivacyTimeout      = "privacy_timeout"
)

type Deal struct {
	Id              int64
	OfferId         int64
	Seller          int64
	Buyer           int64
	AmountSat       int64
	Status          Status
	Stage           Stage
	StageDeadline   *time.Time
	Txid            *string
	Confirmations   int32
	PayoutAddress   *string
	Invoice         *string
	PaymentHash     *string
	PayoutReference *string
	CancelReason    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

var validTransitions = map[Status][]Status{
	StatusPending:                 {StatusAccepted, StatusCancelled, StatusExpired},
	StatusAccepted:                {StatusBitcoinSent, StatusCancelled, StatusExpired},
	StatusBitcoinSent:             {StatusBitcoinSent, StatusBitcoinConfirmed, StatusCancelled},
	StatusBitcoinConfirmed:        {StatusInvoiceReceived, StatusAwaitingPrivacyDecision, StatusCancelled},
	StatusAwaitingPrivacyDecision: {StatusInvoiceReceived, StatusPrivacyRetry, StatusCancelled},
	StatusPrivacyRetry:            {StatusInvoiceReceived, StatusCancelled},
	StatusInvoiceReceived:         {StatusAwaitingAddress, StatusPaymentPending, StatusCancelled},
	StatusAwaitingAddress:         {StatusPaymentPending, StatusCancelled},
	StatusPaymentPending:          {StatusReadyForBatch, StatusCancelled},
	StatusReadyForBatch:           {StatusCompleted},
	StatusCompleted:               {},
	StatusCancelled:               {},
	StatusExpired:                 {},
}

// CanTransition reports whether a deal in status from may move to status to.
// Terminal statuses allow nothing.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Domain errors surfaced by the synchronous handlers. Background loops never
// return these; they log and retry on their next cadence.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrVerificationMismatch = errors.New("verification mismatch")
	ErrServiceUnavailable   = errors.New("external service unavailable")
	ErrAlreadyProcessed     = errors.New("already processed")
	ErrNoActiveDeal         = errors.New("no active deal")
	ErrWrongParty           = errors.New("wrong party")
	ErrOfferNotAvailable    = errors.New("offer not available")
)
