package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Status_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())

	for _, status := range NonTerminalStatuses() {
		assert.False(t, status.IsTerminal(), "status %s", status)
	}
}

func Test_CanTransition_HappyPath(t *testing.T) {
	path := []Status{
		StatusPending,
		StatusAccepted,
		StatusBitcoinSent,
		StatusBitcoinConfirmed,
		StatusInvoiceReceived,
		StatusAwaitingAddress,
		StatusPaymentPending,
		StatusReadyForBatch,
		StatusCompleted,
	}

	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func Test_CanTransition_PrivacyDetour(t *testing.T) {
	assert.True(t, CanTransition(StatusBitcoinConfirmed, StatusAwaitingPrivacyDecision))
	assert.True(t, CanTransition(StatusAwaitingPrivacyDecision, StatusInvoiceReceived))
	assert.True(t, CanTransition(StatusAwaitingPrivacyDecision, StatusPrivacyRetry))
	assert.True(t, CanTransition(StatusPrivacyRetry, StatusInvoiceReceived))
	assert.False(t, CanTransition(StatusPrivacyRetry, StatusAwaitingPrivacyDecision))
}

func Test_CanTransition_TerminalAllowsNothing(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusExpired}
	all := append(NonTerminalStatuses(), terminal...)

	for _, from := range terminal {
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func Test_CanTransition_NoSkippingPayment(t *testing.T) {
	assert.False(t, CanTransition(StatusBitcoinConfirmed, StatusReadyForBatch))
	assert.False(t, CanTransition(StatusInvoiceReceived, StatusReadyForBatch))
	assert.False(t, CanTransition(StatusPaymentPending, StatusCompleted))
}
