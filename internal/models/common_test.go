// internal/models/common_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContractStatusMachine(t *testing.T) {
	assert.True(t, ContractStatusDraft.CanTransitionTo(ContractStatusAwaitingSignature))
	assert.True(t, ContractStatusAwaitingSignature.CanTransitionTo(ContractStatusPartiallySigned))
	assert.True(t, ContractStatusPartiallySigned.CanTransitionTo(ContractStatusFullySigned))
	assert.True(t, ContractStatusFullySigned.CanTransitionTo(ContractStatusActive))
	assert.True(t, ContractStatusActive.CanTransitionTo(ContractStatusTerminated))

	// Cancellation is open until activation, not after.
	assert.True(t, ContractStatusDraft.CanTransitionTo(ContractStatusCancelled))
	assert.True(t, ContractStatusFullySigned.CanTransitionTo(ContractStatusCancelled))
	assert.False(t, ContractStatusActive.CanTransitionTo(ContractStatusCancelled))

	// No skipping the signature round and no leaving a terminal state.
	assert.False(t, ContractStatusDraft.CanTransitionTo(ContractStatusActive))
	assert.False(t, ContractStatusAwaitingSignature.CanTransitionTo(ContractStatusFullySigned))
	assert.False(t, ContractStatusCancelled.CanTransitionTo(ContractStatusDraft))
	assert.False(t, ContractStatusTerminated.CanTransitionTo(ContractStatusActive))
}

func TestContractStatusPredicates(t *testing.T) {
	assert.True(t, ContractStatusAwaitingSignature.IsSignable())
	assert.True(t, ContractStatusPartiallySigned.IsSignable())
	assert.False(t, ContractStatusDraft.IsSignable())
	assert.False(t, ContractStatusFullySigned.IsSignable())

	assert.True(t, ContractStatusCancelled.IsTerminal())
	assert.True(t, ContractStatusTerminated.IsTerminal())
	assert.False(t, ContractStatusActive.IsTerminal())
}

func TestEscrowStatusMachine(t *testing.T) {
	assert.True(t, EscrowStatusPending.CanTransitionTo(EscrowStatusAuthorized))
	assert.True(t, EscrowStatusPending.CanTransitionTo(EscrowStatusCaptured))
	assert.True(t, EscrowStatusAuthorized.CanTransitionTo(EscrowStatusCaptured))
	assert.True(t, EscrowStatusCaptured.CanTransitionTo(EscrowStatusHeld))
	assert.True(t, EscrowStatusHeld.CanTransitionTo(EscrowStatusReleased))
	assert.True(t, EscrowStatusHeld.CanTransitionTo(EscrowStatusRefunded))

	// Exhausted captures drop back to pending for the webhook to settle.
	assert.True(t, EscrowStatusAuthorized.CanTransitionTo(EscrowStatusPending))

	// A freeze can thaw back to where it came from or settle terminally.
	assert.True(t, EscrowStatusHeld.CanTransitionTo(EscrowStatusFrozen))
	assert.True(t, EscrowStatusCaptured.CanTransitionTo(EscrowStatusFrozen))
	assert.True(t, EscrowStatusFrozen.CanTransitionTo(EscrowStatusHeld))
	assert.True(t, EscrowStatusFrozen.CanTransitionTo(EscrowStatusCaptured))
	assert.True(t, EscrowStatusFrozen.CanTransitionTo(EscrowStatusReleased))
	assert.True(t, EscrowStatusFrozen.CanTransitionTo(EscrowStatusRefunded))

	// Released and refunded are terminal and mutually exclusive.
	assert.False(t, EscrowStatusReleased.CanTransitionTo(EscrowStatusRefunded))
	assert.False(t, EscrowStatusRefunded.CanTransitionTo(EscrowStatusReleased))
	assert.False(t, EscrowStatusReleased.CanTransitionTo(EscrowStatusHeld))

	// Custody cannot be released before it exists.
	assert.False(t, EscrowStatusPending.CanTransitionTo(EscrowStatusReleased))
	assert.False(t, EscrowStatusPending.CanTransitionTo(EscrowStatusFrozen))
}

func TestEscrowStatusTerminal(t *testing.T) {
	assert.True(t, EscrowStatusReleased.IsTerminal())
	assert.True(t, EscrowStatusRefunded.IsTerminal())
	assert.False(t, EscrowStatusFrozen.IsTerminal())
	assert.False(t, EscrowStatusHeld.IsTerminal())
}

func TestJSONBScanHandlesDriverVariants(t *testing.T) {
	var fromBytes JSONB
	assert.NoError(t, fromBytes.Scan([]byte(`{"rooms": 3}`)))
	assert.EqualValues(t, 3, fromBytes["rooms"])

	var fromString JSONB
	assert.NoError(t, fromString.Scan(`{"furnished": true}`))
	assert.Equal(t, true, fromString["furnished"])

	var fromNil JSONB
	assert.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}

func TestUserPasswordHashing(t *testing.T) {
	user := &User{}
	assert.NoError(t, user.SetPassword("Sup3rSecret!"))
	assert.NotEqual(t, "Sup3rSecret!", user.PasswordHash)

	assert.NoError(t, user.CheckPassword("Sup3rSecret!"))
	assert.Error(t, user.CheckPassword("wrong"))
}

func TestOtpChallengeCode(t *testing.T) {
	challenge := &OtpChallenge{}
	assert.NoError(t, challenge.SetCode("482913"))
	assert.NotEqual(t, "482913", challenge.CodeHash)
	assert.True(t, challenge.CheckCode("482913"))
	assert.False(t, challenge.CheckCode("482914"))
}
