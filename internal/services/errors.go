// internal/services/errors.go
package services

import "errors"

// Error taxonomy. Validation and conflict errors are rejected synchronously
// and never retried; transient gateway errors are retried with backoff up to
// the configured bound; declines are surfaced immediately.
var (
	// Signing
	ErrContractNotSignable = errors.New("contract is not in a signable state")
	ErrAlreadySigned       = errors.New("this party has already signed the contract")
	ErrInvalidCode         = errors.New("verification code is invalid")
	ErrCodeExpired         = errors.New("verification code has expired")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
	ErrChallengeNotFound   = errors.New("verification challenge not found")

	// Escrow
	ErrEntryNotFound    = errors.New("escrow entry not found")
	ErrNotHeld          = errors.New("escrow entry is not held")
	ErrNotRefundable    = errors.New("escrow entry cannot be refunded")
	ErrDisputePending   = errors.New("operation blocked by an open dispute")
	ErrGatewayDeclined  = errors.New("payment gateway declined the operation")
	ErrGatewayTimeout   = errors.New("payment gateway timed out")
	ErrRetractionOpen   = errors.New("statutory retraction window is still open")
	ErrAlreadyFrozen    = errors.New("escrow entry is already frozen")
	ErrNotFrozen        = errors.New("escrow entry is not frozen")

	// Disputes
	ErrDisputeNotFound      = errors.New("dispute not found")
	ErrDuplicateOpenDispute = errors.New("an open dispute already exists for this escrow entry")
	ErrNotAssigned          = errors.New("dispute has no assigned mediator")
	ErrAlreadyResolved      = errors.New("dispute is already resolved")

	// Contracts
	ErrContractNotFound    = errors.New("contract not found")
	ErrContractNotDraft    = errors.New("contract is not a draft")
	ErrNotCancellable      = errors.New("contract can no longer be cancelled")
	ErrNotTerminable       = errors.New("only active contracts can be terminated")
	ErrContractInactive    = errors.New("contract is cancelled or terminated")
	ErrNotParty            = errors.New("user is not a party to this contract")

	// Concurrency: the row moved under the caller, who must refresh and
	// retry with current state.
	ErrStaleVersion = errors.New("concurrent update detected, refresh and retry")
)
