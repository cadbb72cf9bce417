// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthRegisterSuccess    = "auth.register_success"

	// User Management
	KeyUserNotFound  = "user.not_found"
	KeyUserSuspended = "user.suspended"

	// Contracts
	KeyContractCreated      = "contract.created"
	KeyContractNotFound     = "contract.not_found"
	KeyContractSent         = "contract.sent"
	KeyContractCancelled    = "contract.cancelled"
	KeyContractActivated    = "contract.activated"
	KeyContractTerminated   = "contract.terminated"
	KeyContractNotSignable  = "contract.not_signable"
	KeyContractNotEditable  = "contract.not_editable"

	// Signatures
	KeySignatureCodeSent     = "signature.code_sent"
	KeySignatureRecorded     = "signature.recorded"
	KeySignatureAlreadyDone  = "signature.already_done"
	KeyOtpInvalid            = "otp.invalid"
	KeyOtpExpired            = "otp.expired"
	KeyOtpTooManyAttempts    = "otp.too_many_attempts"

	// Escrow
	KeyEscrowNotFound      = "escrow.not_found"
	KeyEscrowCaptured      = "escrow.captured"
	KeyEscrowReleased      = "escrow.released"
	KeyEscrowRefunded      = "escrow.refunded"
	KeyEscrowFrozen        = "escrow.frozen"
	KeyEscrowNotReleasable = "escrow.not_releasable"
	KeyPaymentDeclined     = "payment.declined"
	KeyPaymentTimeout      = "payment.timeout"

	// Disputes
	KeyDisputeOpened    = "dispute.opened"
	KeyDisputeDuplicate = "dispute.duplicate"
	KeyDisputeAssigned  = "dispute.assigned"
	KeyDisputeResolved  = "dispute.resolved"
	KeyDisputeWithdrawn = "dispute.withdrawn"
	KeyDisputeNotFound  = "dispute.not_found"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// Rate limiting
	KeyRateLimitExceeded = "rate_limit.exceeded"

	// Generic errors
	KeyInternalError = "error.internal"
	KeyNotFound      = "error.not_found"
	KeyForbidden     = "error.forbidden"
	KeyConflict      = "error.conflict"
)
