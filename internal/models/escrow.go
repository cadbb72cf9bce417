// internal/models/escrow.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowEntry is the custody record for one payment obligation. Its status
// is written only by the escrow service; the frozen transition is the single
// exception, forced by the dispute service when a claim is opened. Released
// and refunded are terminal and mutually exclusive.
type EscrowEntry struct {
	BaseModel
	ContractID    uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null;index"`
	PayerID       uuid.UUID       `json:"payer_id" gorm:"type:uuid;not null;index"`
	BeneficiaryID uuid.UUID       `json:"beneficiary_id" gorm:"type:uuid;not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency      string          `json:"currency" gorm:"size:3;not null;default:'XAF'"`
	DueDate       time.Time       `json:"due_date" gorm:"not null;index"`
	Status        EscrowStatus    `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Version       int64           `json:"version" gorm:"not null;default:0"`

	// FrozenFrom remembers the status a freeze interrupted so resolution can
	// restore it. FreezeDisputeID points at the dispute holding the freeze.
	FrozenFrom      *EscrowStatus `json:"frozen_from,omitempty" gorm:"type:varchar(20)"`
	FreezeDisputeID *uuid.UUID    `json:"freeze_dispute_id,omitempty" gorm:"type:uuid"`

	// Gateway bookkeeping. CaptureAttempts drives idempotency keys; an entry
	// flagged NeedsAttention exhausted its capture retries and waits for the
	// reconcile webhook or support tooling.
	GatewayRef      string     `json:"gateway_ref,omitempty" gorm:"size:255;index"`
	CaptureAttempts int        `json:"capture_attempts" gorm:"not null;default:0"`
	NeedsAttention  bool       `json:"needs_attention" gorm:"not null;default:false;index"`
	LastGatewayErr  string     `json:"last_gateway_error,omitempty" gorm:"type:text"`
	AuthorizedAt    *time.Time `json:"authorized_at"`
	CapturedAt      *time.Time `json:"captured_at"`

	// AutoReleaseAt is computed once at capture time; the sweep compares it
	// against the injected clock.
	AutoReleaseAt           *time.Time `json:"auto_release_at" gorm:"index"`
	BeneficiaryConfirmedAt  *time.Time `json:"beneficiary_confirmed_at"`
	ReleasedAt              *time.Time `json:"released_at"`
	RefundedAt              *time.Time `json:"refunded_at"`
	RefundReason            string     `json:"refund_reason,omitempty" gorm:"type:text"`

	// Split resolutions release a fraction and refund the remainder.
	ReleasedAmount decimal.Decimal `json:"released_amount" gorm:"type:decimal(12,2);default:0"`
	RefundedAmount decimal.Decimal `json:"refunded_amount" gorm:"type:decimal(12,2);default:0"`

	// Relationships
	Contract      Contract             `json:"contract,omitempty" gorm:"foreignKey:ContractID"`
	Payer         User                 `json:"payer,omitempty" gorm:"foreignKey:PayerID"`
	Beneficiary   User                 `json:"beneficiary,omitempty" gorm:"foreignKey:BeneficiaryID"`
	StatusChanges []EscrowStatusChange `json:"status_changes,omitempty" gorm:"foreignKey:EscrowEntryID"`
}

// EscrowStatusChange is an append-only audit row.
type EscrowStatusChange struct {
	BaseModel
	EscrowEntryID uuid.UUID    `json:"escrow_entry_id" gorm:"type:uuid;not null;index"`
	FromStatus    EscrowStatus `json:"from_status" gorm:"type:varchar(20);not null"`
	ToStatus      EscrowStatus `json:"to_status" gorm:"type:varchar(20);not null"`
	Reason        string       `json:"reason,omitempty" gorm:"type:text"`
}
