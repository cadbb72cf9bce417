// internal/models/contract.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Contract is the rental agreement aggregate. Status is the single source
// of truth and is written only by the contract service; every change is
// mirrored into ContractStatusChange rows so the audit trail can be
// reconstructed. Version backs the optimistic compare-and-set writes that
// keep concurrent service instances from double-applying a transition.
type Contract struct {
	BaseModel
	ReferenceCode string          `json:"reference_code" gorm:"uniqueIndex;size:32;not null"`
	ListingID     uuid.UUID       `json:"listing_id" gorm:"type:uuid;not null;index"`
	LandlordID    uuid.UUID       `json:"landlord_id" gorm:"type:uuid;not null;index"`
	TenantID      uuid.UUID       `json:"tenant_id" gorm:"type:uuid;not null;index"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount" gorm:"type:decimal(12,2);not null"`
	Currency      string          `json:"currency" gorm:"size:3;not null;default:'XAF'"`
	StartDate     time.Time       `json:"start_date" gorm:"not null"`
	EndDate       time.Time       `json:"end_date" gorm:"not null"`
	CustomFields  JSONB           `json:"custom_fields" gorm:"type:jsonb"`
	ContentHash   string          `json:"content_hash" gorm:"size:64"`
	Status        ContractStatus  `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	Version       int64           `json:"version" gorm:"not null;default:0"`

	// Set on the fully_signed transition.
	DocumentRef         string     `json:"document_ref,omitempty" gorm:"size:512"`
	FullySignedAt       *time.Time `json:"fully_signed_at"`
	RetractionDeadline  *time.Time `json:"retraction_deadline" gorm:"index"`
	ActivatedAt         *time.Time `json:"activated_at"`
	TerminatedAt        *time.Time `json:"terminated_at"`
	TerminationReason   string     `json:"termination_reason,omitempty" gorm:"type:text"`
	CancelledAt         *time.Time `json:"cancelled_at"`
	CancellationReason  string     `json:"cancellation_reason,omitempty" gorm:"type:text"`

	// Relationships
	Landlord      User                   `json:"landlord,omitempty" gorm:"foreignKey:LandlordID"`
	Tenant        User                   `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	Signatures    []Signature            `json:"signatures,omitempty" gorm:"foreignKey:ContractID"`
	EscrowEntries []EscrowEntry          `json:"escrow_entries,omitempty" gorm:"foreignKey:ContractID"`
	Disputes      []Dispute              `json:"disputes,omitempty" gorm:"foreignKey:ContractID"`
	StatusChanges []ContractStatusChange `json:"status_changes,omitempty" gorm:"foreignKey:ContractID"`
}

// Signature records one party's legal assent. Rows are immutable and unique
// per (contract, role); a cancelled contract supersedes them without ever
// deleting them.
type Signature struct {
	BaseModel
	ContractID     uuid.UUID  `json:"contract_id" gorm:"type:uuid;not null;uniqueIndex:idx_signatures_contract_role"`
	Role           SignerRole `json:"role" gorm:"type:varchar(10);not null;uniqueIndex:idx_signatures_contract_role"`
	SignerID       uuid.UUID  `json:"signer_id" gorm:"type:uuid;not null;index"`
	OtpChallengeID uuid.UUID  `json:"otp_challenge_id" gorm:"type:uuid;not null"`
	OtpVerifiedAt  time.Time  `json:"otp_verified_at" gorm:"not null"`
	SignedAt       time.Time  `json:"signed_at" gorm:"not null"`
	ContentHash    string     `json:"content_hash" gorm:"size:64;not null"`

	// Relationships
	Contract Contract `json:"contract,omitempty" gorm:"foreignKey:ContractID"`
	Signer   User     `json:"signer,omitempty" gorm:"foreignKey:SignerID"`
}

// ContractStatusChange is an append-only audit row.
type ContractStatusChange struct {
	BaseModel
	ContractID uuid.UUID      `json:"contract_id" gorm:"type:uuid;not null;index"`
	FromStatus ContractStatus `json:"from_status" gorm:"type:varchar(20);not null"`
	ToStatus   ContractStatus `json:"to_status" gorm:"type:varchar(20);not null"`
	ActorID    *uuid.UUID     `json:"actor_id" gorm:"type:uuid"`
	Reason     string         `json:"reason,omitempty" gorm:"type:text"`
}
