// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the ID application-side so inserts behave the same
// on postgres and the sqlite databases used in tests.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserRole string

const (
	UserRoleLandlord UserRole = "landlord"
	UserRoleTenant   UserRole = "tenant"
	UserRoleMediator UserRole = "mediator"
	UserRoleAdmin    UserRole = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

type ContractStatus string

const (
	ContractStatusDraft             ContractStatus = "draft"
	ContractStatusAwaitingSignature ContractStatus = "awaiting_signatures"
	ContractStatusPartiallySigned   ContractStatus = "partially_signed"
	ContractStatusFullySigned       ContractStatus = "fully_signed"
	ContractStatusActive            ContractStatus = "active"
	ContractStatusTerminated        ContractStatus = "terminated"
	ContractStatusCancelled         ContractStatus = "cancelled"
)

// contractTransitions is the single source of truth for legal status edges.
// Reaching fully_signed is an explicit transition, never a computed property
// of the signature count.
var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusDraft:             {ContractStatusAwaitingSignature, ContractStatusCancelled},
	ContractStatusAwaitingSignature: {ContractStatusPartiallySigned, ContractStatusCancelled},
	ContractStatusPartiallySigned:   {ContractStatusFullySigned, ContractStatusCancelled},
	ContractStatusFullySigned:       {ContractStatusActive, ContractStatusCancelled},
	ContractStatusActive:            {ContractStatusTerminated},
}

func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	for _, allowed := range contractTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ContractStatus) IsTerminal() bool {
	return s == ContractStatusTerminated || s == ContractStatusCancelled
}

// IsSignable reports whether a signature round may run against this status.
func (s ContractStatus) IsSignable() bool {
	return s == ContractStatusAwaitingSignature || s == ContractStatusPartiallySigned
}

type SignerRole string

const (
	SignerRoleLandlord SignerRole = "landlord"
	SignerRoleTenant   SignerRole = "tenant"
)

type EscrowStatus string

const (
	EscrowStatusPending    EscrowStatus = "pending"
	EscrowStatusAuthorized EscrowStatus = "authorized"
	EscrowStatusCaptured   EscrowStatus = "captured"
	EscrowStatusHeld       EscrowStatus = "held"
	EscrowStatusFrozen     EscrowStatus = "frozen"
	EscrowStatusReleased   EscrowStatus = "released"
	EscrowStatusRefunded   EscrowStatus = "refunded"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusPending:    {EscrowStatusAuthorized, EscrowStatusCaptured, EscrowStatusRefunded},
	EscrowStatusAuthorized: {EscrowStatusCaptured, EscrowStatusPending, EscrowStatusRefunded},
	EscrowStatusCaptured:   {EscrowStatusHeld, EscrowStatusFrozen, EscrowStatusRefunded},
	// held leaves to released only through the eligibility check; frozen
	// entries reject release/refund until the dispute handler unfreezes.
	EscrowStatusHeld:   {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusFrozen},
	EscrowStatusFrozen: {EscrowStatusCaptured, EscrowStatusHeld, EscrowStatusReleased, EscrowStatusRefunded},
}

func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

type DisputeStatus string

const (
	DisputeStatusOpen             DisputeStatus = "open"
	DisputeStatusMediatorAssigned DisputeStatus = "mediator_assigned"
	DisputeStatusResolved         DisputeStatus = "resolved"
	DisputeStatusWithdrawn        DisputeStatus = "withdrawn"
)

func (s DisputeStatus) IsTerminal() bool {
	return s == DisputeStatusResolved || s == DisputeStatusWithdrawn
}

type DisputeOutcome string

const (
	DisputeOutcomeReleaseToBeneficiary DisputeOutcome = "release_to_beneficiary"
	DisputeOutcomeRefundToPayer        DisputeOutcome = "refund_to_payer"
	DisputeOutcomeSplit                DisputeOutcome = "split"
)

type DisputeCategory string

const (
	DisputeCategoryPayment   DisputeCategory = "payment"
	DisputeCategoryCondition DisputeCategory = "property_condition"
	DisputeCategoryDeposit   DisputeCategory = "deposit"
	DisputeCategoryOther     DisputeCategory = "other"
)
