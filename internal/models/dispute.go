// internal/models/dispute.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Dispute is a claim against a contract and optionally one escrow entry.
// At most one non-terminal dispute may reference an entry at a time; the
// guarantee is enforced by a partial unique index (see database.createIndexes)
// so it holds across concurrent service instances, not just in-process.
type Dispute struct {
	BaseModel
	ContractID      uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null;index"`
	EscrowEntryID   *uuid.UUID      `json:"escrow_entry_id,omitempty" gorm:"type:uuid;index"`
	ClaimantID      uuid.UUID       `json:"claimant_id" gorm:"type:uuid;not null;index"`
	RespondentID    uuid.UUID       `json:"respondent_id" gorm:"type:uuid;not null;index"`
	Category        DisputeCategory `json:"category" gorm:"type:varchar(30);not null"`
	Motif           string          `json:"motif" gorm:"size:255;not null"`
	Description     string          `json:"description" gorm:"type:text"`
	Evidence        pq.StringArray  `json:"evidence" gorm:"type:text[]"`
	Status          DisputeStatus   `json:"status" gorm:"type:varchar(20);default:'open';index"`
	Version         int64           `json:"version" gorm:"not null;default:0"`
	MediatorID      *uuid.UUID      `json:"mediator_id,omitempty" gorm:"type:uuid;index"`
	AssignedAt      *time.Time      `json:"assigned_at"`
	Outcome         *DisputeOutcome `json:"outcome,omitempty" gorm:"type:varchar(30)"`
	ResolutionNotes string          `json:"resolution_notes,omitempty" gorm:"type:text"`
	ResolvedAt      *time.Time      `json:"resolved_at"`
	WithdrawnAt     *time.Time      `json:"withdrawn_at"`

	// Relationships
	Contract    Contract     `json:"contract,omitempty" gorm:"foreignKey:ContractID"`
	EscrowEntry *EscrowEntry `json:"escrow_entry,omitempty" gorm:"foreignKey:EscrowEntryID"`
	Claimant    User         `json:"claimant,omitempty" gorm:"foreignKey:ClaimantID"`
	Respondent  User         `json:"respondent,omitempty" gorm:"foreignKey:RespondentID"`
	Mediator    *User        `json:"mediator,omitempty" gorm:"foreignKey:MediatorID"`
}
