// internal/models/audit.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	OldValues    JSONB      `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// CompensationLog records a cross-component action whose second leg could
// not run in the same transaction (for example a gateway transfer issued
// while resolving a dispute). A reconciliation job scans unresolved rows and
// replays or reverses the missing leg.
type CompensationLog struct {
	BaseModel
	EntityType string     `json:"entity_type" gorm:"size:50;not null;index"`
	EntityID   uuid.UUID  `json:"entity_id" gorm:"type:uuid;not null;index"`
	Action     string     `json:"action" gorm:"size:100;not null"`
	Payload    JSONB      `json:"payload" gorm:"type:jsonb"`
	ResolvedAt *time.Time `json:"resolved_at" gorm:"index"`
}
