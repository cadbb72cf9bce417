// internal/models/otp.go
package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const OtpPurposeContractSign = "contract-sign"

// OtpChallenge is a single-use short-lived code bound to
// (subject, purpose, phone). The code itself is never stored, only a bcrypt
// hash. A challenge is consumed on its first terminal verification: success,
// expiry, or exhausting the attempt budget.
type OtpChallenge struct {
	BaseModel
	SubjectID  uuid.UUID  `json:"subject_id" gorm:"type:uuid;not null;index"`
	Purpose    string     `json:"purpose" gorm:"size:50;not null;index"`
	ScopeRef   string     `json:"scope_ref" gorm:"size:64;not null;index"`
	Phone      string     `json:"phone" gorm:"size:20;not null"`
	CodeHash   string     `json:"-" gorm:"size:255;not null"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null"`
	Attempts   int        `json:"attempts" gorm:"not null;default:0"`
	VerifiedAt *time.Time `json:"verified_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
}

func (o *OtpChallenge) SetCode(code string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.CodeHash = string(hash)
	return nil
}

func (o *OtpChallenge) CheckCode(code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(o.CodeHash), []byte(code)) == nil
}

func (o *OtpChallenge) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
