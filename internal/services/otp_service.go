// internal/services/otp_service.go
package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

// OtpService issues and verifies single-use short-lived codes bound to
// (subject, purpose, phone). It knows nothing about contracts or payments.
type OtpService struct {
	db     *gorm.DB
	config *config.Config
	clock  gateways.Clock

	mtx      sync.Mutex
	limiters map[string]*rate.Limiter
}

// IssuedChallenge carries the plaintext code back to the caller exactly
// once, so the delivery transport can send it. Only the bcrypt hash is
// stored.
type IssuedChallenge struct {
	ChallengeID uuid.UUID
	Code        string
	ExpiresAt   time.Time
}

func NewOtpService(db *gorm.DB, cfg *config.Config, clock gateways.Clock) *OtpService {
	return &OtpService{
		db:       db,
		config:   cfg,
		clock:    clock,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Issue creates a new challenge for (subject, purpose, scopeRef, phone).
// Issuance is rate-limited per subject and purpose.
func (s *OtpService) Issue(subjectID uuid.UUID, purpose, scopeRef, phone string) (*IssuedChallenge, error) {
	if !s.issueLimiter(subjectID, purpose).Allow() {
		return nil, ErrTooManyAttempts
	}

	code, err := utils.GenerateOtpCode(s.config.Otp.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	challenge := &models.OtpChallenge{
		SubjectID: subjectID,
		Purpose:   purpose,
		ScopeRef:  scopeRef,
		Phone:     phone,
		ExpiresAt: s.clock.Now().Add(s.config.Otp.TTL),
	}
	if err := challenge.SetCode(code); err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	if err := s.db.Create(challenge).Error; err != nil {
		return nil, fmt.Errorf("failed to persist challenge: %w", err)
	}

	return &IssuedChallenge{
		ChallengeID: challenge.ID,
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// Verify checks a code against a challenge. A challenge is consumed on its
// first terminal outcome: success, expiry, or exhausting the attempt
// budget. Replaying a consumed challenge always fails, regardless of the
// code value.
func (s *OtpService) Verify(challengeID uuid.UUID, code string) (*models.OtpChallenge, error) {
	var challenge models.OtpChallenge
	verifyErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", challengeID).First(&challenge).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return fmt.Errorf("failed to load challenge: %w", err)
		}

		now := s.clock.Now()

		if challenge.ConsumedAt != nil {
			return ErrInvalidCode
		}

		if challenge.Expired(now) {
			if err := consumeChallenge(tx, &challenge, map[string]interface{}{
				"consumed_at": now,
			}); err != nil {
				return err
			}
			return ErrCodeExpired
		}

		challenge.Attempts++

		if challenge.CheckCode(code) {
			if err := consumeChallenge(tx, &challenge, map[string]interface{}{
				"attempts":    challenge.Attempts,
				"verified_at": now,
				"consumed_at": now,
			}); err != nil {
				return err
			}
			challenge.VerifiedAt = &now
			challenge.ConsumedAt = &now
			return nil
		}

		if challenge.Attempts >= s.config.Otp.MaxAttempts {
			if err := consumeChallenge(tx, &challenge, map[string]interface{}{
				"attempts":    challenge.Attempts,
				"consumed_at": now,
			}); err != nil {
				return err
			}
			return ErrTooManyAttempts
		}

		if err := consumeChallenge(tx, &challenge, map[string]interface{}{
			"attempts": challenge.Attempts,
		}); err != nil {
			return err
		}
		return ErrInvalidCode
	})

	if verifyErr != nil {
		return nil, verifyErr
	}
	return &challenge, nil
}

// consumeChallenge applies a verification outcome. The update is guarded
// on consumed_at, so of two verifications racing on the same challenge
// only one can finalize it; the loser sees ErrInvalidCode.
func consumeChallenge(tx *gorm.DB, challenge *models.OtpChallenge, updates map[string]interface{}) error {
	result := tx.Model(&models.OtpChallenge{}).
		Where("id = ? AND consumed_at IS NULL", challenge.ID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update challenge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidCode
	}
	return nil
}

func (s *OtpService) issueLimiter(subjectID uuid.UUID, purpose string) *rate.Limiter {
	key := subjectID.String() + ":" + purpose

	s.mtx.Lock()
	defer s.mtx.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		perHour := s.config.Otp.IssuePerHour
		if perHour < 1 {
			perHour = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
		s.limiters[key] = limiter
	}
	return limiter
}
