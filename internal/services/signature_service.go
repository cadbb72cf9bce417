// internal/services/signature_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/database"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/models"
)

// SignatureService runs the dual-party signature round: a one-time code
// per signer, verified before the signature row is written. The second
// signature drives the fully_signed transition, and everything that hangs
// off that edge (retraction deadline, first escrow entry) commits in the
// same transaction.
type SignatureService struct {
	db       *gorm.DB
	config   *config.Config
	otp      *OtpService
	escrow   *EscrowService
	docs     gateways.DocumentGenerator
	clock    gateways.Clock
	notifier *NotificationService
}

func NewSignatureService(db *gorm.DB, cfg *config.Config, otp *OtpService, escrow *EscrowService, docs gateways.DocumentGenerator, clock gateways.Clock, notifier *NotificationService) *SignatureService {
	return &SignatureService{
		db:       db,
		config:   cfg,
		otp:      otp,
		escrow:   escrow,
		docs:     docs,
		clock:    clock,
		notifier: notifier,
	}
}

// RequestSignature issues a fresh code for one party. Re-requesting before
// the previous code expires simply supersedes it; codes already consumed
// stay consumed.
func (s *SignatureService) RequestSignature(contractID uuid.UUID, role models.SignerRole, signerID uuid.UUID) (*IssuedChallenge, error) {
	contract, signer, err := s.loadSigningContext(contractID, role, signerID)
	if err != nil {
		return nil, err
	}

	if !contract.Status.IsSignable() {
		return nil, ErrContractNotSignable
	}

	var existing int64
	if err := s.db.Model(&models.Signature{}).
		Where("contract_id = ? AND role = ?", contractID, role).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if existing > 0 {
		return nil, ErrAlreadySigned
	}

	challenge, err := s.otp.Issue(signerID, models.OtpPurposeContractSign, contractID.String(), signer.Phone)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		go s.notifier.SendSignatureRequestCode(signer, contract, challenge.Code)
	}

	logrus.WithFields(logrus.Fields{
		"contract_id":  contractID,
		"role":         role,
		"challenge_id": challenge.ChallengeID,
	}).Info("Signature code issued")
	return challenge, nil
}

// ConfirmSignature verifies the code and records the signature. The first
// confirmed signature moves the contract to partially_signed; the second
// moves it to fully_signed and, in the same transaction, stamps the
// retraction deadline and opens the first escrow entry. The document render
// runs after commit so a renderer outage never blocks the legal state.
func (s *SignatureService) ConfirmSignature(ctx context.Context, contractID uuid.UUID, role models.SignerRole, signerID, challengeID uuid.UUID, code string) (*models.Contract, error) {
	contract, _, err := s.loadSigningContext(contractID, role, signerID)
	if err != nil {
		return nil, err
	}

	if !contract.Status.IsSignable() {
		return nil, ErrContractNotSignable
	}

	challenge, err := s.otp.Verify(challengeID, code)
	if err != nil {
		return nil, err
	}
	if challenge.SubjectID != signerID || challenge.ScopeRef != contractID.String() {
		return nil, ErrChallengeNotFound
	}

	now := s.clock.Now()
	fullySigned := false

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		signature := &models.Signature{
			ContractID:     contract.ID,
			Role:           role,
			SignerID:       signerID,
			OtpChallengeID: challenge.ID,
			OtpVerifiedAt:  *challenge.VerifiedAt,
			SignedAt:       now,
			ContentHash:    contract.ContentHash,
		}
		if err := tx.Create(signature).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadySigned
			}
			return fmt.Errorf("failed to record signature: %w", err)
		}

		var signed int64
		if err := tx.Model(&models.Signature{}).
			Where("contract_id = ?", contract.ID).
			Count(&signed).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		switch signed {
		case 1:
			return transitionContract(tx, contract, models.ContractStatusPartiallySigned,
				&signerID, fmt.Sprintf("%s signed", role), nil)
		case 2:
			deadline := now.Add(s.config.Legal.RetractionWindow)
			if err := transitionContract(tx, contract, models.ContractStatusFullySigned,
				&signerID, fmt.Sprintf("%s signed", role), map[string]interface{}{
					"fully_signed_at":     now,
					"retraction_deadline": deadline,
				}); err != nil {
				return err
			}
			contract.FullySignedAt = &now
			contract.RetractionDeadline = &deadline

			if _, err := s.escrow.OpenEntryTx(tx, contract, contract.StartDate); err != nil {
				return err
			}
			fullySigned = true
			return nil
		default:
			return fmt.Errorf("unexpected signature count %d for contract %s", signed, contract.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	if fullySigned {
		s.renderDocument(ctx, contract)
		if s.notifier != nil {
			go s.notifier.SendContractFullySigned(contract)
		}
	} else if s.notifier != nil {
		go s.notifier.SendSignatureRecorded(contract, role)
	}

	return contract, nil
}

// ListSignatures returns the recorded signatures for a contract.
func (s *SignatureService) ListSignatures(contractID uuid.UUID) ([]models.Signature, error) {
	var signatures []models.Signature
	if err := s.db.Where("contract_id = ?", contractID).
		Order("signed_at ASC").Find(&signatures).Error; err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	return signatures, nil
}

func (s *SignatureService) loadSigningContext(contractID uuid.UUID, role models.SignerRole, signerID uuid.UUID) (*models.Contract, *models.User, error) {
	var contract models.Contract
	if err := s.db.First(&contract, "id = ?", contractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrContractNotFound
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}

	var expected uuid.UUID
	switch role {
	case models.SignerRoleLandlord:
		expected = contract.LandlordID
	case models.SignerRoleTenant:
		expected = contract.TenantID
	default:
		return nil, nil, fmt.Errorf("unknown signer role %q", role)
	}
	if expected != signerID {
		return nil, nil, ErrNotParty
	}

	var signer models.User
	if err := s.db.First(&signer, "id = ?", signerID).Error; err != nil {
		return nil, nil, fmt.Errorf("signer not found: %w", err)
	}
	return &contract, &signer, nil
}

// renderDocument is best-effort after commit. A failure leaves a
// compensation record so the sweep can retry the render later.
func (s *SignatureService) renderDocument(ctx context.Context, contract *models.Contract) {
	if s.docs == nil {
		return
	}

	snapshot := gateways.ContractSnapshot{
		ContractID:    contract.ID.String(),
		ReferenceCode: contract.ReferenceCode,
		MonthlyAmount: contract.MonthlyAmount.StringFixed(2),
		Currency:      contract.Currency,
		StartDate:     contract.StartDate,
		EndDate:       contract.EndDate,
		ContentHash:   contract.ContentHash,
		SignedAt:      *contract.FullySignedAt,
		CustomFields:  contract.CustomFields,
	}
	var landlord, tenant models.User
	if s.db.First(&landlord, "id = ?", contract.LandlordID).Error == nil {
		snapshot.LandlordName = landlord.Username
	}
	if s.db.First(&tenant, "id = ?", contract.TenantID).Error == nil {
		snapshot.TenantName = tenant.Username
	}

	ref, err := s.docs.Render(ctx, snapshot)
	if err != nil {
		var open int64
		s.db.Model(&models.CompensationLog{}).
			Where("entity_type = ? AND entity_id = ? AND action = ? AND resolved_at IS NULL",
				"contract", contract.ID, "document-render").
			Count(&open)
		if open == 0 {
			comp := &models.CompensationLog{
				EntityType: "contract",
				EntityID:   contract.ID,
				Action:     "document-render",
				Payload:    models.JSONB{"error": err.Error()},
			}
			if cerr := s.db.Create(comp).Error; cerr != nil {
				logrus.WithError(cerr).WithField("contract_id", contract.ID).
					Error("Failed to write compensation record")
			}
		}
		logrus.WithError(err).WithField("contract_id", contract.ID).
			Warn("Document render failed after signing; will retry")
		return
	}

	if err := s.db.Model(&models.Contract{}).Where("id = ?", contract.ID).
		Update("document_ref", ref).Error; err != nil {
		logrus.WithError(err).WithField("contract_id", contract.ID).
			Error("Failed to store document reference")
		return
	}
	contract.DocumentRef = ref

	if err := s.db.Model(&models.CompensationLog{}).
		Where("entity_type = ? AND entity_id = ? AND action = ? AND resolved_at IS NULL",
			"contract", contract.ID, "document-render").
		Update("resolved_at", s.clock.Now()).Error; err != nil {
		logrus.WithError(err).WithField("contract_id", contract.ID).
			Error("Failed to resolve compensation record")
	}
}

// RetryPendingRenders re-runs document generation for every fully signed
// contract still missing its document, whether the renderer failed at
// signing time or the process died before it ran. Called from the sweep
// loop; a successful render resolves any open compensation record.
func (s *SignatureService) RetryPendingRenders(ctx context.Context) int {
	var contracts []models.Contract
	if err := s.db.Where("fully_signed_at IS NOT NULL AND document_ref = ''").
		Find(&contracts).Error; err != nil {
		logrus.WithError(err).Error("Failed to load pending renders")
		return 0
	}

	retried := 0
	for i := range contracts {
		s.renderDocument(ctx, &contracts[i])
		if contracts[i].DocumentRef != "" {
			retried++
		}
	}
	return retried
}
