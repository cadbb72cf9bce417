// internal/services/dispute_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/database"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

// DisputeService owns the dispute lifecycle: open, assign a mediator,
// resolve or withdraw. Opening a dispute against an escrow entry freezes
// the entry in the same transaction; resolving it settles the ledger and
// marks the dispute resolved atomically.
type DisputeService struct {
	db       *gorm.DB
	config   *config.Config
	escrow   *EscrowService
	clock    gateways.Clock
	notifier *NotificationService
}

type OpenDisputeRequest struct {
	ContractID    uuid.UUID              `json:"contract_id" validate:"required"`
	EscrowEntryID *uuid.UUID             `json:"escrow_entry_id,omitempty"`
	Category      models.DisputeCategory `json:"category" validate:"required"`
	Motif         string                 `json:"motif" validate:"required,max=255"`
	Description   string                 `json:"description,omitempty"`
	Evidence      []string               `json:"evidence,omitempty"`
}

type ResolveDisputeRequest struct {
	Outcome         models.DisputeOutcome `json:"outcome" validate:"required"`
	Notes           string                `json:"notes,omitempty"`
	ReleaseFraction *decimal.Decimal      `json:"release_fraction,omitempty"`
}

func NewDisputeService(db *gorm.DB, cfg *config.Config, escrow *EscrowService, clock gateways.Clock, notifier *NotificationService) *DisputeService {
	return &DisputeService{
		db:       db,
		config:   cfg,
		escrow:   escrow,
		clock:    clock,
		notifier: notifier,
	}
}

// Open registers a claim. When the claim targets an escrow entry the
// freeze happens in the same transaction as the insert, and the partial
// unique index rejects a second open dispute for the same entry even when
// two coordinator instances race.
func (s *DisputeService) Open(claimantID uuid.UUID, req *OpenDisputeRequest) (*models.Dispute, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var contract models.Contract
	if err := s.db.First(&contract, "id = ?", req.ContractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var respondentID uuid.UUID
	switch claimantID {
	case contract.LandlordID:
		respondentID = contract.TenantID
	case contract.TenantID:
		respondentID = contract.LandlordID
	default:
		return nil, ErrNotParty
	}

	if req.EscrowEntryID != nil {
		entry, err := s.escrow.GetEntry(*req.EscrowEntryID)
		if err != nil {
			return nil, err
		}
		if entry.ContractID != contract.ID {
			return nil, ErrEntryNotFound
		}
		// No new dispute once funds are terminally settled.
		if entry.Status.IsTerminal() {
			return nil, ErrNotRefundable
		}
	}

	dispute := &models.Dispute{
		ContractID:    req.ContractID,
		EscrowEntryID: req.EscrowEntryID,
		ClaimantID:    claimantID,
		RespondentID:  respondentID,
		Category:      req.Category,
		Motif:         req.Motif,
		Description:   req.Description,
		Evidence:      pq.StringArray(req.Evidence),
		Status:        models.DisputeStatusOpen,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if req.EscrowEntryID != nil {
			var open int64
			if err := tx.Model(&models.Dispute{}).
				Where("escrow_entry_id = ? AND status IN ?", *req.EscrowEntryID,
					[]models.DisputeStatus{models.DisputeStatusOpen, models.DisputeStatusMediatorAssigned}).
				Count(&open).Error; err != nil {
				return fmt.Errorf("failed to check open disputes: %w", err)
			}
			if open > 0 {
				return ErrDuplicateOpenDispute
			}
		}

		if err := tx.Create(dispute).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateOpenDispute
			}
			return fmt.Errorf("failed to create dispute: %w", err)
		}

		if req.EscrowEntryID != nil {
			if err := s.escrow.FreezeTx(tx, *req.EscrowEntryID, dispute.ID); err != nil {
				if errors.Is(err, ErrAlreadyFrozen) {
					return ErrDuplicateOpenDispute
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		go s.notifier.SendDisputeOpened(dispute)
	}
	return dispute, nil
}

func (s *DisputeService) Get(disputeID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := s.db.Preload("Contract").Preload("EscrowEntry").Preload("Mediator").
		First(&dispute, "id = ?", disputeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &dispute, nil
}

// AssignMediator moves an open dispute to mediator_assigned.
func (s *DisputeService) AssignMediator(disputeID, mediatorID uuid.UUID) error {
	var mediator models.User
	if err := s.db.First(&mediator, "id = ?", mediatorID).Error; err != nil {
		return fmt.Errorf("mediator not found: %w", err)
	}
	if mediator.Role != models.UserRoleMediator && mediator.Role != models.UserRoleAdmin {
		return errors.New("user cannot mediate disputes")
	}

	dispute, err := s.Get(disputeID)
	if err != nil {
		return err
	}
	if dispute.Status.IsTerminal() {
		return ErrAlreadyResolved
	}
	if dispute.Status != models.DisputeStatusOpen {
		return ErrStaleVersion
	}

	now := s.clock.Now()
	result := s.db.Model(&models.Dispute{}).
		Where("id = ? AND status = ? AND version = ?", dispute.ID, models.DisputeStatusOpen, dispute.Version).
		Updates(map[string]interface{}{
			"status":      models.DisputeStatusMediatorAssigned,
			"version":     dispute.Version + 1,
			"mediator_id": mediatorID,
			"assigned_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to assign mediator: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}

	if s.notifier != nil {
		go s.notifier.SendMediatorAssigned(dispute, &mediator)
	}
	return nil
}

// Resolve declares the outcome. The gateway legs run first; the dispute
// status and the ledger's terminal state then commit in one transaction, so
// a resolved dispute with a still-frozen ledger is never observable. If the
// commit fails after a gateway leg ran, a compensation record is written
// for the reconciliation job.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, mediatorID uuid.UUID, req *ResolveDisputeRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	dispute, err := s.Get(disputeID)
	if err != nil {
		return err
	}

	if dispute.Status.IsTerminal() {
		return ErrAlreadyResolved
	}
	if dispute.Status != models.DisputeStatusMediatorAssigned {
		return ErrNotAssigned
	}
	if dispute.MediatorID == nil || *dispute.MediatorID != mediatorID {
		return ErrNotAssigned
	}

	fraction := decimal.NewFromFloat(0.5)
	if req.ReleaseFraction != nil {
		fraction = *req.ReleaseFraction
	}
	if req.Outcome == models.DisputeOutcomeSplit &&
		(fraction.LessThanOrEqual(decimal.Zero) || fraction.GreaterThanOrEqual(decimal.NewFromInt(1))) {
		return fmt.Errorf("release fraction must be between 0 and 1 exclusive")
	}

	var entry *models.EscrowEntry
	var settlement *Settlement
	if dispute.EscrowEntryID != nil {
		entry, err = s.escrow.GetEntry(*dispute.EscrowEntryID)
		if err != nil {
			return err
		}
		settlement, err = s.escrow.SettleFrozen(ctx, entry, req.Outcome, fraction)
		if err != nil {
			return err
		}
	}

	now := s.clock.Now()
	txErr := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&models.Dispute{}).
			Where("id = ? AND status = ? AND version = ?", dispute.ID, models.DisputeStatusMediatorAssigned, dispute.Version).
			Updates(map[string]interface{}{
				"status":           models.DisputeStatusResolved,
				"version":          dispute.Version + 1,
				"outcome":          req.Outcome,
				"resolution_notes": req.Notes,
				"resolved_at":      now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to resolve dispute: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleVersion
		}

		if entry != nil {
			reason := fmt.Sprintf("dispute resolved: %s", req.Outcome)
			if err := s.escrow.CommitSettlementTx(tx, entry, settlement, reason); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		if settlement != nil {
			s.logResolutionCompensation(dispute, settlement, txErr)
		}
		return txErr
	}

	dispute.Status = models.DisputeStatusResolved
	dispute.Outcome = &req.Outcome
	if s.notifier != nil {
		go s.notifier.SendDisputeResolved(dispute)
	}
	return nil
}

// Withdraw lets the claimant retract a non-terminal dispute; a frozen
// entry thaws back to the state the freeze interrupted.
func (s *DisputeService) Withdraw(disputeID, claimantID uuid.UUID) error {
	dispute, err := s.Get(disputeID)
	if err != nil {
		return err
	}
	if dispute.ClaimantID != claimantID {
		return ErrNotParty
	}
	if dispute.Status.IsTerminal() {
		return ErrAlreadyResolved
	}

	now := s.clock.Now()
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&models.Dispute{}).
			Where("id = ? AND status = ? AND version = ?", dispute.ID, dispute.Status, dispute.Version).
			Updates(map[string]interface{}{
				"status":       models.DisputeStatusWithdrawn,
				"version":      dispute.Version + 1,
				"withdrawn_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to withdraw dispute: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleVersion
		}

		if dispute.EscrowEntryID != nil {
			if err := s.escrow.UnfreezeRestoreTx(tx, *dispute.EscrowEntryID); err != nil && !errors.Is(err, ErrNotFrozen) {
				return err
			}
		}
		return nil
	})
}

// ListUnassignedOlderThan surfaces disputes waiting on a mediator past the
// monitoring SLA.
func (s *DisputeService) ListUnassignedOlderThan(cutoff time.Time) ([]models.Dispute, error) {
	var disputes []models.Dispute
	if err := s.db.Where("status = ? AND created_at < ?", models.DisputeStatusOpen, cutoff).
		Find(&disputes).Error; err != nil {
		return nil, fmt.Errorf("failed to list unassigned disputes: %w", err)
	}
	return disputes, nil
}

func (s *DisputeService) logResolutionCompensation(dispute *models.Dispute, settlement *Settlement, cause error) {
	comp := &models.CompensationLog{
		EntityType: "dispute",
		EntityID:   dispute.ID,
		Action:     "resolution-commit",
		Payload: models.JSONB{
			"released_amount": settlement.ReleasedAmount.String(),
			"refunded_amount": settlement.RefundedAmount.String(),
			"error":           cause.Error(),
		},
	}
	if err := s.db.Create(comp).Error; err != nil {
		logrus.WithError(err).WithField("dispute_id", dispute.ID).
			Error("Failed to write compensation record")
		return
	}
	logrus.WithFields(logrus.Fields{
		"dispute_id": dispute.ID,
		"cause":      cause.Error(),
	}).Warn("Dispute settlement committed at gateway but local commit failed; compensation recorded")
}
