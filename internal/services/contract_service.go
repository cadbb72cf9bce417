// internal/services/contract_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/database"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

// ContractService is the lifecycle owner for rental agreements: draft,
// signature round, retraction window, activation, recurring rent and
// termination. Escrow and dispute specifics stay in their own services;
// this one coordinates them through the contract status machine.
type ContractService struct {
	db       *gorm.DB
	config   *config.Config
	escrow   *EscrowService
	clock    gateways.Clock
	notifier *NotificationService
}

type GenerateContractRequest struct {
	ListingID     uuid.UUID              `json:"listing_id" validate:"required"`
	LandlordID    uuid.UUID              `json:"landlord_id" validate:"required"`
	TenantID      uuid.UUID              `json:"tenant_id" validate:"required"`
	MonthlyAmount decimal.Decimal        `json:"monthly_amount" validate:"required"`
	Currency      string                 `json:"currency,omitempty" validate:"omitempty,len=3"`
	StartDate     time.Time              `json:"start_date" validate:"required"`
	EndDate       time.Time              `json:"end_date" validate:"required"`
	CustomFields  map[string]interface{} `json:"custom_fields,omitempty"`
}

// ContractView is the API projection. BlockedOn names the party whose
// action the contract is waiting for, empty when nothing is pending.
type ContractView struct {
	*models.Contract
	BlockedOn string `json:"blocked_on,omitempty"`
}

func NewContractService(db *gorm.DB, cfg *config.Config, escrow *EscrowService, clock gateways.Clock, notifier *NotificationService) *ContractService {
	return &ContractService{
		db:       db,
		config:   cfg,
		escrow:   escrow,
		clock:    clock,
		notifier: notifier,
	}
}

// Generate creates the draft. The content hash covers the canonical terms
// snapshot; signatures later pin it, so any edit after signing round starts
// is detectable.
func (s *ContractService) Generate(req *GenerateContractRequest) (*models.Contract, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, errors.New("end date must be after start date")
	}
	if req.MonthlyAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("monthly amount must be positive")
	}
	if req.LandlordID == req.TenantID {
		return nil, errors.New("landlord and tenant must differ")
	}

	for _, id := range []uuid.UUID{req.LandlordID, req.TenantID} {
		var user models.User
		if err := s.db.First(&user, "id = ?", id).Error; err != nil {
			return nil, fmt.Errorf("party %s not found: %w", id, err)
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = "XAF"
	}

	now := s.clock.Now()
	refCode, err := utils.GenerateReferenceCode(now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference code: %w", err)
	}

	contract := &models.Contract{
		ReferenceCode: refCode,
		ListingID:     req.ListingID,
		LandlordID:    req.LandlordID,
		TenantID:      req.TenantID,
		MonthlyAmount: req.MonthlyAmount,
		Currency:      currency,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		CustomFields:  models.JSONB(req.CustomFields),
		Status:        models.ContractStatusDraft,
	}
	contract.ContentHash = s.contentHash(contract)

	if err := s.db.Create(contract).Error; err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"contract_id":    contract.ID,
		"reference_code": contract.ReferenceCode,
	}).Info("Contract drafted")
	return contract, nil
}

func (s *ContractService) Get(contractID uuid.UUID) (*ContractView, error) {
	var contract models.Contract
	if err := s.db.Preload("Signatures").Preload("EscrowEntries").
		First(&contract, "id = ?", contractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &ContractView{Contract: &contract, BlockedOn: s.blockedOn(&contract)}, nil
}

// ListForUser returns one page of the contracts where the user is a party,
// plus the unpaged total.
func (s *ContractService) ListForUser(userID uuid.UUID, params utils.PaginationParams) ([]models.Contract, int64, error) {
	query := s.db.Model(&models.Contract{}).
		Where("landlord_id = ? OR tenant_id = ?", userID, userID)
	if params.Search != "" {
		query = query.Where("reference_code LIKE ?", "%"+params.Search+"%")
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	var contracts []models.Contract
	query = utils.ApplySort(query, params, []string{"created_at", "start_date", "status", "monthly_amount"})
	if err := utils.ApplyPagination(query, params).Find(&contracts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, total, nil
}

// SendForSignature opens the signature round.
func (s *ContractService) SendForSignature(contractID, actorID uuid.UUID) (*models.Contract, error) {
	contract, err := s.load(contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusDraft {
		return nil, ErrContractNotDraft
	}
	if actorID != contract.LandlordID && actorID != contract.TenantID {
		return nil, ErrNotParty
	}

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionContract(tx, contract, models.ContractStatusAwaitingSignature,
			&actorID, "sent for signature", nil)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		go s.notifier.SendContractReady(contract)
	}
	return contract, nil
}

// Cancel abandons a contract that has not collected any signature.
func (s *ContractService) Cancel(contractID, actorID uuid.UUID, reason string) error {
	contract, err := s.load(contractID)
	if err != nil {
		return err
	}
	if actorID != contract.LandlordID && actorID != contract.TenantID {
		return ErrNotParty
	}
	if contract.Status != models.ContractStatusDraft && contract.Status != models.ContractStatusAwaitingSignature {
		return ErrNotCancellable
	}

	var signed int64
	if err := s.db.Model(&models.Signature{}).
		Where("contract_id = ?", contractID).Count(&signed).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if signed > 0 {
		return ErrNotCancellable
	}

	now := s.clock.Now()
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionContract(tx, contract, models.ContractStatusCancelled,
			&actorID, reason, map[string]interface{}{
				"cancelled_at":        now,
				"cancellation_reason": reason,
			})
	})
}

// WithdrawDuringRetraction lets either party back out after signing but
// before the retraction deadline. Signatures stay on record; the contract
// is cancelled and any money already captured for the first month is
// refunded to the tenant.
func (s *ContractService) WithdrawDuringRetraction(ctx context.Context, contractID, actorID uuid.UUID, reason string) error {
	contract, err := s.load(contractID)
	if err != nil {
		return err
	}
	if actorID != contract.LandlordID && actorID != contract.TenantID {
		return ErrNotParty
	}

	switch contract.Status {
	case models.ContractStatusPartiallySigned:
		// One signature in; the round simply stops.
	case models.ContractStatusFullySigned:
		if contract.RetractionDeadline == nil || !s.clock.Now().Before(*contract.RetractionDeadline) {
			return ErrNotCancellable
		}
	default:
		return ErrNotCancellable
	}

	now := s.clock.Now()
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionContract(tx, contract, models.ContractStatusCancelled,
			&actorID, reason, map[string]interface{}{
				"cancelled_at":        now,
				"cancellation_reason": reason,
			})
	})
	if err != nil {
		return err
	}

	entries, lerr := s.escrow.ListEntries(contractID)
	if lerr != nil {
		return lerr
	}
	for i := range entries {
		switch entries[i].Status {
		case models.EscrowStatusCaptured, models.EscrowStatusHeld:
			if rerr := s.escrow.Refund(ctx, entries[i].ID, "contract withdrawn during retraction"); rerr != nil {
				logrus.WithError(rerr).WithField("entry_id", entries[i].ID).
					Error("Refund after retraction failed; entry flagged for review")
			}
		}
	}

	if s.notifier != nil {
		go s.notifier.SendContractCancelled(contract, reason)
	}
	return nil
}

// Activate moves a fully signed contract past its retraction deadline into
// active. The sweep calls this; it is also safe to call directly and is a
// no-op loser under concurrent ticks thanks to the compare-and-set.
func (s *ContractService) Activate(contractID uuid.UUID) error {
	contract, err := s.load(contractID)
	if err != nil {
		return err
	}
	if contract.Status != models.ContractStatusFullySigned {
		return ErrStaleVersion
	}
	if contract.RetractionDeadline != nil && s.clock.Now().Before(*contract.RetractionDeadline) {
		return ErrRetractionOpen
	}

	now := s.clock.Now()
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionContract(tx, contract, models.ContractStatusActive,
			nil, "retraction window elapsed", map[string]interface{}{
				"activated_at": now,
			})
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		go s.notifier.SendContractActivated(contract)
	}
	return nil
}

// Terminate ends an active contract. Money already held or released is
// untouched and open disputes continue on their own track; only future
// rent scheduling stops.
func (s *ContractService) Terminate(contractID, actorID uuid.UUID, reason string) error {
	contract, err := s.load(contractID)
	if err != nil {
		return err
	}
	if actorID != contract.LandlordID && actorID != contract.TenantID {
		return ErrNotParty
	}
	if contract.Status != models.ContractStatusActive {
		return ErrNotTerminable
	}

	now := s.clock.Now()
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionContract(tx, contract, models.ContractStatusTerminated,
			&actorID, reason, map[string]interface{}{
				"terminated_at":      now,
				"termination_reason": reason,
			})
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		go s.notifier.SendContractTerminated(contract, reason)
	}
	return nil
}

// ScheduleNextRent opens the escrow entry for the next unscheduled rent
// period of an active contract. It is idempotent per period: the next due
// date is derived from the latest existing entry, and nothing is created
// past the contract end date.
func (s *ContractService) ScheduleNextRent(contractID uuid.UUID) (*models.EscrowEntry, error) {
	contract, err := s.load(contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusActive {
		return nil, ErrContractInactive
	}

	var latest models.EscrowEntry
	nextDue := contract.StartDate
	err = s.db.Where("contract_id = ?", contractID).
		Order("due_date DESC").First(&latest).Error
	switch {
	case err == nil:
		nextDue = latest.DueDate.AddDate(0, 1, 0)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First entry normally exists from signing; start from the lease start.
	default:
		return nil, fmt.Errorf("database error: %w", err)
	}

	if nextDue.After(contract.EndDate) {
		return nil, fmt.Errorf("lease period exhausted: %w", ErrContractInactive)
	}

	var entry *models.EscrowEntry
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var dup int64
		if err := tx.Model(&models.EscrowEntry{}).
			Where("contract_id = ? AND due_date = ?", contractID, nextDue).
			Count(&dup).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if dup > 0 {
			return ErrStaleVersion
		}
		var cerr error
		entry, cerr = s.escrow.OpenEntryTx(tx, contract, nextDue)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ContractService) load(contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := s.db.First(&contract, "id = ?", contractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &contract, nil
}

func (s *ContractService) blockedOn(contract *models.Contract) string {
	switch contract.Status {
	case models.ContractStatusAwaitingSignature:
		return "waiting on both signatures"
	case models.ContractStatusPartiallySigned:
		signed := map[models.SignerRole]bool{}
		for _, sig := range contract.Signatures {
			signed[sig.Role] = true
		}
		if !signed[models.SignerRoleLandlord] {
			return "waiting on landlord signature"
		}
		if !signed[models.SignerRoleTenant] {
			return "waiting on tenant signature"
		}
	case models.ContractStatusFullySigned:
		if contract.RetractionDeadline != nil && s.clock.Now().Before(*contract.RetractionDeadline) {
			return "retraction window open"
		}
		return "pending activation"
	}
	return ""
}

// contentHash is a stable digest over the legally binding terms. Mutable
// operational fields never feed it.
func (s *ContractService) contentHash(contract *models.Contract) string {
	canonical, _ := json.Marshal(map[string]interface{}{
		"listing_id":     contract.ListingID,
		"landlord_id":    contract.LandlordID,
		"tenant_id":      contract.TenantID,
		"monthly_amount": contract.MonthlyAmount.StringFixed(2),
		"currency":       contract.Currency,
		"start_date":     contract.StartDate.UTC().Format(time.RFC3339),
		"end_date":       contract.EndDate.UTC().Format(time.RFC3339),
		"custom_fields":  contract.CustomFields,
	})
	return utils.HashString(string(canonical))
}
