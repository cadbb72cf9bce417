// internal/services/escrow_service.go
package services

import (
	"context"
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
)

// EscrowService owns the payment lifecycle of a contract: authorize,
// capture, hold, release to the beneficiary or refund to the payer. It is
// the only writer of EscrowEntry.Status, except that the dispute service
// forces the frozen transition through FreezeTx.
type EscrowService struct {
	db            *gorm.DB
	config        *config.Config
	gateway       gateways.PaymentGateway
	clock         gateways.Clock
	notifier      *NotificationService
	capturePolicy RetryPolicy

	// sleep is swapped out by tests.
	sleep func(time.Duration)
}

// Settlement carries the gateway results of a dispute resolution so the
// dispute service can commit both sides in one transaction.
type Settlement struct {
	ReleasedAmount decimal.Decimal
	RefundedAmount decimal.Decimal
	Terminal       models.EscrowStatus
	GatewayRef     string
}

func NewEscrowService(db *gorm.DB, cfg *config.Config, gateway gateways.PaymentGateway, clock gateways.Clock, notifier *NotificationService) *EscrowService {
	return &EscrowService{
		db:       db,
		config:   cfg,
		gateway:  gateway,
		clock:    clock,
		notifier: notifier,
		capturePolicy: RetryPolicy{
			MaxAttempts: cfg.Escrow.CaptureMaxAttempts,
			BackoffBase: cfg.Escrow.CaptureBackoffBase,
		},
		sleep: time.Sleep,
	}
}

// OpenEntryTx creates the pending custody record for one rent obligation.
// It runs inside the caller's transaction so entry creation commits
// atomically with the transition that triggered it.
func (s *EscrowService) OpenEntryTx(tx *gorm.DB, contract *models.Contract, dueDate time.Time) (*models.EscrowEntry, error) {
	entry := &models.EscrowEntry{
		ContractID:    contract.ID,
		PayerID:       contract.TenantID,
		BeneficiaryID: contract.LandlordID,
		Amount:        contract.MonthlyAmount,
		Currency:      contract.Currency,
		DueDate:       dueDate,
		Status:        models.EscrowStatusPending,
	}
	if err := tx.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("entry for period %s exists: %w", dueDate.Format("2006-01-02"), ErrStaleVersion)
		}
		return nil, fmt.Errorf("failed to create escrow entry: %w", err)
	}
	return entry, nil
}

func (s *EscrowService) GetEntry(entryID uuid.UUID) (*models.EscrowEntry, error) {
	var entry models.EscrowEntry
	if err := s.db.First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &entry, nil
}

func (s *EscrowService) ListEntries(contractID uuid.UUID) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	if err := s.db.Where("contract_id = ?", contractID).
		Order("due_date asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch escrow entries: %w", err)
	}
	return entries, nil
}

// Authorize places the hold with the gateway. A declined answer is terminal
// for the attempt; a pending answer parks the entry until the reconcile
// webhook settles it.
func (s *EscrowService) Authorize(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.GetEntry(entryID)
	if err != nil {
		return err
	}
	if entry.Status != models.EscrowStatusPending {
		return fmt.Errorf("entry is %s: %w", entry.Status, ErrStaleVersion)
	}

	key := fmt.Sprintf("%s:authorize:%d", entry.ID, entry.CaptureAttempts+1)
	result, err := s.gateway.Authorize(ctx, key, entry.ID.String(), entry.Amount, entry.Currency)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	switch result.Status {
	case gateways.AckDeclined:
		s.recordGatewayError(entry, result.Detail)
		return ErrGatewayDeclined
	case gateways.AckPending:
		return s.db.Model(entry).Update("gateway_ref", result.GatewayRef).Error
	}

	now := s.clock.Now()
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionEscrow(tx, entry, models.EscrowStatusAuthorized, "gateway authorized", map[string]interface{}{
			"gateway_ref":   result.GatewayRef,
			"authorized_at": now,
		})
	})
}

// Capture charges the payer and moves the funds into escrow custody.
// Timeouts are retried with exponential backoff up to the configured bound;
// after that the entry drops back to pending with the attention flag set,
// because the charge may have succeeded upstream and only the reconcile
// webhook can say for sure.
func (s *EscrowService) Capture(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.GetEntry(entryID)
	if err != nil {
		return err
	}

	switch entry.Status {
	case models.EscrowStatusPending, models.EscrowStatusAuthorized:
		// proceed
	case models.EscrowStatusCaptured, models.EscrowStatusHeld:
		// already captured, nothing to do
		return nil
	default:
		return fmt.Errorf("entry is %s: %w", entry.Status, ErrStaleVersion)
	}

	for {
		attempt := entry.CaptureAttempts + 1
		if err := s.db.Model(entry).Update("capture_attempts", attempt).Error; err != nil {
			return fmt.Errorf("failed to record capture attempt: %w", err)
		}
		entry.CaptureAttempts = attempt

		callCtx, cancel := context.WithTimeout(ctx, s.config.Escrow.CaptureTimeout)
		key := fmt.Sprintf("%s:capture:%d", entry.ID, attempt)
		ref := entry.GatewayRef
		if ref == "" {
			ref = entry.ID.String()
		}
		result, err := s.gateway.Capture(callCtx, key, ref, entry.Amount, entry.Currency)
		cancel()

		if err != nil {
			if s.capturePolicy.Exhausted(attempt) {
				s.markNeedsAttention(entry, err.Error())
				return fmt.Errorf("capture attempts exhausted: %w", ErrGatewayTimeout)
			}
			s.sleep(s.capturePolicy.Delay(attempt))
			continue
		}

		switch result.Status {
		case gateways.AckDeclined:
			s.recordGatewayError(entry, result.Detail)
			return ErrGatewayDeclined
		case gateways.AckPending:
			// The webhook settles pending captures.
			return s.db.Model(entry).Update("gateway_ref", result.GatewayRef).Error
		}

		return s.settleCapture(entry, result.GatewayRef)
	}
}

// settleCapture commits captured and held in one transaction and stamps the
// auto-release deadline, computed once at capture time.
func (s *EscrowService) settleCapture(entry *models.EscrowEntry, gatewayRef string) error {
	now := s.clock.Now()
	autoRelease := now.Add(time.Duration(s.config.Escrow.AutoReleaseDays) * 24 * time.Hour)

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := transitionEscrow(tx, entry, models.EscrowStatusCaptured, "gateway captured", map[string]interface{}{
			"gateway_ref":     gatewayRef,
			"captured_at":     now,
			"auto_release_at": autoRelease,
			"needs_attention": false,
			"last_gateway_err": "",
		}); err != nil {
			return err
		}
		return transitionEscrow(tx, entry, models.EscrowStatusHeld, "funds held in escrow", nil)
	})
	if err != nil {
		return err
	}

	entry.CapturedAt = &now
	entry.AutoReleaseAt = &autoRelease
	entry.GatewayRef = gatewayRef

	if s.notifier != nil {
		go s.notifier.SendFundsHeld(entry)
	}
	return nil
}

// ConfirmReceipt is the beneficiary's explicit confirmation, which releases
// the held funds ahead of the auto-release deadline.
func (s *EscrowService) ConfirmReceipt(ctx context.Context, entryID, beneficiaryID uuid.UUID) error {
	entry, err := s.GetEntry(entryID)
	if err != nil {
		return err
	}
	if entry.BeneficiaryID != beneficiaryID {
		return ErrNotParty
	}

	now := s.clock.Now()
	if err := s.db.Model(entry).Update("beneficiary_confirmed_at", now).Error; err != nil {
		return fmt.Errorf("failed to record confirmation: %w", err)
	}
	entry.BeneficiaryConfirmedAt = &now

	return s.ReleaseIfEligible(ctx, entryID)
}

// ReleaseIfEligible releases a held entry when every guard passes: status
// held, no open dispute referencing the entry, the retraction window has
// elapsed, and either the beneficiary confirmed receipt or the auto-release
// deadline passed. The dispute check runs inside the same transaction as
// the status flip, closing the race with a dispute opened a moment before.
func (s *EscrowService) ReleaseIfEligible(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.GetEntry(entryID)
	if err != nil {
		return err
	}

	if entry.Status == models.EscrowStatusFrozen {
		return ErrDisputePending
	}
	if entry.Status != models.EscrowStatusHeld {
		return ErrNotHeld
	}

	var contract models.Contract
	if err := s.db.First(&contract, "id = ?", entry.ContractID).Error; err != nil {
		return fmt.Errorf("failed to load contract: %w", err)
	}

	now := s.clock.Now()
	if err := releaseEligible(entry, &contract, now); err != nil {
		return err
	}

	txErr := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var openDisputes int64
		if err := tx.Model(&models.Dispute{}).
			Where("escrow_entry_id = ? AND status IN ?", entry.ID,
				[]models.DisputeStatus{models.DisputeStatusOpen, models.DisputeStatusMediatorAssigned}).
			Count(&openDisputes).Error; err != nil {
			return fmt.Errorf("failed to check disputes: %w", err)
		}
		if openDisputes > 0 {
			return ErrDisputePending
		}

		return transitionEscrow(tx, entry, models.EscrowStatusReleased, "released to beneficiary", map[string]interface{}{
			"released_at":     now,
			"released_amount": entry.Amount,
		})
	})
	if txErr != nil {
		return txErr
	}

	s.payOut(ctx, entry, entry.Amount)

	if s.notifier != nil {
		go s.notifier.SendFundsReleased(entry)
	}
	return nil
}

// releaseEligible is the pure eligibility rule.
func releaseEligible(entry *models.EscrowEntry, contract *models.Contract, now time.Time) error {
	if contract.Status == models.ContractStatusCancelled {
		return ErrContractInactive
	}
	if contract.RetractionDeadline != nil && now.Before(*contract.RetractionDeadline) {
		return ErrRetractionOpen
	}

	confirmed := entry.BeneficiaryConfirmedAt != nil
	deadlinePassed := entry.AutoReleaseAt != nil && !now.Before(*entry.AutoReleaseAt)
	if !confirmed && !deadlinePassed {
		return ErrNotHeld
	}
	return nil
}

// Refund returns held or captured funds to the payer.
func (s *EscrowService) Refund(ctx context.Context, entryID uuid.UUID, reason string) error {
	entry, err := s.GetEntry(entryID)
	if err != nil {
		return err
	}

	switch entry.Status {
	case models.EscrowStatusCaptured, models.EscrowStatusHeld:
		// refundable
	case models.EscrowStatusFrozen:
		return ErrDisputePending
	default:
		return ErrNotRefundable
	}

	now := s.clock.Now()
	txErr := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return transitionEscrow(tx, entry, models.EscrowStatusRefunded, reason, map[string]interface{}{
			"refunded_at":     now,
			"refund_reason":   reason,
			"refunded_amount": entry.Amount,
		})
	})
	if txErr != nil {
		return txErr
	}

	key := fmt.Sprintf("%s:refund:%d", entry.ID, entry.Version)
	if _, err := s.gateway.Refund(ctx, key, entry.GatewayRef, entry.Amount, entry.Currency); err != nil {
		s.logCompensation(entry.ID, "refund", entry.Amount, err)
	}

	if s.notifier != nil {
		go s.notifier.SendFundsRefunded(entry, reason)
	}
	return nil
}

// FreezeTx forces the frozen side-state. Only the dispute service calls it,
// inside the transaction that creates the dispute, so a freeze can never
// exist without its dispute.
func (s *EscrowService) FreezeTx(tx *gorm.DB, entryID, disputeID uuid.UUID) error {
	var entry models.EscrowEntry
	if err := tx.First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	switch entry.Status {
	case models.EscrowStatusCaptured, models.EscrowStatusHeld:
		// freezable
	case models.EscrowStatusFrozen:
		return ErrAlreadyFrozen
	default:
		return fmt.Errorf("entry is %s: %w", entry.Status, ErrNotRefundable)
	}

	frozenFrom := entry.Status
	return transitionEscrow(tx, &entry, models.EscrowStatusFrozen, "frozen by dispute", map[string]interface{}{
		"frozen_from":       frozenFrom,
		"freeze_dispute_id": disputeID,
	})
}

// UnfreezeRestoreTx exits the frozen state back to whatever the freeze
// interrupted. Used when a dispute is withdrawn.
func (s *EscrowService) UnfreezeRestoreTx(tx *gorm.DB, entryID uuid.UUID) error {
	var entry models.EscrowEntry
	if err := tx.First(&entry, "id = ?", entryID).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if entry.Status != models.EscrowStatusFrozen || entry.FrozenFrom == nil {
		return ErrNotFrozen
	}

	return transitionEscrow(tx, &entry, *entry.FrozenFrom, "dispute withdrawn", map[string]interface{}{
		"frozen_from":       nil,
		"freeze_dispute_id": nil,
	})
}

// SettleFrozen executes the gateway legs of a dispute resolution and
// reports what the transactional commit must record. It performs no status
// writes itself; the dispute service commits the dispute and the ledger in
// one transaction afterwards.
func (s *EscrowService) SettleFrozen(ctx context.Context, entry *models.EscrowEntry, outcome models.DisputeOutcome, releaseFraction decimal.Decimal) (*Settlement, error) {
	if entry.Status != models.EscrowStatusFrozen {
		return nil, ErrNotFrozen
	}

	settlement := &Settlement{}

	switch outcome {
	case models.DisputeOutcomeReleaseToBeneficiary:
		settlement.ReleasedAmount = entry.Amount
		settlement.Terminal = models.EscrowStatusReleased
	case models.DisputeOutcomeRefundToPayer:
		settlement.RefundedAmount = entry.Amount
		settlement.Terminal = models.EscrowStatusRefunded
	case models.DisputeOutcomeSplit:
		released := entry.Amount.Mul(releaseFraction).Round(2)
		settlement.ReleasedAmount = released
		settlement.RefundedAmount = entry.Amount.Sub(released)
		settlement.Terminal = models.EscrowStatusReleased
	default:
		return nil, fmt.Errorf("unknown dispute outcome %q", outcome)
	}

	if settlement.ReleasedAmount.IsPositive() {
		key := fmt.Sprintf("%s:resolve-release:%d", entry.ID, entry.Version)
		result, err := s.gateway.Release(ctx, key, entry.GatewayRef, entry.BeneficiaryID.String(), settlement.ReleasedAmount, entry.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		settlement.GatewayRef = result.GatewayRef
	}

	if settlement.RefundedAmount.IsPositive() {
		key := fmt.Sprintf("%s:resolve-refund:%d", entry.ID, entry.Version)
		if _, err := s.gateway.Refund(ctx, key, entry.GatewayRef, settlement.RefundedAmount, entry.Currency); err != nil {
			if settlement.ReleasedAmount.IsPositive() {
				// The release leg already ran; leave a trail for the
				// reconciliation job instead of failing half-settled.
				s.logCompensation(entry.ID, "resolve-refund", settlement.RefundedAmount, err)
			} else {
				return nil, fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
			}
		}
	}

	return settlement, nil
}

// CommitSettlementTx records the terminal ledger state decided by a dispute
// resolution. Runs in the dispute service's transaction.
func (s *EscrowService) CommitSettlementTx(tx *gorm.DB, entry *models.EscrowEntry, settlement *Settlement, reason string) error {
	now := s.clock.Now()
	extra := map[string]interface{}{
		"frozen_from":       nil,
		"freeze_dispute_id": nil,
		"released_amount":   settlement.ReleasedAmount,
		"refunded_amount":   settlement.RefundedAmount,
	}
	if settlement.Terminal == models.EscrowStatusReleased {
		extra["released_at"] = now
		if settlement.RefundedAmount.IsPositive() {
			extra["refunded_at"] = now
		}
	} else {
		extra["refunded_at"] = now
		extra["refund_reason"] = reason
	}
	return transitionEscrow(tx, entry, settlement.Terminal, reason, extra)
}

// ReconcileCallback ingests the gateway's asynchronous outcome for an
// entry. The webhook is authoritative over the immediate call result: a
// capture that timed out locally but succeeded upstream is promoted here.
// The ref is the gateway's own reference for most providers, so only
// compare it against the uuid column when it actually parses as one.
func (s *EscrowService) ReconcileCallback(entryRef string, finalStatus string) error {
	var entry models.EscrowEntry
	var err error
	if id, perr := uuid.Parse(entryRef); perr == nil {
		err = s.db.First(&entry, "id = ?", id).Error
	} else {
		err = s.db.First(&entry, "gateway_ref = ?", entryRef).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	switch finalStatus {
	case "captured", "succeeded":
		if entry.Status == models.EscrowStatusPending || entry.Status == models.EscrowStatusAuthorized {
			return s.settleCapture(&entry, entry.GatewayRef)
		}
	case "failed":
		logrus.WithFields(logrus.Fields{
			"entry_id": entry.ID,
			"status":   entry.Status,
		}).Warn("Gateway reported terminal failure for escrow entry")
		return s.db.Model(&entry).Updates(map[string]interface{}{
			"needs_attention":  true,
			"last_gateway_err": "gateway reported failure",
		}).Error
	}
	return nil
}

func (s *EscrowService) payOut(ctx context.Context, entry *models.EscrowEntry, amount decimal.Decimal) {
	key := fmt.Sprintf("%s:release:%d", entry.ID, entry.Version)
	if _, err := s.gateway.Release(ctx, key, entry.GatewayRef, entry.BeneficiaryID.String(), amount, entry.Currency); err != nil {
		s.logCompensation(entry.ID, "release", amount, err)
	}
}

func (s *EscrowService) markNeedsAttention(entry *models.EscrowEntry, detail string) {
	extra := map[string]interface{}{
		"needs_attention":  true,
		"last_gateway_err": detail,
	}

	// Captures that exhausted their retries drop back to pending; the
	// charge may still have landed upstream, so no refund is attempted.
	// The drop is a real status change and goes through the audit trail.
	if entry.Status == models.EscrowStatusAuthorized {
		err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
			return transitionEscrow(tx, entry, models.EscrowStatusPending, "capture attempts exhausted", extra)
		})
		if err != nil {
			logrus.WithError(err).WithField("entry_id", entry.ID).Error("Failed to flag escrow entry")
		}
		return
	}

	if err := s.db.Model(entry).Where("version = ?", entry.Version).Updates(extra).Error; err != nil {
		logrus.WithError(err).WithField("entry_id", entry.ID).Error("Failed to flag escrow entry")
	}
}

func (s *EscrowService) recordGatewayError(entry *models.EscrowEntry, detail string) {
	if err := s.db.Model(entry).Update("last_gateway_err", detail).Error; err != nil {
		logrus.WithError(err).WithField("entry_id", entry.ID).Error("Failed to record gateway error")
	}
}

func (s *EscrowService) logCompensation(entryID uuid.UUID, action string, amount decimal.Decimal, cause error) {
	logrus.WithError(cause).WithFields(logrus.Fields{
		"entry_id": entryID,
		"action":   action,
	}).Error("Gateway leg failed after ledger commit, writing compensation record")

	comp := &models.CompensationLog{
		EntityType: "escrow_entry",
		EntityID:   entryID,
		Action:     action,
		Payload: models.JSONB{
			"amount": amount.String(),
			"error":  cause.Error(),
		},
	}
	if err := s.db.Create(comp).Error; err != nil {
		logrus.WithError(err).Error("Failed to write compensation record")
	}
}
