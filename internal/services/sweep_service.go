// internal/services/sweep_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/models"
)

// SweepService is the scheduled pass over time-triggered work: contract
// activation after the retraction window, auto-release of held funds,
// render retries and monitoring alerts. Every action it takes goes through
// the same compare-and-set paths as the request handlers, so overlapping
// ticks from multiple instances are harmless.
type SweepService struct {
	db         *gorm.DB
	config     *config.Config
	contracts  *ContractService
	escrow     *EscrowService
	signatures *SignatureService
	disputes   *DisputeService
	clock      gateways.Clock
}

// SweepReport summarizes one tick, mostly for tests and logs.
type SweepReport struct {
	Activated      int
	Released       int
	RendersRetried int
	AttentionCount int
	StaleDisputes  int
}

func NewSweepService(db *gorm.DB, cfg *config.Config, contracts *ContractService, escrow *EscrowService, signatures *SignatureService, disputes *DisputeService, clock gateways.Clock) *SweepService {
	return &SweepService{
		db:         db,
		config:     cfg,
		contracts:  contracts,
		escrow:     escrow,
		signatures: signatures,
		disputes:   disputes,
		clock:      clock,
	}
}

// Run ticks until the context is cancelled.
func (s *SweepService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Sweep.Interval)
	defer ticker.Stop()

	logrus.WithField("interval", s.config.Sweep.Interval).Info("Sweep loop started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Sweep loop stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full pass. Each sub-pass is independent; a failure in one
// is logged and does not stop the others.
func (s *SweepService) Tick(ctx context.Context) SweepReport {
	report := SweepReport{
		Activated:      s.activateContracts(),
		Released:       s.releaseHeld(ctx),
		RendersRetried: s.signatures.RetryPendingRenders(ctx),
		AttentionCount: s.flagAttention(),
		StaleDisputes:  s.warnStaleDisputes(),
	}
	logrus.WithFields(logrus.Fields{
		"activated":       report.Activated,
		"released":        report.Released,
		"renders_retried": report.RendersRetried,
		"attention":       report.AttentionCount,
		"stale_disputes":  report.StaleDisputes,
	}).Debug("Sweep tick complete")
	return report
}

func (s *SweepService) activateContracts() int {
	now := s.clock.Now()
	var contracts []models.Contract
	if err := s.db.Where("status = ? AND retraction_deadline <= ?",
		models.ContractStatusFullySigned, now).Find(&contracts).Error; err != nil {
		logrus.WithError(err).Error("Sweep: failed to load activatable contracts")
		return 0
	}

	activated := 0
	for i := range contracts {
		err := s.contracts.Activate(contracts[i].ID)
		switch {
		case err == nil:
			activated++
		case errors.Is(err, ErrStaleVersion):
			// Another instance won the race.
		default:
			logrus.WithError(err).WithField("contract_id", contracts[i].ID).
				Error("Sweep: activation failed")
		}
	}
	return activated
}

func (s *SweepService) releaseHeld(ctx context.Context) int {
	now := s.clock.Now()
	var entries []models.EscrowEntry
	if err := s.db.Where("status = ? AND auto_release_at <= ?",
		models.EscrowStatusHeld, now).Find(&entries).Error; err != nil {
		logrus.WithError(err).Error("Sweep: failed to load releasable entries")
		return 0
	}

	released := 0
	for i := range entries {
		err := s.escrow.ReleaseIfEligible(ctx, entries[i].ID)
		switch {
		case err == nil:
			released++
		case errors.Is(err, ErrDisputePending), errors.Is(err, ErrRetractionOpen),
			errors.Is(err, ErrStaleVersion), errors.Is(err, ErrNotHeld):
			// Not eligible this tick; the next pass re-evaluates.
		default:
			logrus.WithError(err).WithField("entry_id", entries[i].ID).
				Error("Sweep: auto-release failed")
		}
	}
	return released
}

func (s *SweepService) flagAttention() int {
	var entries []models.EscrowEntry
	if err := s.db.Where("needs_attention = ?", true).Find(&entries).Error; err != nil {
		logrus.WithError(err).Error("Sweep: failed to load attention entries")
		return 0
	}
	for i := range entries {
		logrus.WithFields(logrus.Fields{
			"entry_id":    entries[i].ID,
			"contract_id": entries[i].ContractID,
			"status":      entries[i].Status,
			"last_error":  entries[i].LastGatewayErr,
		}).Warn("Escrow entry needs operator attention")
	}
	return len(entries)
}

func (s *SweepService) warnStaleDisputes() int {
	cutoff := s.clock.Now().Add(-s.config.Sweep.DisputeSLA)
	stale, err := s.disputes.ListUnassignedOlderThan(cutoff)
	if err != nil {
		logrus.WithError(err).Error("Sweep: failed to load stale disputes")
		return 0
	}
	for i := range stale {
		logrus.WithFields(logrus.Fields{
			"dispute_id": stale[i].ID,
			"opened_at":  stale[i].CreatedAt,
		}).Warn("Dispute unassigned past SLA")
	}
	return len(stale)
}
