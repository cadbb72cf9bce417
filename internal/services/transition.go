// internal/services/transition.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/models"
)

// transitionContract performs the optimistic compare-and-set that is the
// only way a contract status ever changes. The guard is (id, status,
// version); losing the race returns ErrStaleVersion and writes nothing.
// State-transition side effects must key off a successful return, which is
// what makes them fire exactly once per edge.
func transitionContract(tx *gorm.DB, contract *models.Contract, next models.ContractStatus, actorID *uuid.UUID, reason string, extra map[string]interface{}) error {
	if !contract.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal contract transition %s -> %s: %w", contract.Status, next, ErrStaleVersion)
	}

	updates := map[string]interface{}{
		"status":  next,
		"version": contract.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.Contract{}).
		Where("id = ? AND status = ? AND version = ?", contract.ID, contract.Status, contract.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update contract status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}

	change := &models.ContractStatusChange{
		ContractID: contract.ID,
		FromStatus: contract.Status,
		ToStatus:   next,
		ActorID:    actorID,
		Reason:     reason,
	}
	if err := tx.Create(change).Error; err != nil {
		return fmt.Errorf("failed to record contract status change: %w", err)
	}

	contract.Status = next
	contract.Version++
	return nil
}

// transitionEscrow is the escrow counterpart of transitionContract.
func transitionEscrow(tx *gorm.DB, entry *models.EscrowEntry, next models.EscrowStatus, reason string, extra map[string]interface{}) error {
	if !entry.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal escrow transition %s -> %s: %w", entry.Status, next, ErrStaleVersion)
	}

	updates := map[string]interface{}{
		"status":  next,
		"version": entry.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.EscrowEntry{}).
		Where("id = ? AND status = ? AND version = ?", entry.ID, entry.Status, entry.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update escrow status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}

	change := &models.EscrowStatusChange{
		EscrowEntryID: entry.ID,
		FromStatus:    entry.Status,
		ToStatus:      next,
		Reason:        reason,
	}
	if err := tx.Create(change).Error; err != nil {
		return fmt.Errorf("failed to record escrow status change: %w", err)
	}

	entry.Status = next
	entry.Version++
	return nil
}
