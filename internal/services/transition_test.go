// internal/services/transition_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndakohub/ndako-backend/internal/models"
)

func TestTransitionContractWritesAuditRow(t *testing.T) {
	env := newTestEnv(t)
	contract := env.draftContract(t)

	err := transitionContract(env.db, contract, models.ContractStatusAwaitingSignature,
		&env.landlord.ID, "sent for signature", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusAwaitingSignature, contract.Status)
	assert.Equal(t, int64(1), contract.Version)

	var changes []models.ContractStatusChange
	require.NoError(t, env.db.Where("contract_id = ?", contract.ID).Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ContractStatusDraft, changes[0].FromStatus)
	assert.Equal(t, models.ContractStatusAwaitingSignature, changes[0].ToStatus)
	assert.Equal(t, env.landlord.ID, *changes[0].ActorID)
	assert.Equal(t, "sent for signature", changes[0].Reason)
}

func TestTransitionContractRejectsIllegalEdge(t *testing.T) {
	env := newTestEnv(t)
	contract := env.draftContract(t)

	err := transitionContract(env.db, contract, models.ContractStatusActive, nil, "skip ahead", nil)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Equal(t, models.ContractStatusDraft, contract.Status)
}

func TestTransitionContractLosesStaleRace(t *testing.T) {
	env := newTestEnv(t)
	contract := env.draftContract(t)

	// Two readers hold the same version; only the first write lands.
	stale := *contract
	require.NoError(t, transitionContract(env.db, contract, models.ContractStatusAwaitingSignature, nil, "first writer", nil))

	err := transitionContract(env.db, &stale, models.ContractStatusCancelled, nil, "second writer", nil)
	assert.ErrorIs(t, err, ErrStaleVersion)

	var loaded models.Contract
	require.NoError(t, env.db.First(&loaded, "id = ?", contract.ID).Error)
	assert.Equal(t, models.ContractStatusAwaitingSignature, loaded.Status)

	var changes []models.ContractStatusChange
	require.NoError(t, env.db.Where("contract_id = ?", contract.ID).Find(&changes).Error)
	assert.Len(t, changes, 1)
}

func TestTransitionEscrowLosesStaleRace(t *testing.T) {
	env := newTestEnv(t)
	contract := env.signBoth(t)

	entries, err := env.escrow.ListEntries(contract.ID)
	require.NoError(t, err)
	entry := entries[0]

	stale := entry
	require.NoError(t, transitionEscrow(env.db, &entry, models.EscrowStatusAuthorized, "first writer", nil))

	err = transitionEscrow(env.db, &stale, models.EscrowStatusRefunded, "second writer", nil)
	assert.ErrorIs(t, err, ErrStaleVersion)
}
