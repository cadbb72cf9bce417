// internal/services/escrow_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/ndakohub/ndako-backend/internal/models"
)

type EscrowServiceTestSuite struct {
	suite.Suite
	env *testEnv
}

func (suite *EscrowServiceTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
}

func (suite *EscrowServiceTestSuite) pendingEntry() *models.EscrowEntry {
	env := suite.env
	contract := env.signBoth(suite.T())
	entries, err := env.escrow.ListEntries(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1)
	return &entries[0]
}

// pastRetraction moves the clock beyond the retraction window of every
// contract signed so far.
func (suite *EscrowServiceTestSuite) pastRetraction() {
	suite.env.clock.Advance(suite.env.cfg.Legal.RetractionWindow + time.Hour)
}

func (suite *EscrowServiceTestSuite) TestAuthorizePlacesHold() {
	env := suite.env
	entry := suite.pendingEntry()

	assert.NoError(suite.T(), env.escrow.Authorize(context.Background(), entry.ID))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusAuthorized, loaded.Status)
	assert.NotNil(suite.T(), loaded.AuthorizedAt)
	assert.NotEmpty(suite.T(), loaded.GatewayRef)
}

func (suite *EscrowServiceTestSuite) TestAuthorizeDeclined() {
	env := suite.env
	entry := suite.pendingEntry()
	env.gateway.ScriptDecline("authorize", "card refused")

	err := env.escrow.Authorize(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrGatewayDeclined)

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusPending, loaded.Status)
	assert.Equal(suite.T(), "card refused", loaded.LastGatewayErr)
}

func (suite *EscrowServiceTestSuite) TestCaptureHoldsFunds() {
	env := suite.env
	entry := suite.pendingEntry()

	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusHeld, loaded.Status)
	assert.NotNil(suite.T(), loaded.CapturedAt)
	assert.NotNil(suite.T(), loaded.AutoReleaseAt)
	assert.Equal(suite.T(),
		loaded.CapturedAt.Add(time.Duration(env.cfg.Escrow.AutoReleaseDays)*24*time.Hour),
		*loaded.AutoReleaseAt)
	assert.Equal(suite.T(), 1, loaded.CaptureAttempts)

	var changes []models.EscrowStatusChange
	assert.NoError(suite.T(), env.db.Where("escrow_entry_id = ?", entry.ID).
		Order("created_at asc").Find(&changes).Error)
	assert.Len(suite.T(), changes, 2)
	assert.Equal(suite.T(), models.EscrowStatusCaptured, changes[0].ToStatus)
	assert.Equal(suite.T(), models.EscrowStatusHeld, changes[1].ToStatus)
}

func (suite *EscrowServiceTestSuite) TestCaptureIsIdempotent() {
	env := suite.env
	entry := suite.pendingEntry()

	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))
	assert.Equal(suite.T(), 1, env.gateway.CallCount("capture"))
}

func (suite *EscrowServiceTestSuite) TestCaptureDeclined() {
	env := suite.env
	entry := suite.pendingEntry()
	env.gateway.ScriptDecline("capture", "insufficient funds")

	err := env.escrow.Capture(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrGatewayDeclined)

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusPending, loaded.Status)
	assert.Equal(suite.T(), "insufficient funds", loaded.LastGatewayErr)
}

func (suite *EscrowServiceTestSuite) TestCaptureRetriesOnTimeout() {
	env := suite.env
	entry := suite.pendingEntry()
	env.gateway.ScriptTimeout("capture")

	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))
	assert.Equal(suite.T(), 2, env.gateway.CallCount("capture"))

	// Each attempt carries its own idempotency key.
	var keys []string
	for _, call := range env.gateway.Calls {
		if call.Op == "capture" {
			keys = append(keys, call.IdempotencyKey)
		}
	}
	assert.NotEqual(suite.T(), keys[0], keys[1])

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusHeld, loaded.Status)
	assert.Equal(suite.T(), 2, loaded.CaptureAttempts)
}

func (suite *EscrowServiceTestSuite) TestCaptureExhaustsRetries() {
	env := suite.env
	entry := suite.pendingEntry()
	for i := 0; i < env.cfg.Escrow.CaptureMaxAttempts; i++ {
		env.gateway.ScriptTimeout("capture")
	}

	err := env.escrow.Capture(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrGatewayTimeout)
	assert.Equal(suite.T(), env.cfg.Escrow.CaptureMaxAttempts, env.gateway.CallCount("capture"))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusPending, loaded.Status)
	assert.True(suite.T(), loaded.NeedsAttention)
	assert.NotEmpty(suite.T(), loaded.LastGatewayErr)
}

func (suite *EscrowServiceTestSuite) TestWebhookPromotesTimedOutCapture() {
	env := suite.env
	entry := suite.pendingEntry()
	for i := 0; i < env.cfg.Escrow.CaptureMaxAttempts; i++ {
		env.gateway.ScriptTimeout("capture")
	}
	err := env.escrow.Capture(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrGatewayTimeout)

	// The charge landed upstream after all; the webhook says so.
	assert.NoError(suite.T(), env.escrow.ReconcileCallback(entry.ID.String(), "captured"))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusHeld, loaded.Status)
	assert.False(suite.T(), loaded.NeedsAttention)
	assert.NotNil(suite.T(), loaded.AutoReleaseAt)
}

func (suite *EscrowServiceTestSuite) TestWebhookFailureFlagsEntry() {
	env := suite.env
	entry := suite.pendingEntry()

	assert.NoError(suite.T(), env.escrow.ReconcileCallback(entry.ID.String(), "failed"))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), loaded.NeedsAttention)
}

func (suite *EscrowServiceTestSuite) TestConfirmReceiptReleases() {
	env := suite.env
	entry := suite.pendingEntry()
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))
	suite.pastRetraction()

	assert.NoError(suite.T(), env.escrow.ConfirmReceipt(context.Background(), entry.ID, env.landlord.ID))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusReleased, loaded.Status)
	assert.NotNil(suite.T(), loaded.ReleasedAt)
	assert.True(suite.T(), loaded.ReleasedAmount.Equal(loaded.Amount))
	assert.Equal(suite.T(), 1, env.gateway.CallCount("release"))
}

func (suite *EscrowServiceTestSuite) TestConfirmReceiptRejectsNonBeneficiary() {
	env := suite.env
	entry := suite.pendingEntry()
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))

	err := env.escrow.ConfirmReceipt(context.Background(), entry.ID, env.tenant.ID)
	assert.ErrorIs(suite.T(), err, ErrNotParty)
}

func (suite *EscrowServiceTestSuite) TestReleaseBlockedDuringRetraction() {
	env := suite.env
	entry := suite.pendingEntry()
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))

	// Confirmation is recorded but the retraction window still blocks the
	// release.
	err := env.escrow.ConfirmReceipt(context.Background(), entry.ID, env.landlord.ID)
	assert.ErrorIs(suite.T(), err, ErrRetractionOpen)

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusHeld, loaded.Status)
	assert.NotNil(suite.T(), loaded.BeneficiaryConfirmedAt)

	suite.pastRetraction()
	assert.NoError(suite.T(), env.escrow.ReleaseIfEligible(context.Background(), entry.ID))

	loaded, err = env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusReleased, loaded.Status)
}

func (suite *EscrowServiceTestSuite) TestAutoReleaseDeadline() {
	env := suite.env
	entry := suite.pendingEntry()
	suite.pastRetraction()
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)

	// Without confirmation the hold persists until the deadline.
	env.clock.Set(loaded.AutoReleaseAt.Add(-time.Minute))
	err = env.escrow.ReleaseIfEligible(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrNotHeld)

	env.clock.Set(*loaded.AutoReleaseAt)
	assert.NoError(suite.T(), env.escrow.ReleaseIfEligible(context.Background(), entry.ID))

	loaded, err = env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusReleased, loaded.Status)
}

func (suite *EscrowServiceTestSuite) TestReleaseBlockedByOpenDispute() {
	env := suite.env
	entry := suite.pendingEntry()
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))
	suite.pastRetraction()

	_, err := env.disputes.Open(env.tenant.ID, &OpenDisputeRequest{
		ContractID:    entry.ContractID,
		EscrowEntryID: &entry.ID,
		Category:      models.DisputeCategoryPayment,
		Motif:         "property not as described",
	})
	assert.NoError(suite.T(), err)

	err = env.escrow.ReleaseIfEligible(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrDisputePending)
	assert.Equal(suite.T(), 0, env.gateway.CallCount("release"))
}

func (suite *EscrowServiceTestSuite) TestRefundHeldFunds() {
	env := suite.env
	entry := suite.pendingEntry()
	assert.NoError(suite.T(), env.escrow.Capture(context.Background(), entry.ID))

	assert.NoError(suite.T(), env.escrow.Refund(context.Background(), entry.ID, "tenant never moved in"))

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusRefunded, loaded.Status)
	assert.NotNil(suite.T(), loaded.RefundedAt)
	assert.Equal(suite.T(), "tenant never moved in", loaded.RefundReason)
	assert.True(suite.T(), loaded.RefundedAmount.Equal(loaded.Amount))
	assert.Equal(suite.T(), 1, env.gateway.CallCount("refund"))
}

func (suite *EscrowServiceTestSuite) TestRefundRequiresCustody() {
	env := suite.env
	entry := suite.pendingEntry()

	err := env.escrow.Refund(context.Background(), entry.ID, "nothing captured yet")
	assert.ErrorIs(suite.T(), err, ErrNotRefundable)
}

func (suite *EscrowServiceTestSuite) TestWebhookResolvesGatewayReference() {
	env := suite.env
	entry := suite.pendingEntry()

	assert.NoError(suite.T(), env.escrow.Authorize(context.Background(), entry.ID))
	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), loaded.GatewayRef)

	// Providers call back with their own reference, not our uuid.
	assert.NoError(suite.T(), env.escrow.ReconcileCallback(loaded.GatewayRef, "captured"))

	loaded, err = env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusHeld, loaded.Status)
}

func (suite *EscrowServiceTestSuite) TestWebhookUnknownReference() {
	env := suite.env
	suite.pendingEntry()

	err := env.escrow.ReconcileCallback("pi_does_not_exist", "captured")
	assert.ErrorIs(suite.T(), err, ErrEntryNotFound)
}

func (suite *EscrowServiceTestSuite) TestOpenEntryRejectsDuplicatePeriod() {
	env := suite.env
	contract := env.signBoth(suite.T())

	// Signing already opened the entry for the first period.
	_, err := env.escrow.OpenEntryTx(env.db, contract, contract.StartDate)
	assert.ErrorIs(suite.T(), err, ErrStaleVersion)

	entries, err := env.escrow.ListEntries(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1)
}

func (suite *EscrowServiceTestSuite) TestExhaustedCaptureAuditsTheDrop() {
	env := suite.env
	entry := suite.pendingEntry()
	assert.NoError(suite.T(), env.escrow.Authorize(context.Background(), entry.ID))

	for i := 0; i < env.cfg.Escrow.CaptureMaxAttempts; i++ {
		env.gateway.ScriptTimeout("capture")
	}
	err := env.escrow.Capture(context.Background(), entry.ID)
	assert.ErrorIs(suite.T(), err, ErrGatewayTimeout)

	loaded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusPending, loaded.Status)
	assert.True(suite.T(), loaded.NeedsAttention)

	var changes []models.EscrowStatusChange
	assert.NoError(suite.T(), env.db.
		Where("escrow_entry_id = ? AND to_status = ?", entry.ID, models.EscrowStatusPending).
		Find(&changes).Error)
	assert.Len(suite.T(), changes, 1)
	assert.Equal(suite.T(), models.EscrowStatusAuthorized, changes[0].FromStatus)
	assert.Equal(suite.T(), "capture attempts exhausted", changes[0].Reason)
}

func TestEscrowServiceTestSuite(t *testing.T) {
	suite.Run(t, new(EscrowServiceTestSuite))
}
