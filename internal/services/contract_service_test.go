// internal/services/contract_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

type ContractServiceTestSuite struct {
	suite.Suite
	env *testEnv
}

func (suite *ContractServiceTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
}

// activeContract signs a contract and moves it past the retraction window.
func (suite *ContractServiceTestSuite) activeContract() *models.Contract {
	env := suite.env
	contract := env.signBoth(suite.T())
	env.clock.Advance(env.cfg.Legal.RetractionWindow + time.Hour)
	assert.NoError(suite.T(), env.contracts.Activate(contract.ID))

	var active models.Contract
	assert.NoError(suite.T(), env.db.First(&active, "id = ?", contract.ID).Error)
	return &active
}

func (suite *ContractServiceTestSuite) TestGenerateDraft() {
	env := suite.env
	contract := env.draftContract(suite.T())

	assert.Equal(suite.T(), models.ContractStatusDraft, contract.Status)
	assert.Regexp(suite.T(), `^CT-\d{8}-[A-Z0-9]+$`, contract.ReferenceCode)
	assert.NotEmpty(suite.T(), contract.ContentHash)
	assert.Equal(suite.T(), "XAF", contract.Currency)
}

func (suite *ContractServiceTestSuite) TestGenerateValidation() {
	env := suite.env
	start := env.clock.Now().AddDate(0, 0, 7)

	base := GenerateContractRequest{
		ListingID:     uuid.New(),
		LandlordID:    env.landlord.ID,
		TenantID:      env.tenant.ID,
		MonthlyAmount: decimal.NewFromInt(100000),
		StartDate:     start,
		EndDate:       start.AddDate(1, 0, 0),
	}

	endBeforeStart := base
	endBeforeStart.EndDate = start.AddDate(0, 0, -1)
	_, err := env.contracts.Generate(&endBeforeStart)
	assert.Error(suite.T(), err)

	zeroAmount := base
	zeroAmount.MonthlyAmount = decimal.Zero
	_, err = env.contracts.Generate(&zeroAmount)
	assert.Error(suite.T(), err)

	samePerson := base
	samePerson.TenantID = env.landlord.ID
	_, err = env.contracts.Generate(&samePerson)
	assert.Error(suite.T(), err)

	unknownParty := base
	unknownParty.TenantID = uuid.New()
	_, err = env.contracts.Generate(&unknownParty)
	assert.Error(suite.T(), err)
}

func (suite *ContractServiceTestSuite) TestContentHashIgnoresOperationalFields() {
	env := suite.env
	first := env.draftContract(suite.T())

	// Status changes do not disturb the terms digest.
	_, err := env.contracts.SendForSignature(first.ID, env.landlord.ID)
	assert.NoError(suite.T(), err)

	var loaded models.Contract
	assert.NoError(suite.T(), env.db.First(&loaded, "id = ?", first.ID).Error)
	assert.Equal(suite.T(), first.ContentHash, loaded.ContentHash)
}

func (suite *ContractServiceTestSuite) TestSendForSignature() {
	env := suite.env
	contract := env.draftContract(suite.T())

	_, err := env.contracts.SendForSignature(contract.ID, env.mediator.ID)
	assert.ErrorIs(suite.T(), err, ErrNotParty)

	sent, err := env.contracts.SendForSignature(contract.ID, env.landlord.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ContractStatusAwaitingSignature, sent.Status)

	_, err = env.contracts.SendForSignature(contract.ID, env.landlord.ID)
	assert.ErrorIs(suite.T(), err, ErrContractNotDraft)
}

func (suite *ContractServiceTestSuite) TestCancelBeforeAnySignature() {
	env := suite.env
	contract := env.contractAwaitingSignatures(suite.T())

	assert.NoError(suite.T(), env.contracts.Cancel(contract.ID, env.tenant.ID, "found another place"))

	var loaded models.Contract
	assert.NoError(suite.T(), env.db.First(&loaded, "id = ?", contract.ID).Error)
	assert.Equal(suite.T(), models.ContractStatusCancelled, loaded.Status)
	assert.Equal(suite.T(), "found another place", loaded.CancellationReason)
}

func (suite *ContractServiceTestSuite) TestCancelBlockedAfterFirstSignature() {
	env := suite.env
	contract := env.contractAwaitingSignatures(suite.T())
	env.signAs(suite.T(), contract, models.SignerRoleLandlord, env.landlord.ID)

	err := env.contracts.Cancel(contract.ID, env.tenant.ID, "changed my mind")
	assert.ErrorIs(suite.T(), err, ErrNotCancellable)
}

func (suite *ContractServiceTestSuite) TestWithdrawDuringRetractionRefunds() {
	env := suite.env
	contract := env.signBoth(suite.T())
	entry := env.heldEntry(suite.T(), contract)

	assert.NoError(suite.T(), env.contracts.WithdrawDuringRetraction(context.Background(), contract.ID, env.tenant.ID, "deposit regrets"))

	var loaded models.Contract
	assert.NoError(suite.T(), env.db.First(&loaded, "id = ?", contract.ID).Error)
	assert.Equal(suite.T(), models.ContractStatusCancelled, loaded.Status)

	refunded, err := env.escrow.GetEntry(entry.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.EscrowStatusRefunded, refunded.Status)
	assert.Equal(suite.T(), 1, env.gateway.CallCount("refund"))

	// Signatures stay on record after the withdrawal.
	signatures, err := env.signature.ListSignatures(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), signatures, 2)
}

func (suite *ContractServiceTestSuite) TestWithdrawBlockedAfterDeadline() {
	env := suite.env
	contract := env.signBoth(suite.T())
	env.clock.Advance(env.cfg.Legal.RetractionWindow + time.Minute)

	err := env.contracts.WithdrawDuringRetraction(context.Background(), contract.ID, env.tenant.ID, "too late")
	assert.ErrorIs(suite.T(), err, ErrNotCancellable)
}

func (suite *ContractServiceTestSuite) TestActivateRespectsRetractionWindow() {
	env := suite.env
	contract := env.signBoth(suite.T())

	assert.ErrorIs(suite.T(), env.contracts.Activate(contract.ID), ErrRetractionOpen)

	env.clock.Advance(env.cfg.Legal.RetractionWindow)
	assert.NoError(suite.T(), env.contracts.Activate(contract.ID))

	var active models.Contract
	assert.NoError(suite.T(), env.db.First(&active, "id = ?", contract.ID).Error)
	assert.Equal(suite.T(), models.ContractStatusActive, active.Status)
	assert.NotNil(suite.T(), active.ActivatedAt)

	// A second activation loses the compare-and-set.
	assert.ErrorIs(suite.T(), env.contracts.Activate(contract.ID), ErrStaleVersion)
}

func (suite *ContractServiceTestSuite) TestTerminate() {
	env := suite.env
	contract := suite.activeContract()

	assert.ErrorIs(suite.T(), env.contracts.Terminate(contract.ID, env.mediator.ID, "nope"), ErrNotParty)
	assert.NoError(suite.T(), env.contracts.Terminate(contract.ID, env.landlord.ID, "property sold"))

	var loaded models.Contract
	assert.NoError(suite.T(), env.db.First(&loaded, "id = ?", contract.ID).Error)
	assert.Equal(suite.T(), models.ContractStatusTerminated, loaded.Status)
	assert.Equal(suite.T(), "property sold", loaded.TerminationReason)

	assert.ErrorIs(suite.T(), env.contracts.Terminate(contract.ID, env.landlord.ID, "again"), ErrNotTerminable)
}

func (suite *ContractServiceTestSuite) TestScheduleNextRent() {
	env := suite.env
	contract := suite.activeContract()

	entry, err := env.contracts.ScheduleNextRent(contract.ID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), entry.DueDate.Equal(contract.StartDate.AddDate(0, 1, 0)))
	assert.Equal(suite.T(), models.EscrowStatusPending, entry.Status)
	assert.True(suite.T(), entry.Amount.Equal(contract.MonthlyAmount))

	// Each call advances exactly one period.
	second, err := env.contracts.ScheduleNextRent(contract.ID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), second.DueDate.Equal(contract.StartDate.AddDate(0, 2, 0)))

	entries, err := env.escrow.ListEntries(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 3)
}

func (suite *ContractServiceTestSuite) TestScheduleNextRentStopsAtEndDate() {
	env := suite.env
	contract := suite.activeContract()

	for {
		_, err := env.contracts.ScheduleNextRent(contract.ID)
		if err != nil {
			assert.ErrorIs(suite.T(), err, ErrContractInactive)
			break
		}
	}

	entries, err := env.escrow.ListEntries(contract.ID)
	assert.NoError(suite.T(), err)
	// A one-year lease has at most thirteen monthly due dates including
	// both endpoints.
	assert.LessOrEqual(suite.T(), len(entries), 13)
	for _, e := range entries {
		assert.False(suite.T(), e.DueDate.After(contract.EndDate))
	}
}

func (suite *ContractServiceTestSuite) TestScheduleNextRentRequiresActive() {
	env := suite.env
	contract := env.signBoth(suite.T())

	_, err := env.contracts.ScheduleNextRent(contract.ID)
	assert.ErrorIs(suite.T(), err, ErrContractInactive)
}

func (suite *ContractServiceTestSuite) TestGetReportsBlockedOn() {
	env := suite.env
	contract := env.contractAwaitingSignatures(suite.T())

	view, err := env.contracts.Get(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "waiting on both signatures", view.BlockedOn)

	env.signAs(suite.T(), contract, models.SignerRoleLandlord, env.landlord.ID)
	view, err = env.contracts.Get(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "waiting on tenant signature", view.BlockedOn)

	env.signAs(suite.T(), contract, models.SignerRoleTenant, env.tenant.ID)
	view, err = env.contracts.Get(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "retraction window open", view.BlockedOn)

	env.clock.Advance(env.cfg.Legal.RetractionWindow)
	view, err = env.contracts.Get(contract.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "pending activation", view.BlockedOn)
}

func (suite *ContractServiceTestSuite) TestListForUser() {
	env := suite.env
	first := env.draftContract(suite.T())
	second := env.draftContract(suite.T())

	params := utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}

	mine, total, err := env.contracts.ListForUser(env.tenant.ID, params)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), mine, 2)
	assert.Equal(suite.T(), int64(2), total)

	ids := []uuid.UUID{mine[0].ID, mine[1].ID}
	assert.Contains(suite.T(), ids, first.ID)
	assert.Contains(suite.T(), ids, second.ID)

	// One result per page.
	firstPage, total, err := env.contracts.ListForUser(env.tenant.ID,
		utils.PaginationParams{Page: 1, Limit: 1, Sort: "created_at", Order: "desc"})
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), firstPage, 1)
	assert.Equal(suite.T(), int64(2), total)

	// Search narrows by reference code.
	byRef, total, err := env.contracts.ListForUser(env.tenant.ID,
		utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc", Search: first.ReferenceCode})
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), byRef, 1)
	assert.Equal(suite.T(), int64(1), total)

	// Status narrows to one lifecycle state.
	_, err = env.contracts.SendForSignature(first.ID, env.landlord.ID)
	assert.NoError(suite.T(), err)
	awaiting, total, err := env.contracts.ListForUser(env.tenant.ID,
		utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc", Status: string(models.ContractStatusAwaitingSignature)})
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), awaiting, 1)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), first.ID, awaiting[0].ID)

	none, total, err := env.contracts.ListForUser(env.mediator.ID, params)
	assert.NoError(suite.T(), err)
	assert.Empty(suite.T(), none)
	assert.Equal(suite.T(), int64(0), total)
}

func TestContractServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ContractServiceTestSuite))
}
