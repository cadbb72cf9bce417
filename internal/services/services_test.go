// internal/services/services_test.go
package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/database"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contract{},
		&models.Signature{},
		&models.ContractStatusChange{},
		&models.EscrowEntry{},
		&models.EscrowStatusChange{},
		&models.Dispute{},
		&models.OtpChallenge{},
		&models.AuditLog{},
		&models.CompensationLog{},
	))
	require.NoError(t, database.CreateIndexes(db))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			AccessTokenTTL:  24,
			RefreshTokenTTL: 168,
		},
		Escrow: config.EscrowConfig{
			AutoReleaseDays:    5,
			CaptureMaxAttempts: 3,
			CaptureBackoffBase: time.Millisecond,
			CaptureTimeout:     time.Second,
		},
		Otp: config.OtpConfig{
			CodeLength:   6,
			TTL:          10 * time.Minute,
			MaxAttempts:  3,
			IssuePerHour: 100,
		},
		Legal: config.LegalConfig{
			RetractionWindow: 7 * 24 * time.Hour,
		},
		Sweep: config.SweepConfig{
			Interval:   time.Minute,
			DisputeSLA: 48 * time.Hour,
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()

	suffix := uuid.NewString()[:8]
	user := &models.User{
		Username: fmt.Sprintf("%s-%s", role, suffix),
		Email:    fmt.Sprintf("%s-%s@test.local", role, suffix),
		Phone:    "+2376" + suffix,
		Role:     role,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Sup3rSecret!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

type testEnv struct {
	db        *gorm.DB
	cfg       *config.Config
	clock     *gateways.ManualClock
	gateway   *gateways.FakePaymentGateway
	docs      *gateways.FakeDocumentGenerator
	otp       *OtpService
	escrow    *EscrowService
	signature *SignatureService
	contracts *ContractService
	disputes  *DisputeService
	sweep     *SweepService

	landlord *models.User
	tenant   *models.User
	mediator *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig()
	clock := gateways.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gateway := gateways.NewFakePaymentGateway()
	docs := gateways.NewFakeDocumentGenerator()

	otp := NewOtpService(db, cfg, clock)
	escrow := NewEscrowService(db, cfg, gateway, clock, nil)
	escrow.sleep = func(time.Duration) {}
	signature := NewSignatureService(db, cfg, otp, escrow, docs, clock, nil)
	contracts := NewContractService(db, cfg, escrow, clock, nil)
	disputes := NewDisputeService(db, cfg, escrow, clock, nil)
	sweep := NewSweepService(db, cfg, contracts, escrow, signature, disputes, clock)

	return &testEnv{
		db:        db,
		cfg:       cfg,
		clock:     clock,
		gateway:   gateway,
		docs:      docs,
		otp:       otp,
		escrow:    escrow,
		signature: signature,
		contracts: contracts,
		disputes:  disputes,
		sweep:     sweep,
		landlord:  createTestUser(t, db, models.UserRoleLandlord),
		tenant:    createTestUser(t, db, models.UserRoleTenant),
		mediator:  createTestUser(t, db, models.UserRoleMediator),
	}
}

func (env *testEnv) draftContract(t *testing.T) *models.Contract {
	t.Helper()

	start := env.clock.Now().AddDate(0, 0, 14)
	contract, err := env.contracts.Generate(&GenerateContractRequest{
		ListingID:     uuid.New(),
		LandlordID:    env.landlord.ID,
		TenantID:      env.tenant.ID,
		MonthlyAmount: decimal.NewFromInt(150000),
		Currency:      "XAF",
		StartDate:     start,
		EndDate:       start.AddDate(1, 0, 0),
	})
	require.NoError(t, err)
	return contract
}

func (env *testEnv) contractAwaitingSignatures(t *testing.T) *models.Contract {
	t.Helper()

	contract := env.draftContract(t)
	contract, err := env.contracts.SendForSignature(contract.ID, env.landlord.ID)
	require.NoError(t, err)
	return contract
}

// signBoth runs the complete dual-party signature round and returns the
// fully signed contract.
func (env *testEnv) signBoth(t *testing.T) *models.Contract {
	t.Helper()

	contract := env.contractAwaitingSignatures(t)
	env.signAs(t, contract, models.SignerRoleLandlord, env.landlord.ID)
	env.signAs(t, contract, models.SignerRoleTenant, env.tenant.ID)

	var signed models.Contract
	require.NoError(t, env.db.First(&signed, "id = ?", contract.ID).Error)
	return &signed
}

func (env *testEnv) signAs(t *testing.T, contract *models.Contract, role models.SignerRole, signerID uuid.UUID) {
	t.Helper()

	challenge, err := env.signature.RequestSignature(contract.ID, role, signerID)
	require.NoError(t, err)
	_, err = env.signature.ConfirmSignature(context.Background(), contract.ID, role, signerID, challenge.ChallengeID, challenge.Code)
	require.NoError(t, err)
}

// heldEntry drives the first escrow entry of a fully signed contract into
// held custody.
func (env *testEnv) heldEntry(t *testing.T, contract *models.Contract) *models.EscrowEntry {
	t.Helper()

	entries, err := env.escrow.ListEntries(contract.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, env.escrow.Capture(context.Background(), entries[0].ID))

	entry, err := env.escrow.GetEntry(entries[0].ID)
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusHeld, entry.Status)
	return entry
}
