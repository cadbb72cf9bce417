// internal/services/otp_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/ndakohub/ndako-backend/internal/models"
)

type OtpServiceTestSuite struct {
	suite.Suite
	env *testEnv
}

func (suite *OtpServiceTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
}

func (suite *OtpServiceTestSuite) issue() *IssuedChallenge {
	challenge, err := suite.env.otp.Issue(suite.env.tenant.ID, models.OtpPurposeContractSign, "scope-1", suite.env.tenant.Phone)
	assert.NoError(suite.T(), err)
	return challenge
}

func (suite *OtpServiceTestSuite) TestIssueAndVerify() {
	challenge := suite.issue()
	assert.Len(suite.T(), challenge.Code, suite.env.cfg.Otp.CodeLength)
	assert.Equal(suite.T(), suite.env.clock.Now().Add(suite.env.cfg.Otp.TTL), challenge.ExpiresAt)

	verified, err := suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), verified.VerifiedAt)
	assert.NotNil(suite.T(), verified.ConsumedAt)
	assert.Equal(suite.T(), suite.env.tenant.ID, verified.SubjectID)
}

func (suite *OtpServiceTestSuite) TestCodeIsStoredHashed() {
	challenge := suite.issue()

	var stored models.OtpChallenge
	assert.NoError(suite.T(), suite.env.db.First(&stored, "id = ?", challenge.ChallengeID).Error)
	assert.NotEqual(suite.T(), challenge.Code, stored.CodeHash)
	assert.NotContains(suite.T(), stored.CodeHash, challenge.Code)
}

func (suite *OtpServiceTestSuite) TestVerifyConsumesOnce() {
	challenge := suite.issue()

	_, err := suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.NoError(suite.T(), err)

	// Replaying the same code after consumption must fail.
	_, err = suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(suite.T(), err, ErrInvalidCode)
}

func (suite *OtpServiceTestSuite) TestVerifyWrongCode() {
	challenge := suite.issue()

	_, err := suite.env.otp.Verify(challenge.ChallengeID, "000000")
	assert.ErrorIs(suite.T(), err, ErrInvalidCode)

	// A wrong attempt does not consume the challenge.
	_, err = suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.NoError(suite.T(), err)
}

func (suite *OtpServiceTestSuite) TestVerifyExpiredCode() {
	challenge := suite.issue()
	suite.env.clock.Advance(suite.env.cfg.Otp.TTL + time.Second)

	_, err := suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(suite.T(), err, ErrCodeExpired)

	// Expiry consumes the challenge, even with the right code.
	suite.env.clock.Advance(-2 * suite.env.cfg.Otp.TTL)
	_, err = suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(suite.T(), err, ErrInvalidCode)
}

func (suite *OtpServiceTestSuite) TestVerifyAttemptBudget() {
	challenge := suite.issue()

	for i := 0; i < suite.env.cfg.Otp.MaxAttempts-1; i++ {
		_, err := suite.env.otp.Verify(challenge.ChallengeID, "999999")
		assert.ErrorIs(suite.T(), err, ErrInvalidCode)
	}

	_, err := suite.env.otp.Verify(challenge.ChallengeID, "999999")
	assert.ErrorIs(suite.T(), err, ErrTooManyAttempts)

	// The budget is spent; the correct code no longer works.
	_, err = suite.env.otp.Verify(challenge.ChallengeID, challenge.Code)
	assert.ErrorIs(suite.T(), err, ErrInvalidCode)
}

func (suite *OtpServiceTestSuite) TestVerifyUnknownChallenge() {
	_, err := suite.env.otp.Verify(uuid.New(), "123456")
	assert.ErrorIs(suite.T(), err, ErrChallengeNotFound)
}

func (suite *OtpServiceTestSuite) TestIssueRateLimit() {
	suite.env.cfg.Otp.IssuePerHour = 2

	_, err := suite.env.otp.Issue(suite.env.landlord.ID, models.OtpPurposeContractSign, "scope-1", suite.env.landlord.Phone)
	assert.NoError(suite.T(), err)
	_, err = suite.env.otp.Issue(suite.env.landlord.ID, models.OtpPurposeContractSign, "scope-1", suite.env.landlord.Phone)
	assert.NoError(suite.T(), err)

	_, err = suite.env.otp.Issue(suite.env.landlord.ID, models.OtpPurposeContractSign, "scope-1", suite.env.landlord.Phone)
	assert.ErrorIs(suite.T(), err, ErrTooManyAttempts)

	// The limit is per subject; another user is unaffected.
	_, err = suite.env.otp.Issue(suite.env.tenant.ID, models.OtpPurposeContractSign, "scope-1", suite.env.tenant.Phone)
	assert.NoError(suite.T(), err)
}

func (suite *OtpServiceTestSuite) TestConsumeLosesRaceOnStaleCopy() {
	env := suite.env
	issued := suite.issue()

	var challenge models.OtpChallenge
	assert.NoError(suite.T(), env.db.First(&challenge, "id = ?", issued.ChallengeID).Error)

	// A rival verification finalizes the challenge after our copy was
	// loaded.
	now := env.clock.Now()
	assert.NoError(suite.T(), env.db.Model(&models.OtpChallenge{}).
		Where("id = ?", challenge.ID).Update("consumed_at", now).Error)

	err := consumeChallenge(env.db, &challenge, map[string]interface{}{
		"verified_at": now,
		"consumed_at": now,
	})
	assert.ErrorIs(suite.T(), err, ErrInvalidCode)

	var stored models.OtpChallenge
	assert.NoError(suite.T(), env.db.First(&stored, "id = ?", challenge.ID).Error)
	assert.Nil(suite.T(), stored.VerifiedAt)
}

func TestOtpServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OtpServiceTestSuite))
}
