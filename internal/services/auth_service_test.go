// internal/services/auth_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

type AuthServiceTestSuite struct {
	suite.Suite
	env  *testEnv
	auth *AuthService
}

func (suite *AuthServiceTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
	suite.auth = NewAuthService(suite.env.db, suite.env.cfg)
	utils.SetJWTSecret("test-secret")
}

func (suite *AuthServiceTestSuite) registerRequest() *RegisterRequest {
	return &RegisterRequest{
		Username: "amina_k",
		Email:    "amina@example.cm",
		Phone:    "+237650123456",
		Password: "Str0ng!Pass",
		Role:     models.UserRoleTenant,
	}
}

func (suite *AuthServiceTestSuite) TestRegister() {
	resp, err := suite.auth.Register(suite.registerRequest())
	assert.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), resp.AccessToken)
	assert.NotEmpty(suite.T(), resp.RefreshToken)
	assert.Equal(suite.T(), "Bearer", resp.TokenType)
	assert.Equal(suite.T(), models.UserRoleTenant, resp.User.Role)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), resp.User.ID.String(), claims.UserID)
	assert.Equal(suite.T(), string(models.UserRoleTenant), claims.Role)
}

func (suite *AuthServiceTestSuite) TestRegisterRejectsWeakPassword() {
	req := suite.registerRequest()
	req.Password = "password"
	_, err := suite.auth.Register(req)
	assert.Error(suite.T(), err)
}

func (suite *AuthServiceTestSuite) TestRegisterRejectsPrivilegedRoles() {
	for _, role := range []models.UserRole{models.UserRoleMediator, models.UserRoleAdmin} {
		req := suite.registerRequest()
		req.Role = role
		_, err := suite.auth.Register(req)
		assert.Error(suite.T(), err)
	}
}

func (suite *AuthServiceTestSuite) TestRegisterRejectsDuplicates() {
	_, err := suite.auth.Register(suite.registerRequest())
	assert.NoError(suite.T(), err)

	dupEmail := suite.registerRequest()
	dupEmail.Username = "someone_else"
	dupEmail.Phone = "+237650999999"
	_, err = suite.auth.Register(dupEmail)
	assert.ErrorContains(suite.T(), err, "email")

	dupPhone := suite.registerRequest()
	dupPhone.Username = "someone_else"
	dupPhone.Email = "else@example.cm"
	_, err = suite.auth.Register(dupPhone)
	assert.ErrorContains(suite.T(), err, "phone")
}

func (suite *AuthServiceTestSuite) TestLogin() {
	_, err := suite.auth.Register(suite.registerRequest())
	assert.NoError(suite.T(), err)

	resp, err := suite.auth.Login(&LoginRequest{Email: "amina@example.cm", Password: "Str0ng!Pass"})
	assert.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), resp.AccessToken)
	assert.NotNil(suite.T(), resp.User.LastLoginAt)

	_, err = suite.auth.Login(&LoginRequest{Email: "amina@example.cm", Password: "wrong"})
	assert.ErrorContains(suite.T(), err, "invalid email or password")

	_, err = suite.auth.Login(&LoginRequest{Email: "nobody@example.cm", Password: "Str0ng!Pass"})
	assert.ErrorContains(suite.T(), err, "invalid email or password")
}

func (suite *AuthServiceTestSuite) TestLoginSuspendedAccount() {
	reg, err := suite.auth.Register(suite.registerRequest())
	assert.NoError(suite.T(), err)

	assert.NoError(suite.T(), suite.env.db.Model(&models.User{}).
		Where("id = ?", reg.User.ID).
		Update("status", models.UserStatusSuspended).Error)

	_, err = suite.auth.Login(&LoginRequest{Email: "amina@example.cm", Password: "Str0ng!Pass"})
	assert.ErrorContains(suite.T(), err, "suspended")
}

func (suite *AuthServiceTestSuite) TestRefreshToken() {
	reg, err := suite.auth.Register(suite.registerRequest())
	assert.NoError(suite.T(), err)

	resp, err := suite.auth.RefreshToken(reg.RefreshToken)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), reg.User.ID, resp.User.ID)
	assert.NotEmpty(suite.T(), resp.AccessToken)

	_, err = suite.auth.RefreshToken("not-a-token")
	assert.Error(suite.T(), err)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
