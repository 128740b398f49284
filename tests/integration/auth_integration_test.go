package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/tests/testutil"
	"github.com/stitchwell/tailoring-api/utils"
	"github.com/stretchr/testify/suite"
)

// AuthIntegrationTestSuite covers registration, login and token validation
type AuthIntegrationTestSuite struct {
	suite.Suite
	app *testutil.TestApp
}

func (suite *AuthIntegrationTestSuite) SetupTest() {
	suite.app = testutil.NewTestApp(suite.T())
}

func (suite *AuthIntegrationTestSuite) TestRegisterThenUseToken() {
	w := suite.app.Do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "ada",
		"email":    "Ada@Example.com",
		"password": "correct-horse",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	data := testutil.Data(suite.T(), w.Body.Bytes())
	token := data["token"].(string)
	suite.NotEmpty(token)

	user := data["user"].(map[string]interface{})
	suite.Equal(models.RoleCustomer, user["role"])
	suite.NotContains(user, "password_hash")

	w = suite.app.Do(http.MethodGet, "/api/v1/users/me", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal("ada@example.com", testutil.Data(suite.T(), w.Body.Bytes())["email"])
}

func (suite *AuthIntegrationTestSuite) TestRegisterRejectsDuplicatesAndRoleEscalation() {
	suite.app.CreateUser(suite.T(), "taken", models.RoleCustomer)

	w := suite.app.Do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "taken",
		"email":    "taken@example.com",
		"password": "password123",
	})
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("USER_EXISTS", testutil.ErrorCode(suite.T(), w.Body.Bytes()))

	w = suite.app.Do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "sneaky",
		"email":    "sneaky@example.com",
		"password": "password123",
		"role":     models.RoleAdmin,
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *AuthIntegrationTestSuite) TestLogin() {
	suite.app.CreateUser(suite.T(), "grace", models.RoleCustomer)

	w := suite.app.Do(http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"email":    "grace@example.com",
		"password": testutil.DefaultPassword,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.NotEmpty(testutil.Data(suite.T(), w.Body.Bytes())["token"])

	w = suite.app.Do(http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"email":    "grace@example.com",
		"password": "wrong-password",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("INVALID_CREDENTIALS", testutil.ErrorCode(suite.T(), w.Body.Bytes()))
}

func (suite *AuthIntegrationTestSuite) TestRejectedTokens() {
	user := suite.app.CreateUser(suite.T(), "linus", models.RoleCustomer)
	valid := suite.app.TokenFor(suite.T(), user)

	expired, err := utils.TokenIssuer{
		Secret:   []byte(suite.app.Config.JWTSecret),
		Issuer:   suite.app.Config.JWTIssuer,
		Audience: suite.app.Config.JWTAudience,
		TTL:      -time.Hour,
	}.GenerateToken(user.ID, user.Role)
	suite.Require().NoError(err)

	wrongAudience, err := utils.TokenIssuer{
		Secret:   []byte(suite.app.Config.JWTSecret),
		Issuer:   suite.app.Config.JWTIssuer,
		Audience: "someone-else",
		TTL:      time.Hour,
	}.GenerateToken(user.ID, user.Role)
	suite.Require().NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"tampered", valid[:len(valid)-2] + "xx"},
		{"expired", expired},
		{"wrong audience", wrongAudience},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.app.Do(http.MethodGet, "/api/v1/users/me", tt.token, nil)
			suite.Equal(http.StatusUnauthorized, w.Code)
			suite.Equal("INVALID_TOKEN", testutil.ErrorCode(suite.T(), w.Body.Bytes()))
		})
	}
}

func (suite *AuthIntegrationTestSuite) TestTailorDirectoryIsAdminOnly() {
	admin := suite.app.CreateUser(suite.T(), "admin", models.RoleAdmin)
	customer := suite.app.CreateUser(suite.T(), "customer", models.RoleCustomer)

	w := suite.app.Do(http.MethodPost, "/api/v1/tailors", suite.app.TokenFor(suite.T(), customer), map[string]interface{}{
		"username": "needle",
		"email":    "needle@example.com",
		"password": "password123",
	})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.app.Do(http.MethodPost, "/api/v1/tailors", suite.app.TokenFor(suite.T(), admin), map[string]interface{}{
		"username": "needle",
		"email":    "needle@example.com",
		"password": "password123",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	suite.Equal(models.RoleTailor, testutil.Data(suite.T(), w.Body.Bytes())["role"])

	w = suite.app.Do(http.MethodGet, "/api/v1/tailors?available=true", suite.app.TokenFor(suite.T(), admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Len(testutil.Decode(suite.T(), w.Body.Bytes())["data"], 1)
}

func (suite *AuthIntegrationTestSuite) TestAdminRoutesAreAdminOnly() {
	admin := suite.app.CreateUser(suite.T(), "admin", models.RoleAdmin)
	customer := suite.app.CreateUser(suite.T(), "customer", models.RoleCustomer)
	tailor := suite.app.CreateUser(suite.T(), "tailor", models.RoleTailor)
	tailorPath := fmt.Sprintf("/api/v1/tailors/%d", tailor.ID)

	for _, path := range []string{"/api/v1/admin/dashboard", "/api/v1/admin/users", tailorPath} {
		w := suite.app.Do(http.MethodGet, path, suite.app.TokenFor(suite.T(), customer), nil)
		suite.Equal(http.StatusForbidden, w.Code, path)
		w = suite.app.Do(http.MethodGet, path, "", nil)
		suite.Equal(http.StatusUnauthorized, w.Code, path)
	}

	w := suite.app.Do(http.MethodGet, "/api/v1/admin/users?role=tailor", suite.app.TokenFor(suite.T(), admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Len(testutil.Data(suite.T(), w.Body.Bytes())["users"], 1)

	w = suite.app.Do(http.MethodGet, "/api/v1/admin/dashboard", suite.app.TokenFor(suite.T(), admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal(float64(2), testutil.Data(suite.T(), w.Body.Bytes())["total_users"])

	w = suite.app.Do(http.MethodDelete, tailorPath, suite.app.TokenFor(suite.T(), admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = suite.app.Do(http.MethodGet, tailorPath, suite.app.TokenFor(suite.T(), admin), nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func TestAuthIntegrationSuite(t *testing.T) {
	suite.Run(t, new(AuthIntegrationTestSuite))
}
