package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	NewHealthController(nil).HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response, 2)
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Tailoring API is running", response["message"])
}

func TestDatabaseStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)

	router := gin.New()
	router.GET("/database/status", NewHealthController(db).DatabaseStatus)

	t.Run("lists migrated tables", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/database/status", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		response := decodeResponse(t, w)
		tables, ok := response["tables"].([]interface{})
		require.True(t, ok)
		assert.Subset(t, tables, []interface{}{"users", "services", "orders", "payments"})
	})

	t.Run("closed connection is unavailable", func(t *testing.T) {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		w := performRequest(router, http.MethodGet, "/database/status", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assertErrorCode(t, decodeResponse(t, w), "DATABASE_CONNECTION_ERROR")
	})
}
