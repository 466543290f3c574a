package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(7), parsed.Version())
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestJSONErrorDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	JSONErrorDetails(c, http.StatusConflict, errors.New("too low"), "bid amount too low", gin.H{
		"minimum_bid": "1100.00",
		"status":      "ignored",
	})

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, http.StatusConflict, w.Code)
	require.EqualValues(t, http.StatusConflict, body["status"])
	require.Equal(t, "bid amount too low", body["message"])
	require.Equal(t, "too low", body["error"])
	require.Equal(t, "1100.00", body["minimum_bid"])
}
