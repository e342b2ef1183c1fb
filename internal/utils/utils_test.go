package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := GenerateToken(64)
		require.NoError(t, err)
		assert.Len(t, tok, 64)
		assert.True(t, IsAlphanumeric(tok))
		assert.False(t, seen[tok], "tokens should not repeat")
		seen[tok] = true
	}
}

func TestIsAlphanumeric(t *testing.T) {
	assert.True(t, IsAlphanumeric("abcXYZ019"))
	assert.False(t, IsAlphanumeric("abc-123"))
	assert.False(t, IsAlphanumeric("ñ"))
}

func TestWriteJSON_ValidationEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusUnprocessableEntity, ValidationResponse(map[string][]string{"items": {"required"}}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation failed", body["message"])
	assert.Contains(t, body, "errors")
	assert.NotContains(t, body, "error")
}

func TestLoadLocation(t *testing.T) {
	loc, ok := LoadLocation("Asia/Manila")
	assert.True(t, ok)
	assert.Equal(t, "Asia/Manila", loc.String())

	loc, ok = LoadLocation("Mars/Olympus")
	assert.False(t, ok)
	assert.Equal(t, time.UTC, loc)
}
