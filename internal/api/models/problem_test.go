package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/api/models"
)

func TestProblem_Write(t *testing.T) {
	rec := httptest.NewRecorder()

	p := models.NewBadRequest("req_123", "invalid alert request", []models.FieldError{
		{Field: "stopId", Message: "required"},
	})
	p.Instance = "/v1/alerts"
	p.Write(rec)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_123", rec.Header().Get("X-Request-Id"))

	var decoded models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, models.ProblemTypeValidation, decoded.Type)
	assert.Equal(t, "invalid alert request", decoded.Detail)
	assert.Equal(t, "/v1/alerts", decoded.Instance)
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, "stopId", decoded.Errors[0].Field)
}

func TestProblem_Constructors(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, models.NewNotFound("t", "d").Status)
	assert.Equal(t, http.StatusConflict, models.NewConflict("t", "d").Status)
	assert.Equal(t, http.StatusTooManyRequests, models.NewTooManyRequests("t", "d").Status)
	assert.Equal(t, http.StatusInternalServerError, models.NewInternalError("t", "d").Status)
	assert.Equal(t, http.StatusServiceUnavailable, models.NewServiceUnavailable("t", "d").Status)
}
