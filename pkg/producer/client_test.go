package producer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(baseURL string) *Client {
	return NewClient(domain.ProducerConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		RateLimit:  100,
		RetryCount: 1,
	}, testLogger())
}

func validCriterion() CriterionPayload {
	return CriterionPayload{
		Text:     "female patients",
		Type:     "include",
		Entities: []string{"female"},
		DBMappings: map[string]domain.EntityMapping{
			"female": {
				TableDotField: "patients.gender",
				RankedMatches: []string{"patients.gender"},
				MappingMethod: domain.MappingDirect,
			},
		},
		RevisedCriterion: "gender = 'Female'",
	}
}

func TestClient_ProcessQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/process-query", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "female patients", req.Query)
		assert.Equal(t, "session-1", req.SessionID)

		json.NewEncoder(w).Encode(QueryResponse{
			Interpretation: "1 filter: gender",
			Criteria:       []CriterionPayload{validCriterion()},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ProcessQuery(context.Background(), "female patients", "session-1")

	require.NoError(t, err)
	assert.Equal(t, "1 filter: gender", result.Interpretation)
	require.Len(t, result.Filters, 1)
	assert.Equal(t, domain.FilterInclude, result.Filters[0].Kind)
	assert.True(t, result.Filters[0].Enabled)
	assert.Equal(t, 0, result.Rejected)
}

func TestClient_ProcessQuery_RejectsInvalidCriteria(t *testing.T) {
	invalid := CriterionPayload{
		Text:       "age over 50",
		Type:       "include",
		Entities:   []string{"age"},
		DBMappings: map[string]domain.EntityMapping{}, // missing mapping
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(QueryResponse{
			Interpretation: "2 filters",
			Criteria:       []CriterionPayload{validCriterion(), invalid},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ProcessQuery(context.Background(), "q", "")

	require.NoError(t, err)
	assert.Len(t, result.Filters, 1)
	assert.Equal(t, 1, result.Rejected)
}

func TestClient_ProcessQuery_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(QueryResponse{
			Criteria: []CriterionPayload{validCriterion()},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ProcessQuery(context.Background(), "q", "")

	require.NoError(t, err)
	assert.Len(t, result.Filters, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ProcessQuery_FailsAfterRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ProcessQuery(context.Background(), "q", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "producer query failed")
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.Health(context.Background()))
}

func TestClient_HealthUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.Error(t, client.Health(context.Background()))
}

func TestCriterionPayload_ToFilter_InvalidKind(t *testing.T) {
	payload := validCriterion()
	payload.Type = "maybe"

	_, err := payload.ToFilter()
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}
