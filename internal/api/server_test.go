package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/schema"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/service"
)

const testSchemaDoc = `{
  "patients": {
    "table_description": "Patient registry",
    "fields": {
      "gender": {
        "field_data_type": "object",
        "field_description": "Patient gender",
        "field_sample_values": ["Male", "Female"],
        "field_unique_values": ["Male", "Female", "Other"],
        "field_uniqueness_percent": 0.1
      },
      "patient_id": {
        "field_data_type": "object",
        "field_description": "Unique patient identifier",
        "field_sample_values": ["P001"],
        "field_unique_values": "10000 unique values",
        "field_uniqueness_percent": 100
      }
    }
  },
  "diagnoses": {
    "table_description": "Diagnosis records",
    "fields": {
      "diagnosis_name": {
        "field_data_type": "object",
        "field_description": "Primary diagnosis",
        "field_sample_values": ["Diabetes", "Hypertension"],
        "field_unique_values": ["Diabetes", "Hypertension", "Asthma", "COPD"],
        "field_uniqueness_percent": 0.4
      }
    }
  }
}`

func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	idx, err := schema.Parse([]byte(testSchemaDoc), logger)
	require.NoError(t, err)

	engine := service.NewAnalyticsEngine(idx, domain.AnalyticsConfig{
		BasePopulation: 10000,
		PatientTable:   "patients",
		GenderField:    "gender",
		DiagnosisTable: "diagnoses",
		DiagnosisField: "diagnosis_name",
	}, logger)

	cache, err := service.NewAnalyticsCache(domain.CacheConfig{
		MemorySize: 64,
		DefaultTTL: time.Minute,
	}, nil, logger)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return NewServer(Dependencies{
		Config: &domain.Config{
			Server:  domain.ServerConfig{WriteTimeout: 10 * time.Second},
			Logging: domain.LoggingConfig{Level: "info"},
		},
		Schema:   idx,
		Engine:   engine,
		Sessions: service.NewSessionManager(engine, logger),
		Cache:    cache,
		Logger:   logger,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func genderFilterPayload() map[string]any {
	return map[string]any{
		"text":     "female patients",
		"type":     "include",
		"entities": []string{"gender"},
		"db_mappings": map[string]any{
			"gender": map[string]any{
				"table.field":    "patients.gender",
				"ranked_matches": []string{"patients.gender"},
			},
		},
		"revised_criterion": "gender = Female",
	}
}

func TestCreateSession(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["session_id"])

	state := body["state"].(map[string]any)
	assert.Equal(t, float64(10000), state["patient_count"])
}

func TestAddFilter_ReducesPatientCount(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", genderFilterPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	state := decodeBody(t, rec)
	count := int(state["patient_count"].(float64))
	assert.Greater(t, count, 0)
	assert.Less(t, count, 10000)

	filters := state["filters"].([]any)
	require.Len(t, filters, 1)
	first := filters[0].(map[string]any)
	assert.Equal(t, "include", first["type"])
	assert.NotNil(t, first["affected_count"])
}

func TestAddFilter_InvalidKind(t *testing.T) {
	s := testServer(t)

	payload := genderFilterPayload()
	payload["type"] = "maybe"
	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", payload)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrValidation, decodeBody(t, rec)["code"])
}

func TestToggleFilter_RestoresCount(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", genderFilterPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	state := decodeBody(t, rec)
	filtered := int(state["patient_count"].(float64))
	filterID := state["filters"].([]any)[0].(map[string]any)["id"].(string)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/sessions/s1/filters/%s/toggle", filterID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(10000), decodeBody(t, rec)["patient_count"].(float64))

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/sessions/s1/filters/%s/toggle", filterID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, filtered, int(decodeBody(t, rec)["patient_count"].(float64)))
}

func TestRemoveAndClearFilters(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", genderFilterPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	filterID := decodeBody(t, rec)["filters"].([]any)[0].(map[string]any)["id"].(string)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/sessions/s1/filters/"+filterID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(10000), decodeBody(t, rec)["patient_count"])

	doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", genderFilterPayload())
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/sessions/s1/filters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeBody(t, rec)
	assert.Equal(t, float64(10000), state["patient_count"])
	assert.Empty(t, state["filters"])
}

func TestPatientCountEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/sessions/s1/analytics/patient-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(10000), body["patient_count"])
	assert.NotEmpty(t, body["computed_at"])
}

func TestDemographics_PartitionsPatientCount(t *testing.T) {
	s := testServer(t)
	doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", genderFilterPayload())

	countRec := doJSON(t, s, http.MethodGet, "/api/v1/sessions/s1/analytics/patient-count", nil)
	total := int(decodeBody(t, countRec)["patient_count"].(float64))

	rec := doJSON(t, s, http.MethodGet, "/api/v1/sessions/s1/analytics/demographics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(total), body["total_patients"])

	sum := 0
	for _, v := range body["gender_distribution"].(map[string]any) {
		sum += int(v.(float64))
	}
	assert.Equal(t, total, sum)
}

func TestDiagnosisBreakdown_CachedResponseStable(t *testing.T) {
	s := testServer(t)
	doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/filters", genderFilterPayload())

	first := doJSON(t, s, http.MethodGet, "/api/v1/sessions/s1/analytics/diagnoses", nil)
	require.Equal(t, http.StatusOK, first.Code)
	second := doJSON(t, s, http.MethodGet, "/api/v1/sessions/s1/analytics/diagnoses", nil)
	require.Equal(t, http.StatusOK, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())

	breakdown := decodeBody(t, first)["diagnosis_breakdown"].(map[string]any)
	assert.Len(t, breakdown, 4)
}

func TestSchemaEndpoints(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/schema/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decodeBody(t, rec)["tables"].([]any)
	assert.ElementsMatch(t, []any{"patients", "diagnoses"}, tables)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/schema/tables/patients/fields", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fields := decodeBody(t, rec)["fields"].([]any)
	require.Len(t, fields, 1)
	field := fields[0].(map[string]any)
	assert.Equal(t, "gender", field["name"])
	assert.Equal(t, true, field["is_enumerable"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/schema/tables/nope/fields", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/schema/date-operators", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ops := decodeBody(t, rec)["operators"].([]any)
	assert.Len(t, ops, 4)
}

func TestHealth_NoBackends(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestPersistenceRoutes_Unconfigured(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/projects", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/cohorts", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/sessions/s1/query", map[string]any{"query": "diabetics"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
