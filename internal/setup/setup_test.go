package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/config"
)

const minimalSchemaDoc = `{
  "patients": {
    "table_description": "Patient registry",
    "fields": {
      "gender": {
        "field_data_type": "object",
        "field_description": "Patient gender",
        "field_sample_values": ["Male"],
        "field_unique_values": ["Male", "Female"],
        "field_uniqueness_percent": 0.1
      }
    }
  }
}`

func testLiteConfig(t *testing.T) *config.LiteConfig {
	t.Helper()
	dir := t.TempDir()

	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(minimalSchemaDoc), 0644))

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SchemaPath = schemaPath
	return cfg
}

func TestCheckStatus_FreshInstall(t *testing.T) {
	cfg := testLiteConfig(t)

	status := CheckStatus(cfg)
	assert.False(t, status.DataDirExists)
	assert.False(t, status.CohortDBExists)
	assert.True(t, status.SchemaOK)
	assert.Equal(t, []string{"patients"}, status.SchemaTables)
}

func TestInitDataDir_MakesValidInstall(t *testing.T) {
	cfg := testLiteConfig(t)

	require.NotEmpty(t, Validate(cfg))
	require.NoError(t, InitDataDir(cfg))

	status := CheckStatus(cfg)
	assert.True(t, status.DataDirExists)
	assert.True(t, status.CohortDBExists)
	assert.Equal(t, int64(0), status.SavedCohorts)
	assert.Empty(t, Validate(cfg))
}

func TestValidate_ReportsMissingSchema(t *testing.T) {
	cfg := testLiteConfig(t)
	cfg.SchemaPath = filepath.Join(cfg.DataDir, "nope.json")
	require.NoError(t, InitDataDir(cfg))

	problems := Validate(cfg)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Error(), "schema document")
}

func TestWriteEnvFile(t *testing.T) {
	cfg := testLiteConfig(t)
	cfg.ProducerURL = "http://localhost:9090"

	path, err := WriteEnvFile(cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "COHORT_DATA_DIR")
	assert.Contains(t, string(data), "COHORT_PRODUCER_URL")
}
