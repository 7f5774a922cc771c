package cohortstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	return store, mock
}

func cohortColumns() []string {
	return []string{
		"id", "name", "session_id", "description", "patient_count",
		"filters", "created_at", "updated_at",
	}
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	created := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO saved_cohorts")).
		WithArgs("my-cohort", "session-1", "desc", 4812, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	cohort := &SavedCohort{
		Name:         "my-cohort",
		SessionID:    "session-1",
		Description:  "desc",
		PatientCount: 4812,
	}
	err := store.Save(ctx, cohort)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cohort.ID)
	assert.Equal(t, created, cohort.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM saved_cohorts").
		WithArgs("my-cohort").
		WillReturnRows(sqlmock.NewRows(cohortColumns()).
			AddRow(int64(7), "my-cohort", "session-1", "desc", 4812, `[]`, now, now))

	cohort, err := store.Get(ctx, "my-cohort")
	require.NoError(t, err)
	require.NotNil(t, cohort)
	assert.Equal(t, int64(7), cohort.ID)
	assert.Equal(t, 4812, cohort.PatientCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM saved_cohorts").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cohortColumns()))

	cohort, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, cohort)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDecodesFilters(t *testing.T) {
	store, mock := newMockStore(t)

	filtersJSON := `[{"id":"f1","type":"include","text":"female patients","entities":["female"],"db_mappings":{"female":{"table.field":"patients.gender"}},"revised_criterion":"gender = 'Female'","enabled":true}]`
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM saved_cohorts").
		WithArgs("my-cohort").
		WillReturnRows(sqlmock.NewRows(cohortColumns()).
			AddRow(int64(1), "my-cohort", "", "", 4812, filtersJSON, now, now))

	cohort, err := store.Get(context.Background(), "my-cohort")
	require.NoError(t, err)
	require.NotNil(t, cohort)
	require.Len(t, cohort.Filters, 1)
	assert.Equal(t, "f1", cohort.Filters[0].ID)
	assert.Equal(t, "patients.gender", cohort.Filters[0].DBMappings["female"].TableDotField)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM saved_cohorts").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(cohortColumns()).
			AddRow(int64(2), "newer", "", "", 200, `[]`, now, now).
			AddRow(int64(1), "older", "", "", 100, `[]`, now.Add(-time.Hour), now.Add(-time.Hour)))

	list, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Name)
	assert.Equal(t, "older", list[1].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM saved_cohorts")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM saved_cohorts").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Delete(context.Background(), 7)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
