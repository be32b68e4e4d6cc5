package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func administrationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "public_name", "description", "date_opened", "date_closed",
		"sequential", "created_by", "created_at", "updated_at",
	})
}

func TestAdministrationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM administrations WHERE id = \$1`).
		WithArgs("adm-1").
		WillReturnRows(administrationRows().
			AddRow("adm-1", "Fall Screener", "Fall Reading Screener", nil, now, nil, true, "admin-1", now, now))

	admin, err := repo.FindByID(context.Background(), "adm-1")
	require.NoError(t, err)
	assert.Equal(t, "Fall Screener", admin.Name)
	assert.True(t, admin.Sequential)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdministrationRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM administrations WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdministrationRepositoryListForUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`WITH member_orgs AS`).
		WithArgs("user-1", now).
		WillReturnRows(administrationRows().
			AddRow("adm-1", "Fall Screener", "Fall Reading Screener", nil, now, nil, false, "admin-1", now, now))

	admins, err := repo.ListForUser(context.Background(), "user-1", now)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "adm-1", admins[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdministrationRepositoryAssignedRefs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	rows := sqlmock.NewRows([]string{"resource_type", "resource_id"}).
		AddRow("district", "d1").
		AddRow("class", "c1").
		AddRow("group", "g1")
	mock.ExpectQuery(`SELECT o\.org_type AS resource_type`).
		WithArgs("adm-1").
		WillReturnRows(rows)

	refs, err := repo.AssignedRefs(context.Background(), "adm-1")
	require.NoError(t, err)
	assert.Equal(t, []models.ResourceRef{
		{Type: models.ResourceDistrict, ID: "d1"},
		{Type: models.ResourceClass, ID: "c1"},
		{Type: models.ResourceGroup, ID: "g1"},
	}, refs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdministrationRepositoryListTaskVariants(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "task_id", "name", "description", "order_index",
		"conditions_assignment", "conditions_requirements", "created_at", "updated_at",
	}).
		AddRow("var-1", "task-1", "Letter Names", nil, 0, nil, nil, now, now).
		AddRow("var-2", "task-1", "Letter Sounds", nil, 1, []byte(`{"op":"EQUAL","field":"studentData.grade","value":3}`), nil, now, now)
	mock.ExpectQuery(`FROM administration_task_variants atv`).
		WithArgs("adm-1").
		WillReturnRows(rows)

	variants, err := repo.ListTaskVariants(context.Background(), "adm-1")
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Nil(t, variants[0].ConditionsAssignment)
	require.NotNil(t, variants[1].ConditionsAssignment)
	assert.Equal(t, models.OpEqual, variants[1].ConditionsAssignment.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdministrationRepositoryAssignedUserCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"administration_id", "assigned_users"}).
		AddRow("adm-1", 42).
		AddRow("adm-2", 7)
	// The window instant precedes the ids so expired enrollments are excluded.
	mock.ExpectQuery(`enrollment_start <= \$1 AND \(uo\.enrollment_end IS NULL OR uo\.enrollment_end > \$1\)`).
		WithArgs(now, "adm-1", "adm-2").
		WillReturnRows(rows)

	counts, err := repo.AssignedUserCounts(context.Background(), []string{"adm-1", "adm-2"}, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"adm-1": 42, "adm-2": 7}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdministrationRepositoryAssignedUserCountsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdministrationRepository(db)

	counts, err := repo.AssignedUserCounts(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}
