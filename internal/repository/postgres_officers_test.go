package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parser06/first-responder-risk/internal/models"
)

func setupOfficersRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresOfficersRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresOfficersRepository(db)

	return db, mock, repo
}

func TestGetProfile_Success(t *testing.T) {
	db, mock, repo := setupOfficersRepo(t)
	defer db.Close()

	updatedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"officer_id", "age", "resting_hr", "updated_at"}).
		AddRow("officer-1", 34, 58.0, updatedAt)

	mock.ExpectQuery(`FROM officer_profiles`).
		WithArgs("officer-1").
		WillReturnRows(rows)

	profile, err := repo.GetProfile(context.Background(), "officer-1")

	require.NoError(t, err)
	assert.Equal(t, "officer-1", profile.OfficerID)
	assert.Equal(t, 34, profile.Age)
	assert.Equal(t, 58.0, profile.RestingHR)
	assert.Equal(t, updatedAt, profile.UpdatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	db, mock, repo := setupOfficersRepo(t)
	defer db.Close()

	mock.ExpectQuery(`FROM officer_profiles`).
		WithArgs("officer-9").
		WillReturnError(sql.ErrNoRows)

	profile, err := repo.GetProfile(context.Background(), "officer-9")

	assert.Nil(t, profile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "officer profile not found")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_EmptyOfficerID(t *testing.T) {
	db, _, repo := setupOfficersRepo(t)
	defer db.Close()

	profile, err := repo.GetProfile(context.Background(), "")

	assert.Nil(t, profile)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestGetProfile_QueryError(t *testing.T) {
	db, mock, repo := setupOfficersRepo(t)
	defer db.Close()

	mock.ExpectQuery(`FROM officer_profiles`).
		WithArgs("officer-1").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.GetProfile(context.Background(), "officer-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get officer profile")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfile_Success(t *testing.T) {
	db, mock, repo := setupOfficersRepo(t)
	defer db.Close()

	profile := &models.OfficerProfile{
		OfficerID: "officer-1",
		Age:       41,
		RestingHR: 62,
	}

	mock.ExpectExec(`INSERT INTO officer_profiles`).
		WithArgs("officer-1", 41, 62.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertProfile(context.Background(), profile)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfile_MissingOfficerID(t *testing.T) {
	db, _, repo := setupOfficersRepo(t)
	defer db.Close()

	err := repo.UpsertProfile(context.Background(), &models.OfficerProfile{Age: 30})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "officer_id is required")
}

func TestUpsertProfile_ExecError(t *testing.T) {
	db, mock, repo := setupOfficersRepo(t)
	defer db.Close()

	profile := &models.OfficerProfile{OfficerID: "officer-1", Age: 41, RestingHR: 62}

	mock.ExpectExec(`INSERT INTO officer_profiles`).
		WithArgs("officer-1", 41, 62.0).
		WillReturnError(sql.ErrConnDone)

	err := repo.UpsertProfile(context.Background(), profile)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert officer profile")

	assert.NoError(t, mock.ExpectationsWereMet())
}
