package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parser06/first-responder-risk/internal/models"
)

// PostgresOfficersRepository 警员档案Repository实现
type PostgresOfficersRepository struct {
	db *sql.DB
}

// NewPostgresOfficersRepository 创建警员档案Repository
func NewPostgresOfficersRepository(db *sql.DB) *PostgresOfficersRepository {
	return &PostgresOfficersRepository{db: db}
}

// 确保实现了接口
var _ OfficersRepository = (*PostgresOfficersRepository)(nil)

// GetProfile 获取警员档案
func (r *PostgresOfficersRepository) GetProfile(ctx context.Context, officerID string) (*models.OfficerProfile, error) {
	if officerID == "" {
		return nil, sql.ErrNoRows
	}

	query := `
		SELECT
			officer_id,
			age,
			resting_hr,
			updated_at
		FROM officer_profiles
		WHERE officer_id = $1
	`

	var profile models.OfficerProfile
	err := r.db.QueryRowContext(ctx, query, officerID).Scan(
		&profile.OfficerID,
		&profile.Age,
		&profile.RestingHR,
		&profile.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("officer profile not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get officer profile: %w", err)
	}

	return &profile, nil
}

// UpsertProfile 新建或更新警员档案
func (r *PostgresOfficersRepository) UpsertProfile(ctx context.Context, profile *models.OfficerProfile) error {
	if profile.OfficerID == "" {
		return fmt.Errorf("officer_id is required")
	}

	query := `
		INSERT INTO officer_profiles (
			officer_id,
			age,
			resting_hr,
			updated_at
		) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (officer_id)
		DO UPDATE SET age = EXCLUDED.age,
		              resting_hr = EXCLUDED.resting_hr,
		              updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, profile.OfficerID, profile.Age, profile.RestingHR)
	if err != nil {
		return fmt.Errorf("failed to upsert officer profile: %w", err)
	}

	return nil
}
