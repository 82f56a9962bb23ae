package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/parser06/first-responder-risk/internal/models"
	"github.com/parser06/first-responder-risk/internal/risk"
)

// PostgresVitalsRepository 心率采样Repository实现
type PostgresVitalsRepository struct {
	db *sql.DB
}

// NewPostgresVitalsRepository 创建心率采样Repository
func NewPostgresVitalsRepository(db *sql.DB) *PostgresVitalsRepository {
	return &PostgresVitalsRepository{db: db}
}

// 确保实现了接口
var _ VitalsRepository = (*PostgresVitalsRepository)(nil)
var _ risk.VitalsHistory = (*PostgresVitalsRepository)(nil)

// InsertSample 写入一条采样, 返回自增ID
func (r *PostgresVitalsRepository) InsertSample(ctx context.Context, sample *models.VitalSample) (int64, error) {
	if sample.OfficerID == "" {
		return 0, fmt.Errorf("officer_id is required")
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO vital_samples (
			officer_id,
			heart_rate,
			confidence,
			source,
			recorded_at
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var source interface{}
	if sample.Source != "" {
		source = sample.Source
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		sample.OfficerID,
		sample.HeartRate,
		sample.Confidence,
		source,
		sample.RecordedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vital sample: %w", err)
	}

	return id, nil
}

// RecentHeartRates 返回某警员 since 之后最近 limit 条心率值, 按时间升序
// 趋势计算依赖时间升序, 这里先取最近 limit 条再反转排序
func (r *PostgresVitalsRepository) RecentHeartRates(ctx context.Context, officerID string, since time.Time, limit int) ([]float64, error) {
	if officerID == "" {
		return nil, fmt.Errorf("officer_id is required")
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT heart_rate FROM (
			SELECT heart_rate, recorded_at
			FROM vital_samples
			WHERE officer_id = $1 AND recorded_at >= $2
			ORDER BY recorded_at DESC
			LIMIT $3
		) recent
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, officerID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent heart rates: %w", err)
	}
	defer rows.Close()

	var rates []float64
	for rows.Next() {
		var hr float64
		if err := rows.Scan(&hr); err != nil {
			return nil, fmt.Errorf("failed to scan heart rate: %w", err)
		}
		rates = append(rates, hr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate heart rates: %w", err)
	}

	return rates, nil
}

// ListSamples 按警员和时间范围查询采样, 按时间升序
func (r *PostgresVitalsRepository) ListSamples(ctx context.Context, officerID string, from, to time.Time, limit int) ([]*models.VitalSample, error) {
	if officerID == "" {
		return nil, fmt.Errorf("officer_id is required")
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT
			id,
			officer_id,
			heart_rate,
			confidence,
			source,
			recorded_at
		FROM vital_samples
		WHERE officer_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, officerID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vital samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.VitalSample
	for rows.Next() {
		var sample models.VitalSample
		var source sql.NullString

		if err := rows.Scan(
			&sample.ID,
			&sample.OfficerID,
			&sample.HeartRate,
			&sample.Confidence,
			&source,
			&sample.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vital sample: %w", err)
		}

		if source.Valid {
			sample.Source = source.String
		}

		samples = append(samples, &sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vital samples: %w", err)
	}

	return samples, nil
}
