package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/parser06/first-responder-risk/internal/models"
)

// PostgresRiskEventsRepository 高风险事件Repository实现
type PostgresRiskEventsRepository struct {
	db *sql.DB
}

// NewPostgresRiskEventsRepository 创建高风险事件Repository
func NewPostgresRiskEventsRepository(db *sql.DB) *PostgresRiskEventsRepository {
	return &PostgresRiskEventsRepository{db: db}
}

// 确保实现了接口
var _ RiskEventsRepository = (*PostgresRiskEventsRepository)(nil)

// InsertEvent 落库一条高风险事件
func (r *PostgresRiskEventsRepository) InsertEvent(ctx context.Context, event *models.RiskEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.OfficerID == "" {
		return fmt.Errorf("officer_id is required")
	}

	query := `
		INSERT INTO risk_events (
			event_id,
			officer_id,
			risk_level,
			risk_score,
			confidence,
			anomaly_detected,
			model_version,
			recommendations,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.OfficerID,
		string(event.RiskLevel),
		event.RiskScore,
		event.Confidence,
		event.AnomalyDetected,
		event.ModelVersion,
		pq.Array(event.Recommendations),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert risk event: %w", err)
	}

	return nil
}

// ListEvents 按过滤器查询事件, 按时间升序
func (r *PostgresRiskEventsRepository) ListEvents(ctx context.Context, filters *RiskEventFilters) ([]*models.RiskEvent, error) {
	var where []string
	var args []any
	argN := 1

	limit := 500
	if filters != nil {
		if filters.OfficerID != "" {
			where = append(where, fmt.Sprintf("officer_id = $%d", argN))
			args = append(args, filters.OfficerID)
			argN++
		}
		if filters.RiskLevel != "" {
			where = append(where, fmt.Sprintf("risk_level = $%d", argN))
			args = append(args, filters.RiskLevel)
			argN++
		}
		if filters.From != nil {
			where = append(where, fmt.Sprintf("created_at >= $%d", argN))
			args = append(args, *filters.From)
			argN++
		}
		if filters.To != nil {
			where = append(where, fmt.Sprintf("created_at <= $%d", argN))
			args = append(args, *filters.To)
			argN++
		}
		if filters.Limit > 0 {
			limit = filters.Limit
		}
	}

	query := `
		SELECT
			event_id,
			officer_id,
			risk_level,
			risk_score,
			confidence,
			anomaly_detected,
			model_version,
			recommendations,
			created_at
		FROM risk_events
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk events: %w", err)
	}
	defer rows.Close()

	var events []*models.RiskEvent
	for rows.Next() {
		var event models.RiskEvent
		var level string
		var recommendations pq.StringArray

		if err := rows.Scan(
			&event.EventID,
			&event.OfficerID,
			&level,
			&event.RiskScore,
			&event.Confidence,
			&event.AnomalyDetected,
			&event.ModelVersion,
			&recommendations,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk event: %w", err)
		}

		event.RiskLevel = models.RiskLevel(level)
		event.Recommendations = []string(recommendations)
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk events: %w", err)
	}

	return events, nil
}
