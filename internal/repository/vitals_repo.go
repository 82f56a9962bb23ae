package repository

import (
	"context"
	"time"

	"github.com/parser06/first-responder-risk/internal/models"
)

// VitalsRepository 心率采样Repository接口
type VitalsRepository interface {
	// InsertSample 写入一条采样, 返回自增ID
	InsertSample(ctx context.Context, sample *models.VitalSample) (int64, error)

	// RecentHeartRates 返回某警员 since 之后最近 limit 条心率值, 按时间升序
	RecentHeartRates(ctx context.Context, officerID string, since time.Time, limit int) ([]float64, error)

	// ListSamples 按警员和时间范围查询采样, 按时间升序
	ListSamples(ctx context.Context, officerID string, from, to time.Time, limit int) ([]*models.VitalSample, error)
}
