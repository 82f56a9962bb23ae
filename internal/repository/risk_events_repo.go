package repository

import (
	"context"
	"time"

	"github.com/parser06/first-responder-risk/internal/models"
)

// RiskEventFilters 高风险事件查询过滤器
type RiskEventFilters struct {
	OfficerID string     // 警员ID, 为空表示不过滤
	RiskLevel string     // 风险等级, 为空表示不过滤
	From      *time.Time // 开始时间
	To        *time.Time // 结束时间
	Limit     int        // 最大条数, <=0 使用默认值
}

// RiskEventsRepository 高风险事件Repository接口
type RiskEventsRepository interface {
	// InsertEvent 落库一条高风险事件
	InsertEvent(ctx context.Context, event *models.RiskEvent) error

	// ListEvents 按过滤器查询事件, 按时间升序
	ListEvents(ctx context.Context, filters *RiskEventFilters) ([]*models.RiskEvent, error)
}
