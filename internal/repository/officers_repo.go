package repository

import (
	"context"

	"github.com/parser06/first-responder-risk/internal/models"
)

// OfficersRepository 警员档案Repository接口
type OfficersRepository interface {
	// GetProfile 获取警员档案
	GetProfile(ctx context.Context, officerID string) (*models.OfficerProfile, error)

	// UpsertProfile 新建或更新警员档案
	UpsertProfile(ctx context.Context, profile *models.OfficerProfile) error
}
