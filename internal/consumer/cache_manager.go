package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/models"
)

// ErrCacheMiss 缓存中没有该警员的评估结果
var ErrCacheMiss = errors.New("assessment not cached")

// CacheManager 最新评估结果的 Redis 缓存, 下游查询侧按键直接读取
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// AssessmentKey 构建警员评估结果的缓存键
func (c *CacheManager) AssessmentKey(officerID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Monitor.Cache.KeyPrefix,
		officerID,
		c.config.Monitor.Cache.KeySuffix,
	)
}

// SetAssessment 写入警员最新评估结果, 带 TTL
func (c *CacheManager) SetAssessment(ctx context.Context, assessment *models.RiskAssessment) error {
	if assessment.OfficerID == "" {
		return fmt.Errorf("assessment missing officer_id")
	}

	jsonData, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	key := c.AssessmentKey(assessment.OfficerID)
	if err := c.redisClient.Set(ctx, key, jsonData, c.config.Monitor.Cache.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set assessment cache: %w", err)
	}

	c.logger.Debug("updated assessment cache",
		zap.String("officer_id", assessment.OfficerID),
		zap.String("key", key),
		zap.String("risk_level", string(assessment.RiskLevel)),
	)

	return nil
}

// GetAssessment 读取警员最新评估结果, 未命中时返回 ErrCacheMiss
func (c *CacheManager) GetAssessment(ctx context.Context, officerID string) (*models.RiskAssessment, error) {
	val, err := c.redisClient.Get(ctx, c.AssessmentKey(officerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("officer %s: %w", officerID, ErrCacheMiss)
		}
		return nil, fmt.Errorf("failed to get assessment cache: %w", err)
	}

	var assessment models.RiskAssessment
	if err := json.Unmarshal([]byte(val), &assessment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached assessment: %w", err)
	}

	return &assessment, nil
}
