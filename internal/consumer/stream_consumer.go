package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/models"
	"github.com/parser06/first-responder-risk/internal/monitor"
	"github.com/parser06/first-responder-risk/internal/repository"
	"github.com/parser06/first-responder-risk/internal/risk"
	pkgredis "github.com/parser06/first-responder-risk/pkg/redis"
)

// RiskNotifier 高风险事件外发通知
type RiskNotifier interface {
	NotifyRiskEvent(ctx context.Context, event *models.RiskEvent) error
}

// StreamConsumer 消费采样/档案/设备快照三条流, 驱动风险评估流水线
type StreamConsumer struct {
	config       *config.Config
	redisClient  *redis.Client
	monitor      *monitor.VitalsMonitor
	scorer       *risk.RiskScorer
	vitalsRepo   repository.VitalsRepository
	officersRepo repository.OfficersRepository
	eventsRepo   repository.RiskEventsRepository
	cache        *CacheManager
	notifier     RiskNotifier
	logger       *zap.Logger
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	vitalsMonitor *monitor.VitalsMonitor,
	riskScorer *risk.RiskScorer,
	vitalsRepo repository.VitalsRepository,
	officersRepo repository.OfficersRepository,
	eventsRepo repository.RiskEventsRepository,
	cache *CacheManager,
	riskNotifier RiskNotifier,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:       cfg,
		redisClient:  redisClient,
		monitor:      vitalsMonitor,
		scorer:       riskScorer,
		vitalsRepo:   vitalsRepo,
		officersRepo: officersRepo,
		eventsRepo:   eventsRepo,
		cache:        cache,
		notifier:     riskNotifier,
		logger:       logger,
	}
}

// Start 启动消费循环与空闲淘汰扫描, 直到 ctx 取消才返回
func (c *StreamConsumer) Start(ctx context.Context) error {
	streams := c.config.Monitor.Streams

	for _, stream := range []string{streams.Samples, streams.Profiles, streams.Snapshots} {
		if err := pkgredis.EnsureConsumerGroup(ctx, c.redisClient, stream, streams.Group); err != nil {
			return err
		}
	}

	c.logger.Info("stream consumer started",
		zap.String("samples_stream", streams.Samples),
		zap.String("profiles_stream", streams.Profiles),
		zap.String("snapshots_stream", streams.Snapshots),
		zap.String("consumer_group", streams.Group),
		zap.String("consumer_name", streams.Consumer),
	)

	go c.runEvictionSweep(ctx)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			samplesErr := c.consumeStream(ctx, streams.Samples)
			profilesErr := c.consumeStream(ctx, streams.Profiles)
			snapshotsErr := c.consumeStream(ctx, streams.Snapshots)

			// 三条流全部失败才退避, 单流失败只记录
			if samplesErr != nil && profilesErr != nil && snapshotsErr != nil {
				c.logger.Error("failed to consume streams",
					zap.Error(samplesErr),
					zap.NamedError("profiles_error", profilesErr),
					zap.NamedError("snapshots_error", snapshotsErr),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second

				if samplesErr != nil {
					c.logger.Error("failed to consume samples stream", zap.Error(samplesErr))
				}
				if profilesErr != nil {
					c.logger.Error("failed to consume profiles stream", zap.Error(profilesErr))
				}
				if snapshotsErr != nil {
					c.logger.Error("failed to consume snapshots stream", zap.Error(snapshotsErr))
				}
			}
		}
	}
}

// runEvictionSweep 周期性淘汰超过 MaxIdle 无新样本的警员条目
func (c *StreamConsumer) runEvictionSweep(ctx context.Context) {
	eviction := c.config.Monitor.Eviction
	if eviction.SweepInterval <= 0 || eviction.MaxIdle <= 0 {
		return
	}

	ticker := time.NewTicker(eviction.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := c.monitor.EvictIdle(eviction.MaxIdle); evicted > 0 {
				c.logger.Info("evicted idle officers",
					zap.Int("count", evicted),
					zap.Duration("max_idle", eviction.MaxIdle),
				)
			}
		}
	}
}

// consumeStream 读取并处理单个 stream 的一批消息
func (c *StreamConsumer) consumeStream(ctx context.Context, stream string) error {
	streams := c.config.Monitor.Streams

	messages, err := pkgredis.ReadGroup(ctx, c.redisClient, stream,
		streams.Group, streams.Consumer, streams.BatchSize, streams.BlockTime)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for _, msg := range messages {
		var procErr error
		switch stream {
		case streams.Samples:
			procErr = c.processSample(ctx, msg)
		case streams.Profiles:
			procErr = c.processProfile(ctx, msg)
		case streams.Snapshots:
			procErr = c.processSnapshot(ctx, msg)
		default:
			procErr = fmt.Errorf("unexpected stream: %s", stream)
		}

		if procErr != nil {
			c.logger.Error("failed to process message",
				zap.String("stream", stream),
				zap.String("message_id", msg.ID),
				zap.Error(procErr),
			)
		}

		// 解析/校验失败属于永久性错误, 同样确认, 避免 pending 列表堆积
		if err := pkgredis.Ack(ctx, c.redisClient, stream, streams.Group, msg.ID); err != nil {
			c.logger.Warn("failed to ack message",
				zap.String("stream", stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// processSample 处理一条采样消息: 入库 -> 评估 -> 缓存 -> 发布 -> 高风险落库外发
func (c *StreamConsumer) processSample(ctx context.Context, msg pkgredis.StreamMessage) error {
	sampleMsg, err := parseSampleMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to parse sample message: %w", err)
	}

	ts, err := sampleMsg.ParsedTime()
	if err != nil {
		return err
	}

	// 首次出现的警员尝试加载落库档案, 消息内无档案字段时仍可得到正确的静息心率
	var profile *models.OfficerProfile
	if !c.monitor.Tracked(sampleMsg.OfficerID) {
		stored, err := c.officersRepo.GetProfile(ctx, sampleMsg.OfficerID)
		if err == nil {
			profile = stored
		}
	}

	_, assessment, err := c.monitor.ProcessSample(sampleMsg.OfficerID, sampleMsg.HeartRate, ts, sampleMsg.Confidence, profile)
	if err != nil {
		return err
	}

	// 通过校验的采样才入库, 入库失败不阻断评估
	sample := &models.VitalSample{
		OfficerID:  sampleMsg.OfficerID,
		HeartRate:  sampleMsg.HeartRate,
		Confidence: sampleMsg.Confidence,
		Source:     sampleMsg.Source,
		RecordedAt: ts,
	}
	if _, err := c.vitalsRepo.InsertSample(ctx, sample); err != nil {
		c.logger.Warn("failed to persist vital sample",
			zap.String("officer_id", sample.OfficerID),
			zap.Error(err),
		)
	}

	if err := c.cache.SetAssessment(ctx, assessment); err != nil {
		c.logger.Warn("failed to cache assessment",
			zap.String("officer_id", assessment.OfficerID),
			zap.Error(err),
		)
	}

	streams := c.config.Monitor.Streams
	if _, err := pkgredis.PublishJSON(ctx, c.redisClient, streams.Assessments, streams.MaxLen, assessment); err != nil {
		c.logger.Warn("failed to publish assessment",
			zap.String("officer_id", assessment.OfficerID),
			zap.Error(err),
		)
	}

	if assessment.Status == models.StatusOK && assessment.RiskLevel.Severe() {
		c.handleSevereAssessment(ctx, assessment)
	}

	c.logger.Debug("processed vital sample",
		zap.String("officer_id", assessment.OfficerID),
		zap.Float64("heart_rate", sampleMsg.HeartRate),
		zap.String("risk_level", string(assessment.RiskLevel)),
		zap.Float64("risk_score", assessment.RiskScore),
	)

	return nil
}

// processSnapshot 处理一条设备快照消息: 多因子评分 -> 缓存 -> 发布 -> 高风险落库外发
func (c *StreamConsumer) processSnapshot(ctx context.Context, msg pkgredis.StreamMessage) error {
	snapshotMsg, err := parseSnapshotMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to parse snapshot message: %w", err)
	}

	// 评分器从不返回错误, 输入缺失或内部异常都折算成降级结果
	assessment := c.scorer.CalculateRisk(ctx, snapshotMsg.OfficerID, snapshotMsg.Health, snapshotMsg.Location)

	if err := c.cache.SetAssessment(ctx, assessment); err != nil {
		c.logger.Warn("failed to cache assessment",
			zap.String("officer_id", assessment.OfficerID),
			zap.Error(err),
		)
	}

	streams := c.config.Monitor.Streams
	if _, err := pkgredis.PublishJSON(ctx, c.redisClient, streams.Assessments, streams.MaxLen, assessment); err != nil {
		c.logger.Warn("failed to publish assessment",
			zap.String("officer_id", assessment.OfficerID),
			zap.Error(err),
		)
	}

	if assessment.Status == models.StatusOK && assessment.RiskLevel.Severe() {
		c.handleSevereAssessment(ctx, assessment)
	}

	c.logger.Debug("processed device snapshot",
		zap.String("officer_id", assessment.OfficerID),
		zap.String("risk_level", string(assessment.RiskLevel)),
		zap.Float64("risk_score", assessment.RiskScore),
		zap.String("status", string(assessment.Status)),
	)

	return nil
}

// processProfile 处理一条档案消息: 落库并更新在跟踪的提取器
func (c *StreamConsumer) processProfile(ctx context.Context, msg pkgredis.StreamMessage) error {
	profileMsg, err := parseProfileMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to parse profile message: %w", err)
	}

	profile := &models.OfficerProfile{
		OfficerID: profileMsg.OfficerID,
		Age:       profileMsg.Age,
		RestingHR: profileMsg.RestingHR,
	}
	if err := c.officersRepo.UpsertProfile(ctx, profile); err != nil {
		// 档案仍会写入内存提取器, 下次消息重试落库
		c.logger.Warn("failed to persist officer profile",
			zap.String("officer_id", profile.OfficerID),
			zap.Error(err),
		)
	}

	if err := c.monitor.SetProfile(profileMsg.OfficerID, profileMsg.Age, profileMsg.RestingHR); err != nil {
		return err
	}

	c.logger.Info("officer profile updated",
		zap.String("officer_id", profileMsg.OfficerID),
		zap.Int("age", profileMsg.Age),
		zap.Float64("resting_hr", profileMsg.RestingHR),
	)

	return nil
}

// handleSevereAssessment 高风险结果落库并外发通知, 两步互不阻塞
func (c *StreamConsumer) handleSevereAssessment(ctx context.Context, assessment *models.RiskAssessment) {
	event := &models.RiskEvent{
		EventID:         uuid.NewString(),
		OfficerID:       assessment.OfficerID,
		RiskLevel:       assessment.RiskLevel,
		RiskScore:       assessment.RiskScore,
		Confidence:      assessment.Confidence,
		AnomalyDetected: assessment.AnomalyDetected,
		ModelVersion:    assessment.ModelVersion,
		Recommendations: assessment.Recommendations,
		CreatedAt:       assessment.Timestamp,
	}

	if err := c.eventsRepo.InsertEvent(ctx, event); err != nil {
		c.logger.Error("failed to persist risk event",
			zap.String("officer_id", event.OfficerID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}

	if c.notifier != nil {
		if err := c.notifier.NotifyRiskEvent(ctx, event); err != nil {
			c.logger.Error("failed to deliver risk event notification",
				zap.String("officer_id", event.OfficerID),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}

	c.logger.Warn("severe risk detected",
		zap.String("officer_id", event.OfficerID),
		zap.String("risk_level", string(event.RiskLevel)),
		zap.Float64("risk_score", event.RiskScore),
		zap.Bool("anomaly", event.AnomalyDetected),
	)
}

// parseSampleMessage 解析采样消息, 优先 data 字段的 JSON, 兼容平铺字段
func parseSampleMessage(msg pkgredis.StreamMessage) (*models.SampleMessage, error) {
	if dataStr, ok := msg.Values["data"].(string); ok {
		var sampleMsg models.SampleMessage
		if err := json.Unmarshal([]byte(dataStr), &sampleMsg); err == nil {
			if sampleMsg.OfficerID == "" {
				return nil, fmt.Errorf("invalid sample: missing officer_id")
			}
			return &sampleMsg, nil
		}
	}

	sampleMsg := &models.SampleMessage{}
	if officerID, ok := msg.Values["officer_id"].(string); ok {
		sampleMsg.OfficerID = officerID
	}
	if hr, ok := msg.Values["heart_rate"].(string); ok {
		parsed, err := strconv.ParseFloat(hr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sample heart_rate %q: %w", hr, err)
		}
		sampleMsg.HeartRate = parsed
	}
	if conf, ok := msg.Values["confidence"].(string); ok {
		parsed, err := strconv.ParseFloat(conf, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sample confidence %q: %w", conf, err)
		}
		sampleMsg.Confidence = parsed
	}
	if source, ok := msg.Values["source"].(string); ok {
		sampleMsg.Source = source
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		sampleMsg.Timestamp = ts
	}

	if sampleMsg.OfficerID == "" {
		return nil, fmt.Errorf("invalid sample: missing officer_id")
	}

	return sampleMsg, nil
}

// parseSnapshotMessage 解析设备快照消息。快照为嵌套结构, 只接受 data 字段的 JSON
func parseSnapshotMessage(msg pkgredis.StreamMessage) (*models.SnapshotMessage, error) {
	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid snapshot: missing data field")
	}

	var snapshotMsg models.SnapshotMessage
	if err := json.Unmarshal([]byte(dataStr), &snapshotMsg); err != nil {
		return nil, fmt.Errorf("invalid snapshot payload: %w", err)
	}
	if snapshotMsg.OfficerID == "" {
		return nil, fmt.Errorf("invalid snapshot: missing officer_id")
	}

	return &snapshotMsg, nil
}

// parseProfileMessage 解析档案消息, 优先 data 字段的 JSON, 兼容平铺字段
func parseProfileMessage(msg pkgredis.StreamMessage) (*models.ProfileMessage, error) {
	if dataStr, ok := msg.Values["data"].(string); ok {
		var profileMsg models.ProfileMessage
		if err := json.Unmarshal([]byte(dataStr), &profileMsg); err == nil {
			if profileMsg.OfficerID == "" {
				return nil, fmt.Errorf("invalid profile: missing officer_id")
			}
			return &profileMsg, nil
		}
	}

	profileMsg := &models.ProfileMessage{}
	if officerID, ok := msg.Values["officer_id"].(string); ok {
		profileMsg.OfficerID = officerID
	}
	if age, ok := msg.Values["age"].(string); ok {
		parsed, err := strconv.Atoi(age)
		if err != nil {
			return nil, fmt.Errorf("invalid profile age %q: %w", age, err)
		}
		profileMsg.Age = parsed
	}
	if restingHR, ok := msg.Values["resting_hr"].(string); ok {
		parsed, err := strconv.ParseFloat(restingHR, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid profile resting_hr %q: %w", restingHR, err)
		}
		profileMsg.RestingHR = parsed
	}

	if profileMsg.OfficerID == "" {
		return nil, fmt.Errorf("invalid profile: missing officer_id")
	}

	return profileMsg, nil
}
