package consumer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/classifier"
	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/features"
	"github.com/parser06/first-responder-risk/internal/models"
	"github.com/parser06/first-responder-risk/internal/monitor"
	"github.com/parser06/first-responder-risk/internal/repository"
	"github.com/parser06/first-responder-risk/internal/risk"
	pkgredis "github.com/parser06/first-responder-risk/pkg/redis"
)

type fakeVitalsRepo struct {
	samples   []*models.VitalSample
	insertErr error
}

func (f *fakeVitalsRepo) InsertSample(_ context.Context, sample *models.VitalSample) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.samples = append(f.samples, sample)
	return int64(len(f.samples)), nil
}

func (f *fakeVitalsRepo) RecentHeartRates(context.Context, string, time.Time, int) ([]float64, error) {
	return nil, nil
}

func (f *fakeVitalsRepo) ListSamples(context.Context, string, time.Time, time.Time, int) ([]*models.VitalSample, error) {
	return nil, nil
}

type fakeOfficersRepo struct {
	profile *models.OfficerProfile
	gets    int
	upserts []*models.OfficerProfile
}

func (f *fakeOfficersRepo) GetProfile(_ context.Context, officerID string) (*models.OfficerProfile, error) {
	f.gets++
	if f.profile == nil || f.profile.OfficerID != officerID {
		return nil, fmt.Errorf("officer profile not found: %w", sql.ErrNoRows)
	}
	return f.profile, nil
}

func (f *fakeOfficersRepo) UpsertProfile(_ context.Context, profile *models.OfficerProfile) error {
	f.upserts = append(f.upserts, profile)
	return nil
}

type fakeEventsRepo struct {
	events []*models.RiskEvent
}

func (f *fakeEventsRepo) InsertEvent(_ context.Context, event *models.RiskEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventsRepo) ListEvents(context.Context, *repository.RiskEventFilters) ([]*models.RiskEvent, error) {
	return f.events, nil
}

type fakeNotifier struct {
	events []*models.RiskEvent
}

func (f *fakeNotifier) NotifyRiskEvent(_ context.Context, event *models.RiskEvent) error {
	f.events = append(f.events, event)
	return nil
}

var (
	_ repository.VitalsRepository     = (*fakeVitalsRepo)(nil)
	_ repository.OfficersRepository   = (*fakeOfficersRepo)(nil)
	_ repository.RiskEventsRepository = (*fakeEventsRepo)(nil)
	_ RiskNotifier                    = (*fakeNotifier)(nil)
)

type consumerFixture struct {
	client   *redis.Client
	cfg      *config.Config
	consumer *StreamConsumer
	monitor  *monitor.VitalsMonitor
	cache    *CacheManager
	vitals   *fakeVitalsRepo
	officers *fakeOfficersRepo
	events   *fakeEventsRepo
	notifier *fakeNotifier
}

func consumerTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.WindowSize = 50
	cfg.Monitor.MinSamples = 2
	cfg.Monitor.DefaultAge = 30
	cfg.Monitor.Risk.HighThreshold = 0.7
	cfg.Monitor.Risk.MediumThreshold = 0.4
	cfg.Monitor.Streams.Samples = "test:vitals:stream"
	cfg.Monitor.Streams.Profiles = "test:profiles:stream"
	cfg.Monitor.Streams.Snapshots = "test:snapshots:stream"
	cfg.Monitor.Streams.Assessments = "test:assessments:stream"
	cfg.Monitor.Streams.Group = "test-group"
	cfg.Monitor.Streams.Consumer = "test-consumer"
	cfg.Monitor.Streams.BatchSize = 10
	cfg.Monitor.Streams.BlockTime = 10 * time.Millisecond
	cfg.Monitor.Streams.MaxLen = 1000
	cfg.Monitor.Cache.KeyPrefix = "responder-risk:officer:"
	cfg.Monitor.Cache.KeySuffix = ":assessment"
	cfg.Monitor.Cache.TTL = time.Minute
	cfg.Monitor.Eviction.MaxIdle = 30 * time.Minute
	cfg.Monitor.Eviction.SweepInterval = 5 * time.Minute
	return cfg
}

func setupStreamConsumerWithConfig(t *testing.T, cfg *config.Config) *consumerFixture {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	logger := zap.NewNop()

	registry := features.NewRegistry(cfg.Monitor.WindowSize, cfg.Monitor.MinSamples, cfg.Monitor.DefaultAge, logger)
	riskClassifier := classifier.NewRiskClassifier(-0.1, logger)
	vitalsMonitor := monitor.NewVitalsMonitor(registry, riskClassifier, logger)

	vitals := &fakeVitalsRepo{}
	officers := &fakeOfficersRepo{}
	events := &fakeEventsRepo{}
	notifier := &fakeNotifier{}
	cache := NewCacheManager(cfg, redisClient, logger)
	scorer := risk.NewRiskScorer(cfg.Monitor.Risk.HighThreshold, cfg.Monitor.Risk.MediumThreshold, vitals, logger)

	c := NewStreamConsumer(cfg, redisClient, vitalsMonitor, scorer, vitals, officers, events, cache, notifier, logger)

	ctx := context.Background()
	for _, stream := range []string{cfg.Monitor.Streams.Samples, cfg.Monitor.Streams.Profiles, cfg.Monitor.Streams.Snapshots} {
		require.NoError(t, pkgredis.EnsureConsumerGroup(ctx, redisClient, stream, cfg.Monitor.Streams.Group))
	}

	return &consumerFixture{
		client:   redisClient,
		cfg:      cfg,
		consumer: c,
		monitor:  vitalsMonitor,
		cache:    cache,
		vitals:   vitals,
		officers: officers,
		events:   events,
		notifier: notifier,
	}
}

func setupStreamConsumer(t *testing.T) *consumerFixture {
	return setupStreamConsumerWithConfig(t, consumerTestConfig())
}

func publishSample(t *testing.T, fx *consumerFixture, officerID string, heartRate float64, ts time.Time) {
	t.Helper()
	msg := &models.SampleMessage{
		OfficerID:  officerID,
		HeartRate:  heartRate,
		Confidence: 0.95,
		Source:     "wearable",
		Timestamp:  ts.Format(time.RFC3339),
	}
	_, err := pkgredis.PublishJSON(context.Background(), fx.client, fx.cfg.Monitor.Streams.Samples, 0, msg)
	require.NoError(t, err)
}

func pendingCount(t *testing.T, fx *consumerFixture, stream string) int64 {
	t.Helper()
	pending, err := fx.client.XPending(context.Background(), stream, fx.cfg.Monitor.Streams.Group).Result()
	require.NoError(t, err)
	return pending.Count
}

func TestStreamConsumer_ProcessSampleMessage(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	publishSample(t, fx, "officer-1", 72, ts)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	// 采样已入库
	require.Len(t, fx.vitals.samples, 1)
	assert.Equal(t, "officer-1", fx.vitals.samples[0].OfficerID)
	assert.Equal(t, 72.0, fx.vitals.samples[0].HeartRate)
	assert.Equal(t, "wearable", fx.vitals.samples[0].Source)

	// 评估结果已缓存, 未训练时走规则回退
	cached, err := fx.cache.GetAssessment(ctx, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, "officer-1", cached.OfficerID)
	assert.Equal(t, models.RiskLow, cached.RiskLevel)
	assert.Equal(t, "rules", cached.ModelVersion)

	// 评估结果已发布到输出流
	entries, err := fx.client.XRange(ctx, fx.cfg.Monitor.Streams.Assessments, "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// 消息已确认
	assert.Zero(t, pendingCount(t, fx, fx.cfg.Monitor.Streams.Samples))
}

func TestStreamConsumer_FirstContactLoadsStoredProfile(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	fx.officers.profile = &models.OfficerProfile{OfficerID: "officer-1", Age: 40, RestingHR: 55}

	publishSample(t, fx, "officer-1", 70, ts)
	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	assert.Equal(t, 1, fx.officers.gets)

	fv, ok := fx.monitor.CurrentFeatures("officer-1")
	require.True(t, ok)
	assert.Equal(t, 55.0, fv.RestingHR)

	// 已跟踪的警员不再查档案
	publishSample(t, fx, "officer-1", 72, ts.Add(5*time.Second))
	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	assert.Equal(t, 1, fx.officers.gets)
}

func TestStreamConsumer_SevereEventPersistedAndNotified(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// 第一条还在热身期, 第二条起按真实特征走规则回退: >180 critical
	publishSample(t, fx, "officer-1", 195, ts)
	publishSample(t, fx, "officer-1", 196, ts.Add(5*time.Second))

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	require.Len(t, fx.events.events, 1)
	event := fx.events.events[0]
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "officer-1", event.OfficerID)
	assert.Equal(t, models.RiskCritical, event.RiskLevel)
	assert.Equal(t, 0.9, event.RiskScore)
	assert.Equal(t, "rules", event.ModelVersion)
	assert.False(t, event.CreatedAt.IsZero())

	require.Len(t, fx.notifier.events, 1)
	assert.Equal(t, event.EventID, fx.notifier.events[0].EventID)

	// 缓存里是最新一次评估
	cached, err := fx.cache.GetAssessment(ctx, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.RiskCritical, cached.RiskLevel)
}

func TestStreamConsumer_MalformedSampleStillAcked(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()

	err := fx.client.XAdd(ctx, &redis.XAddArgs{
		Stream: fx.cfg.Monitor.Streams.Samples,
		Values: map[string]interface{}{"data": "not-json"},
	}).Err()
	require.NoError(t, err)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	assert.Empty(t, fx.vitals.samples)
	assert.Zero(t, pendingCount(t, fx, fx.cfg.Monitor.Streams.Samples))
}

func TestStreamConsumer_InvalidSampleValueStillAcked(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// 心率为0不进入提取器, 但消息仍被确认
	publishSample(t, fx, "officer-1", 0, ts)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	assert.False(t, fx.monitor.Tracked("officer-1"))
	assert.Empty(t, fx.vitals.samples)
	assert.Zero(t, pendingCount(t, fx, fx.cfg.Monitor.Streams.Samples))
}

func TestStreamConsumer_PersistFailureDoesNotBlockAssessment(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	fx.vitals.insertErr = errors.New("db down")

	publishSample(t, fx, "officer-1", 75, ts)
	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	cached, err := fx.cache.GetAssessment(ctx, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, "officer-1", cached.OfficerID)

	entries, err := fx.client.XRange(ctx, fx.cfg.Monitor.Streams.Assessments, "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStreamConsumer_ProcessProfileMessage(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()

	msg := &models.ProfileMessage{OfficerID: "officer-1", Age: 45, RestingHR: 52}
	_, err := pkgredis.PublishJSON(ctx, fx.client, fx.cfg.Monitor.Streams.Profiles, 0, msg)
	require.NoError(t, err)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Profiles))

	// 档案已落库
	require.Len(t, fx.officers.upserts, 1)
	assert.Equal(t, "officer-1", fx.officers.upserts[0].OfficerID)
	assert.Equal(t, 45, fx.officers.upserts[0].Age)
	assert.Equal(t, 52.0, fx.officers.upserts[0].RestingHR)

	// 提取器条目已建立且带档案值
	require.True(t, fx.monitor.Tracked("officer-1"))
	fv, ok := fx.monitor.CurrentFeatures("officer-1")
	require.True(t, ok)
	assert.Equal(t, 52.0, fv.RestingHR)

	// 档案先行的警员后续采样不再查库
	publishSample(t, fx, "officer-1", 70, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))
	assert.Zero(t, fx.officers.gets)

	assert.Zero(t, pendingCount(t, fx, fx.cfg.Monitor.Streams.Profiles))
}

func TestStreamConsumer_FlatFieldFallback(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()

	// 手工注入的平铺字段消息同样可被解析
	err := fx.client.XAdd(ctx, &redis.XAddArgs{
		Stream: fx.cfg.Monitor.Streams.Samples,
		Values: map[string]interface{}{
			"officer_id": "officer-5",
			"heart_rate": "88.5",
			"confidence": "0.8",
			"source":     "manual",
			"timestamp":  "2025-03-10T12:00:00Z",
		},
	}).Err()
	require.NoError(t, err)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Samples))

	require.Len(t, fx.vitals.samples, 1)
	assert.Equal(t, "officer-5", fx.vitals.samples[0].OfficerID)
	assert.Equal(t, 88.5, fx.vitals.samples[0].HeartRate)
	assert.Equal(t, "manual", fx.vitals.samples[0].Source)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), fx.vitals.samples[0].RecordedAt.UTC())
}

func TestParseSampleMessage_Validation(t *testing.T) {
	// data 字段非法且无平铺字段
	_, err := parseSampleMessage(pkgredis.StreamMessage{Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)

	// 缺少 officer_id
	_, err = parseSampleMessage(pkgredis.StreamMessage{Values: map[string]interface{}{"data": `{"heart_rate":70}`}})
	assert.Error(t, err)

	// 平铺字段数值非法
	_, err = parseSampleMessage(pkgredis.StreamMessage{Values: map[string]interface{}{
		"officer_id": "officer-1",
		"heart_rate": "fast",
	}})
	assert.Error(t, err)
}

func TestStreamConsumer_ProcessSnapshotMessage(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()

	hr := 190.0
	hrv := 12.0
	activityConf := 0.2
	accuracy := 150.0
	msg := &models.SnapshotMessage{
		OfficerID: "officer-1",
		Health: &models.HealthSnapshot{
			HeartRate:            &hr,
			HeartRateVariability: &hrv,
			Acceleration:         &models.Vector3{X: 0.1, Y: 0.1, Z: 0.1},
			FallDetected:         true,
			ActivityType:         "unknown",
			ActivityConfidence:   &activityConf,
		},
		Location: &models.LocationSnapshot{
			Latitude:           37.77,
			Longitude:          -122.41,
			HorizontalAccuracy: &accuracy,
		},
	}
	_, err := pkgredis.PublishJSON(ctx, fx.client, fx.cfg.Monitor.Streams.Snapshots, 0, msg)
	require.NoError(t, err)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Snapshots))

	// 多因子评分: 心率1.0*0.25 + HRV0.9*0.2 + 静止0.6*0.2 + 跌倒1.0*0.15 + 活动0.9*0.1 + 定位0.3*0.1
	cached, err := fx.cache.GetAssessment(ctx, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, cached.RiskLevel)
	assert.Equal(t, models.StatusOK, cached.Status)
	assert.InDelta(t, 0.82, cached.RiskScore, 1e-9)
	assert.Equal(t, 1.0, cached.ContributingFactors["fall_detection"])
	assert.Contains(t, cached.Recommendations, "FALL DETECTED - Immediate response required")

	// 高风险走与分类器相同的落库外发路径
	require.Len(t, fx.events.events, 1)
	assert.Equal(t, models.RiskHigh, fx.events.events[0].RiskLevel)
	require.Len(t, fx.notifier.events, 1)

	entries, err := fx.client.XRange(ctx, fx.cfg.Monitor.Streams.Assessments, "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Zero(t, pendingCount(t, fx, fx.cfg.Monitor.Streams.Snapshots))
}

func TestStreamConsumer_SnapshotWithoutSignalsDegraded(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()

	msg := &models.SnapshotMessage{OfficerID: "officer-3"}
	_, err := pkgredis.PublishJSON(ctx, fx.client, fx.cfg.Monitor.Streams.Snapshots, 0, msg)
	require.NoError(t, err)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Snapshots))

	// 降级结果仍缓存发布, 但不产生高风险事件
	cached, err := fx.cache.GetAssessment(ctx, "officer-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDegraded, cached.Status)
	assert.Equal(t, models.ReasonNoInputData, cached.Reason)
	assert.Equal(t, models.RiskLow, cached.RiskLevel)

	assert.Empty(t, fx.events.events)
	assert.Empty(t, fx.notifier.events)

	entries, err := fx.client.XRange(ctx, fx.cfg.Monitor.Streams.Assessments, "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStreamConsumer_MalformedSnapshotStillAcked(t *testing.T) {
	fx := setupStreamConsumer(t)
	ctx := context.Background()

	err := fx.client.XAdd(ctx, &redis.XAddArgs{
		Stream: fx.cfg.Monitor.Streams.Snapshots,
		Values: map[string]interface{}{"data": "not-json"},
	}).Err()
	require.NoError(t, err)

	require.NoError(t, fx.consumer.consumeStream(ctx, fx.cfg.Monitor.Streams.Snapshots))

	assert.Empty(t, fx.events.events)
	assert.Zero(t, pendingCount(t, fx, fx.cfg.Monitor.Streams.Snapshots))
}

func TestStreamConsumer_EvictionSweep(t *testing.T) {
	cfg := consumerTestConfig()
	cfg.Monitor.Eviction.MaxIdle = 50 * time.Millisecond
	cfg.Monitor.Eviction.SweepInterval = 20 * time.Millisecond
	fx := setupStreamConsumerWithConfig(t, cfg)

	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	publishSample(t, fx, "officer-1", 70, ts)
	require.NoError(t, fx.consumer.consumeStream(context.Background(), fx.cfg.Monitor.Streams.Samples))
	require.True(t, fx.monitor.Tracked("officer-1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fx.consumer.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		return !fx.monitor.Tracked("officer-1")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestParseSnapshotMessage_Validation(t *testing.T) {
	// 缺少 data 字段
	_, err := parseSnapshotMessage(pkgredis.StreamMessage{Values: map[string]interface{}{"officer_id": "officer-1"}})
	assert.Error(t, err)

	// data 非法 JSON
	_, err = parseSnapshotMessage(pkgredis.StreamMessage{Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)

	// 缺少 officer_id
	_, err = parseSnapshotMessage(pkgredis.StreamMessage{Values: map[string]interface{}{"data": `{"health":{"fall_detected":true}}`}})
	assert.Error(t, err)

	msg, err := parseSnapshotMessage(pkgredis.StreamMessage{Values: map[string]interface{}{
		"data": `{"officer_id":"officer-4","health":{"heart_rate":95,"fall_detected":false}}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, "officer-4", msg.OfficerID)
	require.NotNil(t, msg.Health)
	assert.Equal(t, 95.0, *msg.Health.HeartRate)
	assert.Nil(t, msg.Location)
}

func TestParseProfileMessage_Validation(t *testing.T) {
	msg, err := parseProfileMessage(pkgredis.StreamMessage{Values: map[string]interface{}{
		"data": `{"officer_id":"officer-2","age":38,"resting_hr":57}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, "officer-2", msg.OfficerID)
	assert.Equal(t, 38, msg.Age)
	assert.Equal(t, 57.0, msg.RestingHR)

	_, err = parseProfileMessage(pkgredis.StreamMessage{Values: map[string]interface{}{
		"data": `{"age":38}`,
	}})
	assert.Error(t, err)
}
