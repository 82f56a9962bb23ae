package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/classifier"
	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/consumer"
	"github.com/parser06/first-responder-risk/internal/features"
	"github.com/parser06/first-responder-risk/internal/monitor"
	"github.com/parser06/first-responder-risk/internal/notifier"
	"github.com/parser06/first-responder-risk/internal/repository"
	"github.com/parser06/first-responder-risk/internal/risk"
	"github.com/parser06/first-responder-risk/pkg/database"
	pkgmqtt "github.com/parser06/first-responder-risk/pkg/mqtt"
	pkgredis "github.com/parser06/first-responder-risk/pkg/redis"
)

// MonitorService 风险监测服务, 整合各层
type MonitorService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *pkgmqtt.Client

	monitor        *monitor.VitalsMonitor
	streamConsumer *consumer.StreamConsumer
	mqttConsumer   *consumer.MQTTConsumer
}

// NewMonitorService 创建监测服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient, err := pkgredis.NewClient(context.Background(), &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 3. 创建 Repository 层
	vitalsRepo := repository.NewPostgresVitalsRepository(db)
	officersRepo := repository.NewPostgresOfficersRepository(db)
	eventsRepo := repository.NewPostgresRiskEventsRepository(db)

	// 4. 创建评估核心
	registry := features.NewRegistry(cfg.Monitor.WindowSize, cfg.Monitor.MinSamples, cfg.Monitor.DefaultAge, logger)
	riskClassifier := classifier.NewRiskClassifier(cfg.Monitor.Model.AnomalyThreshold, logger)
	vitalsMonitor := monitor.NewVitalsMonitor(registry, riskClassifier, logger)
	riskScorer := risk.NewRiskScorer(cfg.Monitor.Risk.HighThreshold, cfg.Monitor.Risk.MediumThreshold, vitalsRepo, logger)

	// 模型缺失或损坏不致命, 保持规则回退模式
	if err := vitalsMonitor.LoadModel(cfg.Monitor.Model.Path); err != nil {
		logger.Warn("failed to load risk model, running in rule-based mode",
			zap.String("path", cfg.Monitor.Model.Path),
			zap.Error(err),
		)
	}

	// 5. 创建 Consumer 层
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)

	var riskNotifier consumer.RiskNotifier
	if cfg.Monitor.Webhook.URL != "" {
		riskNotifier = notifier.NewWebhookNotifier(&cfg.Monitor.Webhook, logger)
		logger.Info("webhook notifier enabled",
			zap.String("url", cfg.Monitor.Webhook.URL),
		)
	}

	streamConsumer := consumer.NewStreamConsumer(
		cfg,
		redisClient,
		vitalsMonitor,
		riskScorer,
		vitalsRepo,
		officersRepo,
		eventsRepo,
		cacheManager,
		riskNotifier,
		logger,
	)

	// 6. MQTT 桥接可选
	var mqttClient *pkgmqtt.Client
	var mqttConsumer *consumer.MQTTConsumer
	if cfg.MQTT.Enabled {
		mqttClient, err = pkgmqtt.NewClient(&cfg.MQTT.Broker, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		mqttConsumer = consumer.NewMQTTConsumer(cfg, mqttClient, redisClient, logger)
	}

	return &MonitorService{
		config:         cfg,
		logger:         logger,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		monitor:        vitalsMonitor,
		streamConsumer: streamConsumer,
		mqttConsumer:   mqttConsumer,
	}, nil
}

// Start 启动各消费循环并阻塞到 ctx 取消
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("starting risk monitor service")

	errChan := make(chan error, 2)

	if s.mqttConsumer != nil {
		go func() {
			if err := s.mqttConsumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("mqtt consumer: %w", err)
			}
		}()
	}

	go func() {
		if err := s.streamConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("stream consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop 停止消费并释放底层连接
func (s *MonitorService) Stop() {
	s.logger.Info("stopping risk monitor service")

	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("failed to close redis", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("failed to close database", zap.Error(err))
		}
	}

	s.logger.Info("risk monitor service stopped")
}
