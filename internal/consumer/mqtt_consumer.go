package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/models"
	pkgmqtt "github.com/parser06/first-responder-risk/pkg/mqtt"
	pkgredis "github.com/parser06/first-responder-risk/pkg/redis"
)

// MQTTConsumer 设备侧 MQTT 接入桥, 把穿戴设备报文转成采样流消息
type MQTTConsumer struct {
	config      *config.Config
	mqttClient  *pkgmqtt.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *pkgmqtt.Client,
	redisClient *redis.Client,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 订阅设备主题并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.MQTT.Topic
	if topic == "" {
		return fmt.Errorf("mqtt vitals topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.Broker.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
		zap.String("stream", c.config.Monitor.Streams.Samples),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() {
	if topic := c.config.MQTT.Topic; topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("failed to unsubscribe vitals topic", zap.Error(err))
		}
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 设备报文 -> 标准化采样消息 -> 采样流
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	var sampleMsg models.SampleMessage
	if err := json.Unmarshal(payload, &sampleMsg); err != nil {
		return fmt.Errorf("failed to unmarshal vitals payload: %w", err)
	}

	// 主题形如 responder/<officer_id>/vitals, 载荷缺省时从主题段补全警员ID
	if sampleMsg.OfficerID == "" {
		sampleMsg.OfficerID = c.officerIDFromTopic(topic)
	}
	if sampleMsg.OfficerID == "" {
		return fmt.Errorf("vitals message missing officer_id, topic %s", topic)
	}
	if sampleMsg.Source == "" {
		sampleMsg.Source = "mqtt"
	}

	streams := c.config.Monitor.Streams
	streamID, err := pkgredis.PublishJSON(context.Background(), c.redisClient, streams.Samples, streams.MaxLen, &sampleMsg)
	if err != nil {
		return fmt.Errorf("failed to publish sample to stream: %w", err)
	}

	c.logger.Debug("bridged vitals message to stream",
		zap.String("officer_id", sampleMsg.OfficerID),
		zap.String("topic", topic),
		zap.String("stream_id", streamID),
	)

	return nil
}

// officerIDFromTopic 取订阅模式中 + 通配符位置对应的主题段
func (c *MQTTConsumer) officerIDFromTopic(topic string) string {
	pattern := strings.Split(c.config.MQTT.Topic, "/")
	segments := strings.Split(topic, "/")
	if len(segments) != len(pattern) {
		return ""
	}
	for i, seg := range pattern {
		if seg == "+" {
			return segments[i]
		}
	}
	return ""
}
