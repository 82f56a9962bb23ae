package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/pkg/config"
)

// MessageHandler 订阅回调, 返回错误时记录日志但不中断接收
type MessageHandler func(topic string, payload []byte) error

// Client MQTT 客户端封装, 自动重连由 paho 负责
type Client struct {
	client pahomqtt.Client
	logger *zap.Logger
}

// NewClient 连接 broker 并返回封装后的客户端
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.GetBrokerURL()).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetCleanSession(false)

	opts.OnConnect = func(pahomqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.GetBrokerURL()))
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timed out after 15s")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	return &Client{client: client, logger: logger}, nil
}

// Subscribe 订阅主题, 回调在 paho 的接收协程上执行
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("failed to handle mqtt message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe topic %s: %w", topic, err)
	}
	c.logger.Info("MQTT subscribed", zap.String("topic", topic))
	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// Disconnect 断开连接, 等待在途消息最多 250ms
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
