package notifier

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/models"
)

// WebhookNotifier 通过 HTTP POST 推送高风险事件到调度端
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 webhook 推送客户端
func NewWebhookNotifier(cfg *config.WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        cfg.URL,
		logger:     logger,
	}
}

// NotifyRiskEvent 推送单条高风险事件, 非 2xx 响应视为失败
func (n *WebhookNotifier) NotifyRiskEvent(ctx context.Context, event *models.RiskEvent) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(event).
		Post(n.url)
	if err != nil {
		n.logger.Error("webhook delivery failed",
			zap.Error(err),
			zap.String("event_id", event.EventID),
		)
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}

	if resp.IsError() {
		n.logger.Error("webhook returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("event_id", event.EventID),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	n.logger.Info("risk event delivered to webhook",
		zap.String("event_id", event.EventID),
		zap.String("officer_id", event.OfficerID),
		zap.String("risk_level", string(event.RiskLevel)),
	)

	return nil
}
