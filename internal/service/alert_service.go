package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/scan-service/internal/config"
	"github.com/spec-kit/scan-service/internal/events"
)

// AlertService forwards anomaly and discrepancy events to the admin channel.
type AlertService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.AlertConfig
}

// NewAlertService creates the service.
func NewAlertService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.AlertConfig) *AlertService {
	return &AlertService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (a *AlertService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventScanAnomaly, a.handleScanAnomaly)
	a.dispatcher.Subscribe(events.EventDiscrepancyRecorded, a.handleDiscrepancy)
	a.dispatcher.Subscribe(events.EventOverrideToggled, a.handleOverrideToggled)
}

func (a *AlertService) handleScanAnomaly(ctx context.Context, event events.Event) error {
	a.logger.Warn("ScanAnomaly", zap.String("target_id", event.TargetID), zap.Any("payload", event.Payload))
	a.sendWebhookStub(ctx, event)
	return nil
}

func (a *AlertService) handleDiscrepancy(ctx context.Context, event events.Event) error {
	a.logger.Warn("DiscrepancyRecorded", zap.String("target_id", event.TargetID), zap.Any("payload", event.Payload))
	a.sendWebhookStub(ctx, event)
	return nil
}

func (a *AlertService) handleOverrideToggled(ctx context.Context, event events.Event) error {
	a.logger.Info("OverrideToggled", zap.String("target_id", event.TargetID), zap.Any("payload", event.Payload))
	a.sendWebhookStub(ctx, event)
	return nil
}

func (a *AlertService) sendWebhookStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(a.cfg.WebhookURL) == "" {
		return
	}
	a.logger.Debug("sendWebhookStub",
		zap.String("url", a.cfg.WebhookURL),
		zap.String("target_id", event.TargetID),
		zap.String("event_type", string(event.Type)))
}
