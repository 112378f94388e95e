package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/events"
	"github.com/spec-kit/scan-service/internal/occupancy"
	"github.com/spec-kit/scan-service/internal/repository"
)

// TargetService exposes the parts of target state the verification core owns:
// the live occupancy reading and the emergency override toggle.
type TargetService struct {
	targets    repository.TargetRepository
	tracker    occupancy.Tracker
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewTargetService constructs the service.
func NewTargetService(targets repository.TargetRepository, tracker occupancy.Tracker, dispatcher events.Dispatcher, logger *zap.Logger) *TargetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetService{targets: targets, tracker: tracker, dispatcher: dispatcher, logger: logger}
}

// Occupancy returns the target and its current headcount.
func (s *TargetService) Occupancy(ctx context.Context, targetID string) (*domain.Target, int, error) {
	target, err := s.targets.Lookup(ctx, targetID)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.tracker.Get(ctx, targetID)
	if err != nil {
		return nil, 0, err
	}
	return target, count, nil
}

// SetOverride flips the emergency override. Takes effect for all subsequent
// scans immediately; expiry and revocation checks are never bypassed.
func (s *TargetService) SetOverride(ctx context.Context, targetID string, enabled bool, adminID string) (*domain.Target, error) {
	target, err := s.targets.SetOverride(ctx, targetID, enabled)
	if err != nil {
		return nil, err
	}

	s.logger.Info("emergency override toggled",
		zap.String("target_id", targetID),
		zap.Bool("enabled", enabled),
		zap.String("admin_id", adminID))

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventOverrideToggled,
			TargetID:  targetID,
			Timestamp: time.Now(),
			Payload: events.OverrideToggledPayload{
				Enabled: enabled,
				AdminID: adminID,
			},
		})
	}
	return target, nil
}
