package dto

import "github.com/spec-kit/scan-service/internal/domain"

// OccupancyResponse reports the live headcount for a target.
type OccupancyResponse struct {
	TargetID          string            `json:"target_id"`
	Name              string            `json:"name"`
	Type              domain.TargetType `json:"type"`
	Capacity          *int              `json:"capacity,omitempty"`
	CurrentCount      int               `json:"current_count"`
	EmergencyOverride bool              `json:"emergency_override"`
}

// OverrideRequest toggles the emergency override for a target.
type OverrideRequest struct {
	Enabled bool `json:"enabled"`
}
