package domain

import "time"

// DeviceStatus represents lifecycle states for a scanning device.
type DeviceStatus string

const (
	DeviceStatusActive   DeviceStatus = "ACTIVE"
	DeviceStatusDisabled DeviceStatus = "DISABLED"
)

// Device is a registered scanner that authenticates to the core.
type Device struct {
	ID         string
	Name       string
	SecretHash string
	Status     DeviceStatus
	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AdminAccount is an operator with access to the review queues and overrides.
type AdminAccount struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
