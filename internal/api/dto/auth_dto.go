package dto

import "time"

// DeviceLoginRequest authenticates a scanning device.
type DeviceLoginRequest struct {
	DeviceID string `json:"device_id"`
	Secret   string `json:"secret"`
}

// AdminLoginRequest authenticates an operator.
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Subject   string    `json:"subject"`
	SubjectID string    `json:"subject_id"`
}
