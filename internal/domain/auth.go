package domain

import "time"

// SubjectType differentiates device vs admin tokens.
type SubjectType string

const (
	SubjectTypeDevice SubjectType = "DEVICE"
	SubjectTypeAdmin  SubjectType = "ADMIN"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}
