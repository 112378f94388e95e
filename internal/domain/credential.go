package domain

import "time"

// CredentialKind distinguishes reusable IDs from single-use tickets.
type CredentialKind string

const (
	CredentialKindIdentity CredentialKind = "IDENTITY"
	CredentialKindTicket   CredentialKind = "TICKET"
)

// CredentialStatus enumerates lifecycle states for credentials.
type CredentialStatus string

const (
	CredentialStatusActive    CredentialStatus = "ACTIVE"
	CredentialStatusRevoked   CredentialStatus = "REVOKED"
	CredentialStatusExpired   CredentialStatus = "EXPIRED"
	CredentialStatusUsed      CredentialStatus = "USED"
	CredentialStatusCancelled CredentialStatus = "CANCELLED"
)

// SubjectRole enumerates roles carried by a credential subject.
type SubjectRole string

const (
	RoleStudent  SubjectRole = "STUDENT"
	RoleFaculty  SubjectRole = "FACULTY"
	RoleStaff    SubjectRole = "STAFF"
	RoleAdmin    SubjectRole = "ADMIN"
	RoleAttendee SubjectRole = "ATTENDEE"
)

// Credential is a decoded digital ID or event ticket. Payload authenticity is
// verified upstream; this core trusts the decoded record.
type Credential struct {
	ID          string
	SubjectID   string
	SubjectRole SubjectRole
	Kind        CredentialKind
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Status      CredentialStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveStatus derives the status at the given instant. Identity
// credentials expire by clock; ticket states are stored explicitly.
func (c *Credential) EffectiveStatus(now time.Time) CredentialStatus {
	if c.Status == CredentialStatusRevoked || c.Status == CredentialStatusCancelled {
		return c.Status
	}
	if now.After(c.ExpiresAt) {
		return CredentialStatusExpired
	}
	return c.Status
}

// IsTicket reports whether the credential is single-use.
func (c *Credential) IsTicket() bool {
	return c.Kind == CredentialKindTicket
}
