// Package policy implements the pure access decision for a single scan.
// Evaluation performs no side effects; it returns the decision plus the
// occupancy delta the caller should apply if granted.
package policy

import (
	"time"

	"github.com/spec-kit/scan-service/internal/domain"
)

// Input bundles everything the evaluator needs. Credential is nil when the
// lookup found nothing. HasPriorEntry reports whether a granted ENTRY for the
// same (credential, target) pair already exists in the ledger.
type Input struct {
	Credential    *domain.Credential
	Target        *domain.Target
	Occupancy     int
	Now           time.Time
	ScanType      domain.ScanType
	HasPriorEntry bool
	Override      bool
}

// Decision is the evaluator's verdict. Delta is the occupancy change to apply
// when Granted: +1 for entry, -1 for exit, 0 for checkpoint.
type Decision struct {
	Granted bool
	Reason  string
	Delta   int
}

func deny(reason string) Decision {
	return Decision{Granted: false, Reason: reason}
}

// Evaluate runs the ordered checks; the first failing check wins and there
// are no partial grants.
//
// The emergency override skips the role/time-window and capacity checks only.
// It never resurrects an expired, revoked or consumed credential.
func Evaluate(in Input) Decision {
	if in.Credential == nil {
		return deny(domain.DenyUnknownCredential)
	}
	if in.Target == nil {
		return deny(domain.DenyUnknownTarget)
	}

	status := in.Credential.EffectiveStatus(in.Now)
	if status == domain.CredentialStatusRevoked || status == domain.CredentialStatusCancelled {
		return deny(domain.DenyRevoked)
	}
	if status == domain.CredentialStatusExpired {
		return deny(domain.DenyExpired)
	}

	if in.Credential.IsTicket() {
		if in.ScanType == domain.ScanTypeEntry && status == domain.CredentialStatusUsed {
			return deny(domain.DenyAlreadyUsed)
		}
		if in.ScanType == domain.ScanTypeExit && !in.HasPriorEntry {
			return deny(domain.DenyNoPriorEntry)
		}
	}

	if !in.Override {
		if !in.Target.Policy.AllowsRole(in.Credential.SubjectRole) {
			return deny(domain.DenyPolicyViolation)
		}
		if !in.Target.Policy.Window.Contains(in.Now) {
			return deny(domain.DenyPolicyViolation)
		}
		if in.ScanType == domain.ScanTypeEntry && in.Target.Capacity != nil && in.Occupancy >= *in.Target.Capacity {
			return deny(domain.DenyAtCapacity)
		}
	}

	return Decision{Granted: true, Delta: occupancyDelta(in.ScanType)}
}

func occupancyDelta(scanType domain.ScanType) int {
	switch scanType {
	case domain.ScanTypeEntry:
		return 1
	case domain.ScanTypeExit:
		return -1
	default:
		return 0
	}
}
