package domain

import "time"

// TargetType distinguishes facility doors from event gates.
type TargetType string

const (
	TargetTypeFacility TargetType = "FACILITY"
	TargetTypeEvent    TargetType = "EVENT"
)

// TimeWindow restricts access to certain days and minutes-of-day.
// EndMinute is exclusive; a window of 480-1020 means 08:00-17:00.
type TimeWindow struct {
	Days        []time.Weekday `json:"days"`
	StartMinute int            `json:"start_minute"`
	EndMinute   int            `json:"end_minute"`
}

// Contains reports whether the instant falls inside the window.
func (w *TimeWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	if len(w.Days) > 0 {
		match := false
		for _, day := range w.Days {
			if t.Weekday() == day {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= w.StartMinute && minute < w.EndMinute
}

// AccessPolicy describes who may pass a target and when.
type AccessPolicy struct {
	Roles  []SubjectRole `json:"roles"`
	Window *TimeWindow   `json:"window,omitempty"`
}

// AllowsRole reports whether the role is listed. An empty role list admits
// nobody; policies are allow-lists.
func (p AccessPolicy) AllowsRole(role SubjectRole) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Target is a facility or event gate with its own policy and occupancy.
type Target struct {
	ID                string
	Type              TargetType
	Name              string
	Capacity          *int
	Policy            AccessPolicy
	EmergencyOverride bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
