package models

import "time"

// ResourceType identifies the kind of node a membership or assignment points at.
type ResourceType string

const (
	ResourceDistrict ResourceType = "district"
	ResourceSchool   ResourceType = "school"
	ResourceClass    ResourceType = "class"
	ResourceGroup    ResourceType = "group"
)

// ResourceRef is a typed node identifier, comparable and usable as a map key.
type ResourceRef struct {
	Type ResourceType `db:"resource_type" json:"type"`
	ID   string       `db:"resource_id" json:"id"`
}

// Membership is the (user, resource, role) edge with its enrollment window.
type Membership struct {
	UserID          string       `db:"user_id" json:"user_id"`
	ResourceType    ResourceType `db:"resource_type" json:"resource_type"`
	ResourceID      string       `db:"resource_id" json:"resource_id"`
	Role            UserRole     `db:"role" json:"role"`
	EnrollmentStart time.Time    `db:"enrollment_start" json:"enrollment_start"`
	EnrollmentEnd   *time.Time   `db:"enrollment_end" json:"enrollment_end,omitempty"`
}

// Ref returns the membership's resource reference.
func (m Membership) Ref() ResourceRef {
	return ResourceRef{Type: m.ResourceType, ID: m.ResourceID}
}

// ActiveAt reports whether the enrollment window covers t. The end of the
// window is exclusive: a membership ending exactly at t is no longer active.
func (m Membership) ActiveAt(t time.Time) bool {
	if m.EnrollmentStart.After(t) {
		return false
	}
	if m.EnrollmentEnd != nil && !m.EnrollmentEnd.After(t) {
		return false
	}
	return true
}
