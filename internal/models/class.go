package models

import "time"

// Class belongs to exactly one school. There is no hierarchy below a class.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Grade     *int      `db:"grade" json:"grade,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Ref returns the hierarchy reference for this class.
func (c Class) Ref() ResourceRef {
	return ResourceRef{Type: ResourceClass, ID: c.ID}
}
