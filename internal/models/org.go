package models

import "time"

// OrgType distinguishes the two levels of the org tree.
type OrgType string

const (
	OrgTypeDistrict OrgType = "district"
	OrgTypeSchool   OrgType = "school"
)

// Org is a node in the two-level district → school tree. A school's parent is
// always a district; districts have no parent.
type Org struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Type      OrgType   `db:"org_type" json:"type"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Ref returns the hierarchy reference for this org.
func (o Org) Ref() ResourceRef {
	t := ResourceDistrict
	if o.Type == OrgTypeSchool {
		t = ResourceSchool
	}
	return ResourceRef{Type: t, ID: o.ID}
}
