package models

import "time"

// Group is a flat, ad-hoc collection of users. Groups take no part in the org
// tree; visibility is granted by direct membership only.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Ref returns the reference for this group.
func (g Group) Ref() ResourceRef {
	return ResourceRef{Type: ResourceGroup, ID: g.ID}
}
