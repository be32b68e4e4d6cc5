package models

import "time"

// Administration is an assessment campaign assigned to orgs, classes and
// groups. It is created by an upstream admin tool; this service reads it.
type Administration struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	PublicName  string     `db:"public_name" json:"public_name"`
	Description *string    `db:"description" json:"description,omitempty"`
	DateOpened  time.Time  `db:"date_opened" json:"date_opened"`
	DateClosed  *time.Time `db:"date_closed" json:"date_closed,omitempty"`
	Sequential  bool       `db:"sequential" json:"sequential"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// RunStats aggregates assessment run progress for one administration.
type RunStats struct {
	Started   int `db:"started" json:"started"`
	Completed int `db:"completed" json:"completed"`
}

// AdministrationStats is the optional embed joined onto listings.
type AdministrationStats struct {
	AssignedUsers int `json:"assigned_users"`
	Started       int `json:"started"`
	Completed     int `json:"completed"`
}

// AdministrationDetail is an administration with its optional stats embed.
type AdministrationDetail struct {
	Administration
	Stats *AdministrationStats `json:"stats,omitempty"`
}
