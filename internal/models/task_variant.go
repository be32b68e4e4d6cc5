package models

import "time"

// AssignedVariant is a task variant assigned to an administration, together
// with the assignment edge's ordering and eligibility conditions.
//
// ConditionsAssignment gates whether the variant is visible to a given user
// at all; ConditionsRequirements gates whether a visible variant is optional.
// Both are stripped from responses rendered for supervised roles.
type AssignedVariant struct {
	ID          string     `db:"id" json:"id"`
	TaskID      string     `db:"task_id" json:"task_id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	OrderIndex  int        `db:"order_index" json:"order_index"`
	Optional    bool       `db:"-" json:"optional"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	ConditionsAssignment   *Condition `db:"conditions_assignment" json:"conditions_assignment,omitempty"`
	ConditionsRequirements *Condition `db:"conditions_requirements" json:"conditions_requirements,omitempty"`
}
