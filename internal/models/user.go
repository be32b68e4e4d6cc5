package models

import "time"

// UserRole labels a user's relationship to an org, class or group.
type UserRole string

const (
	RoleStudent       UserRole = "STUDENT"
	RoleGuardian      UserRole = "GUARDIAN"
	RoleParent        UserRole = "PARENT"
	RoleRelative      UserRole = "RELATIVE"
	RoleTeacher       UserRole = "TEACHER"
	RoleAdministrator UserRole = "ADMINISTRATOR"
)

// User is the profile record backing an authenticated identity. The
// student_data columns feed eligibility evaluation only.
type User struct {
	ID        string      `db:"id" json:"id"`
	Email     string      `db:"email" json:"email"`
	FullName  string      `db:"full_name" json:"full_name"`
	Data      StudentData `db:"-" json:"student_data"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// StudentData carries the demographic and program attributes referenced by
// eligibility conditions. Pointer fields distinguish "unset" from zero values:
// a condition against an unset attribute never matches.
type StudentData struct {
	Grade     *int    `db:"grade" json:"grade,omitempty"`
	ELLStatus *bool   `db:"ell_status" json:"ell_status,omitempty"`
	FRLStatus *bool   `db:"frl_status" json:"frl_status,omitempty"`
	IEPStatus *bool   `db:"iep_status" json:"iep_status,omitempty"`
	Gender    *string `db:"gender" json:"gender,omitempty"`
	DOB       *string `db:"dob" json:"dob,omitempty"`
}

// AttributeRecord flattens the profile into the shape condition fields are
// resolved against, e.g. "studentData.grade".
func (u *User) AttributeRecord() map[string]interface{} {
	if u == nil {
		return nil
	}
	student := map[string]interface{}{}
	if u.Data.Grade != nil {
		student["grade"] = float64(*u.Data.Grade)
	}
	if u.Data.ELLStatus != nil {
		student["ell_status"] = *u.Data.ELLStatus
	}
	if u.Data.FRLStatus != nil {
		student["frl_status"] = *u.Data.FRLStatus
	}
	if u.Data.IEPStatus != nil {
		student["iep_status"] = *u.Data.IEPStatus
	}
	if u.Data.Gender != nil {
		student["gender"] = *u.Data.Gender
	}
	if u.Data.DOB != nil {
		student["dob"] = *u.Data.DOB
	}
	return map[string]interface{}{
		"id":          u.ID,
		"email":       u.Email,
		"studentData": student,
	}
}
