// Package authz holds the pure authorization decisions for administrations:
// role classification and hierarchy-based visibility.
package authz

import "github.com/noah-isme/assessment-admin-api/internal/models"

// Permission names an action a role may perform against an administration.
type Permission string

const (
	// PermViewStructure allows listing the districts, schools, classes and
	// groups an administration is assigned to.
	PermViewStructure Permission = "administration.structure.view"
	// PermViewAssignments allows listing the caller's own assigned task
	// variants. Every recognized role carries it.
	PermViewAssignments Permission = "administration.assignments.view"
)

// rolePermissions is the immutable role→permission table. Supervisory roles
// (teacher, administrator) may inspect structure; supervised roles (student,
// guardian, parent, relative) only consume assigned content.
var rolePermissions = map[models.UserRole][]Permission{
	models.RoleTeacher:       {PermViewStructure, PermViewAssignments},
	models.RoleAdministrator: {PermViewStructure, PermViewAssignments},
	models.RoleStudent:       {PermViewAssignments},
	models.RoleGuardian:      {PermViewAssignments},
	models.RoleParent:        {PermViewAssignments},
	models.RoleRelative:      {PermViewAssignments},
}

// HasPermission reports whether any role in the set grants the permission.
func HasPermission(roles []models.UserRole, perm Permission) bool {
	for _, role := range roles {
		for _, granted := range rolePermissions[role] {
			if granted == perm {
				return true
			}
		}
	}
	return false
}

// IsSupervisory reports whether the role set counts as supervisory. A single
// supervisory label upgrades the whole set regardless of how many supervised
// labels accompany it; an empty set is supervised.
func IsSupervisory(roles []models.UserRole) bool {
	return HasPermission(roles, PermViewStructure)
}
