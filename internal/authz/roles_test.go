package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

func TestIsSupervisory(t *testing.T) {
	tests := []struct {
		name  string
		roles []models.UserRole
		want  bool
	}{
		{"empty set is supervised", nil, false},
		{"student", []models.UserRole{models.RoleStudent}, false},
		{"guardian and parent", []models.UserRole{models.RoleGuardian, models.RoleParent}, false},
		{"relative", []models.UserRole{models.RoleRelative}, false},
		{"teacher", []models.UserRole{models.RoleTeacher}, true},
		{"administrator", []models.UserRole{models.RoleAdministrator}, true},
		{"mixed set upgrades", []models.UserRole{models.RoleStudent, models.RoleTeacher}, true},
		{"unknown label", []models.UserRole{"JANITOR"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsSupervisory(tc.roles))
		})
	}
}

func TestHasPermission(t *testing.T) {
	student := []models.UserRole{models.RoleStudent}
	assert.True(t, HasPermission(student, PermViewAssignments))
	assert.False(t, HasPermission(student, PermViewStructure))

	teacher := []models.UserRole{models.RoleTeacher}
	assert.True(t, HasPermission(teacher, PermViewAssignments))
	assert.True(t, HasPermission(teacher, PermViewStructure))

	assert.False(t, HasPermission(nil, PermViewAssignments))
}
