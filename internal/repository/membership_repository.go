package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

// MembershipRepository reads the (user, resource, role) edges across the
// three membership tables.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// ActiveMemberships returns the user's memberships whose enrollment window
// covers the given instant. The window predicate matches Membership.ActiveAt:
// start inclusive, end exclusive.
func (r *MembershipRepository) ActiveMemberships(ctx context.Context, userID string, at time.Time) ([]models.Membership, error) {
	query := fmt.Sprintf(`SELECT uo.user_id, o.org_type AS resource_type, uo.org_id AS resource_id,
    uo.role, uo.enrollment_start, uo.enrollment_end
FROM user_orgs uo JOIN orgs o ON o.id = uo.org_id
WHERE uo.%[1]s
UNION ALL
SELECT user_id, 'class', class_id, role, enrollment_start, enrollment_end
FROM user_classes WHERE %[1]s
UNION ALL
SELECT user_id, 'group', group_id, role, enrollment_start, enrollment_end
FROM user_groups WHERE %[1]s`, enrollmentWindow)

	var memberships []models.Membership
	if err := r.db.SelectContext(ctx, &memberships, query, userID, at); err != nil {
		return nil, fmt.Errorf("list active memberships: %w", err)
	}
	return memberships, nil
}
