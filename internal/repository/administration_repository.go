package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

// enrollmentWindow is the shared predicate for active memberships: the start
// of the window is inclusive, the end exclusive. $1 is the user, $2 the
// reference instant.
const enrollmentWindow = `user_id = $1 AND enrollment_start <= $2 AND (enrollment_end IS NULL OR enrollment_end > $2)`

// AdministrationRepository reads administrations and their assignment edges.
type AdministrationRepository struct {
	db *sqlx.DB
}

// NewAdministrationRepository constructs the repository.
func NewAdministrationRepository(db *sqlx.DB) *AdministrationRepository {
	return &AdministrationRepository{db: db}
}

const administrationColumns = `id, name, public_name, description, date_opened, date_closed, sequential, created_by, created_at, updated_at`

// FindByID returns an administration by its ID. A missing row surfaces as
// sql.ErrNoRows so callers can distinguish absence from failure.
func (r *AdministrationRepository) FindByID(ctx context.Context, id string) (*models.Administration, error) {
	query := fmt.Sprintf(`SELECT %s FROM administrations WHERE id = $1`, administrationColumns)
	var admin models.Administration
	if err := r.db.GetContext(ctx, &admin, query, id); err != nil {
		return nil, err
	}
	return &admin, nil
}

// List returns every administration. Reserved for super admins.
func (r *AdministrationRepository) List(ctx context.Context) ([]models.Administration, error) {
	query := fmt.Sprintf(`SELECT %s FROM administrations ORDER BY name ASC, id ASC`, administrationColumns)
	var admins []models.Administration
	if err := r.db.SelectContext(ctx, &admins, query); err != nil {
		return nil, fmt.Errorf("list administrations: %w", err)
	}
	return admins, nil
}

// ListForUser returns the administrations whose assignment edges intersect
// the user's reachable node set at the given instant. Reachability expands a
// membership to the node itself, its ancestors and its descendants in the
// district → school → class tree; group memberships reach only the group.
func (r *AdministrationRepository) ListForUser(ctx context.Context, userID string, at time.Time) ([]models.Administration, error) {
	query := fmt.Sprintf(`WITH member_orgs AS (
    SELECT org_id FROM user_orgs WHERE %[1]s
), member_classes AS (
    SELECT class_id FROM user_classes WHERE %[1]s
), member_groups AS (
    SELECT group_id FROM user_groups WHERE %[1]s
), reachable_orgs AS (
    SELECT org_id AS id FROM member_orgs
    UNION
    SELECT o.parent_id FROM orgs o JOIN member_orgs m ON m.org_id = o.id WHERE o.parent_id IS NOT NULL
    UNION
    SELECT o.id FROM orgs o JOIN member_orgs m ON m.org_id = o.parent_id
    UNION
    SELECT c.school_id FROM classes c JOIN member_classes m ON m.class_id = c.id
    UNION
    SELECT o.parent_id FROM classes c
        JOIN member_classes m ON m.class_id = c.id
        JOIN orgs o ON o.id = c.school_id
    WHERE o.parent_id IS NOT NULL
), reachable_classes AS (
    SELECT class_id AS id FROM member_classes
    UNION
    SELECT c.id FROM classes c JOIN member_orgs m ON m.org_id = c.school_id
    UNION
    SELECT c.id FROM classes c
        JOIN orgs o ON o.id = c.school_id
        JOIN member_orgs m ON m.org_id = o.parent_id
)
SELECT DISTINCT a.id, a.name, a.public_name, a.description, a.date_opened, a.date_closed,
    a.sequential, a.created_by, a.created_at, a.updated_at
FROM administrations a
WHERE EXISTS (SELECT 1 FROM administration_orgs ao JOIN reachable_orgs ro ON ro.id = ao.org_id WHERE ao.administration_id = a.id)
   OR EXISTS (SELECT 1 FROM administration_classes ac JOIN reachable_classes rc ON rc.id = ac.class_id WHERE ac.administration_id = a.id)
   OR EXISTS (SELECT 1 FROM administration_groups ag JOIN member_groups mg ON mg.group_id = ag.group_id WHERE ag.administration_id = a.id)
ORDER BY a.name ASC, a.id ASC`, enrollmentWindow)

	var admins []models.Administration
	if err := r.db.SelectContext(ctx, &admins, query, userID, at); err != nil {
		return nil, fmt.Errorf("list administrations for user: %w", err)
	}
	return admins, nil
}

// AssignedRefs returns every node an administration is assigned to, as typed
// references, across the three edge tables.
func (r *AdministrationRepository) AssignedRefs(ctx context.Context, administrationID string) ([]models.ResourceRef, error) {
	const query = `SELECT o.org_type AS resource_type, ao.org_id AS resource_id
FROM administration_orgs ao JOIN orgs o ON o.id = ao.org_id
WHERE ao.administration_id = $1
UNION ALL
SELECT 'class', class_id FROM administration_classes WHERE administration_id = $1
UNION ALL
SELECT 'group', group_id FROM administration_groups WHERE administration_id = $1`

	var refs []models.ResourceRef
	if err := r.db.SelectContext(ctx, &refs, query, administrationID); err != nil {
		return nil, fmt.Errorf("list administration assignments: %w", err)
	}
	return refs, nil
}

func (r *AdministrationRepository) listOrgs(ctx context.Context, administrationID string, orgType models.OrgType) ([]models.Org, error) {
	const query = `SELECT o.id, o.name, o.org_type, o.parent_id, o.created_at, o.updated_at
FROM orgs o
JOIN administration_orgs ao ON ao.org_id = o.id
WHERE ao.administration_id = $1 AND o.org_type = $2
ORDER BY o.name ASC, o.id ASC`
	var orgs []models.Org
	if err := r.db.SelectContext(ctx, &orgs, query, administrationID, orgType); err != nil {
		return nil, fmt.Errorf("list administration %ss: %w", orgType, err)
	}
	return orgs, nil
}

// ListDistricts returns the districts directly assigned to an administration.
func (r *AdministrationRepository) ListDistricts(ctx context.Context, administrationID string) ([]models.Org, error) {
	return r.listOrgs(ctx, administrationID, models.OrgTypeDistrict)
}

// ListSchools returns the schools directly assigned to an administration.
func (r *AdministrationRepository) ListSchools(ctx context.Context, administrationID string) ([]models.Org, error) {
	return r.listOrgs(ctx, administrationID, models.OrgTypeSchool)
}

// ListClasses returns the classes directly assigned to an administration.
func (r *AdministrationRepository) ListClasses(ctx context.Context, administrationID string) ([]models.Class, error) {
	const query = `SELECT c.id, c.name, c.school_id, c.grade, c.created_at, c.updated_at
FROM classes c
JOIN administration_classes ac ON ac.class_id = c.id
WHERE ac.administration_id = $1
ORDER BY c.name ASC, c.id ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, administrationID); err != nil {
		return nil, fmt.Errorf("list administration classes: %w", err)
	}
	return classes, nil
}

// ListGroups returns the groups directly assigned to an administration.
func (r *AdministrationRepository) ListGroups(ctx context.Context, administrationID string) ([]models.Group, error) {
	const query = `SELECT g.id, g.name, g.created_at, g.updated_at
FROM groups g
JOIN administration_groups ag ON ag.group_id = g.id
WHERE ag.administration_id = $1
ORDER BY g.name ASC, g.id ASC`
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, administrationID); err != nil {
		return nil, fmt.Errorf("list administration groups: %w", err)
	}
	return groups, nil
}

// ListTaskVariants returns the task variants assigned to an administration,
// with the assignment edge's ordering and conditions, in sequence order.
func (r *AdministrationRepository) ListTaskVariants(ctx context.Context, administrationID string) ([]models.AssignedVariant, error) {
	const query = `SELECT tv.id, tv.task_id, tv.name, tv.description,
    atv.order_index, atv.conditions_assignment, atv.conditions_requirements,
    tv.created_at, tv.updated_at
FROM administration_task_variants atv
JOIN task_variants tv ON tv.id = atv.variant_id
WHERE atv.administration_id = $1
ORDER BY atv.order_index ASC, tv.id ASC`
	var variants []models.AssignedVariant
	if err := r.db.SelectContext(ctx, &variants, query, administrationID); err != nil {
		return nil, fmt.Errorf("list administration task variants: %w", err)
	}
	return variants, nil
}

// AssignedUserCounts returns, per administration, how many distinct users are
// assigned through any of its edges. Only enrollments active at the given
// instant count, matching ListForUser's window.
func (r *AdministrationRepository) AssignedUserCounts(ctx context.Context, administrationIDs []string, at time.Time) (map[string]int, error) {
	if len(administrationIDs) == 0 {
		return map[string]int{}, nil
	}

	// $1 is the reference instant; the ids start at $2.
	placeholders := make([]string, len(administrationIDs))
	args := make([]interface{}, 0, len(administrationIDs)+1)
	args = append(args, at)
	for i, id := range administrationIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT administration_id, COUNT(DISTINCT user_id) AS assigned_users
FROM (
    SELECT ao.administration_id, uo.user_id FROM administration_orgs ao
        JOIN user_orgs uo ON uo.org_id = ao.org_id
    WHERE uo.enrollment_start <= $1 AND (uo.enrollment_end IS NULL OR uo.enrollment_end > $1)
    UNION
    SELECT ac.administration_id, uc.user_id FROM administration_classes ac
        JOIN user_classes uc ON uc.class_id = ac.class_id
    WHERE uc.enrollment_start <= $1 AND (uc.enrollment_end IS NULL OR uc.enrollment_end > $1)
    UNION
    SELECT ag.administration_id, ug.user_id FROM administration_groups ag
        JOIN user_groups ug ON ug.group_id = ag.group_id
    WHERE ug.enrollment_start <= $1 AND (ug.enrollment_end IS NULL OR ug.enrollment_end > $1)
) assignments
WHERE administration_id IN (%s)
GROUP BY administration_id`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count assigned users: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(administrationIDs))
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan assigned user count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assigned user counts: %w", err)
	}
	return counts, nil
}
