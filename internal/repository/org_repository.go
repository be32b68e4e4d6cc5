package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

// OrgRepository answers structural queries over the district → school → class
// tree. It backs the hierarchy side of access resolution.
type OrgRepository struct {
	db *sqlx.DB
}

// NewOrgRepository constructs the repository.
func NewOrgRepository(db *sqlx.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// AncestorsOf returns the chain of nodes above the given one. Districts are
// roots; groups sit outside the tree and have no ancestors.
func (r *OrgRepository) AncestorsOf(ctx context.Context, ref models.ResourceRef) ([]models.ResourceRef, error) {
	switch ref.Type {
	case models.ResourceSchool:
		const query = `SELECT 'district' AS resource_type, parent_id AS resource_id
FROM orgs WHERE id = $1 AND parent_id IS NOT NULL`
		return r.selectRefs(ctx, query, ref.ID)
	case models.ResourceClass:
		const query = `SELECT 'school' AS resource_type, c.school_id AS resource_id
FROM classes c WHERE c.id = $1
UNION ALL
SELECT 'district', o.parent_id
FROM classes c JOIN orgs o ON o.id = c.school_id
WHERE c.id = $1 AND o.parent_id IS NOT NULL`
		return r.selectRefs(ctx, query, ref.ID)
	default:
		return nil, nil
	}
}

// DescendantsOf returns every node below the given one. Classes are leaves;
// groups have no descendants.
func (r *OrgRepository) DescendantsOf(ctx context.Context, ref models.ResourceRef) ([]models.ResourceRef, error) {
	switch ref.Type {
	case models.ResourceDistrict:
		const query = `SELECT 'school' AS resource_type, id AS resource_id
FROM orgs WHERE parent_id = $1
UNION ALL
SELECT 'class', c.id
FROM classes c JOIN orgs o ON o.id = c.school_id
WHERE o.parent_id = $1`
		return r.selectRefs(ctx, query, ref.ID)
	case models.ResourceSchool:
		const query = `SELECT 'class' AS resource_type, id AS resource_id
FROM classes WHERE school_id = $1`
		return r.selectRefs(ctx, query, ref.ID)
	default:
		return nil, nil
	}
}

func (r *OrgRepository) selectRefs(ctx context.Context, query string, args ...interface{}) ([]models.ResourceRef, error) {
	var refs []models.ResourceRef
	if err := r.db.SelectContext(ctx, &refs, query, args...); err != nil {
		return nil, fmt.Errorf("resolve hierarchy refs: %w", err)
	}
	return refs, nil
}
