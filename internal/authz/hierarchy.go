package authz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

// HierarchySource answers ancestor/descendant queries over the
// district → school → class tree. Groups never appear in either direction.
type HierarchySource interface {
	AncestorsOf(ctx context.Context, ref models.ResourceRef) ([]models.ResourceRef, error)
	DescendantsOf(ctx context.Context, ref models.ResourceRef) ([]models.ResourceRef, error)
}

// MembershipSource returns the memberships whose enrollment window covers the
// given instant.
type MembershipSource interface {
	ActiveMemberships(ctx context.Context, userID string, at time.Time) ([]models.Membership, error)
}

// AccessSet is the set of resource nodes a user may see.
type AccessSet map[models.ResourceRef]struct{}

// Contains reports set membership.
func (s AccessSet) Contains(ref models.ResourceRef) bool {
	_, ok := s[ref]
	return ok
}

func (s AccessSet) add(refs ...models.ResourceRef) {
	for _, ref := range refs {
		s[ref] = struct{}{}
	}
}

// Resolver computes which administration-assigned nodes intersect a user's
// own accessible subtree.
type Resolver struct {
	hierarchy   HierarchySource
	memberships MembershipSource
	logger      *zap.Logger
	now         func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(hierarchy HierarchySource, memberships MembershipSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{hierarchy: hierarchy, memberships: memberships, logger: logger, now: time.Now}
}

// AccessibleSet expands the user's currently-active memberships into the full
// set of visible nodes: each membership node itself, every ancestor of it and
// every descendant of it. A class teacher therefore sees the school and
// district above the class; a district admin sees every school and class
// below the district. Group memberships contribute only the group itself.
func (r *Resolver) AccessibleSet(ctx context.Context, userID string) (AccessSet, error) {
	memberships, err := r.memberships.ActiveMemberships(ctx, userID, r.now().UTC())
	if err != nil {
		return nil, err
	}

	set := make(AccessSet, len(memberships))
	for _, m := range memberships {
		ref := m.Ref()
		set.add(ref)
		if ref.Type == models.ResourceGroup {
			continue
		}
		ancestors, err := r.hierarchy.AncestorsOf(ctx, ref)
		if err != nil {
			return nil, err
		}
		set.add(ancestors...)
		descendants, err := r.hierarchy.DescendantsOf(ctx, ref)
		if err != nil {
			return nil, err
		}
		set.add(descendants...)
	}
	return set, nil
}

// RolesForAdministration resolves the role labels the user holds with respect
// to an administration, given the set of nodes the administration is assigned
// to. A membership contributes its role when its reachable node set (the node
// plus ancestors and descendants, or just the group itself) intersects the
// assigned set.
func (r *Resolver) RolesForAdministration(ctx context.Context, userID string, assigned []models.ResourceRef) ([]models.UserRole, error) {
	memberships, err := r.memberships.ActiveMemberships(ctx, userID, r.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 || len(assigned) == 0 {
		return nil, nil
	}

	assignedSet := make(AccessSet, len(assigned))
	assignedSet.add(assigned...)

	var roles []models.UserRole
	seen := make(map[models.UserRole]struct{})
	for _, m := range memberships {
		reachable, err := r.reachableFrom(ctx, m.Ref())
		if err != nil {
			return nil, err
		}
		if !intersects(reachable, assignedSet) {
			continue
		}
		if _, dup := seen[m.Role]; dup {
			continue
		}
		seen[m.Role] = struct{}{}
		roles = append(roles, m.Role)
	}
	return roles, nil
}

func (r *Resolver) reachableFrom(ctx context.Context, ref models.ResourceRef) (AccessSet, error) {
	set := make(AccessSet)
	set.add(ref)
	if ref.Type == models.ResourceGroup {
		return set, nil
	}
	ancestors, err := r.hierarchy.AncestorsOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	set.add(ancestors...)
	descendants, err := r.hierarchy.DescendantsOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	set.add(descendants...)
	return set, nil
}

func intersects(a, b AccessSet) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for ref := range a {
		if b.Contains(ref) {
			return true
		}
	}
	return false
}
