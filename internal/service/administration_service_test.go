package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-admin-api/internal/authz"
	"github.com/noah-isme/assessment-admin-api/internal/models"
	appErrors "github.com/noah-isme/assessment-admin-api/pkg/errors"
)

type mockAdminRepo struct {
	admins      map[string]*models.Administration
	all         []models.Administration
	forUser     []models.Administration
	refs        []models.ResourceRef
	districts   []models.Org
	schools     []models.Org
	classes     []models.Class
	groups      []models.Group
	variants    []models.AssignedVariant
	counts      map[string]int
	countsAt    time.Time
	refsCalls   int
	findByIDErr error
}

func (m *mockAdminRepo) FindByID(ctx context.Context, id string) (*models.Administration, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	admin, ok := m.admins[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return admin, nil
}

func (m *mockAdminRepo) List(ctx context.Context) ([]models.Administration, error) {
	return m.all, nil
}

func (m *mockAdminRepo) ListForUser(ctx context.Context, userID string, at time.Time) ([]models.Administration, error) {
	return m.forUser, nil
}

func (m *mockAdminRepo) AssignedRefs(ctx context.Context, administrationID string) ([]models.ResourceRef, error) {
	m.refsCalls++
	return m.refs, nil
}

func (m *mockAdminRepo) ListDistricts(ctx context.Context, administrationID string) ([]models.Org, error) {
	return m.districts, nil
}

func (m *mockAdminRepo) ListSchools(ctx context.Context, administrationID string) ([]models.Org, error) {
	return m.schools, nil
}

func (m *mockAdminRepo) ListClasses(ctx context.Context, administrationID string) ([]models.Class, error) {
	return m.classes, nil
}

func (m *mockAdminRepo) ListGroups(ctx context.Context, administrationID string) ([]models.Group, error) {
	return m.groups, nil
}

func (m *mockAdminRepo) ListTaskVariants(ctx context.Context, administrationID string) ([]models.AssignedVariant, error) {
	return m.variants, nil
}

func (m *mockAdminRepo) AssignedUserCounts(ctx context.Context, administrationIDs []string, at time.Time) (map[string]int, error) {
	m.countsAt = at
	return m.counts, nil
}

type mockUserReader struct {
	user *models.User
	err  error
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

type mockRunReader struct {
	stats map[string]models.RunStats
}

func (m *mockRunReader) RunStatsByAdministrationIDs(ctx context.Context, administrationIDs []string) (map[string]models.RunStats, error) {
	return m.stats, nil
}

type mockResolver struct {
	set        authz.AccessSet
	roles      []models.UserRole
	rolesCalls int
}

func (m *mockResolver) AccessibleSet(ctx context.Context, userID string) (authz.AccessSet, error) {
	return m.set, nil
}

func (m *mockResolver) RolesForAdministration(ctx context.Context, userID string, assigned []models.ResourceRef) ([]models.UserRole, error) {
	m.rolesCalls++
	return m.roles, nil
}

func accessSet(refs ...models.ResourceRef) authz.AccessSet {
	set := make(authz.AccessSet, len(refs))
	for _, r := range refs {
		set[r] = struct{}{}
	}
	return set
}

func districtRef(id string) models.ResourceRef {
	return models.ResourceRef{Type: models.ResourceDistrict, ID: id}
}

func adminFixture(id, name string) *models.Administration {
	return &models.Administration{ID: id, Name: name, PublicName: name, DateOpened: time.Now()}
}

func newTestService(repo *mockAdminRepo, users *mockUserReader, runs *mockRunReader, resolver *mockResolver, cache *CacheService) *AdministrationService {
	return NewAdministrationService(AdministrationServiceParams{
		Repo:     repo,
		Users:    users,
		Runs:     runs,
		Resolver: resolver,
		Cache:    cache,
		Logger:   zap.NewNop(),
	})
}

func TestVerifyAccessNotFoundBeforeForbidden(t *testing.T) {
	repo := &mockAdminRepo{admins: map[string]*models.Administration{}}
	resolver := &mockResolver{}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	_, err := svc.VerifyAccess(context.Background(), models.AuthContext{UserID: "u1"}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Zero(t, resolver.rolesCalls, "existence is checked before roles are resolved")
}

func TestVerifyAccessForbiddenWithoutRoles(t *testing.T) {
	repo := &mockAdminRepo{admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")}}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, &mockResolver{}, nil)

	_, err := svc.VerifyAccess(context.Background(), models.AuthContext{UserID: "u1"}, "adm-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, 403, appErr.Status)
}

func TestVerifyAccessSuperAdminBypassesRoles(t *testing.T) {
	repo := &mockAdminRepo{admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")}}
	resolver := &mockResolver{}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	admin, err := svc.VerifyAccess(context.Background(), models.AuthContext{UserID: "u1", IsSuperAdmin: true}, "adm-1")
	require.NoError(t, err)
	assert.Equal(t, "adm-1", admin.ID)
	assert.Zero(t, resolver.rolesCalls)
}

func TestVerifyAccessSupervisedRolePasses(t *testing.T) {
	repo := &mockAdminRepo{admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")}}
	resolver := &mockResolver{roles: []models.UserRole{models.RoleStudent}}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	_, err := svc.VerifyAccess(context.Background(), models.AuthContext{UserID: "u1"}, "adm-1")
	require.NoError(t, err)
}

func TestListSortsAndPaginates(t *testing.T) {
	repo := &mockAdminRepo{all: []models.Administration{
		*adminFixture("adm-2", "Winter Benchmark"),
		*adminFixture("adm-1", "Fall Screener"),
		*adminFixture("adm-3", "Spring Checkup"),
	}}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, &mockResolver{}, nil)

	details, page, err := svc.List(context.Background(), models.AuthContext{UserID: "u1", IsSuperAdmin: true},
		models.ListQuery{PageSize: 2}, false)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "Fall Screener", details[0].Name)
	assert.Equal(t, "Spring Checkup", details[1].Name)
	assert.Equal(t, 3, page.TotalCount)
	assert.Nil(t, details[0].Stats)

	details, _, err = svc.List(context.Background(), models.AuthContext{UserID: "u1", IsSuperAdmin: true},
		models.ListQuery{PageSize: 2, SortOrder: "desc"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Winter Benchmark", details[0].Name)
}

func TestListScopesToUserVisibility(t *testing.T) {
	repo := &mockAdminRepo{
		all:     []models.Administration{*adminFixture("adm-1", "A"), *adminFixture("adm-2", "B")},
		forUser: []models.Administration{*adminFixture("adm-2", "B")},
	}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, &mockResolver{}, nil)

	details, page, err := svc.List(context.Background(), models.AuthContext{UserID: "u1"}, models.ListQuery{}, false)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "adm-2", details[0].ID)
	assert.Equal(t, 1, page.TotalCount)
}

func TestListEmbedsStats(t *testing.T) {
	repo := &mockAdminRepo{
		all:    []models.Administration{*adminFixture("adm-1", "Fall")},
		counts: map[string]int{"adm-1": 120},
	}
	runs := &mockRunReader{stats: map[string]models.RunStats{"adm-1": {Started: 80, Completed: 42}}}
	svc := newTestService(repo, &mockUserReader{}, runs, &mockResolver{}, nil)
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	details, _, err := svc.List(context.Background(), models.AuthContext{UserID: "u1", IsSuperAdmin: true}, models.ListQuery{}, true)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.NotNil(t, details[0].Stats)
	assert.Equal(t, 120, details[0].Stats.AssignedUsers)
	assert.Equal(t, 80, details[0].Stats.Started)
	assert.Equal(t, 42, details[0].Stats.Completed)
	assert.Equal(t, fixed, repo.countsAt, "assigned-user counts use the listing's enrollment window instant")
}

func TestListDistrictsFiltersToAccessibleSubtree(t *testing.T) {
	repo := &mockAdminRepo{
		admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		districts: []models.Org{
			{ID: "d1", Name: "North District", Type: models.OrgTypeDistrict},
			{ID: "d2", Name: "South District", Type: models.OrgTypeDistrict},
		},
	}
	resolver := &mockResolver{
		roles: []models.UserRole{models.RoleTeacher},
		set:   accessSet(districtRef("d1")),
	}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	orgs, page, err := svc.ListDistricts(context.Background(), models.AuthContext{UserID: "u1"}, "adm-1", models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "d1", orgs[0].ID)
	assert.Equal(t, 1, page.TotalCount, "total reflects the post-filter count")
}

func TestListDistrictsRoleRestrictedForSupervised(t *testing.T) {
	repo := &mockAdminRepo{
		admins:    map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		districts: []models.Org{{ID: "d1", Name: "North District", Type: models.OrgTypeDistrict}},
	}
	resolver := &mockResolver{roles: []models.UserRole{models.RoleStudent}}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	_, _, err := svc.ListDistricts(context.Background(), models.AuthContext{UserID: "u1"}, "adm-1", models.ListQuery{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRoleRestricted.Code, appErr.Code)
	assert.Equal(t, 403, appErr.Status)
}

func TestListGroupsSuperAdminUnfiltered(t *testing.T) {
	repo := &mockAdminRepo{
		admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		groups: []models.Group{{ID: "g2", Name: "Pilot B"}, {ID: "g1", Name: "Pilot A"}},
	}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, &mockResolver{}, nil)

	groups, page, err := svc.ListGroups(context.Background(), models.AuthContext{UserID: "u1", IsSuperAdmin: true}, "adm-1", models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Pilot A", groups[0].Name, "groups come back name-sorted")
	assert.Equal(t, 2, page.TotalCount)
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func eligibilityFixtureVariants() []models.AssignedVariant {
	return []models.AssignedVariant{
		{ID: "v1", TaskID: "t1", Name: "Letter Names", OrderIndex: 0},
		{
			ID: "v2", TaskID: "t1", Name: "Letter Sounds", OrderIndex: 1,
			ConditionsAssignment: &models.Condition{
				Op: models.OpEqual, Field: "studentData.grade", Value: float64(3),
			},
			ConditionsRequirements: &models.Condition{
				Op: models.OpEqual, Field: "studentData.ell_status", Value: true,
			},
		},
		{
			ID: "v3", TaskID: "t1", Name: "Fluency", OrderIndex: 2,
			ConditionsAssignment: &models.Condition{
				Op: models.OpGreaterThanOrEqual, Field: "studentData.grade", Value: float64(5),
			},
		},
		{
			ID: "v4", TaskID: "t1", Name: "Broken", OrderIndex: 3,
			ConditionsAssignment: &models.Condition{Op: "BETWEEN", Field: "studentData.grade", Value: float64(1)},
		},
	}
}

func TestListTaskVariantsSupervisoryGetsRawAssignments(t *testing.T) {
	repo := &mockAdminRepo{
		admins:   map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		variants: eligibilityFixtureVariants(),
	}
	resolver := &mockResolver{roles: []models.UserRole{models.RoleTeacher}}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	variants, page, err := svc.ListTaskVariants(context.Background(), models.AuthContext{UserID: "u1"}, "adm-1", models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, variants, 4, "supervisory callers see every variant, malformed ones included")
	assert.Equal(t, 4, page.TotalCount)
	assert.NotNil(t, variants[1].ConditionsAssignment, "conditions are preserved for supervisory callers")
	assert.Equal(t, []string{"v1", "v2", "v3", "v4"},
		[]string{variants[0].ID, variants[1].ID, variants[2].ID, variants[3].ID},
		"default order is the sequence index")
}

func TestListTaskVariantsSupervisedSeesOnlyEligible(t *testing.T) {
	repo := &mockAdminRepo{
		admins:   map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		variants: eligibilityFixtureVariants(),
	}
	resolver := &mockResolver{roles: []models.UserRole{models.RoleStudent}}
	users := &mockUserReader{user: &models.User{
		ID:    "u1",
		Email: "kid@example.com",
		Data:  models.StudentData{Grade: intPtr(3), ELLStatus: boolPtr(true)},
	}}
	svc := newTestService(repo, users, &mockRunReader{}, resolver, nil)

	variants, page, err := svc.ListTaskVariants(context.Background(), models.AuthContext{UserID: "u1"}, "adm-1", models.ListQuery{})
	require.NoError(t, err)

	// Grade-3 ELL student: v1 applies to everyone, v2 matches and its
	// requirement condition makes it optional, v3 needs grade >= 5, v4 is
	// malformed and silently dropped.
	require.Len(t, variants, 2)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, "v1", variants[0].ID)
	assert.False(t, variants[0].Optional)
	assert.Equal(t, "v2", variants[1].ID)
	assert.True(t, variants[1].Optional)
	assert.Nil(t, variants[1].ConditionsAssignment, "conditions are stripped for supervised callers")
	assert.Nil(t, variants[1].ConditionsRequirements)
}

func TestListTaskVariantsMissingProfileIsInternal(t *testing.T) {
	repo := &mockAdminRepo{
		admins:   map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		variants: eligibilityFixtureVariants(),
	}
	resolver := &mockResolver{roles: []models.UserRole{models.RoleStudent}}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, nil)

	_, _, err := svc.ListTaskVariants(context.Background(), models.AuthContext{UserID: "ghost"}, "adm-1", models.ListQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestListTaskVariantsSortByName(t *testing.T) {
	repo := &mockAdminRepo{
		admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")},
		variants: []models.AssignedVariant{
			{ID: "v1", Name: "Zeta", OrderIndex: 0},
			{ID: "v2", Name: "Alpha", OrderIndex: 1},
		},
	}
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, &mockResolver{}, nil)

	variants, _, err := svc.ListTaskVariants(context.Background(), models.AuthContext{UserID: "u1", IsSuperAdmin: true},
		"adm-1", models.ListQuery{SortBy: "name"})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", variants[0].Name)
}

type memCacheRepo struct {
	values map[string][]byte
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = raw
	return nil
}

func (m *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.values = map[string][]byte{}
	return nil
}

func TestResolveRolesUsesCache(t *testing.T) {
	repo := &mockAdminRepo{admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")}}
	resolver := &mockResolver{roles: []models.UserRole{models.RoleStudent}}
	cache := NewCacheService(&memCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, cache)

	auth := models.AuthContext{UserID: "u1"}
	_, err := svc.VerifyAccess(context.Background(), auth, "adm-1")
	require.NoError(t, err)
	_, err = svc.VerifyAccess(context.Background(), auth, "adm-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.rolesCalls, "second access resolves roles from cache")
	assert.Equal(t, 1, repo.refsCalls)
}

func TestResolveRolesDoesNotCacheDenial(t *testing.T) {
	repo := &mockAdminRepo{admins: map[string]*models.Administration{"adm-1": adminFixture("adm-1", "Fall")}}
	resolver := &mockResolver{}
	cache := NewCacheService(&memCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := newTestService(repo, &mockUserReader{}, &mockRunReader{}, resolver, cache)

	auth := models.AuthContext{UserID: "u1"}
	_, err := svc.VerifyAccess(context.Background(), auth, "adm-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// The user gets enrolled; access must not wait out the cache TTL.
	resolver.roles = []models.UserRole{models.RoleStudent}
	_, err = svc.VerifyAccess(context.Background(), auth, "adm-1")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.rolesCalls, "empty role sets are never served from cache")
}
