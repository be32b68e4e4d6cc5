package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-admin-api/internal/authz"
	"github.com/noah-isme/assessment-admin-api/internal/eligibility"
	"github.com/noah-isme/assessment-admin-api/internal/models"
	appErrors "github.com/noah-isme/assessment-admin-api/pkg/errors"
)

type administrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Administration, error)
	List(ctx context.Context) ([]models.Administration, error)
	ListForUser(ctx context.Context, userID string, at time.Time) ([]models.Administration, error)
	AssignedRefs(ctx context.Context, administrationID string) ([]models.ResourceRef, error)
	ListDistricts(ctx context.Context, administrationID string) ([]models.Org, error)
	ListSchools(ctx context.Context, administrationID string) ([]models.Org, error)
	ListClasses(ctx context.Context, administrationID string) ([]models.Class, error)
	ListGroups(ctx context.Context, administrationID string) ([]models.Group, error)
	ListTaskVariants(ctx context.Context, administrationID string) ([]models.AssignedVariant, error)
	AssignedUserCounts(ctx context.Context, administrationIDs []string, at time.Time) (map[string]int, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type runStatsReader interface {
	RunStatsByAdministrationIDs(ctx context.Context, administrationIDs []string) (map[string]models.RunStats, error)
}

type accessResolver interface {
	AccessibleSet(ctx context.Context, userID string) (authz.AccessSet, error)
	RolesForAdministration(ctx context.Context, userID string, assigned []models.ResourceRef) ([]models.UserRole, error)
}

// AdministrationServiceConfig tunes listing bounds and role caching.
type AdministrationServiceConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	RoleCacheTTL    time.Duration
}

// AdministrationService answers, for a caller and an administration, which
// sub-resources and task variants the caller may see. Every public operation
// passes through VerifyAccess first.
type AdministrationService struct {
	repo      administrationRepository
	users     userReader
	runs      runStatsReader
	resolver  accessResolver
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cfg       AdministrationServiceConfig
}

// AdministrationServiceParams groups constructor dependencies.
type AdministrationServiceParams struct {
	Repo      administrationRepository
	Users     userReader
	Runs      runStatsReader
	Resolver  accessResolver
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    AdministrationServiceConfig
}

// NewAdministrationService constructs an AdministrationService with sane defaults.
func NewAdministrationService(params AdministrationServiceParams) *AdministrationService {
	cfg := params.Config
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.RoleCacheTTL <= 0 {
		cfg.RoleCacheTTL = time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &AdministrationService{
		repo:      params.Repo,
		users:     params.Users,
		runs:      params.Runs,
		resolver:  params.Resolver,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
}

// VerifyAccess is the gate every public operation calls first. Existence is
// checked before authorization so a missing administration is reported as
// NOT_FOUND rather than FORBIDDEN. Super admins bypass role resolution; any
// active role against the administration, supervised ones included, passes.
func (s *AdministrationService) VerifyAccess(ctx context.Context, auth models.AuthContext, administrationID string) (*models.Administration, error) {
	if administrationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "administration id is required")
	}

	admin, err := s.repo.FindByID(ctx, administrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "administration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve administration")
	}

	if auth.IsSuperAdmin {
		return admin, nil
	}

	roles, err := s.resolveRoles(ctx, auth.UserID, administrationID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		s.logger.Warn("administration access denied",
			zap.String("user_id", auth.UserID),
			zap.String("administration_id", administrationID))
		s.metrics.RecordAuthzDenial("forbidden")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to administration")
	}
	return admin, nil
}

// Get returns one administration after the access check.
func (s *AdministrationService) Get(ctx context.Context, auth models.AuthContext, administrationID string) (*models.Administration, error) {
	return s.VerifyAccess(ctx, auth, administrationID)
}

// List returns the administrations visible to the caller, optionally embedding
// assignment and run statistics. The two stat queries are independent and are
// issued concurrently.
func (s *AdministrationService) List(ctx context.Context, auth models.AuthContext, q models.ListQuery, embedStats bool) ([]models.AdministrationDetail, *models.Pagination, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid listing query")
	}
	q.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	now := s.now().UTC()
	var (
		admins []models.Administration
		err    error
	)
	if auth.IsSuperAdmin {
		admins, err = s.repo.List(ctx)
	} else {
		admins, err = s.repo.ListForUser(ctx, auth.UserID, now)
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve administrations")
	}

	sortByName(admins, q, func(a models.Administration) string { return a.Name })
	total := len(admins)
	page := paginate(admins, q)

	details := make([]models.AdministrationDetail, len(page))
	for i, admin := range page {
		details[i] = models.AdministrationDetail{Administration: admin}
	}

	if embedStats && len(page) > 0 {
		ids := make([]string, len(page))
		for i, admin := range page {
			ids[i] = admin.ID
		}

		var (
			counts    map[string]int
			runStats  map[string]models.RunStats
			countsErr error
			statsErr  error
			wg        sync.WaitGroup
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			counts, countsErr = s.repo.AssignedUserCounts(ctx, ids, now)
		}()
		go func() {
			defer wg.Done()
			runStats, statsErr = s.runs.RunStatsByAdministrationIDs(ctx, ids)
		}()
		wg.Wait()

		if countsErr != nil {
			return nil, nil, appErrors.Wrap(countsErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve administration stats")
		}
		if statsErr != nil {
			return nil, nil, appErrors.Wrap(statsErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve administration stats")
		}

		for i := range details {
			id := details[i].ID
			stats := &models.AdministrationStats{AssignedUsers: counts[id]}
			if rs, ok := runStats[id]; ok {
				stats.Started = rs.Started
				stats.Completed = rs.Completed
			}
			details[i].Stats = stats
		}
	}

	return details, &models.Pagination{Page: q.Page, PageSize: q.PageSize, TotalCount: total}, nil
}

// ListDistricts lists the districts an administration is assigned to,
// filtered down to the caller's accessible subtree.
func (s *AdministrationService) ListDistricts(ctx context.Context, auth models.AuthContext, administrationID string, q models.ListQuery) ([]models.Org, *models.Pagination, error) {
	return listSubResources(ctx, s, auth, administrationID, q, subResourceQuery[models.Org]{
		fetch: s.repo.ListDistricts,
		ref:   models.Org.Ref,
		name:  func(o models.Org) string { return o.Name },
	})
}

// ListSchools lists the schools an administration is assigned to.
func (s *AdministrationService) ListSchools(ctx context.Context, auth models.AuthContext, administrationID string, q models.ListQuery) ([]models.Org, *models.Pagination, error) {
	return listSubResources(ctx, s, auth, administrationID, q, subResourceQuery[models.Org]{
		fetch: s.repo.ListSchools,
		ref:   models.Org.Ref,
		name:  func(o models.Org) string { return o.Name },
	})
}

// ListClasses lists the classes an administration is assigned to.
func (s *AdministrationService) ListClasses(ctx context.Context, auth models.AuthContext, administrationID string, q models.ListQuery) ([]models.Class, *models.Pagination, error) {
	return listSubResources(ctx, s, auth, administrationID, q, subResourceQuery[models.Class]{
		fetch: s.repo.ListClasses,
		ref:   models.Class.Ref,
		name:  func(c models.Class) string { return c.Name },
	})
}

// ListGroups lists the groups an administration is assigned to. Group
// visibility requires direct membership; nothing is inferred from the org tree.
func (s *AdministrationService) ListGroups(ctx context.Context, auth models.AuthContext, administrationID string, q models.ListQuery) ([]models.Group, *models.Pagination, error) {
	return listSubResources(ctx, s, auth, administrationID, q, subResourceQuery[models.Group]{
		fetch: s.repo.ListGroups,
		ref:   models.Group.Ref,
		name:  func(g models.Group) string { return g.Name },
	})
}

// ListTaskVariants lists the task variants assigned to an administration.
// Unlike the structural listings, the access guard is the only gate here:
// supervised callers need to see their own assignments. For them each
// variant's assignment condition decides visibility, the requirement
// condition derives the optional flag, and raw conditions are stripped from
// the response.
func (s *AdministrationService) ListTaskVariants(ctx context.Context, auth models.AuthContext, administrationID string, q models.ListQuery) ([]models.AssignedVariant, *models.Pagination, error) {
	if _, err := s.VerifyAccess(ctx, auth, administrationID); err != nil {
		return nil, nil, err
	}
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid listing query")
	}
	q.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	variants, err := s.repo.ListTaskVariants(ctx, administrationID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve task variants")
	}

	supervisory := auth.IsSuperAdmin
	if !supervisory {
		roles, err := s.resolveRoles(ctx, auth.UserID, administrationID)
		if err != nil {
			return nil, nil, err
		}
		supervisory = authz.IsSupervisory(roles)
	}

	if !supervisory {
		variants, err = s.filterEligibleVariants(ctx, auth.UserID, variants)
		if err != nil {
			return nil, nil, err
		}
	}

	sortVariants(variants, q)
	total := len(variants)
	page := paginate(variants, q)
	return page, &models.Pagination{Page: q.Page, PageSize: q.PageSize, TotalCount: total}, nil
}

func (s *AdministrationService) filterEligibleVariants(ctx context.Context, userID string, variants []models.AssignedVariant) ([]models.AssignedVariant, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// An authenticated identity without a profile is a data
			// inconsistency, not a caller mistake.
			s.logger.Error("authenticated user has no profile", zap.String("user_id", userID))
			return nil, appErrors.Clone(appErrors.ErrInternal, "failed to retrieve task variants")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve user profile")
	}

	subject := user.AttributeRecord()
	eligible := make([]models.AssignedVariant, 0, len(variants))
	for _, v := range variants {
		res, err := eligibility.EvaluateVariant(v.ConditionsAssignment, v.ConditionsRequirements, subject)
		if err != nil {
			// One malformed condition excludes that variant only.
			s.logger.Warn("skipping task variant with invalid condition",
				zap.String("variant_id", v.ID),
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		if !res.Assigned {
			continue
		}
		v.Optional = res.Optional
		v.ConditionsAssignment = nil
		v.ConditionsRequirements = nil
		eligible = append(eligible, v)
	}
	return eligible, nil
}

// resolveRoles returns the caller's role labels for one administration,
// consulting the role cache when configured.
func (s *AdministrationService) resolveRoles(ctx context.Context, userID, administrationID string) ([]models.UserRole, error) {
	key := fmt.Sprintf("authz:roles:%s:%s", administrationID, userID)
	if s.cache.Enabled() {
		var cached []models.UserRole
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	assigned, err := s.repo.AssignedRefs(ctx, administrationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve administration assignments")
	}
	roles, err := s.resolver.RolesForAdministration(ctx, userID, assigned)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user roles")
	}

	// Empty results are never cached: a denial must not outlive a fresh
	// enrollment for the full TTL.
	if s.cache.Enabled() && len(roles) > 0 {
		_ = s.cache.Set(ctx, key, roles, s.cfg.RoleCacheTTL)
	}
	return roles, nil
}

// subResourceQuery describes one sub-resource type for the shared listing
// engine: how to fetch candidates, how to map an item to its hierarchy
// reference and how to read its sort key.
type subResourceQuery[T any] struct {
	fetch func(ctx context.Context, administrationID string) ([]T, error)
	ref   func(T) models.ResourceRef
	name  func(T) string
}

// listSubResources is the single algorithm behind the four structural
// listings. Supervised callers may hold administration access yet are never
// shown structure; supervisory callers see the intersection of the assigned
// candidates with their own accessible subtree.
func listSubResources[T any](ctx context.Context, s *AdministrationService, auth models.AuthContext, administrationID string, q models.ListQuery, d subResourceQuery[T]) ([]T, *models.Pagination, error) {
	if _, err := s.VerifyAccess(ctx, auth, administrationID); err != nil {
		return nil, nil, err
	}
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid listing query")
	}
	q.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	items, err := d.fetch(ctx, administrationID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retrieve administration resources")
	}

	if !auth.IsSuperAdmin {
		roles, err := s.resolveRoles(ctx, auth.UserID, administrationID)
		if err != nil {
			return nil, nil, err
		}
		if !authz.IsSupervisory(roles) {
			s.logger.Warn("structural listing denied for supervised role",
				zap.String("user_id", auth.UserID),
				zap.String("administration_id", administrationID))
			s.metrics.RecordAuthzDenial("role_restricted")
			return nil, nil, appErrors.Clone(appErrors.ErrRoleRestricted, "insufficient role to view administration structure")
		}

		accessible, err := s.resolver.AccessibleSet(ctx, auth.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve accessible resources")
		}
		filtered := make([]T, 0, len(items))
		for _, item := range items {
			if accessible.Contains(d.ref(item)) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	sortByName(items, q, d.name)
	total := len(items)
	page := paginate(items, q)
	return page, &models.Pagination{Page: q.Page, PageSize: q.PageSize, TotalCount: total}, nil
}

// sortByName sorts stably so equal names keep their fetch order.
func sortByName[T any](items []T, q models.ListQuery, name func(T) string) {
	desc := q.Descending()
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return name(items[i]) > name(items[j])
		}
		return name(items[i]) < name(items[j])
	})
}

func sortVariants(variants []models.AssignedVariant, q models.ListQuery) {
	desc := q.Descending()
	byName := q.SortBy == "name"
	sort.SliceStable(variants, func(i, j int) bool {
		if byName {
			if desc {
				return variants[i].Name > variants[j].Name
			}
			return variants[i].Name < variants[j].Name
		}
		if desc {
			return variants[i].OrderIndex > variants[j].OrderIndex
		}
		return variants[i].OrderIndex < variants[j].OrderIndex
	})
}

func paginate[T any](items []T, q models.ListQuery) []T {
	start := (q.Page - 1) * q.PageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + q.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
