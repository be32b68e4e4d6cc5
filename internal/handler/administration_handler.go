package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-admin-api/internal/models"
	"github.com/noah-isme/assessment-admin-api/internal/service"
	appErrors "github.com/noah-isme/assessment-admin-api/pkg/errors"
	"github.com/noah-isme/assessment-admin-api/pkg/response"
)

// AdministrationHandler exposes administration endpoints.
type AdministrationHandler struct {
	administrations *service.AdministrationService
}

// NewAdministrationHandler constructs AdministrationHandler.
func NewAdministrationHandler(administrations *service.AdministrationService) *AdministrationHandler {
	return &AdministrationHandler{administrations: administrations}
}

func listQueryFromRequest(c *gin.Context) models.ListQuery {
	var q models.ListQuery
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		q.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		q.PageSize = size
	}
	q.SortBy = c.Query("sort")
	q.SortOrder = strings.ToLower(c.Query("order"))
	return q
}

func (h *AdministrationHandler) authContext(c *gin.Context) (models.AuthContext, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.AuthContext{}, false
	}
	return claims.AuthContext(), true
}

// List godoc
// @Summary List administrations visible to the caller
// @Tags Administrations
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (name)"
// @Param order query string false "Sort order (asc|desc)"
// @Param embed query string false "Optional embeds (stats)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations [get]
func (h *AdministrationHandler) List(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	embedStats := false
	for _, embed := range strings.Split(c.Query("embed"), ",") {
		if strings.TrimSpace(embed) == "stats" {
			embedStats = true
		}
	}

	admins, pagination, err := h.administrations.List(c.Request.Context(), auth, listQueryFromRequest(c), embedStats)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admins, pagination)
}

// Get godoc
// @Summary Get one administration
// @Tags Administrations
// @Produce json
// @Param id path string true "Administration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations/{id} [get]
func (h *AdministrationHandler) Get(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	admin, err := h.administrations.Get(c.Request.Context(), auth, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admin, nil)
}

// ListDistricts godoc
// @Summary List districts an administration is assigned to
// @Tags Administrations
// @Produce json
// @Param id path string true "Administration ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations/{id}/districts [get]
func (h *AdministrationHandler) ListDistricts(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	orgs, pagination, err := h.administrations.ListDistricts(c.Request.Context(), auth, c.Param("id"), listQueryFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orgs, pagination)
}

// ListSchools godoc
// @Summary List schools an administration is assigned to
// @Tags Administrations
// @Produce json
// @Param id path string true "Administration ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations/{id}/schools [get]
func (h *AdministrationHandler) ListSchools(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	orgs, pagination, err := h.administrations.ListSchools(c.Request.Context(), auth, c.Param("id"), listQueryFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orgs, pagination)
}

// ListClasses godoc
// @Summary List classes an administration is assigned to
// @Tags Administrations
// @Produce json
// @Param id path string true "Administration ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations/{id}/classes [get]
func (h *AdministrationHandler) ListClasses(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	classes, pagination, err := h.administrations.ListClasses(c.Request.Context(), auth, c.Param("id"), listQueryFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// ListGroups godoc
// @Summary List groups an administration is assigned to
// @Tags Administrations
// @Produce json
// @Param id path string true "Administration ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations/{id}/groups [get]
func (h *AdministrationHandler) ListGroups(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	groups, pagination, err := h.administrations.ListGroups(c.Request.Context(), auth, c.Param("id"), listQueryFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, pagination)
}

// ListTaskVariants godoc
// @Summary List task variants assigned to an administration
// @Description Supervised callers receive only the variants whose assignment conditions they satisfy, with conditions stripped.
// @Tags Administrations
// @Produce json
// @Param id path string true "Administration ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (order_index|name)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations/{id}/task-variants [get]
func (h *AdministrationHandler) ListTaskVariants(c *gin.Context) {
	auth, ok := h.authContext(c)
	if !ok {
		return
	}
	variants, pagination, err := h.administrations.ListTaskVariants(c.Request.Context(), auth, c.Param("id"), listQueryFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, variants, pagination)
}
