package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hallpass-api/internal/models"
	"github.com/noah-isme/hallpass-api/internal/service"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
	"github.com/noah-isme/hallpass-api/pkg/response"
)

type restrictionService interface {
	ListFor(ctx context.Context, studentID string) ([]models.Restriction, error)
	Create(ctx context.Context, studentID string, req service.CreateRestrictionRequest, createdBy string) (*models.Restriction, error)
	Lift(ctx context.Context, id string) error
}

// RestrictionHandler exposes restriction management endpoints.
type RestrictionHandler struct {
	service restrictionService
}

// NewRestrictionHandler builds a new handler.
func NewRestrictionHandler(service restrictionService) *RestrictionHandler {
	return &RestrictionHandler{service: service}
}

// ListFor godoc
// @Summary List a student's restrictions
// @Tags Restrictions
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/restrictions [get]
func (h *RestrictionHandler) ListFor(c *gin.Context) {
	restrictions, err := h.service.ListFor(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, restrictions, nil)
}

// Create godoc
// @Summary Attach a restriction to a student
// @Tags Restrictions
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body service.CreateRestrictionRequest true "Restriction payload"
// @Success 201 {object} response.Envelope
// @Router /students/{studentId}/restrictions [post]
func (h *RestrictionHandler) Create(c *gin.Context) {
	var req service.CreateRestrictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid restriction payload"))
		return
	}
	restriction, err := h.service.Create(c.Request.Context(), c.Param("studentId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, restriction)
}

// Lift godoc
// @Summary Deactivate a restriction
// @Tags Restrictions
// @Param id path string true "Restriction ID"
// @Success 204
// @Router /restrictions/{id} [delete]
func (h *RestrictionHandler) Lift(c *gin.Context) {
	if err := h.service.Lift(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
