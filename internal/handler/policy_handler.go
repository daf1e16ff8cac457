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

type policyService interface {
	Evaluate(ctx context.Context, ec models.EvaluationContext) (*models.PolicyEvaluationResult, error)
	GetClassroomPolicy(ctx context.Context, locationID string) (*models.ClassroomPolicy, error)
	SetClassroomPolicy(ctx context.Context, locationID string, req service.SetClassroomPolicyRequest, updatedBy string) (*models.ClassroomPolicy, error)
	SetOverride(ctx context.Context, studentID, locationID string, req service.SetOverrideRequest, createdBy string) (*models.StudentPolicyOverride, error)
	Overrides(ctx context.Context, studentID, locationID string) ([]models.StudentPolicyOverride, error)
	RemoveOverride(ctx context.Context, studentID, locationID string) error
}

// PolicyHandler exposes policy evaluation and administration endpoints.
type PolicyHandler struct {
	service policyService
}

// NewPolicyHandler builds a new handler.
func NewPolicyHandler(service policyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// Evaluate godoc
// @Summary Dry-run the policy engine for a hypothetical pass
// @Tags Policies
// @Accept json
// @Produce json
// @Param payload body models.EvaluationContext true "Evaluation context"
// @Success 200 {object} response.Envelope
// @Router /policies/evaluate [post]
func (h *PolicyHandler) Evaluate(c *gin.Context) {
	var ec models.EvaluationContext
	if err := c.ShouldBindJSON(&ec); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evaluation payload"))
		return
	}
	if ec.PassType == "" {
		ec.PassType = models.PassTypeStudent
	}
	result, err := h.service.Evaluate(c.Request.Context(), ec)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GetClassroomPolicy godoc
// @Summary Get a location's default policy
// @Tags Policies
// @Produce json
// @Param locationId path string true "Location ID"
// @Success 200 {object} response.Envelope
// @Router /policies/locations/{locationId} [get]
func (h *PolicyHandler) GetClassroomPolicy(c *gin.Context) {
	policy, err := h.service.GetClassroomPolicy(c.Request.Context(), c.Param("locationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// SetClassroomPolicy godoc
// @Summary Set a location's default policy
// @Tags Policies
// @Accept json
// @Produce json
// @Param locationId path string true "Location ID"
// @Param payload body service.SetClassroomPolicyRequest true "Policy payload"
// @Success 200 {object} response.Envelope
// @Router /policies/locations/{locationId} [put]
func (h *PolicyHandler) SetClassroomPolicy(c *gin.Context) {
	var req service.SetClassroomPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid policy payload"))
		return
	}
	policy, err := h.service.SetClassroomPolicy(c.Request.Context(), c.Param("locationId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Overrides godoc
// @Summary List a student's overrides at a location
// @Tags Policies
// @Produce json
// @Param locationId path string true "Location ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /policies/locations/{locationId}/students/{studentId} [get]
func (h *PolicyHandler) Overrides(c *gin.Context) {
	overrides, err := h.service.Overrides(c.Request.Context(), c.Param("studentId"), c.Param("locationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides, nil)
}

// SetOverride godoc
// @Summary Set a per-student override at a location
// @Tags Policies
// @Accept json
// @Produce json
// @Param locationId path string true "Location ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.SetOverrideRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Router /policies/locations/{locationId}/students/{studentId} [put]
func (h *PolicyHandler) SetOverride(c *gin.Context) {
	var req service.SetOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	override, err := h.service.SetOverride(c.Request.Context(), c.Param("studentId"), c.Param("locationId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, override, nil)
}

// RemoveOverride godoc
// @Summary Remove a per-student override at a location
// @Tags Policies
// @Param locationId path string true "Location ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /policies/locations/{locationId}/students/{studentId} [delete]
func (h *PolicyHandler) RemoveOverride(c *gin.Context) {
	if err := h.service.RemoveOverride(c.Request.Context(), c.Param("studentId"), c.Param("locationId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
