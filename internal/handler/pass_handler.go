package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hallpass-api/internal/models"
	"github.com/noah-isme/hallpass-api/internal/service"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
	"github.com/noah-isme/hallpass-api/pkg/response"
)

type passService interface {
	Create(ctx context.Context, req service.CreatePassRequest, requestedBy string) (*models.Pass, error)
	Arrive(ctx context.Context, passID, actorID string) (*models.Pass, error)
	ContinueTo(ctx context.Context, passID, destinationID, actorID string) (*models.Pass, error)
	ReturnHome(ctx context.Context, passID, closedBy string) (*models.Pass, error)
	Approve(ctx context.Context, passID, approvedBy string) (*models.Pass, error)
	Reject(ctx context.Context, passID, rejectedBy string) (*models.Pass, error)
	Claim(ctx context.Context, passID, userID, displayName string) (*models.Pass, error)
	Get(ctx context.Context, passID string) (*models.Pass, error)
	OpenForStudent(ctx context.Context, studentID string) (*models.Pass, error)
	List(ctx context.Context, filter models.PassFilter) ([]models.Pass, *models.Pagination, error)
}

type passEventLister interface {
	ListForPass(ctx context.Context, passID string) ([]models.PassEvent, error)
}

// PassHandler exposes the pass lifecycle endpoints.
type PassHandler struct {
	service passService
	events  passEventLister
}

// NewPassHandler builds a new handler.
func NewPassHandler(service passService, events passEventLister) *PassHandler {
	return &PassHandler{service: service, events: events}
}

// Create godoc
// @Summary Request a new hall pass
// @Tags Passes
// @Accept json
// @Produce json
// @Param payload body service.CreatePassRequest true "Pass request"
// @Success 201 {object} response.Envelope
// @Router /passes [post]
func (h *PassHandler) Create(c *gin.Context) {
	var req service.CreatePassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pass payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent {
		// A student can only request for themselves.
		req.StudentID = claims.UserID
		req.PassType = models.PassTypeStudent
	}
	pass, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pass)
}

// Get godoc
// @Summary Get one pass with its legs
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id} [get]
func (h *PassHandler) Get(c *gin.Context) {
	pass, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// List godoc
// @Summary List pass history
// @Tags Passes
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param location_id query string false "Filter by location"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /passes [get]
func (h *PassHandler) List(c *gin.Context) {
	filter, err := parsePassFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	passes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, passes, pagination)
}

// Events godoc
// @Summary List a pass's audit events
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/events [get]
func (h *PassHandler) Events(c *gin.Context) {
	events, err := h.events.ListForPass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pass events"))
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Arrive godoc
// @Summary Mark the current leg arrived
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/arrive [post]
func (h *PassHandler) Arrive(c *gin.Context) {
	pass, err := h.service.Arrive(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

type continueRequest struct {
	DestinationLocationID string `json:"destination_location_id" binding:"required"`
}

// Continue godoc
// @Summary Continue the pass toward a new destination
// @Tags Passes
// @Accept json
// @Produce json
// @Param id path string true "Pass ID"
// @Param payload body continueRequest true "Next destination"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/continue [post]
func (h *PassHandler) Continue(c *gin.Context) {
	var req continueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid continue payload"))
		return
	}
	pass, err := h.service.ContinueTo(c.Request.Context(), c.Param("id"), req.DestinationLocationID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// Return godoc
// @Summary Close the pass on return
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/return [post]
func (h *PassHandler) Return(c *gin.Context) {
	pass, err := h.service.ReturnHome(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// Approve godoc
// @Summary Approve a pending pass
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/approve [post]
func (h *PassHandler) Approve(c *gin.Context) {
	pass, err := h.service.Approve(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// Reject godoc
// @Summary Reject a pending pass
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/reject [post]
func (h *PassHandler) Reject(c *gin.Context) {
	pass, err := h.service.Reject(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// Claim godoc
// @Summary Claim responsibility for an open pass
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/claim [post]
func (h *PassHandler) Claim(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pass, err := h.service.Claim(c.Request.Context(), c.Param("id"), claims.UserID, claims.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// OpenForStudent godoc
// @Summary Get a student's current open pass
// @Tags Passes
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/passes/open [get]
func (h *PassHandler) OpenForStudent(c *gin.Context) {
	pass, err := h.service.OpenForStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

func parsePassFilter(c *gin.Context) (models.PassFilter, error) {
	filter := models.PassFilter{
		StudentID:  c.Query("student_id"),
		LocationID: c.Query("location_id"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.PassStatus(raw)
		switch status {
		case models.PassStatusOpen, models.PassStatusClosed, models.PassStatusPendingApproval:
			filter.Status = &status
		default:
			return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
		}
	}
	if raw := c.Query("date_from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "date_from must be RFC3339")
		}
		filter.DateFrom = &from
	}
	if raw := c.Query("date_to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "date_to must be RFC3339")
		}
		filter.DateTo = &to
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
		filter.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "page_size must be a positive integer")
		}
		filter.PageSize = size
	}
	return filter, nil
}
