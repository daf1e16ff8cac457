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

type groupService interface {
	List(ctx context.Context) ([]models.Group, error)
	Get(ctx context.Context, id string) (*models.Group, error)
	Create(ctx context.Context, req service.GroupRequest, ownerID string) (*models.Group, error)
	Update(ctx context.Context, id string, req service.GroupRequest) (*models.Group, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID, studentID, addedBy string) error
	RemoveMember(ctx context.Context, groupID, studentID string) error
}

// GroupHandler exposes group management endpoints.
type GroupHandler struct {
	service groupService
}

// NewGroupHandler builds a new handler.
func NewGroupHandler(service groupService) *GroupHandler {
	return &GroupHandler{service: service}
}

// List godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get one group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body service.GroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req service.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid group payload"))
		return
	}
	group, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.GroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *GroupHandler) Update(c *gin.Context) {
	var req service.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid group payload"))
		return
	}
	group, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete a group
// @Tags Groups
// @Param id path string true "Group ID"
// @Success 204
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type addMemberRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// AddMember godoc
// @Summary Add a student to a group
// @Tags Groups
// @Accept json
// @Param id path string true "Group ID"
// @Param payload body addMemberRequest true "Member payload"
// @Success 204
// @Router /groups/{id}/members [post]
func (h *GroupHandler) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid member payload"))
		return
	}
	if err := h.service.AddMember(c.Request.Context(), c.Param("id"), req.StudentID, actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveMember godoc
// @Summary Remove a student from a group
// @Tags Groups
// @Param id path string true "Group ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /groups/{id}/members/{studentId} [delete]
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	if err := h.service.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
