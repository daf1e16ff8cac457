package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hallpass-api/internal/models"
	"github.com/noah-isme/hallpass-api/pkg/response"
)

type boardService interface {
	Active(ctx context.Context) ([]models.ActivePass, error)
}

// BoardHandler serves the live hall monitor view.
type BoardHandler struct {
	service boardService
}

// NewBoardHandler builds a new handler.
func NewBoardHandler(service boardService) *BoardHandler {
	return &BoardHandler{service: service}
}

// Active godoc
// @Summary List all open passes with escalation state
// @Tags Board
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /board/active [get]
func (h *BoardHandler) Active(c *gin.Context) {
	board, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}
