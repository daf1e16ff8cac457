package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hallpass-api/internal/models"
	"github.com/noah-isme/hallpass-api/internal/service"
	"github.com/noah-isme/hallpass-api/pkg/response"
)

type reportService interface {
	Generate(ctx context.Context, filter models.PassFilter, format service.ReportFormat) (*service.ReportResult, error)
}

// ReportHandler streams rendered pass history reports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler builds a new handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Passes godoc
// @Summary Download pass history as CSV or PDF
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param student_id query string false "Filter by student"
// @Param location_id query string false "Filter by location"
// @Param status query string false "Filter by status"
// @Success 200 {file} file
// @Router /reports/passes [get]
func (h *ReportHandler) Passes(c *gin.Context) {
	filter, err := parsePassFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.service.Generate(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(200, result.ContentType, result.Payload)
}
