package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
	"github.com/noah-isme/hallpass-api/pkg/export"
)

// ReportFormat selects the rendered output type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type reportPassLister interface {
	List(ctx context.Context, filter models.PassFilter) ([]models.Pass, int, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table, title, subtitle string) ([]byte, error)
}

// ReportResult carries the rendered document and its download metadata.
type ReportResult struct {
	Payload     []byte
	Filename    string
	ContentType string
}

// ReportService renders pass history into downloadable CSV or PDF documents.
type ReportService struct {
	passes     reportPassLister
	csv        csvRenderer
	pdf        pdfRenderer
	schoolName string
	logger     *zap.Logger
}

// NewReportService constructs the service. Nil renderers fall back to the
// package defaults.
func NewReportService(passes reportPassLister, csv csvRenderer, pdf pdfRenderer, schoolName string, logger *zap.Logger) *ReportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{passes: passes, csv: csv, pdf: pdf, schoolName: schoolName, logger: logger}
}

var reportColumns = []export.Column{
	{Key: "pass_id", Label: "Pass ID"},
	{Key: "student_id", Label: "Student ID"},
	{Key: "status", Label: "Status"},
	{Key: "route", Label: "Route"},
	{Key: "legs", Label: "Legs"},
	{Key: "created_at", Label: "Created At"},
	{Key: "closed_at", Label: "Closed At"},
	{Key: "duration", Label: "Duration (min)"},
	{Key: "closed_by", Label: "Closed By"},
	{Key: "reason", Label: "Reason"},
}

// Generate renders the pass history matching the filter. Pagination on the
// filter is ignored; a report always covers the full match.
func (s *ReportService) Generate(ctx context.Context, filter models.PassFilter, format ReportFormat) (*ReportResult, error) {
	filter.Page = 1
	filter.PageSize = 200

	var rows []map[string]string
	for {
		passes, total, err := s.passes.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load pass history")
		}
		for i := range passes {
			rows = append(rows, passRow(&passes[i]))
		}
		if filter.Page*filter.PageSize >= total || len(passes) == 0 {
			break
		}
		filter.Page++
	}

	table := export.Table{Columns: reportColumns, Rows: rows}
	timestamp := time.Now().UTC().Format("20060102_150405")

	switch format {
	case ReportFormatCSV:
		payload, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ReportResult{
			Payload:     payload,
			Filename:    fmt.Sprintf("pass_report_%s.csv", timestamp),
			ContentType: "text/csv",
		}, nil
	case ReportFormatPDF:
		subtitle := fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC1123))
		payload, err := s.pdf.Render(table, s.reportTitle(filter), subtitle)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ReportResult{
			Payload:     payload,
			Filename:    fmt.Sprintf("pass_report_%s.pdf", timestamp),
			ContentType: "application/pdf",
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
}

func (s *ReportService) reportTitle(filter models.PassFilter) string {
	title := "Hall Pass Report"
	if s.schoolName != "" {
		title = fmt.Sprintf("%s Hall Pass Report", s.schoolName)
	}
	if filter.StudentID != "" {
		title = fmt.Sprintf("%s (student %s)", title, filter.StudentID)
	}
	return title
}

func passRow(pass *models.Pass) map[string]string {
	row := map[string]string{
		"pass_id":    pass.ID,
		"student_id": pass.StudentID,
		"status":     string(pass.Status),
		"route":      routeString(pass),
		"legs":       fmt.Sprintf("%d", pass.LegCount),
		"created_at": pass.CreatedAt.UTC().Format(time.RFC3339),
		"closed_at":  "",
		"duration":   "",
		"closed_by":  "",
		"reason":     "",
	}
	if pass.ClosedAt != nil {
		row["closed_at"] = pass.ClosedAt.UTC().Format(time.RFC3339)
	}
	if pass.DurationMinutes != nil {
		row["duration"] = fmt.Sprintf("%d", *pass.DurationMinutes)
	}
	if pass.ClosedBy != nil {
		row["closed_by"] = *pass.ClosedBy
	}
	if pass.CloseReason != nil {
		row["reason"] = *pass.CloseReason
	}
	return row
}

func routeString(pass *models.Pass) string {
	if len(pass.Legs) == 0 {
		return ""
	}
	parts := []string{pass.Legs[0].OriginLocationID}
	for _, leg := range pass.Legs {
		parts = append(parts, leg.DestinationLocationID)
	}
	return strings.Join(parts, " > ")
}
