package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

type reportListerStub struct {
	pages map[int][]models.Pass
	total int
	calls int
}

func (s *reportListerStub) List(ctx context.Context, filter models.PassFilter) ([]models.Pass, int, error) {
	s.calls++
	return s.pages[filter.Page], s.total, nil
}

func closedReportPass(id string) models.Pass {
	now := time.Now().UTC()
	closedBy := "student-1"
	reason := models.CloseReasonReturned
	duration := 7
	closedAt := now
	return models.Pass{
		ID:              id,
		StudentID:       "student-1",
		Status:          models.PassStatusClosed,
		LegCount:        2,
		CreatedAt:       now.Add(-7 * time.Minute),
		ClosedBy:        &closedBy,
		ClosedAt:        &closedAt,
		CloseReason:     &reason,
		DurationMinutes: &duration,
		Legs: []models.Leg{
			{LegNumber: 1, OriginLocationID: "room-101", DestinationLocationID: "bathroom-9", State: models.LegStateIn},
			{LegNumber: 2, OriginLocationID: "bathroom-9", DestinationLocationID: "library-1", State: models.LegStateIn},
		},
	}
}

func TestReportServiceGeneratesCSV(t *testing.T) {
	lister := &reportListerStub{
		pages: map[int][]models.Pass{1: {closedReportPass("pass-1")}},
		total: 1,
	}
	svc := NewReportService(lister, nil, nil, "Northside High", nil)

	result, err := svc.Generate(context.Background(), models.PassFilter{}, ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasPrefix(result.Filename, "pass_report_"))
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	body := string(result.Payload)
	assert.Contains(t, body, "Pass ID,Student ID,Status,Route")
	assert.Contains(t, body, "pass-1")
	assert.Contains(t, body, "room-101 > bathroom-9 > library-1")
	assert.Contains(t, body, "returned")
}

func TestReportServiceGeneratesPDF(t *testing.T) {
	lister := &reportListerStub{
		pages: map[int][]models.Pass{1: {closedReportPass("pass-1")}},
		total: 1,
	}
	svc := NewReportService(lister, nil, nil, "Northside High", nil)

	result, err := svc.Generate(context.Background(), models.PassFilter{}, ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".pdf"))
	require.NotEmpty(t, result.Payload)
	assert.True(t, strings.HasPrefix(string(result.Payload), "%PDF"))
}

func TestReportServicePagesThroughHistory(t *testing.T) {
	firstPage := make([]models.Pass, 200)
	for i := range firstPage {
		firstPage[i] = closedReportPass("pass-a")
	}
	lister := &reportListerStub{
		pages: map[int][]models.Pass{
			1: firstPage,
			2: {closedReportPass("pass-tail")},
		},
		total: 201,
	}
	svc := NewReportService(lister, nil, nil, "", nil)

	result, err := svc.Generate(context.Background(), models.PassFilter{}, ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
	// Header plus 201 rows, trailing newline included.
	assert.Equal(t, 203, len(strings.Split(string(result.Payload), "\n")))
}

func TestReportServiceUnsupportedFormat(t *testing.T) {
	svc := NewReportService(&reportListerStub{}, nil, nil, "", nil)

	_, err := svc.Generate(context.Background(), models.PassFilter{}, ReportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
