package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

func newPassRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var passRowColumns = []string{
	"id", "student_id", "home_location_id", "pass_type", "status", "leg_count",
	"created_at", "last_updated_at", "closed_by", "closed_at", "duration_minutes", "close_reason",
	"notification_level", "last_notification_at", "claimed_by_user_id", "claimed_by_name", "claimed_at",
}

var legRowColumns = []string{
	"id", "pass_id", "leg_number", "origin_location_id", "destination_location_id", "state", "state_changed_at",
}

func openPassRow(id, studentID string, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(passRowColumns).
		AddRow(id, studentID, "room-101", "STUDENT", "OPEN", 1,
			at, at, nil, nil, nil, nil,
			"none", nil, nil, nil, nil)
}

func TestPassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()
	pass := &models.Pass{
		StudentID:         "student-1",
		HomeLocationID:    "room-101",
		Type:              models.PassTypeStudent,
		Status:            models.PassStatusOpen,
		CreatedAt:         now,
		LastUpdatedAt:     now,
		NotificationLevel: models.NotificationNone,
	}
	leg := &models.Leg{
		OriginLocationID:      "room-101",
		DestinationLocationID: "bathroom-9",
		State:                 models.LegStateOut,
		Timestamp:             now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO passes")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pass-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pass_legs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), pass, leg))
	require.Equal(t, 1, pass.LegCount)
	require.Equal(t, pass.ID, leg.PassID)
	require.Len(t, pass.Legs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryCreateConflict(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	mock.ExpectBegin()
	// ON CONFLICT DO NOTHING returns no row for the losing insert.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO passes")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Pass{StudentID: "student-1"}, &models.Leg{})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConcurrentPass.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryFindByIDLoadsLegs(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, home_location_id")).
		WithArgs("pass-1").
		WillReturnRows(openPassRow("pass-1", "student-1", now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pass_legs WHERE pass_id = $1")).
		WithArgs("pass-1").
		WillReturnRows(sqlmock.NewRows(legRowColumns).
			AddRow("leg-1", "pass-1", 1, "room-101", "bathroom-9", "OUT", now))

	pass, err := repo.FindByID(context.Background(), "pass-1")
	require.NoError(t, err)
	require.Equal(t, "student-1", pass.StudentID)
	require.Len(t, pass.Legs, 1)
	require.Equal(t, models.LegStateOut, pass.Legs[0].State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryMarkArrived(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pass_legs l SET state = 'IN'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET last_updated_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.MarkArrived(context.Background(), "pass-1", 1, now))

	// A stale leg number loses the conditional update.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pass_legs l SET state = 'IN'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	err := repo.MarkArrived(context.Background(), "pass-1", 1, now)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryAppendLeg(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	leg := &models.Leg{
		OriginLocationID:      "bathroom-9",
		DestinationLocationID: "library-1",
		State:                 models.LegStateOut,
		Timestamp:             time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET leg_count = leg_count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pass_legs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.AppendLeg(context.Background(), "pass-1", 1, leg))
	require.Equal(t, 2, leg.LegNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryCloseLostRace(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET status = 'CLOSED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Close(context.Background(), "pass-1", 2, "student-1", models.CloseReasonReturned, now, 7))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET status = 'CLOSED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Close(context.Background(), "pass-1", 2, models.SystemActor, models.CloseReasonExpired, now, 31)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryApprove(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET status = 'OPEN'")).
		WithArgs("pass-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pass_legs SET state_changed_at")).
		WithArgs("pass-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Approve(context.Background(), "pass-1", now))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET status = 'OPEN'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	err := repo.Approve(context.Background(), "pass-1", now)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryUpdateNotificationCAS(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET notification_level")).
		WithArgs("pass-1", models.NotificationNone, models.NotificationStudent, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateNotification(context.Background(), "pass-1", models.NotificationNone, models.NotificationStudent, now))

	// A second sweep computed against the same base level loses.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE passes SET notification_level")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateNotification(context.Background(), "pass-1", models.NotificationNone, models.NotificationStudent, now)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()
	status := models.PassStatusOpen

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, home_location_id")).
		WithArgs("student-1", status).
		WillReturnRows(openPassRow("pass-1", "student-1", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM passes")).
		WithArgs("student-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pass_legs WHERE pass_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows(legRowColumns).
			AddRow("leg-1", "pass-1", 1, "room-101", "bathroom-9", "OUT", now))

	passes, total, err := repo.List(context.Background(), models.PassFilter{
		StudentID: "student-1",
		Status:    &status,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, passes, 1)
	require.Len(t, passes[0].Legs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPassRepositoryListOpenOrdersOldestFirst(t *testing.T) {
	db, mock, cleanup := newPassRepoMock(t)
	defer cleanup()

	repo := NewPassRepository(db)
	now := time.Now().UTC()
	rows := openPassRow("pass-old", "student-1", now.Add(-20*time.Minute)).
		AddRow("pass-new", "student-2", "room-204", "STUDENT", "OPEN", 1,
			now, now, nil, nil, nil, nil,
			"none", nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'OPEN' ORDER BY created_at ASC")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM pass_legs WHERE pass_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows(legRowColumns).
			AddRow("leg-1", "pass-old", 1, "room-101", "bathroom-9", "OUT", now).
			AddRow("leg-2", "pass-new", 1, "room-204", "bathroom-9", "OUT", now))

	passes, err := repo.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, passes, 2)
	require.Equal(t, "pass-old", passes[0].ID)
	require.Len(t, passes[0].Legs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
