package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

// PassRepository is the transactional record store for passes and their legs.
//
// The single-open-pass invariant is enforced here: the passes table carries a
// partial unique index on (student_id) WHERE status <> 'CLOSED', and Create
// inserts through it with ON CONFLICT DO NOTHING. Of two racing creates for
// the same student exactly one insert returns a row; the loser observes
// ErrConcurrentPass. A pass awaiting approval holds the slot the same as an
// open one. All other mutations are conditional updates that treat zero
// affected rows as a lost race (ErrInvalidTransition).
type PassRepository struct {
	db *sqlx.DB
}

// NewPassRepository constructs the repository.
func NewPassRepository(db *sqlx.DB) *PassRepository {
	return &PassRepository{db: db}
}

const passColumns = `id, student_id, home_location_id, pass_type, status, leg_count,
        created_at, last_updated_at, closed_by, closed_at, duration_minutes, close_reason,
        notification_level, last_notification_at, claimed_by_user_id, claimed_by_name, claimed_at`

const legColumns = `id, pass_id, leg_number, origin_location_id, destination_location_id, state, state_changed_at`

// Create atomically checks the invariant and inserts a new pass with its
// first leg. Returns appErrors.ErrConcurrentPass when the student already
// holds a non-closed pass at commit time.
func (r *PassRepository) Create(ctx context.Context, pass *models.Pass, firstLeg *models.Leg) error {
	if pass.ID == "" {
		pass.ID = uuid.NewString()
	}
	if firstLeg.ID == "" {
		firstLeg.ID = uuid.NewString()
	}
	firstLeg.PassID = pass.ID
	firstLeg.LegNumber = 1
	pass.LegCount = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "begin pass creation")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	insertPass := `INSERT INTO passes (id, student_id, home_location_id, pass_type, status, leg_count,
        created_at, last_updated_at, notification_level)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id) WHERE status <> 'CLOSED' DO NOTHING
RETURNING id`
	var insertedID string
	err = tx.QueryRowxContext(ctx, insertPass,
		pass.ID, pass.StudentID, pass.HomeLocationID, pass.Type, pass.Status, pass.LegCount,
		pass.CreatedAt, pass.LastUpdatedAt, pass.NotificationLevel,
	).Scan(&insertedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrConcurrentPass
		}
		return fmt.Errorf("insert pass: %w", err)
	}

	insertLeg := `INSERT INTO pass_legs (id, pass_id, leg_number, origin_location_id, destination_location_id, state, state_changed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insertLeg,
		firstLeg.ID, firstLeg.PassID, firstLeg.LegNumber,
		firstLeg.OriginLocationID, firstLeg.DestinationLocationID, firstLeg.State, firstLeg.Timestamp,
	); err != nil {
		return fmt.Errorf("insert first leg: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pass creation: %w", err)
	}
	committed = true
	pass.Legs = []models.Leg{*firstLeg}
	return nil
}

// FindOpenByStudent returns the student's open pass with legs, or
// sql.ErrNoRows when none exists.
func (r *PassRepository) FindOpenByStudent(ctx context.Context, studentID string) (*models.Pass, error) {
	query := fmt.Sprintf(`SELECT %s FROM passes WHERE student_id = $1 AND status = 'OPEN'`, passColumns)
	var pass models.Pass
	if err := r.db.GetContext(ctx, &pass, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find open pass for student %s: %w", studentID, err)
	}
	if err := r.loadLegs(ctx, &pass); err != nil {
		return nil, err
	}
	return &pass, nil
}

// FindByID returns the pass with its ordered legs.
func (r *PassRepository) FindByID(ctx context.Context, id string) (*models.Pass, error) {
	query := fmt.Sprintf(`SELECT %s FROM passes WHERE id = $1`, passColumns)
	var pass models.Pass
	if err := r.db.GetContext(ctx, &pass, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pass %s: %w", id, err)
	}
	if err := r.loadLegs(ctx, &pass); err != nil {
		return nil, err
	}
	return &pass, nil
}

// MarkArrived flips the tail leg OUT -> IN. The update is guarded on the
// expected leg number, the leg still being OUT and the pass still being OPEN;
// a stale writer gets ErrInvalidTransition.
func (r *PassRepository) MarkArrived(ctx context.Context, passID string, expectedLeg int, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "begin arrive")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `UPDATE pass_legs l SET state = 'IN', state_changed_at = $3
FROM passes p
WHERE p.id = $1 AND l.pass_id = p.id AND p.status = 'OPEN'
  AND l.leg_number = $2 AND l.leg_number = p.leg_count AND l.state = 'OUT'`
	res, err := tx.ExecContext(ctx, query, passID, expectedLeg, at)
	if err != nil {
		return fmt.Errorf("mark leg arrived: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `UPDATE passes SET last_updated_at = $2 WHERE id = $1`, passID, at); err != nil {
		return fmt.Errorf("bump pass timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit arrive: %w", err)
	}
	committed = true
	return nil
}

// AppendLeg adds the next leg to an open pass, guarded on the expected
// current leg count so concurrent appends cannot interleave.
func (r *PassRepository) AppendLeg(ctx context.Context, passID string, expectedLegCount int, leg *models.Leg) error {
	if leg.ID == "" {
		leg.ID = uuid.NewString()
	}
	leg.PassID = passID
	leg.LegNumber = expectedLegCount + 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "begin continue")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	guard := `UPDATE passes SET leg_count = leg_count + 1, last_updated_at = $3
WHERE id = $1 AND status = 'OPEN' AND leg_count = $2`
	res, err := tx.ExecContext(ctx, guard, passID, expectedLegCount, leg.Timestamp)
	if err != nil {
		return fmt.Errorf("advance leg count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}

	insert := `INSERT INTO pass_legs (id, pass_id, leg_number, origin_location_id, destination_location_id, state, state_changed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insert,
		leg.ID, leg.PassID, leg.LegNumber,
		leg.OriginLocationID, leg.DestinationLocationID, leg.State, leg.Timestamp,
	); err != nil {
		return fmt.Errorf("insert leg: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit continue: %w", err)
	}
	committed = true
	return nil
}

// Close finalises an open pass. Guarded on status and the expected leg count;
// whichever writer (human return vs. auto-expiry sweep) commits first wins and
// the loser observes ErrInvalidTransition.
func (r *PassRepository) Close(ctx context.Context, passID string, expectedLegCount int, closedBy, reason string, closedAt time.Time, durationMinutes int) error {
	query := `UPDATE passes SET status = 'CLOSED', closed_by = $3, close_reason = $4,
        closed_at = $5, duration_minutes = $6, last_updated_at = $5
WHERE id = $1 AND status = 'OPEN' AND leg_count = $2`
	res, err := r.db.ExecContext(ctx, query, passID, expectedLegCount, closedBy, reason, closedAt, durationMinutes)
	if err != nil {
		return fmt.Errorf("close pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// Approve flips a pending pass to OPEN. The episode clock starts at approval,
// so created_at and the first leg timestamp move to that instant.
func (r *PassRepository) Approve(ctx context.Context, passID string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "begin approve")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `UPDATE passes SET status = 'OPEN', created_at = $2, last_updated_at = $2
WHERE id = $1 AND status = 'PENDING_APPROVAL'`
	res, err := tx.ExecContext(ctx, query, passID, at)
	if err != nil {
		return fmt.Errorf("approve pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pass_legs SET state_changed_at = $2 WHERE pass_id = $1 AND leg_number = 1`,
		passID, at,
	); err != nil {
		return fmt.Errorf("reset first leg timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	committed = true
	return nil
}

// Reject closes a pending pass without it ever opening.
func (r *PassRepository) Reject(ctx context.Context, passID, rejectedBy, reason string, at time.Time) error {
	query := `UPDATE passes SET status = 'CLOSED', closed_by = $2, close_reason = $3,
        closed_at = $4, duration_minutes = 0, last_updated_at = $4
WHERE id = $1 AND status = 'PENDING_APPROVAL'`
	res, err := r.db.ExecContext(ctx, query, passID, rejectedBy, reason, at)
	if err != nil {
		return fmt.Errorf("reject pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// UpdateNotification raises the escalation bookkeeping. Guarded on the level
// the caller computed against, so two concurrent sweeps notify once.
func (r *PassRepository) UpdateNotification(ctx context.Context, passID string, from, to models.NotificationLevel, at time.Time) error {
	query := `UPDATE passes SET notification_level = $3, last_notification_at = $4
WHERE id = $1 AND status = 'OPEN' AND notification_level = $2`
	res, err := r.db.ExecContext(ctx, query, passID, from, to, at)
	if err != nil {
		return fmt.Errorf("update notification level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// Claim records a staff member taking responsibility for an open pass.
func (r *PassRepository) Claim(ctx context.Context, passID, userID, displayName string, at time.Time) error {
	query := `UPDATE passes SET claimed_by_user_id = $2, claimed_by_name = $3, claimed_at = $4, last_updated_at = $4
WHERE id = $1 AND status = 'OPEN'`
	res, err := r.db.ExecContext(ctx, query, passID, userID, displayName, at)
	if err != nil {
		return fmt.Errorf("claim pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// ListOpen returns every open pass with legs, ordered oldest first.
func (r *PassRepository) ListOpen(ctx context.Context) ([]models.Pass, error) {
	query := fmt.Sprintf(`SELECT %s FROM passes WHERE status = 'OPEN' ORDER BY created_at ASC`, passColumns)
	var passes []models.Pass
	if err := r.db.SelectContext(ctx, &passes, query); err != nil {
		return nil, fmt.Errorf("list open passes: %w", err)
	}
	if err := r.loadLegsBulk(ctx, passes); err != nil {
		return nil, err
	}
	return passes, nil
}

// ListOverdue returns open passes created at or before the cutoff.
func (r *PassRepository) ListOverdue(ctx context.Context, cutoff time.Time) ([]models.Pass, error) {
	query := fmt.Sprintf(`SELECT %s FROM passes WHERE status = 'OPEN' AND created_at <= $1 ORDER BY created_at ASC`, passColumns)
	var passes []models.Pass
	if err := r.db.SelectContext(ctx, &passes, query, cutoff); err != nil {
		return nil, fmt.Errorf("list overdue passes: %w", err)
	}
	if err := r.loadLegsBulk(ctx, passes); err != nil {
		return nil, err
	}
	return passes, nil
}

// List returns pass history matching the filter, paginated.
func (r *PassRepository) List(ctx context.Context, filter models.PassFilter) ([]models.Pass, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.LocationID != "" {
		where = append(where, fmt.Sprintf("id IN (SELECT pass_id FROM pass_legs WHERE origin_location_id = $%d OR destination_location_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.LocationID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM passes WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		passColumns, whereClause, size, offset)
	var passes []models.Pass
	if err := r.db.SelectContext(ctx, &passes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list passes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM passes WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count passes: %w", err)
	}
	if err := r.loadLegsBulk(ctx, passes); err != nil {
		return nil, 0, err
	}
	return passes, total, nil
}

func (r *PassRepository) loadLegs(ctx context.Context, pass *models.Pass) error {
	query := fmt.Sprintf(`SELECT %s FROM pass_legs WHERE pass_id = $1 ORDER BY leg_number ASC`, legColumns)
	if err := r.db.SelectContext(ctx, &pass.Legs, query, pass.ID); err != nil {
		return fmt.Errorf("load legs for pass %s: %w", pass.ID, err)
	}
	return nil
}

func (r *PassRepository) loadLegsBulk(ctx context.Context, passes []models.Pass) error {
	if len(passes) == 0 {
		return nil
	}
	ids := make([]string, len(passes))
	index := make(map[string]*models.Pass, len(passes))
	for i := range passes {
		ids[i] = passes[i].ID
		index[passes[i].ID] = &passes[i]
	}
	query := fmt.Sprintf(`SELECT %s FROM pass_legs WHERE pass_id = ANY($1) ORDER BY pass_id, leg_number ASC`, legColumns)
	var legs []models.Leg
	if err := r.db.SelectContext(ctx, &legs, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load legs: %w", err)
	}
	for _, leg := range legs {
		if p, ok := index[leg.PassID]; ok {
			p.Legs = append(p.Legs, leg)
		}
	}
	return nil
}
