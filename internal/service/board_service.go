package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

const boardCacheKey = "board:active"

type boardPassLister interface {
	ListOpen(ctx context.Context) ([]models.Pass, error)
}

type escalationComputer interface {
	Compute(pass *models.Pass, now time.Time) models.EscalationState
}

type boardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
}

// BoardService serves the live hall monitor view: every open pass with its
// current escalation state, oldest first. The payload is cached briefly so a
// wall of dashboards polling together hits Redis, not Postgres. Durations are
// recomputed per request, so a cached entry only staleness-bounds membership,
// never the clock.
type BoardService struct {
	passes     boardPassLister
	escalation escalationComputer
	cache      boardCache
	ttl        time.Duration
	logger     *zap.Logger
}

// NewBoardService constructs the service.
func NewBoardService(passes boardPassLister, escalation escalationComputer, cache boardCache, ttl time.Duration, logger *zap.Logger) *BoardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &BoardService{passes: passes, escalation: escalation, cache: cache, ttl: ttl, logger: logger}
}

// Active returns the board payload.
func (s *BoardService) Active(ctx context.Context) ([]models.ActivePass, error) {
	now := time.Now().UTC()

	if s.cache != nil {
		var cached []models.Pass
		if err := s.cache.Get(ctx, boardCacheKey, &cached); err == nil {
			return s.annotate(cached, now), nil
		} else if appErrors.FromError(err).Code != appErrors.ErrCacheMiss.Code {
			s.logger.Warn("board cache read failed", zap.Error(err))
		}
	}

	passes, err := s.passes.ListOpen(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list open passes")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, boardCacheKey, passes, s.ttl); err != nil {
			s.logger.Warn("board cache write failed", zap.Error(err))
		}
	}
	return s.annotate(passes, now), nil
}

// InvalidateBoard drops the cached payload after a lifecycle transition.
func (s *BoardService) InvalidateBoard(ctx context.Context) {
	if s.cache != nil {
		s.cache.Delete(ctx, boardCacheKey)
	}
}

func (s *BoardService) annotate(passes []models.Pass, now time.Time) []models.ActivePass {
	board := make([]models.ActivePass, 0, len(passes))
	for i := range passes {
		board = append(board, models.ActivePass{
			Pass:       passes[i],
			Escalation: s.escalation.Compute(&passes[i], now),
		})
	}
	return board
}
