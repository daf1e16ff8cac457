package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

type boardListerStub struct {
	passes []models.Pass
	err    error
	calls  int
}

func (s *boardListerStub) ListOpen(ctx context.Context) ([]models.Pass, error) {
	s.calls++
	return s.passes, s.err
}

type boardCacheStub struct {
	entries map[string][]models.Pass
	getErr  error
	sets    int
	deletes int
}

func newBoardCacheStub() *boardCacheStub {
	return &boardCacheStub{entries: make(map[string][]models.Pass)}
}

func (s *boardCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	cached, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*[]models.Pass) = cached
	return nil
}

func (s *boardCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.sets++
	s.entries[key] = value.([]models.Pass)
	return nil
}

func (s *boardCacheStub) Delete(ctx context.Context, key string) {
	s.deletes++
	delete(s.entries, key)
}

func boardEscalation() *EscalationService {
	return NewEscalationService(&escalationRepoStub{}, nil, nil, nil, nil, ladderConfig(), nil)
}

func TestBoardServiceMissThenHit(t *testing.T) {
	now := time.Now().UTC()
	lister := &boardListerStub{passes: []models.Pass{
		openPassAgedBy("a", 12*time.Minute, now),
		openPassAgedBy("b", 2*time.Minute, now),
	}}
	cache := newBoardCacheStub()
	svc := NewBoardService(lister, boardEscalation(), cache, 15*time.Second, nil)

	board, err := svc.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from cache.
	board, err = svc.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, 1, lister.calls)
}

func TestBoardServiceAnnotatesEscalation(t *testing.T) {
	now := time.Now().UTC()
	lister := &boardListerStub{passes: []models.Pass{
		openPassAgedBy("stuck", 22*time.Minute, now),
		openPassAgedBy("fresh", 1*time.Minute, now),
	}}
	svc := NewBoardService(lister, boardEscalation(), nil, 0, nil)

	board, err := svc.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, models.NotificationAdmin, board[0].Escalation.Tier)
	assert.True(t, board[0].Escalation.ShouldEscalate)
	assert.Equal(t, models.NotificationNone, board[1].Escalation.Tier)
}

func TestBoardServiceCacheFailureFallsThrough(t *testing.T) {
	now := time.Now().UTC()
	lister := &boardListerStub{passes: []models.Pass{openPassAgedBy("a", time.Minute, now)}}
	cache := newBoardCacheStub()
	cache.getErr = errors.New("redis timeout")
	svc := NewBoardService(lister, boardEscalation(), cache, 15*time.Second, nil)

	board, err := svc.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, board, 1)
	assert.Equal(t, 1, lister.calls)
}

func TestBoardServiceListFailure(t *testing.T) {
	lister := &boardListerStub{err: errors.New("db gone")}
	svc := NewBoardService(lister, boardEscalation(), nil, 0, nil)

	_, err := svc.Active(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErrors.FromError(err).Code)
}

func TestBoardServiceInvalidateDropsCache(t *testing.T) {
	now := time.Now().UTC()
	lister := &boardListerStub{passes: []models.Pass{openPassAgedBy("a", time.Minute, now)}}
	cache := newBoardCacheStub()
	svc := NewBoardService(lister, boardEscalation(), cache, 15*time.Second, nil)

	_, err := svc.Active(context.Background())
	require.NoError(t, err)
	svc.InvalidateBoard(context.Background())
	assert.Equal(t, 1, cache.deletes)

	_, err = svc.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}
