package usecase_test

import (
	"context"
	"testing"
	"time"

	"go-candidate-tracker/internal/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Repositories
type MockCandidateStore struct {
	mock.Mock
}

func (m *MockCandidateStore) Upsert(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	args := m.Called(ctx, c)
	if fn, ok := args.Get(0).(func(context.Context, domain.Candidate) domain.Candidate); ok {
		return fn(ctx, c), args.Error(1)
	}
	return args.Get(0).(domain.Candidate), args.Error(1)
}

func (m *MockCandidateStore) GetByID(ctx context.Context, id int64) (*domain.Candidate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Candidate), args.Error(1)
}

func (m *MockCandidateStore) StreamAll(ctx context.Context) (<-chan []domain.Candidate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan []domain.Candidate), args.Error(1)
}

func (m *MockCandidateStore) StreamFavorites(ctx context.Context) (<-chan []domain.Candidate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan []domain.Candidate), args.Error(1)
}

func (m *MockCandidateStore) SetFavorite(ctx context.Context, id int64, value bool) error {
	return m.Called(ctx, id, value).Error(0)
}

func (m *MockCandidateStore) Delete(ctx context.Context, c domain.Candidate) error {
	return m.Called(ctx, c).Error(0)
}

type MockPhotoAssets struct {
	mock.Mock
}

func (m *MockPhotoAssets) DeleteIfLocal(ctx context.Context, uri string) {
	m.Called(ctx, uri)
}

// gatedRates hands every fetch to the test, which answers through the
// returned channel. A reply <= 0 means "unavailable".
type gatedRates struct {
	calls chan chan float64
}

func newGatedRates() *gatedRates {
	return &gatedRates{calls: make(chan chan float64, 8)}
}

func (g *gatedRates) FetchEURToGBP(ctx context.Context) (float64, bool) {
	reply := make(chan float64, 1)
	g.calls <- reply
	select {
	case r := <-reply:
		return r, r > 0
	case <-ctx.Done():
		return 0, false
	}
}

func (g *gatedRates) next(t *testing.T) chan float64 {
	t.Helper()
	select {
	case reply := <-g.calls:
		return reply
	case <-time.After(2 * time.Second):
		require.FailNow(t, "expected an exchange rate fetch")
		return nil
	}
}

type fixedRate float64

func (r fixedRate) FetchEURToGBP(context.Context) (float64, bool) {
	return float64(r), r > 0
}

func fixedClock() time.Time {
	return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string {
	return &s
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}

func waitLoaded(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "editor did not finish loading")
	}
}
