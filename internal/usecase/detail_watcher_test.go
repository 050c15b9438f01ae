package usecase_test

import (
	"context"
	"testing"
	"time"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/repository/memory"
	"go-candidate-tracker/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAda(t *testing.T, store domain.CandidateStore, salary int) domain.Candidate {
	t.Helper()
	c, err := store.Upsert(context.Background(), domain.Candidate{
		FirstName:      "Ada",
		LastName:       "Lovelace",
		PhoneNumber:    "0123456789",
		Email:          "ada@example.com",
		BirthDate:      date(1990, time.January, 15),
		ExpectedSalary: salary,
	})
	require.NoError(t, err)
	return c
}

func TestDetailWatcherLatestSalaryWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewCandidateRepository()
	c := seedAda(t, store, 1000)
	rates := newGatedRates()

	views, err := usecase.NewDetailWatcher(store, rates, fixedClock).Watch(ctx, c.ID)
	require.NoError(t, err)

	v := receive(t, views)
	assert.Equal(t, 1000, v.SalaryEUR)
	assert.Equal(t, 34, v.Age)
	assert.Equal(t, "15/01/1990", v.BirthDateDisplay)
	assert.Equal(t, usecase.ConversionPending, v.Conversion.State)
	stale := rates.next(t)

	c.ExpectedSalary = 2000
	_, err = store.Upsert(ctx, c)
	require.NoError(t, err)

	v = receive(t, views)
	assert.Equal(t, 2000, v.SalaryEUR)
	assert.Equal(t, usecase.ConversionPending, v.Conversion.State)
	latest := rates.next(t)

	stale <- 0.5
	latest <- 0.85

	v = receive(t, views)
	assert.Equal(t, usecase.ConversionAvailable, v.Conversion.State)
	assert.Equal(t, 0.85, v.Conversion.Rate)
	assert.Equal(t, 1700.0, v.Conversion.AmountGBP)
	assert.Equal(t, 2000, v.SalaryEUR)
}

func TestDetailWatcherSameSalaryDoesNotRefetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewCandidateRepository()
	c := seedAda(t, store, 1000)
	rates := newGatedRates()

	views, err := usecase.NewDetailWatcher(store, rates, fixedClock).Watch(ctx, c.ID)
	require.NoError(t, err)
	receive(t, views)
	rates.next(t) <- 0 // unavailable

	v := receive(t, views)
	assert.Equal(t, usecase.ConversionUnavailable, v.Conversion.State)

	c.Notes = "updated"
	_, err = store.Upsert(ctx, c)
	require.NoError(t, err)

	v = receive(t, views)
	assert.Equal(t, "updated", v.Candidate.Notes)
	assert.Equal(t, usecase.ConversionUnavailable, v.Conversion.State)
	assert.Empty(t, rates.calls)
}

func TestDetailWatcherClosesWhenCandidateDeleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewCandidateRepository()
	c := seedAda(t, store, 1000)

	views, err := usecase.NewDetailWatcher(store, fixedRate(0.86), fixedClock).Watch(ctx, c.ID)
	require.NoError(t, err)
	receive(t, views)

	require.NoError(t, store.Delete(ctx, c))

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-views:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDetailWatcherUnknownCandidate(t *testing.T) {
	store := memory.NewCandidateRepository()
	_, err := usecase.NewDetailWatcher(store, fixedRate(0.86), fixedClock).Watch(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDetailSnapshotConvertsSalary(t *testing.T) {
	store := memory.NewCandidateRepository()
	c := seedAda(t, store, 80000)

	view, err := usecase.NewDetailWatcher(store, fixedRate(0.8567), fixedClock).Snapshot(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.ConversionAvailable, view.Conversion.State)
	assert.Equal(t, 68536.0, view.Conversion.AmountGBP)

	view, err = usecase.NewDetailWatcher(store, fixedRate(0), fixedClock).Snapshot(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.ConversionUnavailable, view.Conversion.State)
	assert.Zero(t, view.Conversion.AmountGBP)
}
