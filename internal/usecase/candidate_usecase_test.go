package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/repository/memory"
	"go-candidate-tracker/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedList(t *testing.T, store domain.CandidateStore) {
	t.Helper()
	for _, c := range []domain.Candidate{
		{FirstName: "Grace", LastName: "Hopper", IsFavorite: true},
		{FirstName: "Ada", LastName: "Lovelace"},
		{FirstName: "Alan", LastName: "Turing", IsFavorite: true},
		{FirstName: "Adele", LastName: "Goldberg", BirthDate: date(1945, time.July, 22), ExpectedSalary: 90000},
	} {
		_, err := store.Upsert(context.Background(), c)
		require.NoError(t, err)
	}
}

func lastNames(cs []domain.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.LastName)
	}
	return out
}

func TestListFiltersAndSorts(t *testing.T) {
	store := memory.NewCandidateRepository()
	seedList(t, store)
	uc := usecase.NewCandidateUsecase(store, nil)
	ctx := context.Background()

	all, err := uc.List(ctx, domain.CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Goldberg", "Hopper", "Lovelace", "Turing"}, lastNames(all))

	favorites, err := uc.List(ctx, domain.CandidateFilter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hopper", "Turing"}, lastNames(favorites))

	byPrefix, err := uc.List(ctx, domain.CandidateFilter{Query: "AD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Goldberg", "Lovelace"}, lastNames(byPrefix))

	byFullName, err := uc.List(ctx, domain.CandidateFilter{Query: "grace hop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hopper"}, lastNames(byFullName))

	none, err := uc.List(ctx, domain.CandidateFilter{Query: "zzz", FavoritesOnly: true})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestWatchAppliesFilterToEverySnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewCandidateRepository()
	uc := usecase.NewCandidateUsecase(store, nil)

	lists, err := uc.Watch(ctx, domain.CandidateFilter{Query: "love"})
	require.NoError(t, err)
	assert.Empty(t, receive(t, lists))

	_, err = store.Upsert(ctx, domain.Candidate{FirstName: "Grace", LastName: "Hopper"})
	require.NoError(t, err)
	assert.Empty(t, receive(t, lists))

	_, err = store.Upsert(ctx, domain.Candidate{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lovelace"}, lastNames(receive(t, lists)))
}

func TestGetAndSetFavoriteOnUnknownCandidate(t *testing.T) {
	store := new(MockCandidateStore)
	store.On("GetByID", mock.Anything, int64(99)).Return(nil, nil)
	uc := usecase.NewCandidateUsecase(store, nil)

	_, err := uc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = uc.SetFavorite(context.Background(), 99, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	store.AssertNotCalled(t, "SetFavorite", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetFavoriteWrapsStorageErrors(t *testing.T) {
	store := new(MockCandidateStore)
	store.On("GetByID", mock.Anything, int64(1)).Return(&domain.Candidate{ID: 1}, nil)
	store.On("SetFavorite", mock.Anything, int64(1), true).Return(errors.New("connection reset"))
	uc := usecase.NewCandidateUsecase(store, nil)

	err := uc.SetFavorite(context.Background(), 1, true)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestExportExcel(t *testing.T) {
	store := memory.NewCandidateRepository()
	seedList(t, store)
	uc := usecase.NewCandidateUsecase(store, nil)

	data, filename, err := uc.ExportExcel(context.Background(), domain.CandidateFilter{Query: "adele"})
	require.NoError(t, err)
	assert.Regexp(t, `^candidates_\d{8}_\d{6}\.xlsx$`, filename)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Candidates")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "FIRST NAME", rows[0][1])
	assert.Equal(t, "Adele", rows[1][1])
	assert.Equal(t, "Goldberg", rows[1][2])
	assert.Equal(t, "22/07/1945", rows[1][5])
	assert.Equal(t, "90000", rows[1][7])
	assert.Equal(t, "NO", rows[1][8])
}
