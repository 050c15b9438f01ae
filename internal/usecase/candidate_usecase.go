package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/pkg/audit"
	"go-candidate-tracker/pkg/validation"

	"github.com/xuri/excelize/v2"
)

type candidateUsecase struct {
	store domain.CandidateStore
	audit *audit.Logger
	now   func() time.Time
}

func NewCandidateUsecase(store domain.CandidateStore, auditLog *audit.Logger) domain.CandidateUsecase {
	return &candidateUsecase{store: store, audit: auditLog, now: time.Now}
}

// List returns the current snapshot, filtered and sorted for display.
func (u *candidateUsecase) List(ctx context.Context, filter domain.CandidateFilter) ([]domain.Candidate, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := u.stream(subCtx, filter.FavoritesOnly)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case snapshot, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: candidate stream closed", domain.ErrStorage)
		}
		return ApplyFilter(snapshot, filter), nil
	}
}

// Watch streams filtered snapshots until ctx is done.
func (u *candidateUsecase) Watch(ctx context.Context, filter domain.CandidateFilter) (<-chan []domain.Candidate, error) {
	in, err := u.stream(ctx, filter.FavoritesOnly)
	if err != nil {
		return nil, err
	}

	out := make(chan []domain.Candidate)
	go func() {
		defer close(out)
		for snapshot := range in {
			select {
			case out <- ApplyFilter(snapshot, filter):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (u *candidateUsecase) stream(ctx context.Context, favoritesOnly bool) (<-chan []domain.Candidate, error) {
	if favoritesOnly {
		return u.store.StreamFavorites(ctx)
	}
	return u.store.StreamAll(ctx)
}

func (u *candidateUsecase) Get(ctx context.Context, id int64) (*domain.Candidate, error) {
	c, err := u.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// SetFavorite toggles the favorite flag outside of any draft session.
func (u *candidateUsecase) SetFavorite(ctx context.Context, id int64, value bool) error {
	if _, err := u.Get(ctx, id); err != nil {
		return err
	}
	if err := u.store.SetFavorite(ctx, id, value); err != nil {
		u.audit.Log(ctx, audit.Event{
			Event:       audit.EventPersistFailed,
			CandidateID: id,
			Details:     map[string]interface{}{"operation": "set_favorite", "error": err.Error()},
		})
		return asStorageError(err)
	}

	u.audit.Log(ctx, audit.Event{
		Event:       audit.EventFavoriteChanged,
		CandidateID: id,
		Details:     map[string]interface{}{"value": value},
	})
	return nil
}

// ApplyFilter keeps candidates whose first name, last name or full name
// contains the query (case-insensitive) and orders them by last name,
// first name, then id.
func ApplyFilter(candidates []domain.Candidate, filter domain.CandidateFilter) []domain.Candidate {
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if filter.FavoritesOnly && !c.IsFavorite {
			continue
		}
		if query != "" && !matches(c, query) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if la, lb := strings.ToLower(a.LastName), strings.ToLower(b.LastName); la != lb {
			return la < lb
		}
		if fa, fb := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); fa != fb {
			return fa < fb
		}
		return a.ID < b.ID
	})
	return out
}

func matches(c domain.Candidate, query string) bool {
	return strings.Contains(strings.ToLower(c.FirstName), query) ||
		strings.Contains(strings.ToLower(c.LastName), query) ||
		strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName), query)
}

var exportColumns = []struct {
	header string
	width  float64
}{
	{"ID", 8},
	{"FIRST NAME", 20},
	{"LAST NAME", 20},
	{"PHONE NUMBER", 18},
	{"EMAIL", 30},
	{"BIRTH DATE", 14},
	{"AGE", 8},
	{"EXPECTED SALARY (EUR)", 22},
	{"FAVORITE", 10},
	{"NOTES", 40},
}

// ExportExcel renders the filtered list as an .xlsx workbook.
func (u *candidateUsecase) ExportExcel(ctx context.Context, filter domain.CandidateFilter) ([]byte, string, error) {
	candidates, err := u.List(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Candidates"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, "", fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col.header)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, col.width)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#1E3A5F"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	endCell, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
	f.SetCellStyle(sheetName, "A1", endCell, headerStyle)

	now := u.now()
	for rowIdx, c := range candidates {
		favorite := "NO"
		if c.IsFavorite {
			favorite = "YES"
		}
		age := ""
		if !c.BirthDate.IsZero() {
			age = fmt.Sprint(validation.Age(c.BirthDate, now))
		}

		values := []interface{}{
			c.ID,
			c.FirstName,
			c.LastName,
			c.PhoneNumber,
			c.Email,
			validation.FormatBirthDate(c.BirthDate),
			age,
			c.ExpectedSalary,
			favorite,
			c.Notes,
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to write Excel file: %w", err)
	}

	filename := fmt.Sprintf("candidates_%s.xlsx", now.Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}
