package domain

import (
	"context"
	"errors"
	"time"
)

// Candidate is a persisted contact record. ID 0 means the record has not
// been stored yet; the store assigns ids on first insert.
type Candidate struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	PhoneNumber    string    `json:"phone_number"`
	Email          string    `json:"email"`
	BirthDate      time.Time `json:"birth_date"`
	ExpectedSalary int       `json:"expected_salary"` // EUR
	Notes          string    `json:"notes"`
	IsFavorite     bool      `json:"is_favorite"`
	PhotoURI       *string   `json:"photo_uri,omitempty"`
}

// IsNew reports whether the candidate still carries the "new" sentinel id.
func (c Candidate) IsNew() bool {
	return c.ID == 0
}

// FullName joins first and last name for display and search.
func (c Candidate) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

var (
	ErrNotFound      = errors.New("candidate not found")
	ErrStorage       = errors.New("storage error")
	ErrAssetIO       = errors.New("photo asset io error")
	ErrEditModeOnly  = errors.New("operation is only available in edit mode")
	ErrDraftNotFound = errors.New("draft session not found")
)

// CandidateStore is the narrow persistence contract behind the editor and
// the list/detail views. Streams close when ctx is cancelled.
type CandidateStore interface {
	Upsert(ctx context.Context, c Candidate) (Candidate, error)
	GetByID(ctx context.Context, id int64) (*Candidate, error)
	StreamAll(ctx context.Context) (<-chan []Candidate, error)
	StreamFavorites(ctx context.Context) (<-chan []Candidate, error)
	SetFavorite(ctx context.Context, id int64, value bool) error
	Delete(ctx context.Context, c Candidate) error
}

// PhotoAssets owns the lifecycle of locally stored candidate photos.
type PhotoAssets interface {
	DeleteIfLocal(ctx context.Context, uri string)
}

// RateFetcher returns the current EUR to GBP rate, ok=false when unavailable.
type RateFetcher interface {
	FetchEURToGBP(ctx context.Context) (float64, bool)
}

type CandidateFilter struct {
	Query         string
	FavoritesOnly bool
}

type CandidateUsecase interface {
	List(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
	Watch(ctx context.Context, filter CandidateFilter) (<-chan []Candidate, error)
	Get(ctx context.Context, id int64) (*Candidate, error)
	SetFavorite(ctx context.Context, id int64, value bool) error
	ExportExcel(ctx context.Context, filter CandidateFilter) ([]byte, string, error)
}
