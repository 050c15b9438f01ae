package usecase

import (
	"strconv"
	"strings"
	"time"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/pkg/validation"
)

// Field names a required draft field that can be flagged invalid.
type Field string

const (
	FieldFirstName   Field = "FirstName"
	FieldLastName    Field = "LastName"
	FieldPhoneNumber Field = "PhoneNumber"
	FieldEmail       Field = "Email"
	FieldBirthDate   Field = "BirthDate"
)

var fieldKeys = map[Field]string{
	FieldFirstName:   "first_name",
	FieldLastName:    "last_name",
	FieldPhoneNumber: "phone_number",
	FieldEmail:       "email",
	FieldBirthDate:   "birth_date",
}

// Key is the field's JSON name.
func (f Field) Key() string {
	if k, ok := fieldKeys[f]; ok {
		return k
	}
	return string(f)
}

type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
)

// FieldErrors holds one flag per required field.
type FieldErrors struct {
	FirstName   bool `json:"first_name"`
	LastName    bool `json:"last_name"`
	PhoneNumber bool `json:"phone_number"`
	Email       bool `json:"email"`
	BirthDate   bool `json:"birth_date"`
}

// Any reports whether at least one field is flagged.
func (e FieldErrors) Any() bool {
	return e.FirstName || e.LastName || e.PhoneNumber || e.Email || e.BirthDate
}

func (e *FieldErrors) set(f Field, v bool) {
	switch f {
	case FieldFirstName:
		e.FirstName = v
	case FieldLastName:
		e.LastName = v
	case FieldPhoneNumber:
		e.PhoneNumber = v
	case FieldEmail:
		e.Email = v
	case FieldBirthDate:
		e.BirthDate = v
	}
}

// Draft is the in-memory working copy of a candidate during add or edit.
// ExpectedSalary stays raw text until save.
type Draft struct {
	ID             int64       `json:"id"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	PhoneNumber    string      `json:"phone_number"`
	Email          string      `json:"email"`
	BirthDate      *time.Time  `json:"birth_date"`
	BirthDateText  string      `json:"birth_date_text"`
	BirthDateIssue string      `json:"birth_date_issue,omitempty"`
	ExpectedSalary string      `json:"expected_salary"`
	Notes          string      `json:"notes"`
	IsFavorite     bool        `json:"is_favorite"`
	PhotoURI       *string     `json:"photo_uri"`
	Errors         FieldErrors `json:"errors"`
	SaveFailed     bool        `json:"save_failed"`
}

// DraftFromCandidate populates a draft with a stored candidate's values.
func DraftFromCandidate(c domain.Candidate) Draft {
	d := Draft{
		ID:             c.ID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		PhoneNumber:    c.PhoneNumber,
		Email:          c.Email,
		ExpectedSalary: strconv.Itoa(c.ExpectedSalary),
		Notes:          c.Notes,
		IsFavorite:     c.IsFavorite,
		PhotoURI:       copyURI(c.PhotoURI),
	}
	if !c.BirthDate.IsZero() {
		birth := c.BirthDate
		d.BirthDate = &birth
		d.BirthDateText = validation.FormatBirthDate(birth)
	}
	return d
}

// Candidate builds the record persisted on save. Unparsable salary text becomes 0.
func (d Draft) Candidate() domain.Candidate {
	c := domain.Candidate{
		ID:             d.ID,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		PhoneNumber:    d.PhoneNumber,
		Email:          d.Email,
		ExpectedSalary: ParseSalary(d.ExpectedSalary),
		Notes:          d.Notes,
		IsFavorite:     d.IsFavorite,
		PhotoURI:       copyURI(d.PhotoURI),
	}
	if d.BirthDate != nil {
		c.BirthDate = *d.BirthDate
	}
	return c
}

// ParseSalary reads an integer amount, defaulting to 0. Amounts outside the
// 32-bit range of the stored column also read as 0.
func ParseSalary(text string) int {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return 0
	}
	return int(n)
}

// Event is a typed editor transition.
type Event interface {
	isEvent()
}

type (
	SetFirstName      struct{ Value string }
	SetLastName       struct{ Value string }
	SetPhoneNumber    struct{ Value string }
	SetEmail          struct{ Value string }
	SetNotes          struct{ Value string }
	SetExpectedSalary struct{ Value string }
	// SetBirthDate carries a date already checked by the caller.
	SetBirthDate struct{ Value time.Time }
	// SetBirthDateText parses free text with the shared birth date rule.
	SetBirthDateText struct{ Value string }
	SetPhotoURI      struct{ URI *string }
	SetFavorite      struct{ Value bool }
	Save             struct{}
	Delete           struct{}
)

func (SetFirstName) isEvent()      {}
func (SetLastName) isEvent()       {}
func (SetPhoneNumber) isEvent()    {}
func (SetEmail) isEvent()          {}
func (SetNotes) isEvent()          {}
func (SetExpectedSalary) isEvent() {}
func (SetBirthDate) isEvent()      {}
func (SetBirthDateText) isEvent()  {}
func (SetPhotoURI) isEvent()       {}
func (SetFavorite) isEvent()       {}
func (Save) isEvent()              {}
func (Delete) isEvent()            {}

// reduce applies a field event to d. Events with side effects (SetFavorite,
// Save, Delete) are handled by Editor and leave d unchanged here.
func reduce(d Draft, ev Event, now time.Time) Draft {
	switch ev := ev.(type) {
	case SetFirstName:
		d.FirstName = ev.Value
		clearIfFilled(&d.Errors, FieldFirstName, ev.Value)
	case SetLastName:
		d.LastName = ev.Value
		clearIfFilled(&d.Errors, FieldLastName, ev.Value)
	case SetPhoneNumber:
		d.PhoneNumber = ev.Value
		clearIfFilled(&d.Errors, FieldPhoneNumber, ev.Value)
	case SetEmail:
		d.Email = ev.Value
		clearIfFilled(&d.Errors, FieldEmail, ev.Value)
	case SetNotes:
		d.Notes = ev.Value
	case SetExpectedSalary:
		d.ExpectedSalary = ev.Value
	case SetBirthDate:
		birth := ev.Value
		d.BirthDate = &birth
		d.BirthDateText = validation.FormatBirthDate(birth)
		d.BirthDateIssue = ""
		d.Errors.BirthDate = false
	case SetBirthDateText:
		d.BirthDateText = ev.Value
		parsed, err := validation.ParseBirthDate(ev.Value, now)
		if err != nil {
			d.BirthDate = nil
			d.BirthDateIssue = ""
			if strings.TrimSpace(ev.Value) != "" {
				d.BirthDateIssue = err.Error()
				d.Errors.BirthDate = true
			}
			break
		}
		d.BirthDate = &parsed
		d.BirthDateIssue = ""
		d.Errors.BirthDate = false
	case SetPhotoURI:
		d.PhotoURI = copyURI(ev.URI)
	}
	return d
}

func clearIfFilled(e *FieldErrors, f Field, value string) {
	if strings.TrimSpace(value) != "" {
		e.set(f, false)
	}
}

func copyURI(uri *string) *string {
	if uri == nil {
		return nil
	}
	v := *uri
	return &v
}
