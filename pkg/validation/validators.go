package validation

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MinimumAge is the youngest age a candidate may have on the day of entry.
const MinimumAge = 18

// DisplayDateLayout is the dd/MM/yyyy layout used for free-text entry and display.
const DisplayDateLayout = "02/01/2006"

var (
	ErrInvalidDate = errors.New("birth date must be a valid date (dd/MM/yyyy)")
	ErrUnderage    = errors.New("candidate must be at least 18 years old")
)

// birthDateLayouts are accepted by ParseBirthDate, tried in order.
var birthDateLayouts = []string{
	DisplayDateLayout,
	"2/1/2006",
	"2006-01-02",
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("adult", Adult)
	_ = v.RegisterValidation("not_blank", NotBlank)
}

// New returns a validator with the custom rules registered.
func New() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// Adult validates that a time.Time field is a birth date at least MinimumAge years ago.
func Adult(fl validator.FieldLevel) bool {
	birth, ok := fl.Field().Interface().(time.Time)
	if !ok || birth.IsZero() {
		return false
	}
	return IsAdult(birth, time.Now())
}

// NotBlank rejects strings made only of whitespace.
func NotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Age returns the number of full years between birth and now.
func Age(birth, now time.Time) int {
	by, bm, bd := birth.Date()
	ny, nm, nd := now.Date()

	age := ny - by
	if nm < bm || (nm == bm && nd < bd) {
		age--
	}
	return age
}

// IsAdult is the single age rule shared by date selection, free-text entry and save.
func IsAdult(birth, now time.Time) bool {
	return Age(birth, now) >= MinimumAge
}

// ParseBirthDate parses free-text birth date input and applies the age rule.
// The returned date is normalised to midnight UTC.
func ParseBirthDate(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range birthDateLayouts {
		parsed, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		if !IsAdult(parsed, now) {
			return time.Time{}, ErrUnderage
		}
		return parsed, nil
	}
	return time.Time{}, ErrInvalidDate
}

// FormatBirthDate renders a birth date as dd/MM/yyyy, empty for the zero date.
func FormatBirthDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DisplayDateLayout)
}
