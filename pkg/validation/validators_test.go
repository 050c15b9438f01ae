package validation_test

import (
	"testing"
	"time"

	"go-candidate-tracker/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestAgeCountsFullYears(t *testing.T) {
	birth := time.Date(2008, 10, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 17, validation.Age(birth, now))
	assert.False(t, validation.IsAdult(birth, now))

	birth = time.Date(2008, 10, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 18, validation.Age(birth, now))
	assert.True(t, validation.IsAdult(birth, now))
}

func TestParseBirthDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr error
	}{
		{"display layout", "15/01/1990", time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC), nil},
		{"short day and month", "5/1/1990", time.Date(1990, 1, 5, 0, 0, 0, 0, time.UTC), nil},
		{"iso layout", "1990-01-15", time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC), nil},
		{"surrounding spaces", "  15/01/1990 ", time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC), nil},
		{"blank", "  ", time.Time{}, validation.ErrInvalidDate},
		{"garbage", "yesterday", time.Time{}, validation.ErrInvalidDate},
		{"impossible date", "31/02/1990", time.Time{}, validation.ErrInvalidDate},
		{"underage", "01/01/2015", time.Time{}, validation.ErrUnderage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validation.ParseBirthDate(tt.input, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestValidatorRules(t *testing.T) {
	v := validation.New()

	type form struct {
		Name      string    `validate:"not_blank"`
		Email     string    `validate:"required,email"`
		BirthDate time.Time `validate:"adult"`
	}

	err := v.Struct(form{Name: " ", Email: "nope", BirthDate: time.Now().AddDate(-10, 0, 0)})
	require.Error(t, err)
	assert.Equal(t, []string{"Name", "Email", "BirthDate"}, validation.FailedFields(err))

	err = v.Struct(form{Name: "Ada", Email: "ada@example.com", BirthDate: time.Now().AddDate(-30, 0, 0)})
	assert.NoError(t, err)
}

func TestFormatBirthDate(t *testing.T) {
	assert.Equal(t, "", validation.FormatBirthDate(time.Time{}))
	assert.Equal(t, "15/01/1990", validation.FormatBirthDate(time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC)))
}
