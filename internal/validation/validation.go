package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/climate-api/internal/models"
)

var validate = validator.New()

// ErrDateEmpty is returned when a date path segment is empty or whitespace-only.
var ErrDateEmpty = errors.New("date is required")

// ErrDateMalformed is returned when a date is not a real calendar day in YYYY-MM-DD form.
var ErrDateMalformed = errors.New("date must be a calendar date in YYYY-MM-DD format")

// ValidateDate trims input and checks it parses with models.DateLayout. Strings like
// "2017", "2017-8-1" or "2017-02-30" are rejected: the store compares dates as text,
// so a partial date would silently select the wrong rows.
func ValidateDate(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrDateEmpty
	}
	if len(s) != len(models.DateLayout) {
		return "", ErrDateMalformed
	}
	if err := validate.Var(s, "datetime="+models.DateLayout); err != nil {
		return "", ErrDateMalformed
	}
	return s, nil
}
