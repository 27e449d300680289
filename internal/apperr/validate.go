package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FromValidator converts the result of validator.Struct into a validation
// error naming every failed field. Other errors are returned unchanged.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	sort.Strings(fields)
	return Validation("invalid input: %s", strings.Join(fields, ", "))
}
