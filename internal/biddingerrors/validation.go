package biddingerrors

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DescribeValidation lists the failed field and rule of each validator error
// in err, for use in ErrInvalidRequest messages. Other errors are returned
// as their text.
func DescribeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
