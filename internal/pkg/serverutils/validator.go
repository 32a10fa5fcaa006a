package serverutils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"fingerprint-be/internal/apperr"
)

var validate = validator.New()

// ValidateRequest checks struct tags on a request body and reports the
// offending fields as one invalid-input error.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
		}
	}
	if len(fields) == 0 {
		return apperr.New(apperr.KindInvalidInput, "invalid request body")
	}
	return apperr.New(apperr.KindInvalidInput, "invalid request fields: "+strings.Join(fields, ", "))
}
