package validation

import (
	"errors"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// DateLayout is the layout of the {date} path segment.
const DateLayout = "2006-01-02"

// New returns a configured validator with the custom route_date rule registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// route_date accepts calendar dates only; time.Parse rejects 2024-02-30.
	_ = v.RegisterValidation("route_date", func(fl validatorv10.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})

	return v
}

// ValidateDate checks the date path segment.
func ValidateDate(v *validatorv10.Validate, date string) error {
	if err := v.Struct(RouteRequest{Date: date}); err != nil {
		return &ValidationError{Msg: "bad date", Fields: validationErrorsToMap(err)}
	}
	return nil
}

// ValidateRecord checks a record before it is written.
func ValidateRecord(v *validatorv10.Validate, in RecordInput) error {
	if err := v.Struct(in); err != nil {
		return &ValidationError{Msg: "invalid record", Fields: validationErrorsToMap(err)}
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Error() // simple message; can be improved
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
