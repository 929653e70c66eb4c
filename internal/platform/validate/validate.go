// Package validate wires go-playground/validator into echo and holds the
// format checks shared by the domain services.
package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// curpPattern is the RENAPO layout: four letters, birth date, sex, state,
// three internal consonants, homoclave and check digit.
var curpPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{6}[HMX][A-Z]{5}[A-Z0-9][0-9]$`)

// CURP reports whether s is a well-formed CURP.
func CURP(s string) bool {
	return curpPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// Validator satisfies echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New builds the validator with the custom tags registered. It panics if a
// tag cannot be registered, which only happens on a programming error.
func New() *Validator {
	v := validator.New()
	// Report JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("curp", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) == "" || CURP(s)
	}); err != nil {
		panic(fmt.Sprintf("validate: register curp tag: %v", err))
	}
	return &Validator{v: v}
}

// Validate returns a 400 HTTP error listing every failing field.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, Format(verrs))
}

// Format renders validation errors as "field: reason" pairs.
func Format(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), reason(fe)))
	}
	return strings.Join(msgs, "; ")
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "curp":
		return "is not a valid CURP"
	case "email":
		return "is not a valid email address"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}
