package apiclient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"taskflow/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// A zero date validates like an empty value so "required" applies to it.
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		d, ok := v.Interface().(models.Date)
		if !ok || d.IsZero() {
			return nil
		}
		return d.String()
	}, models.Date{})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

var fieldMessages = map[string]string{
	"required": "%s is required.",
	"notblank": "%s is required.",
	"email":    "%s must be a valid email address.",
	"min":      "%s must be at least %s characters.",
	"max":      "%s cannot exceed %s characters.",
	"oneof":    "%s must be one of %s.",
	"eqfield":  "%s does not match.",
}

// check validates s and turns failures into a ValidationError with one
// message per offending JSON field.
func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	var first string
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s is invalid.", fe.Field())
		if tmpl, ok := fieldMessages[fe.Tag()]; ok {
			if strings.Count(tmpl, "%s") == 2 {
				msg = fmt.Sprintf(tmpl, fe.Field(), strings.ReplaceAll(fe.Param(), " ", "|"))
			} else {
				msg = fmt.Sprintf(tmpl, fe.Field())
			}
		}
		fields[fe.Field()] = msg
		if first == "" {
			first = msg
		}
	}
	return &ValidationError{Message: first, Fields: fields}
}
