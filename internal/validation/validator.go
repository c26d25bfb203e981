package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json names so field errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// whitespace-only names pass "required"
	v.RegisterStructValidation(customerStructValidation, Customer{})

	return v
}

func customerStructValidation(sl validatorv10.StructLevel) {
	c := sl.Current().Interface().(Customer)
	if c.Name != "" && strings.TrimSpace(c.Name) == "" {
		sl.ReportError(c.Name, "name", "Name", "not_blank", "")
	}
}
