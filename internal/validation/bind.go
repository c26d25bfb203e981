package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// FieldsMessage is the user-facing message of every validation_failed response.
const FieldsMessage = "Please check the highlighted fields."

// BindAndValidate binds the JSON body into out and validates it. On failure it
// writes a 400 in the same shape the checkout handlers use for service-side
// validation errors and returns the error so the handler can short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			writeFields(c, map[string]string{typeErr.Field: "has the wrong type"})
			return err
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request_body",
			"message": "The request body must be valid JSON.",
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		writeFields(c, FieldErrors(err))
		return err
	}
	return nil
}

func writeFields(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"fields":  fields,
		"message": FieldsMessage,
	})
}

// FieldErrors maps validator errors to json path -> reason, e.g.
// "customer.email" -> "must be a valid email address".
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["body"] = "invalid"
		return out
	}
	for _, fe := range ve {
		out[fieldPath(fe.Namespace())] = reason(fe)
	}
	return out
}

// fieldPath drops the root struct name from a namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "gt":
		return "must be greater than " + fe.Param()
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "alpha":
		return "must contain letters only"
	case "not_blank":
		return "must not be blank"
	default:
		return "invalid"
	}
}
