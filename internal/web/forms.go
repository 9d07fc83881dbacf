package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// loginForm is what the client posts after a provider login. Field names
// follow the provider's profile payload.
type loginForm struct {
	ID          string `form:"id" json:"id" validate:"required,max=64"`
	FirstName   string `form:"first_name" json:"first_name" validate:"max=150"`
	LastName    string `form:"last_name" json:"last_name" validate:"max=150"`
	Email       string `form:"email" json:"email" validate:"omitempty,email,max=254"`
	Picture     string `form:"picture[data][url]" json:"picture" validate:"omitempty,url,max=2048"`
	AccessToken string `form:"access_token" json:"access_token" validate:"max=4096"`
	Provider    string `form:"provider" json:"provider" validate:"omitempty,alphanum,max=32"`
}

type uploadForm struct {
	Title string `form:"title" validate:"max=255"`
}

// formError turns the first validation failure into a message for the user.
func formError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid form"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is not a valid %s", fe.Field(), fe.Tag())
	}
}
