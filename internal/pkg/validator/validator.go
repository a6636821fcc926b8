package validator

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("nickname", validNickname)
	_ = validate.RegisterValidation("deviceid", validDeviceID)
}

// Validate struct fields. Returns nil when v is valid, otherwise field -> failed tag.
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// Nicknames are 1-32 printable characters after trimming.
func validNickname(fl validator.FieldLevel) bool {
	v := strings.TrimSpace(fl.Field().String())
	n := len([]rune(v))
	if n == 0 || n > 32 {
		return false
	}
	for _, r := range v {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Device ids are opaque client identifiers: up to 128 printable ASCII characters, no spaces.
func validDeviceID(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" || len(v) > 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] <= ' ' || v[i] > '~' {
			return false
		}
	}
	return true
}
