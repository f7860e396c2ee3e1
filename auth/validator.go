package auth

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"client-portal/errors"
)

var validate = validator.New()

type RegisterRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=12,max=72"`
	Name     string `validate:"required,max=120"`
}

type MessageRequest struct {
	RecipientID string `validate:"required"`
	Content     string `validate:"required"`
}

type NotificationRequest struct {
	UserID string `validate:"required"`
	Type   string `validate:"required,oneof=message deliverable project broadcast system"`
	Title  string `validate:"required,max=200"`
}

type URLDeliverableRequest struct {
	ProjectID string `validate:"required,uuid"`
	Name      string `validate:"required,max=200"`
	URL       string `validate:"required,http_url"`
}

type FileDeliverableRequest struct {
	ProjectID string `validate:"required,uuid"`
	Name      string `validate:"required,max=200"`
	Size      int    `validate:"gt=0"`
}

type AlertRequest struct {
	Level   string `validate:"required,oneof=info warning critical"`
	Title   string `validate:"required,max=200"`
	Message string `validate:"required"`
}

type ProjectRequest struct {
	ClientID string `validate:"required"`
	Name     string `validate:"required,max=200"`
}

type FolderRequest struct {
	ProjectID string `validate:"required,uuid"`
	Name      string `validate:"required,max=200"`
}

type SettingRequest struct {
	Key string `validate:"required,max=100"`
}

// Validate checks the struct tags of req and turns the first failure into
// a field-level ValidationError.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if stderrors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return errors.NewValidationError(snakeCase(fe.Field()), describe(fe))
	}
	return errors.NewValidationError("request", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "http_url":
		return "must be a valid http(s) URL"
	case "uuid":
		return "must be a UUID"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

func snakeCase(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(field[i-1])) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ValidateRegister(req RegisterRequest) error {
	if err := Validate(req); err != nil {
		return err
	}
	if !isPasswordComplex(req.Password) {
		return fmt.Errorf("%w: %w", errors.ErrValidation, errors.ErrInvalidPassword)
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
