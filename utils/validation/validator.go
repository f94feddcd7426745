package validation

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sahilchouksey/study-artifacts/model"
)

var sourceHandleRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-/]+$`)

// fixed messages for the session tags
var tagMessages = map[string]string{
	"processing_mode": "must be one of: ai_only, hybrid, extraction_only",
	"document_kind":   "must be one of: pdf, slides, image",
	"source_handle":   "is not a valid storage key",
}

// Validator checks session requests. Errors are keyed by JSON path, for
// example "documents[1].kind".
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)

	_ = v.RegisterValidation("processing_mode", func(fl validator.FieldLevel) bool {
		return model.ProcessingMode(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("document_kind", func(fl validator.FieldLevel) bool {
		switch model.DocumentKind(fl.Field().String()) {
		case model.DocumentKindPDF, model.DocumentKindSlides, model.DocumentKindImage:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("source_handle", func(fl validator.FieldLevel) bool {
		return ValidSourceHandle(fl.Field().String())
	})
	return &Validator{validate: v}
}

func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// FormatValidationErrors maps each failing field to a readable message
func FormatValidationErrors(err error) map[string]string {
	out := make(map[string]string)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return out
	}
	for _, e := range fieldErrs {
		key := e.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		out[key] = e.Field() + " " + describe(e)
	}
	return out
}

func describe(e validator.FieldError) string {
	if msg, ok := tagMessages[e.Tag()]; ok {
		return msg
	}
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s items", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must have at most %s items", e.Param())
	}
	return "is invalid"
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// ValidSourceHandle accepts relative, already-clean storage keys only
func ValidSourceHandle(handle string) bool {
	if handle == "" || len(handle) > 1024 || !sourceHandleRegex.MatchString(handle) {
		return false
	}
	if strings.HasPrefix(handle, "/") {
		return false
	}
	clean := path.Clean(handle)
	return clean == handle && clean != ".." && !strings.HasPrefix(clean, "../")
}

// SanitizeString drops NUL bytes and surrounding whitespace from user text
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
