// Package validator wraps go-playground/validator with the request tags used
// across the API and converts failures into per-field messages.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
)

var (
	bloodTypePattern = regexp.MustCompile(`(?i)^(A|B|AB|O)[+-]$`)
	phonePattern     = regexp.MustCompile(`^\+?[0-9\s\-]{7,20}$`)
)

// IsBloodType reports whether s is one of the eight ABO/Rh groups, in any case.
func IsBloodType(s string) bool {
	return bloodTypePattern.MatchString(strings.TrimSpace(s))
}

// NormalizeBloodType returns the canonical upper-case form, e.g. "o+" -> "O+".
func NormalizeBloodType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func IsPhone(s string) bool {
	return phonePattern.MatchString(strings.TrimSpace(s))
}

var defaultMessages = map[string]string{
	"required":  "is required",
	"email":     "must be a valid email address",
	"bloodtype": "must be a valid blood type (A, B, AB or O followed by + or -)",
	"phone":     "must be a valid phone number",
	"oneof":     "has an unsupported value",
}

// Validator validates request structs by their `validate` tags.
type Validator struct {
	validate *validator.Validate
	// messages overrides the default text for "<field>.<tag>" keys.
	messages map[string]string
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	must(v.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		return IsBloodType(fl.Field().String())
	}))
	must(v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	}))

	return &Validator{
		validate: v,
		messages: map[string]string{
			"weightKg.gte": "Minimum weight to donate is 50 kg.",
			"quantity.min": "Quantity must be at least 1 unit.",
			"password.min": "Password must be at least 8 characters.",
		},
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Engine exposes the underlying validator so the HTTP layer can share tags.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Fields validates s and returns one message per failing field, or nil.
func (v *Validator) Fields(s interface{}) (map[string]string, error) {
	err := v.validate.Struct(s)
	if err == nil {
		return nil, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("failed to validate request: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fieldPath(fe)
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = v.message(name, fe)
	}
	return fields, nil
}

// Validate is Fields rendered as an AppError.
func (v *Validator) Validate(s interface{}) error {
	fields, err := v.Fields(s)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if len(fields) > 0 {
		return apperrors.NewValidation(fields)
	}
	return nil
}

// fieldPath drops the root struct name: "SignUpRequest.profile.phone" -> "profile.phone".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func (v *Validator) message(path string, fe validator.FieldError) string {
	if msg, ok := v.messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := defaultMessages[fe.Tag()]; ok {
		return fmt.Sprintf("%s %s", path, msg)
	}
	switch fe.Tag() {
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", path)
}
