package registration

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

const minimumAge = 18

var (
	phonePattern = regexp.MustCompile(`^\d{10}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// messages are the operator-facing errors, keyed by form field.
var messages = map[string]string{
	"username": "Username is required",
	"age":      "Age must be 18 or above",
	"phone":    "Enter valid 10-digit phone number",
	"address":  "Address is required",
	"email":    "Enter valid email",
	"gender":   "Select gender",
	"image":    "Please take a picture",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("schema"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("adult", func(fl validator.FieldLevel) bool {
		age, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
		return err == nil && age >= minimumAge
	})
	v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

// Err folds every field error into one error, ordered by field name.
func (fe FieldErrors) Err() error {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var err error
	for _, field := range fields {
		err = multierr.Append(err, fmt.Errorf("%s: %s", field, fe[field]))
	}
	return err
}

// ValidationError is returned by Submit when the form is not acceptable.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return "registration form is invalid: " + e.Fields.Err().Error()
}

// Validate checks every field and reports all violations together. It has no
// side effects.
func Validate(form models.RegisterForm, image *camera.ImageBlob) FieldErrors {
	errs := FieldErrors{}

	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			// Only reachable on a programming error in the struct tags.
			panic(err)
		}
		for _, fe := range verrs {
			errs[fe.Field()] = messages[fe.Field()]
		}
	}

	if image == nil || image.Empty() {
		errs["image"] = messages["image"]
	}
	return errs
}
