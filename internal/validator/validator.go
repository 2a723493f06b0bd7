// Package validator wraps go-playground/validator with the tag names and money types used by
// splitbill requests.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidJSON is returned by Decode when the body is not valid JSON for the target type.
var ErrInvalidJSON = errors.New("invalid JSON")

// Limits on decimal inputs. Anything outside them fails the "decimal" tag before any
// arithmetic or formatting touches the value.
const (
	MaxIntegerDigits = 12
	MaxScale         = 8
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

		// ignore unexported or explicitly ignored
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Decimals are compared as numbers by gt/gte/lte. Values beyond the digit limits
	// become NaN, which only the "decimal" tag reports.
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		d, ok := v.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		if !withinLimits(d) {
			return math.NaN()
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	if err := validate.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Float64 {
			return true
		}
		v := f.Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	}); err != nil {
		panic(err)
	}
}

// withinLimits reports whether d has at most MaxIntegerDigits digits before the point and
// MaxScale after it. The coefficient size is checked first so huge inputs are never
// rendered.
func withinLimits(d decimal.Decimal) bool {
	if d.Coefficient().BitLen() > 96 {
		return false
	}
	exp := int64(d.Exponent())
	if -exp > MaxScale {
		return false
	}
	return int64(d.NumDigits())+exp <= MaxIntegerDigits
}

// Validate runs struct-level validation using go-playground/validator tags.
func Validate(s any) error {
	return validate.Struct(s)
}

// FormatValidationErrors converts validator.ValidationErrors into a map of
// field path → human-readable message. Paths drop the root type name, e.g.
// "items[0].quantity".
func FormatValidationErrors(err error) map[string]string {
	errs := make(map[string]string)
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errs
	}
	for _, e := range ve {
		errs[fieldPath(e)] = formatFieldError(e)
	}
	return errs
}

func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("Must contain at least %s entries", e.Param())
		}
		return fmt.Sprintf("Minimum length is %s", e.Param())
	case "max":
		return fmt.Sprintf("Maximum length is %s", e.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", strings.ReplaceAll(e.Param(), " ", ", "))
	case "decimal":
		return fmt.Sprintf("Must have at most %d digits before and %d after the decimal point", MaxIntegerDigits, MaxScale)
	case "hexcolor":
		return "Must be a hex color such as #F97316"
	case "url":
		return "Must be a valid URL"
	default:
		return fmt.Sprintf("Validation failed on '%s'", e.Tag())
	}
}

// Decode reads a JSON document from r into T and validates it.
// Malformed input returns an error wrapping ErrInvalidJSON; failed validation returns
// validator.ValidationErrors, which FormatValidationErrors understands.
func Decode[T any](r io.Reader) (*T, error) {
	var req T
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
