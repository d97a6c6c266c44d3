package http

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

// Validator adapts go-playground/validator to echo.Validator. Failures are
// returned as validation AppErrors with one detail per offending field.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator that reports fields by their json names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errorbank.Validation("invalid request", errorbank.WithCause(err))
	}
	opts := make([]errorbank.Option, 0, len(ve))
	for _, fe := range ve {
		opts = append(opts, errorbank.WithDetail(fieldPath(fe.Namespace()), fe.Tag()))
	}
	return errorbank.Validation("invalid request", opts...)
}

// fieldPath drops the root struct name: CreateOrderRequest.items[0].quantity -> items[0].quantity.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
