package isa

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"supersim/internal/errors"
)

// isaValidate is shared by every configuration type in this package.
// Initialized in init() with the custom rules below.
var isaValidate *validator.Validate

func init() {
	isaValidate = validator.New()

	// Report fields by their wire names.
	isaValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = isaValidate.RegisterValidation("datatype", validateDataType)
	_ = isaValidate.RegisterValidation("nonblank", validateNonBlank)
}

func validateDataType(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	for _, dt := range DataTypes {
		if v == dt {
			return true
		}
	}
	return false
}

func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// FieldError describes one rejected field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
	Value string `json:"value,omitempty"`
}

func (f FieldError) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s fails %s=%s", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s fails %s", f.Field, f.Rule)
}

// Validate checks the configuration bounds.
func (c *CpuConfig) Validate() error {
	return check(c)
}

// Validate checks the memory location.
func (m *MemoryLocation) Validate() error {
	return check(m)
}

// Validate checks the CPU configuration and every memory location.
func (s *SimulationConfig) Validate() error {
	return check(s)
}

func check(v interface{}) error {
	err := isaValidate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.New(errors.InvalidConfig, "cannot validate configuration", err)
	}

	fields := make([]FieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		f := FieldError{
			Field: trimRoot(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
			Value: fmt.Sprint(fe.Value()),
		}
		fields = append(fields, f)
		msgs = append(msgs, f.String())
	}
	return errors.New(errors.InvalidConfig, strings.Join(msgs, "; "), nil).WithDetails(fields)
}

// trimRoot drops the Go type name validator puts in front of the namespace.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// FieldErrors extracts the rejected fields from a Validate error.
func FieldErrors(err error) []FieldError {
	var e *errors.Error
	if !errors.As(err, &e) {
		return nil
	}
	fields, _ := e.Details.([]FieldError)
	return fields
}
