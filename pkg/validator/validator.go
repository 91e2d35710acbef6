package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrRequired     = errors.New("is required")
	ErrTooShort     = errors.New("is too short")
	ErrTooLong      = errors.New("is too long")
	ErrTooSmall     = errors.New("is too small")
	ErrTooLarge     = errors.New("is too large")
	ErrBadFormat    = errors.New("has invalid format")
	ErrNotAllowed   = errors.New("is not an allowed value")
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidType  = errors.New("has invalid type")
)

type Validator interface {
	Validate(value interface{}) error
}

type StringFunc func(s string) error

type String struct {
	Optional   bool
	MinLen     uint32
	MaxLen     uint32
	Regex      *regexp.Regexp
	Enum       []string
	Validators []StringFunc
}

func (v *String) Validate(value interface{}) error {
	var s string
	switch t := value.(type) {
	case string:
		s = t
	case *string:
		if t == nil {
			if v.Optional {
				return nil
			}
			return ErrRequired
		}
		s = *t
	default:
		return ErrInvalidType
	}

	if s == "" && v.Optional {
		return nil
	}

	n := uint32(utf8.RuneCountInString(s))
	if v.MinLen > 0 && n < v.MinLen {
		return ErrTooShort
	}
	if v.MaxLen > 0 && n > v.MaxLen {
		return ErrTooLong
	}
	if v.Regex != nil && !v.Regex.MatchString(s) {
		return ErrBadFormat
	}
	if len(v.Enum) > 0 {
		var found bool
		for _, e := range v.Enum {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			return ErrNotAllowed
		}
	}
	for _, fn := range v.Validators {
		if err := fn(s); err != nil {
			return err
		}
	}

	return nil
}

type UInt64 struct {
	Optional bool
	Min      *uint64
	Max      *uint64
}

func (v *UInt64) Validate(value interface{}) error {
	var u uint64
	switch t := value.(type) {
	case uint64:
		u = t
	case *uint64:
		if t == nil {
			if v.Optional {
				return nil
			}
			return ErrRequired
		}
		u = *t
	default:
		return ErrInvalidType
	}

	if v.Min != nil && u < *v.Min {
		return ErrTooSmall
	}
	if v.Max != nil && u > *v.Max {
		return ErrTooLarge
	}

	return nil
}

type Bool struct {
	Optional bool
}

func (v *Bool) Validate(value interface{}) error {
	switch t := value.(type) {
	case bool:
		return nil
	case *bool:
		if t == nil && !v.Optional {
			return ErrRequired
		}
		return nil
	default:
		return ErrInvalidType
	}
}

type Slice struct {
	Optional  bool
	MinLen    int
	MaxLen    int
	Validator Validator
}

func (v *Slice) Validate(value interface{}) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() == reflect.Slice && rv.IsNil()) {
		if v.Optional {
			return nil
		}
		return ErrRequired
	}
	if rv.Kind() != reflect.Slice {
		return ErrInvalidType
	}

	if rv.Len() == 0 && v.Optional {
		return nil
	}
	if rv.Len() < v.MinLen {
		return ErrTooShort
	}
	if v.MaxLen > 0 && rv.Len() > v.MaxLen {
		return ErrTooLong
	}

	if v.Validator == nil {
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := v.Validator.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("[%d] %w", i, err)
		}
	}

	return nil
}

// Form validates the exported fields of a struct, keyed by their json (or
// schema) tag name. Embedded structs are keyed by their type name.
type Form struct {
	Optional bool
	fields   map[string]Validator
}

func MustForm(fields map[string]Validator) *Form {
	for name, v := range fields {
		if v == nil {
			panic(fmt.Sprintf("validator: nil validator for field %q", name))
		}
	}
	return &Form{
		fields: fields,
	}
}

// MustOptionalForm is MustForm for a nested struct that may be nil.
func MustOptionalForm(fields map[string]Validator) *Form {
	f := MustForm(fields)
	f.Optional = true
	return f
}

func (f *Form) Validate(value interface{}) error {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			if f.Optional {
				return nil
			}
			return ErrRequired
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return ErrInvalidType
	}

	values := make(map[string]reflect.Value, rv.NumField())
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		values[fieldName(sf)] = rv.Field(i)
	}

	for name, v := range f.fields {
		fv, ok := values[name]
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrUnknownField)
		}
		if err := v.Validate(fv.Interface()); err != nil {
			return fmt.Errorf("%s %w", name, err)
		}
	}

	return nil
}

func fieldName(sf reflect.StructField) string {
	if sf.Anonymous {
		return sf.Name
	}
	for _, key := range []string{"json", "schema"} {
		tag := sf.Tag.Get(key)
		if tag == "" || tag == "-" {
			continue
		}
		if name := strings.Split(tag, ",")[0]; name != "" {
			return name
		}
	}
	return sf.Name
}
