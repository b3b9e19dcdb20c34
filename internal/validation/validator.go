// Package validation provides struct validation using go-playground/validator
// v10 and translates failures into the location/message/type triples
// returned in 422 bodies.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/cathouse/taskmanager/internal/model"
)

// KeyNamePattern constrains service key names.
var KeyNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the singleton validator instance. Field names in
// errors are taken from json tags.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		// Registration only fails for an empty tag or nil func.
		_ = validate.RegisterValidation("keyname", func(fl validator.FieldLevel) bool {
			return KeyNamePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct validates s and returns one FieldError per failing field,
// each located under prefix. It returns nil when s is valid.
func ValidateStruct(s interface{}, prefix ...string) []model.FieldError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []model.FieldError{{Loc: loc(prefix), Msg: err.Error(), Type: "value_error"}}
	}

	out := make([]model.FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msg, typ := translate(fe)
		out = append(out, model.FieldError{
			Loc:  loc(prefix, fe.Field()),
			Msg:  msg,
			Type: typ,
		})
	}
	return out
}

// DecodeJSON unmarshals body into v. Malformed JSON and type mismatches are
// reported as FieldErrors located under prefix.
func DecodeJSON(body []byte, v interface{}, prefix ...string) []model.FieldError {
	if len(strings.TrimSpace(string(body))) == 0 {
		return []model.FieldError{{Loc: loc(prefix), Msg: "Field required", Type: "missing"}}
	}
	err := json.Unmarshal(body, v)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := jsonPath(reflect.TypeOf(v), typeErr.Field)
		if model.IsTimestampType(typeErr.Type) {
			return []model.FieldError{{
				Loc:  loc(prefix, path...),
				Msg:  "Input should be a valid datetime",
				Type: "datetime_parsing",
			}}
		}
		return []model.FieldError{{
			Loc:  loc(prefix, path...),
			Msg:  fmt.Sprintf("Input should be a valid %s", typeName(typeErr.Type)),
			Type: typeName(typeErr.Type) + "_type",
		}}
	}
	return []model.FieldError{{Loc: loc(prefix), Msg: "JSON decode error", Type: "json_invalid"}}
}

// Summary joins field errors into a single line, for callers that can only
// report a string.
func Summary(errs []model.FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		path := e.Loc
		if len(path) > 0 && path[0] == "body" {
			path = path[1:]
		}
		if len(path) == 0 {
			parts = append(parts, e.Msg)
			continue
		}
		parts = append(parts, strings.Join(path, ".")+": "+e.Msg)
	}
	return strings.Join(parts, "; ")
}

func translate(fe validator.FieldError) (msg, typ string) {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "Field required", "missing"
	case "min":
		if isString {
			return fmt.Sprintf("String should have at least %s characters", fe.Param()), "string_too_short"
		}
		return fmt.Sprintf("Input should be greater than or equal to %s", fe.Param()), "greater_than_equal"
	case "max":
		if isString {
			return fmt.Sprintf("String should have at most %s characters", fe.Param()), "string_too_long"
		}
		return fmt.Sprintf("Input should be less than or equal to %s", fe.Param()), "less_than_equal"
	case "oneof":
		opts := strings.Fields(fe.Param())
		for i, o := range opts {
			opts[i] = "'" + o + "'"
		}
		return "Input should be " + joinOr(opts), "literal_error"
	case "keyname":
		return fmt.Sprintf("String should match pattern '%s'", KeyNamePattern.String()), "string_pattern_mismatch"
	default:
		return fmt.Sprintf("Field failed %s validation", fe.Tag()), "value_error"
	}
}

func joinOr(opts []string) string {
	switch len(opts) {
	case 0:
		return ""
	case 1:
		return opts[0]
	default:
		return strings.Join(opts[:len(opts)-1], ", ") + " or " + opts[len(opts)-1]
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Map, reflect.Struct:
		return "dict"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Ptr:
		return typeName(t.Elem())
	default:
		return "value"
	}
}

// jsonPath maps a decoder's Go field path onto json tag names of typ.
// Segments that cannot be resolved are kept as they are.
func jsonPath(typ reflect.Type, field string) []string {
	if field == "" {
		return nil
	}
	segments := strings.Split(field, ".")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		for typ != nil && typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		if typ == nil || typ.Kind() != reflect.Struct {
			out = append(out, seg)
			typ = nil
			continue
		}
		sf, ok := typ.FieldByName(seg)
		if !ok {
			out = append(out, seg)
			typ = nil
			continue
		}
		name := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = sf.Name
		}
		out = append(out, name)
		typ = sf.Type
	}
	return out
}

func loc(prefix []string, rest ...string) []string {
	out := make([]string, 0, len(prefix)+len(rest))
	out = append(out, prefix...)
	return append(out, rest...)
}
