package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

const (
	date     = "date"
	dueDate  = "duedate"
	mx       = "max"
	mn       = "min"
	notBlank = "notblank"
	oneof    = "oneof"
	required = "required"
	urlTag   = "url"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	// FIXME: this doesn't work well for nested objects, e.g. it will say
	// `"input" should be of type lifecycle.ReadingInput` if you pass in
	// `{"input":"x"}`.
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case date:
		return fmt.Sprintf("%q should be in the format of YYYY-MM-DD", field)
	case dueDate:
		return fmt.Sprintf("%q should be a date (YYYY-MM-DD) or an RFC 3339 timestamp", field)
	case mx:
		return formatBound(err, "less than or equal to")
	case mn:
		return formatBound(err, "greater than or equal to")
	case notBlank:
		return fmt.Sprintf("%q can't be blank", field)
	case oneof:
		valids := []string{}
		for _, p := range strings.Fields(err.Param()) {
			valids = append(valids, fmt.Sprintf("%q", p))
		}
		return fmt.Sprintf("%q must be one of the following: %s", field, strings.Join(valids, ", "))
	case required:
		return fmt.Sprintf("%q is required", field)
	case urlTag:
		return fmt.Sprintf("%q is not a valid URL", field)
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}

// formatBound describes a failed min or max. Numbers are compared by value,
// strings and slices by length.
func formatBound(err validator.FieldError, cmp string) string {
	field := err.Field()

	//exhaustive:ignore
	switch err.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%q must be %s %s", field, cmp, err.Param())
	case reflect.Slice:
		resource := "element"
		if err.Param() != "1" {
			resource += "s"
		}
		return fmt.Sprintf("%q length must be %s %s %s", field, cmp, err.Param(), resource)
	default:
		resource := "character"
		if err.Param() != "1" {
			resource += "s"
		}
		return fmt.Sprintf("%q length must be %s %s %s", field, cmp, err.Param(), resource)
	}
}
