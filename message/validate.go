package message

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator() //nolint: gochecknoglobals // validator caches struct metadata and is safe for concurrent use

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonTagName)
	return v
}

// jsonTagName reports fields by their wire name.
func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	descs := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		descs = append(descs, describeField(fieldErr))
	}
	return errors.New(strings.Join(descs, "; "))
}

func describeField(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("missing field `%s`", fieldErr.Field())
	case "oneof":
		return fmt.Sprintf("`%s` must be one of: %s", fieldErr.Field(), strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	}
	return fmt.Sprintf("`%s` failed validation: %s", fieldErr.Field(), fieldErr.Tag())
}
