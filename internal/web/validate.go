package web

import (
	"errors"
	"reflect"
	"strings"

	"github.com/adamwoolhether/courier/internal/web/errs"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("web: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "param", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}

		return fld.Name
	})
}

// Validate checks val against its validate tags. Failures are returned as
// errs.FieldErrors named after the field's json, param or query tag.
func Validate(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	fields := make(errs.FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, errs.FieldError{
			Field: verror.Field(),
			Err:   message(verror),
		})
	}

	return fields
}

func message(verror validator.FieldError) string {
	switch verror.Tag() {
	case "required":
		return "This field is required"
	default:
		return verror.Translate(translator)
	}
}
