package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// use a single instance, it caches struct info
var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")

	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(err)
	}
}

// Validate checks required fields and value ranges. All violations are
// reported at once as a single ErrorTypeConfig error.
func (c *SourceConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	msgs := make([]string, 0, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(trans))
		fields = append(fields, fe.Namespace())
	}
	return errors.New(errors.ErrorTypeConfig, strings.Join(msgs, "; ")).WithDetail("fields", fields)
}
