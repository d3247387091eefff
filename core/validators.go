package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const requiredText = "this field is required"

// CustomValidation is a validation tag along with its English error text.
type CustomValidation struct {
	Tag  string
	Text string
	Func validator.Func
}

var (
	// labels such as "Go", "C++", "Data-Science" or "UI/UX Design"
	labelRegex = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} +#&./_-]*$`)

	globalValidations = []CustomValidation{
		{Tag: "label", Text: "only letters, digits, spaces and + # & . / _ - are allowed", Func: labelValidation},
	}
)

// InitValidators registers the English translations, JSON field names & the global custom tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// report JSON names, falling back to the form name for multipart-only fields
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	RegisterValidations(validate, translator, globalValidations...)

	for _, tag := range []string{"required", "required_with"} {
		RegisterCustomTranslation(validate, translator, tag, requiredText, true)
	}
}

// RegisterValidations registers each validation func & its translation.
func RegisterValidations(validate *validator.Validate, translator ut.Translator, validations ...CustomValidation) {
	for _, v := range validations {
		_ = validate.RegisterValidation(v.Tag, v.Func)
		RegisterCustomTranslation(validate, translator, v.Tag, v.Text)
	}
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	ovrd := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func labelValidation(fl validator.FieldLevel) bool {
	return labelRegex.MatchString(fl.Field().String())
}
