package handler

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	vOnce sync.Once
	vInst *validator.Validate
	trans ut.Translator
)

// Validator returns the shared validator. It reports json field names and
// carries English messages for every built-in tag.
func Validator() *validator.Validate {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ = uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		vInst = v
	})
	return vInst
}

func formatValidationErrors(err error) interface{} {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		if trans != nil {
			out[e.Field()] = e.Translate(trans)
		} else {
			out[e.Field()] = e.Tag()
		}
	}
	return out
}
