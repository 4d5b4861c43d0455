// Copyright 2024 The saturn.io Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validate

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"saturn.io/saturn/pkg/service/models"
)

var (
	instance *Validator
	once     sync.Once
)

func InitValidator() {
	once.Do(func() {
		v, err := NewValidator()
		if err != nil {
			panic(err)
		}
		instance = v
	})
}

func Get() *Validator {
	InitValidator()
	return instance
}

// Validator is the gin binding validator with english translations and the saturn tags registered.
type Validator struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

func NewValidator() (*Validator, error) {
	vali := binding.Validator.Engine().(*validator.Validate)
	enT := en.New()
	uni := ut.New(enT, enT)
	trans, _ := uni.GetTranslator("en")
	if e := enTranslations.RegisterDefaultTranslations(vali, trans); e != nil {
		return nil, e
	}
	vali.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v := &Validator{Validator: vali, Translator: trans}
	if err := v.registCustomValidator(); err != nil {
		return nil, err
	}
	if err := v.registCustomTranslation(); err != nil {
		return nil, err
	}
	return v, nil
}

// Translate returns a field to message map of a validation error.
func (v *Validator) Translate(errs validator.ValidationErrors) map[string]string {
	ret := make(map[string]string, len(errs))
	for _, e := range errs {
		ret[fieldPath(e.Namespace())] = e.Translate(v.Translator)
	}
	return ret
}

// fieldPath drops the top level struct name, "CreateRequest.options.update_mode" becomes "options.update_mode".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func (v *Validator) registCustomValidator() error {
	if e := v.Validator.RegisterValidation("resource_kind", resourceKind); e != nil {
		return e
	}
	return nil
}

func resourceKind(fl validator.FieldLevel) bool {
	return models.ResourceKind(fl.Field().String()).Valid()
}
