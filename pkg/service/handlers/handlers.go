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

package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/models/validate"
	"saturn.io/saturn/pkg/utils/database"
)

const (
	MessageOK           = "ok"
	MessageNotFound     = "not found"
	MessageForbidden    = "forbidden"
	MessageUnauthorized = "unauthorized"
)

// Body is the envelope of every api answer.
type Body struct {
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	ErrorData interface{} `json:"errorData,omitempty"`
}

type Page[T any] struct {
	Total int64 `json:"total"`
	List  []T   `json:"list"`
	Page  int64 `json:"page"`
	Size  int64 `json:"size"`
}

func NewPage[T any](total int64, list []T, page, size int64) *Page[T] {
	return &Page[T]{Total: total, List: list, Page: page, Size: size}
}

func OK(c *gin.Context, data interface{}) {
	Response(c, http.StatusOK, data, nil)
}

func Created(c *gin.Context, data interface{}) {
	Response(c, http.StatusCreated, data, nil)
}

func BadRequest(c *gin.Context, err error) {
	Error(c, http.StatusBadRequest, err)
}

func Forbidden(c *gin.Context, err error) {
	Error(c, http.StatusForbidden, err)
}

func Unauthorized(c *gin.Context, err error) {
	Error(c, http.StatusUnauthorized, err)
}

func Error(c *gin.Context, code int, err error) {
	Response(c, code, nil, err)
}

func ErrorWithData(c *gin.Context, code int, err error, data interface{}) {
	if code == 0 {
		code = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(code, Body{Message: err.Error(), ErrorData: data})
}

func Response(c *gin.Context, code int, data interface{}, err error) {
	if err != nil {
		ErrorWithData(c, code, err, nil)
		return
	}
	if code == 0 {
		code = http.StatusOK
	}
	c.JSON(code, Body{Message: MessageOK, Data: data})
}

// NotOK answers err with the status its kind maps to.
func NotOK(c *gin.Context, err error) {
	defer func() {
		c.Errors = append(c.Errors, &gin.Error{Err: err, Type: gin.ErrorTypeAny})
	}()
	// validation error
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		ErrorWithData(c, http.StatusUnprocessableEntity, errors.New("validation failed"), validate.Get().Translate(verrs))
		return
	}
	// domain error
	var merr *migration.Error
	if errors.As(err, &merr) {
		switch merr.Kind {
		case migration.ErrorKindNotFound:
			Error(c, http.StatusNotFound, err)
		case migration.ErrorKindInvalid:
			ErrorWithData(c, http.StatusUnprocessableEntity, err, merr.Details)
		case migration.ErrorKindChainViolation:
			BadRequest(c, err)
		case migration.ErrorKindForbidden:
			Forbidden(c, err)
		case migration.ErrorKindConflict:
			Error(c, http.StatusConflict, err)
		case migration.ErrorKindPreCheckFailed:
			ErrorWithData(c, http.StatusUnprocessableEntity, err, merr.Details)
		default:
			BadRequest(c, err)
		}
		return
	}
	// gorm error
	if database.IsNotFound(err) {
		Error(c, http.StatusNotFound, errors.New(MessageNotFound))
		return
	}
	if database.IsDuplicateKey(err) {
		Error(c, http.StatusConflict, errors.New("the object already exists"))
		return
	}
	log.Error(err, "not ok", "path", c.FullPath())
	// default error
	BadRequest(c, err)
}

// BindOptionalJSON binds a body that may be empty, an empty one is validated as the zero value.
func BindOptionalJSON(c *gin.Context, obj interface{}) error {
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		return binding.Validator.ValidateStruct(obj)
	}
	return err
}

// URLQuery is the paging part of a list request.
type URLQuery struct {
	Page string `form:"page"`
	Size string `form:"size"`

	page int64
	size int64
}

func GetQuery(c *gin.Context) (*URLQuery, error) {
	q := &URLQuery{Page: "1", Size: "10"}
	if err := c.BindQuery(q); err != nil {
		return nil, err
	}
	if err := q.convert(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *URLQuery) convert() error {
	var err error
	if q.page, err = strconv.ParseInt(q.Page, 10, 64); err != nil {
		return migration.Invalid("invalid page number query parameter")
	}
	if q.size, err = strconv.ParseInt(q.Size, 10, 64); err != nil {
		return migration.Invalid("invalid page size query parameter")
	}
	if q.page <= 0 {
		q.page = 1
	}
	if q.size <= 0 {
		q.size = 10
	}
	if q.size > 100 {
		q.size = 100
	}
	return nil
}

func (q *URLQuery) PageNumber() int64 {
	return q.page
}

func (q *URLQuery) PageSize() int64 {
	return q.size
}
