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

package migration

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	ErrorKindNotFound       ErrorKind = "NotFound"
	ErrorKindInvalid        ErrorKind = "Invalid"
	ErrorKindChainViolation ErrorKind = "ChainViolation"
	ErrorKindForbidden      ErrorKind = "Forbidden"
	ErrorKindConflict       ErrorKind = "Conflict"
	ErrorKindPreCheckFailed ErrorKind = "PreCheckFailed"
)

// Error is a domain error with a human readable message naming the violated rule.
type Error struct {
	Kind    ErrorKind
	Message string
	// Details carries a structured payload, e.g. the failed pre checks.
	Details interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrorKindNotFound, format, args...)
}

func Invalid(format string, args ...interface{}) error {
	return newError(ErrorKindInvalid, format, args...)
}

func ChainViolation(msg string) error {
	return newError(ErrorKindChainViolation, "%s", msg)
}

func Forbidden(format string, args ...interface{}) error {
	return newError(ErrorKindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newError(ErrorKindConflict, format, args...)
}

func PreCheckFailed(result *PreCheckResult) error {
	e := newError(ErrorKindPreCheckFailed, "pre-migration checks failed")
	e.Details = result
	return e
}

// WrapKind annotates err with a kind, keeping it reachable through errors.Is/As.
func WrapKind(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, cause: errors.WithStack(err)}
}

// KindOf returns the kind of the first domain error in the chain of err.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
