// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apperr defines error kinds shared by all the workbench
// components. Concrete errors wrap one of the kind sentinels so callers
// (mainly HTTP handlers) can decide about a response status using
// errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrUserInput     = errors.New("invalid user input")
	ErrSpecification = errors.New("inconsistent operation specification")
	ErrNotFound      = errors.New("not found")
	ErrConcurrency   = errors.New("computation failed to finish")
	ErrEngine        = errors.New("corpus engine error")
	ErrConflict      = errors.New("conflict")
)

// KindError attaches a kind sentinel to a message and an optional
// cause.
type KindError struct {
	kind  error
	name  string
	msg   string
	cause error
}

func (err *KindError) Error() string {
	if err.cause != nil {
		return fmt.Sprintf("%s: %s: %s", err.name, err.msg, err.cause)
	}
	return fmt.Sprintf("%s: %s", err.name, err.msg)
}

// Name returns a symbolic name of the error (e.g. RecNotFound)
func (err *KindError) Name() string {
	return err.name
}

func (err *KindError) Is(target error) bool {
	if target == err.kind {
		return true
	}
	t, ok := target.(*KindError)
	return ok && t.name == err.name && t.msg == ""
}

func (err *KindError) Unwrap() error {
	return err.cause
}

func newKindError(kind error, name, msg string, cause error) *KindError {
	return &KindError{kind: kind, name: name, msg: msg, cause: cause}
}

// Templates usable with errors.Is(err, apperr.RecNotFound) etc.
var (
	ConcordanceQueryParamsError   = &KindError{kind: ErrUserInput, name: "ConcordanceQueryParamsError"}
	ConcordanceSpecificationError = &KindError{kind: ErrSpecification, name: "ConcordanceSpecificationError"}
	UnknownConcordanceAction      = &KindError{kind: ErrUserInput, name: "UnknownConcordanceAction"}
	RecNotFound                   = &KindError{kind: ErrNotFound, name: "RecNotFound"}
	UnknownFormType               = &KindError{kind: ErrUserInput, name: "UnknownFormType"}
	MissingSubCorpFreqFile        = &KindError{kind: ErrNotFound, name: "MissingSubCorpFreqFile"}
	PqueryResultNotFound          = &KindError{kind: ErrNotFound, name: "PqueryResultNotFound"}
	TaskTimeout                   = &KindError{kind: ErrConcurrency, name: "TaskTimeout"}
	IntegrityError                = &KindError{kind: ErrConflict, name: "IntegrityError"}
)

func NewConcordanceQueryParamsError(msg string, cause error) error {
	return newKindError(ErrUserInput, ConcordanceQueryParamsError.name, msg, cause)
}

func NewConcordanceSpecificationError(msg string, cause error) error {
	return newKindError(ErrSpecification, ConcordanceSpecificationError.name, msg, cause)
}

func NewUnknownConcordanceAction(op string) error {
	return newKindError(ErrUserInput, UnknownConcordanceAction.name, fmt.Sprintf("unknown operation `%s`", op), nil)
}

func NewRecNotFound(id string) error {
	return newKindError(ErrNotFound, RecNotFound.name, fmt.Sprintf("record %s not found", id), nil)
}

func NewUnknownFormType(kind string) error {
	return newKindError(ErrUserInput, UnknownFormType.name, fmt.Sprintf("unknown form type `%s`", kind), nil)
}

func NewMissingSubCorpFreqFile(path string) error {
	return newKindError(ErrNotFound, MissingSubCorpFreqFile.name, fmt.Sprintf("missing frequency file %s", path), nil)
}

func NewPqueryResultNotFound(path string) error {
	return newKindError(ErrNotFound, PqueryResultNotFound.name, fmt.Sprintf("result %s not found", path), nil)
}

func NewTaskTimeout(taskName string, limitSecs int) error {
	return newKindError(
		ErrConcurrency, TaskTimeout.name,
		fmt.Sprintf("task %s exceeded time limit of %d seconds", taskName, limitSecs), nil)
}

func NewIntegrityError(msg string, cause error) error {
	return newKindError(ErrConflict, IntegrityError.name, msg, cause)
}

// NewUserInputError creates a generic user input error
// (missing argument, invalid range etc.)
func NewUserInputError(format string, args ...any) error {
	return newKindError(ErrUserInput, "UserInputError", fmt.Sprintf(format, args...), nil)
}

func NewNotFoundError(format string, args ...any) error {
	return newKindError(ErrNotFound, "NotFound", fmt.Sprintf(format, args...), nil)
}

func NewConflictError(format string, args ...any) error {
	return newKindError(ErrConflict, "Conflict", fmt.Sprintf(format, args...), nil)
}

// NewEngineError wraps a native corpus engine error
func NewEngineError(cause error) error {
	return newKindError(ErrEngine, "EngineError", "corpus engine failed", cause)
}

// HTTPStatus maps an error kind to a HTTP status code
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUserInput), errors.Is(err, ErrSpecification):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrConcurrency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError writes a JSON error response with a status derived from
// the error kind. User errors are logged on the `info` level only, engine
// errors and unknown errors get the whole chain logged as errors and the
// client receives just a generic message.
func RespondWithError(ctx *gin.Context, err error) {
	status := HTTPStatus(err)
	switch {
	case status < http.StatusInternalServerError:
		log.Info().Err(err).Str("path", ctx.Request.URL.Path).Msg("request failed")
		uniresp.RespondWithErrorJSON(ctx, err, status)
	case errors.Is(err, ErrConcurrency):
		log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("computation exceeded limit")
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("computation exceeded limit, please try again later"), status)
	default:
		log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("request failed")
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("internal error"), status)
	}
}
