/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errs defines the error taxonomy returned by the billing services.
//
// Typed errors carry detail for callers that want it; each also matches one
// sentinel through errors.Is so callers can branch without type switches.
package errs

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/bursar/database"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage error")
)

// FieldError is a single invalid field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// NotFoundError reports a missing or soft-deleted entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func NotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports rejected input.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func Validation(message string, fields ...FieldError) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Error
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a uniqueness clash such as a duplicate enrollment.
type ConflictError struct {
	Entity  string
	Message string
}

func Conflict(entity, message string) *ConflictError {
	return &ConflictError{Entity: entity, Message: message}
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps a failure of the store itself. It always aborts the
// enclosing transaction.
type StorageError struct {
	Op   string
	Code string
	Err  error
}

func Storage(op string, err error) *StorageError {
	_, code := database.IsSqlError(err)
	return &StorageError{Op: op, Code: code.String(), Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// FromDB converts an error returned by the store for entity/id.
// sql.ErrNoRows becomes NotFoundError, a unique violation ConflictError and
// anything else StorageError. Errors already in the taxonomy pass through.
func FromDB(err error, entity string, id int64) error {
	if err == nil {
		return nil
	}
	if IsBusiness(err) || errors.Is(err, ErrStorage) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(entity, id)
	}
	if database.IsDuplicateKey(err) {
		return Conflict(entity, entity+" already exists")
	}
	return Storage(strings.ToLower(entity), err)
}

// IsBusiness reports whether err may be recorded per item by tolerant bulk
// operations instead of aborting them.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}
