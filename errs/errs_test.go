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

package errs

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDB(t *testing.T) {
	assert.NoError(t, FromDB(nil, "Student", 1))

	err := FromDB(sql.ErrNoRows, "Student", 7)
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(7), nf.ID)
	assert.Equal(t, "Student not found", err.Error())

	err = FromDB(errors.New("UNIQUE constraint failed: student_departments.student_id"), "Enrollment", 0)
	assert.ErrorIs(t, err, ErrConflict)

	cause := errors.New("disk I/O error")
	err = FromDB(fmt.Errorf("insert: %w", cause), "Bill", 0)
	require.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsBusiness(err))
}

func TestFromDBKeepsTaxonomy(t *testing.T) {
	orig := Validation("ID required")
	assert.Same(t, orig, FromDB(orig, "Student", 0))

	wrapped := fmt.Errorf("ctx: %w", NotFound("Department", 3))
	assert.Equal(t, wrapped, FromDB(wrapped, "Department", 3))
}

func TestIsBusiness(t *testing.T) {
	assert.True(t, IsBusiness(NotFound("Student", 1)))
	assert.True(t, IsBusiness(Conflict("Enrollment", "Already enrolled")))
	assert.True(t, IsBusiness(fmt.Errorf("wrapped: %w", Validation("bad"))))
	assert.False(t, IsBusiness(errors.New("boom")))
	assert.False(t, IsBusiness(nil))
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validation("invalid payload",
		FieldError{Field: "name", Error: "is required"},
		FieldError{Field: "items", Error: "must contain at least 1 item"},
	)
	assert.Equal(t, "invalid payload: name is required; items must contain at least 1 item", err.Error())
	assert.Equal(t, "ID required", Validation("ID required").Error())
}
