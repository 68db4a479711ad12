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

package bursar

import (
	"context"
	"errors"
	"time"

	"github.com/tomoncle/bursar/database"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
	"github.com/uptrace/bun"
)

const (
	msgAlreadyEnrolled = "Already enrolled"
)

// EnrollmentService manages student_departments rows.
type EnrollmentService struct {
	*core
}

// BulkEnrollError is the disposition of one rejected student id.
type BulkEnrollError struct {
	StudentID int64  `json:"studentId"`
	Error     string `json:"error"`
}

// BulkEnrollResult reports one outcome per input id.
type BulkEnrollResult struct {
	SuccessCount int               `json:"successCount"`
	Errors       []BulkEnrollError `json:"errors"`
}

// EnrollmentDetail is an enrollment with student and department names.
type EnrollmentDetail struct {
	model.Enrollment `bun:",extend"`

	Firstname      string `bun:"firstname" json:"firstname"`
	Othernames     string `bun:"othernames" json:"othernames"`
	DepartmentName string `bun:"department_name" json:"departmentName"`
}

// BulkEnroll enrolls studentIDs into a department in one transaction.
//
// A missing department fails the whole call. Students that do not exist or
// are already enrolled are reported in Errors and the rest still commit.
// Storage errors roll everything back.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, departmentID int64, studentIDs []int64) (*BulkEnrollResult, error) {
	result := &BulkEnrollResult{Errors: make([]BulkEnrollError, 0)}
	err := s.inTx(ctx, EntityEnrollment, func(ctx context.Context, tx bun.Tx) error {
		result.SuccessCount = 0
		result.Errors = result.Errors[:0]
		if err := mustExist(ctx, s.departments.WithTx(tx), EntityDepartment, departmentID); err != nil {
			return err
		}
		for _, studentID := range studentIDs {
			err := database.Savepoint(ctx, tx, func(ctx context.Context) error {
				return s.enrollOne(ctx, tx, departmentID, studentID)
			})
			if err == nil {
				result.SuccessCount++
				continue
			}
			if !errs.IsBusiness(err) {
				return err
			}
			result.Errors = append(result.Errors, BulkEnrollError{StudentID: studentID, Error: err.Error()})
		}
		return nil
	})
	if err != nil {
		s.log.WithField("department_id", departmentID).WithError(err).Error("Bulk enroll failed")
		return nil, err
	}
	s.log.WithField("department_id", departmentID).
		WithField("success", result.SuccessCount).
		WithField("errors", len(result.Errors)).
		Info("Bulk enroll completed")
	return result, nil
}

func (s *EnrollmentService) enrollOne(ctx context.Context, tx bun.IDB, departmentID, studentID int64) error {
	if err := mustExist(ctx, s.students.WithTx(tx), EntityStudent, studentID); err != nil {
		return err
	}
	existing := new(model.Enrollment)
	err := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.student_id = ?", studentID).
		Where("?TableAlias.department_id = ?", departmentID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		if existing.IsActive && existing.Status != model.EnrollmentWithdrawn {
			return errs.Conflict(EntityEnrollment, msgAlreadyEnrolled)
		}
		return s.reactivate(ctx, tx, existing.ID)
	}
	if err = errs.FromDB(err, EntityEnrollment, 0); !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	err = s.enrollments.WithTx(tx).Create(ctx, &model.Enrollment{
		StudentID:    studentID,
		DepartmentID: departmentID,
		Status:       model.EnrollmentActive,
	})
	if errors.Is(err, errs.ErrConflict) {
		return errs.Conflict(EntityEnrollment, msgAlreadyEnrolled)
	}
	return err
}

func (s *EnrollmentService) reactivate(ctx context.Context, tx bun.IDB, id int64) error {
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*model.Enrollment)(nil)).
		Set("status = ?", model.EnrollmentActive).
		Set("is_active = ?", true).
		Set("enrollment_date = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return errs.FromDB(err, EntityEnrollment, id)
}

// ByDepartment lists the active enrollments of a department by student name.
func (s *EnrollmentService) ByDepartment(ctx context.Context, departmentID int64) ([]*EnrollmentDetail, error) {
	return s.details(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("sd.department_id = ?", departmentID).OrderExpr("s.firstname ASC")
	})
}

// StudentDepartments lists the active enrollments of a student, newest first.
func (s *EnrollmentService) StudentDepartments(ctx context.Context, studentID int64) ([]*EnrollmentDetail, error) {
	return s.details(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("sd.student_id = ?", studentID).OrderExpr("sd.enrollment_date DESC")
	})
}

func (s *EnrollmentService) details(ctx context.Context, apply func(q *bun.SelectQuery) *bun.SelectQuery) ([]*EnrollmentDetail, error) {
	rows := make([]*EnrollmentDetail, 0)
	err := s.db.NewSelect().
		Model(&rows).
		ColumnExpr("sd.*").
		ColumnExpr("s.firstname, s.othernames").
		ColumnExpr("d.name AS department_name").
		Join("JOIN students AS s ON s.id = sd.student_id").
		Join("JOIN departments AS d ON d.id = sd.department_id").
		Where("sd.is_active = ?", true).
		Where("s.is_active = ?", true).
		Where("d.is_active = ?", true).
		Apply(apply).
		OrderExpr("sd.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errs.FromDB(err, EntityEnrollment, 0)
	}
	return rows, nil
}

// Unenroll withdraws a student from a department. The row is kept so a
// later BulkEnroll reactivates it.
func (s *EnrollmentService) Unenroll(ctx context.Context, studentID, departmentID int64) error {
	return s.setStatus(ctx, studentID, departmentID, model.EnrollmentWithdrawn, false,
		model.EnrollmentActive, model.EnrollmentCompleted)
}

// Complete marks an active enrollment completed.
func (s *EnrollmentService) Complete(ctx context.Context, studentID, departmentID int64) error {
	return s.setStatus(ctx, studentID, departmentID, model.EnrollmentCompleted, true, model.EnrollmentActive)
}

func (s *EnrollmentService) setStatus(ctx context.Context, studentID, departmentID int64, status model.EnrollmentStatus, active bool, from ...model.EnrollmentStatus) error {
	res, err := s.db.NewUpdate().
		Model((*model.Enrollment)(nil)).
		Set("status = ?", status).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now()).
		Where("student_id = ?", studentID).
		Where("department_id = ?", departmentID).
		Where("is_active = ?", true).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return errs.FromDB(err, EntityEnrollment, 0)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errs.Storage("enrollment", err)
	} else if n == 0 {
		return errs.NotFound(EntityEnrollment, 0)
	}
	return nil
}
