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

package model

import (
	"database/sql/driver"

	"github.com/tomoncle/bursar/types"
)

type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentGraduated StudentStatus = "graduated"
	StudentSuspended StudentStatus = "suspended"
)

var studentStatuses = []StudentStatus{StudentActive, StudentInactive, StudentGraduated, StudentSuspended}

func (s StudentStatus) IsValid() bool {
	_, ok := types.ParseEnum(string(s), studentStatuses)
	return ok
}

func (s StudentStatus) String() string { return string(s) }

func (s StudentStatus) Value() (driver.Value, error) { return types.EnumValue(s) }

func (s *StudentStatus) Scan(src interface{}) error { return types.ScanEnum(s, src, studentStatuses) }

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
)

var enrollmentStatuses = []EnrollmentStatus{EnrollmentActive, EnrollmentCompleted, EnrollmentWithdrawn}

// EnrollmentStatuses lists every enrollment status in report order.
func EnrollmentStatuses() []EnrollmentStatus {
	return append([]EnrollmentStatus(nil), enrollmentStatuses...)
}

func (s EnrollmentStatus) IsValid() bool {
	_, ok := types.ParseEnum(string(s), enrollmentStatuses)
	return ok
}

func (s EnrollmentStatus) String() string { return string(s) }

func (s EnrollmentStatus) Value() (driver.Value, error) { return types.EnumValue(s) }

func (s *EnrollmentStatus) Scan(src interface{}) error {
	return types.ScanEnum(s, src, enrollmentStatuses)
}

type BillStatus string

const (
	BillPending   BillStatus = "pending"
	BillPartial   BillStatus = "partial"
	BillPaid      BillStatus = "paid"
	BillOverdue   BillStatus = "overdue"
	BillCancelled BillStatus = "cancelled"
)

var billStatuses = []BillStatus{BillPending, BillPartial, BillPaid, BillOverdue, BillCancelled}

func (s BillStatus) IsValid() bool {
	_, ok := types.ParseEnum(string(s), billStatuses)
	return ok
}

func (s BillStatus) String() string { return string(s) }

func (s BillStatus) Value() (driver.Value, error) { return types.EnumValue(s) }

func (s *BillStatus) Scan(src interface{}) error { return types.ScanEnum(s, src, billStatuses) }

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var paymentStatuses = []PaymentStatus{PaymentCompleted, PaymentPending, PaymentFailed, PaymentRefunded}

func (s PaymentStatus) IsValid() bool {
	_, ok := types.ParseEnum(string(s), paymentStatuses)
	return ok
}

func (s PaymentStatus) String() string { return string(s) }

func (s PaymentStatus) Value() (driver.Value, error) { return types.EnumValue(s) }

func (s *PaymentStatus) Scan(src interface{}) error { return types.ScanEnum(s, src, paymentStatuses) }
