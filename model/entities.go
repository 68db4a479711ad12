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
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Student struct {
	bun.BaseModel `bun:"table:students,alias:s"`
	Base

	Firstname  string        `bun:"firstname,notnull" json:"firstname" validate:"required,max=100"`
	Othernames string        `bun:"othernames" json:"othernames" validate:"max=200"`
	Phone      string        `bun:"phone" json:"phone" validate:"max=32"`
	Address    string        `bun:"address" json:"address" validate:"max=255"`
	Status     StudentStatus `bun:"status,notnull,default:'active'" json:"status" validate:"omitempty,oneof=active inactive graduated suspended"`
}

func (s *Student) SetDefaults() {
	if s.Status == "" {
		s.Status = StudentActive
	}
}

type Department struct {
	bun.BaseModel `bun:"table:departments,alias:d"`
	Base

	Name        string     `bun:"name,notnull" json:"name" validate:"required,max=100"`
	Term        string     `bun:"term" json:"term" validate:"max=50"`
	Year        int        `bun:"year" json:"year" validate:"gte=0"`
	Description string     `bun:"description" json:"description"`
	StartDate   *time.Time `bun:"start_date" json:"startDate,omitempty"`
	EndDate     *time.Time `bun:"end_date" json:"endDate,omitempty" validate:"omitempty,gtefield=StartDate"`
}

// Enrollment is the student_departments association row.
type Enrollment struct {
	bun.BaseModel `bun:"table:student_departments,alias:sd"`
	Base

	StudentID      int64            `bun:"student_id,notnull,unique:uq_student_department" json:"studentId"`
	DepartmentID   int64            `bun:"department_id,notnull,unique:uq_student_department" json:"departmentId"`
	EnrollmentDate time.Time        `bun:"enrollment_date,notnull" json:"enrollmentDate"`
	Status         EnrollmentStatus `bun:"status,notnull,default:'active'" json:"status"`
}

func (e *Enrollment) SetDefaults() {
	if e.Status == "" {
		e.Status = EnrollmentActive
	}
	if e.EnrollmentDate.IsZero() {
		e.EnrollmentDate = time.Now()
	}
}

type BillItem struct {
	bun.BaseModel `bun:"table:bill_items,alias:bi"`
	Base

	Name         string          `bun:"name,notnull" json:"name" validate:"required,max=100"`
	Amount       decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount" validate:"gte=0"`
	DepartmentID int64           `bun:"department_id,notnull" json:"departmentId"`
	Category     string          `bun:"category" json:"category" validate:"max=50"`
	IsRequired   bool            `bun:"is_required,notnull" json:"isRequired"`
}

type Bill struct {
	bun.BaseModel `bun:"table:bills,alias:b"`
	Base

	Name         string          `bun:"name,notnull" json:"name" validate:"required,max=150"`
	StudentID    int64           `bun:"student_id,notnull" json:"studentId" validate:"required"`
	DepartmentID int64           `bun:"department_id,notnull" json:"departmentId" validate:"required"`
	TotalAmount  decimal.Decimal `bun:"total_amount,type:decimal(12,2),notnull" json:"totalAmount"`
	DueDate      time.Time       `bun:"due_date,notnull" json:"dueDate"`
	Status       BillStatus      `bun:"status,notnull,default:'pending'" json:"status" validate:"omitempty,oneof=pending partial paid overdue cancelled"`
	Discount     decimal.Decimal `bun:"discount,type:decimal(12,2),notnull" json:"discount" validate:"gte=0"`
	Note         string          `bun:"note" json:"note"`

	Items []*BillItemRelation `bun:"rel:has-many,join:id=bill_id" json:"items,omitempty"`
}

func (b *Bill) SetDefaults() {
	if b.Status == "" {
		b.Status = BillPending
	}
}

// BillItemRelation is one line of a bill.
type BillItemRelation struct {
	bun.BaseModel `bun:"table:bill_item_relations,alias:bir"`
	Base

	BillID     int64           `bun:"bill_id,notnull" json:"billId"`
	BillItemID int64           `bun:"bill_item_id,notnull" json:"billItemId"`
	Amount     decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount"`
	Quantity   int             `bun:"quantity,notnull,default:1" json:"quantity"`
	Discount   decimal.Decimal `bun:"discount,type:decimal(12,2),notnull" json:"discount"`

	BillItem *BillItem `bun:"rel:belongs-to,join:bill_item_id=id" json:"billItem,omitempty"`
}

func (r *BillItemRelation) SetDefaults() {
	if r.Quantity == 0 {
		r.Quantity = 1
	}
}

// LineTotal is amount × quantity − discount.
func (r *BillItemRelation) LineTotal() decimal.Decimal {
	return r.Amount.Mul(decimal.NewFromInt(int64(r.Quantity))).Sub(r.Discount)
}

type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`
	Base

	BillID      int64           `bun:"bill_id,notnull" json:"billId" validate:"required"`
	StudentID   int64           `bun:"student_id,notnull" json:"studentId"`
	Amount      decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount" validate:"gt=0"`
	PaymentDate time.Time       `bun:"payment_date,notnull" json:"paymentDate"`
	Method      string          `bun:"method" json:"method" validate:"max=50"`
	Reference   string          `bun:"reference" json:"reference" validate:"max=100"`
	Status      PaymentStatus   `bun:"status,notnull,default:'completed'" json:"status" validate:"omitempty,oneof=completed pending failed refunded"`
}

func (p *Payment) SetDefaults() {
	if p.Status == "" {
		p.Status = PaymentCompleted
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now()
	}
}
