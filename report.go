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
	"time"

	"github.com/shopspring/decimal"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
	"github.com/uptrace/bun"
)

// ReportService runs read-only aggregates. Inactive rows and cancelled bills
// never count, and only completed payments count as paid.
type ReportService struct {
	*core
}

// BillingSummary is the billed/paid/unpaid triple shared by the summaries.
type BillingSummary struct {
	BillCount   int             `bun:"bill_count" json:"billCount"`
	TotalBilled decimal.Decimal `bun:"total_billed" json:"totalBilled"`
	TotalPaid   decimal.Decimal `bun:"total_paid" json:"totalPaid"`
	TotalUnpaid decimal.Decimal `bun:"-" json:"totalUnpaid"`
}

func (b *BillingSummary) settle() {
	b.TotalBilled = b.TotalBilled.Round(2)
	b.TotalPaid = b.TotalPaid.Round(2)
	b.TotalUnpaid = decimal.Max(b.TotalBilled.Sub(b.TotalPaid), decimal.Zero)
}

// StudentDepartmentSummary is a student's billing within one department.
type StudentDepartmentSummary struct {
	DepartmentID   int64  `bun:"department_id" json:"departmentId"`
	DepartmentName string `bun:"department_name" json:"departmentName"`
	BillingSummary
}

// DepartmentSummary is the billing of one department across its students.
type DepartmentSummary struct {
	DepartmentID   int64  `bun:"department_id" json:"departmentId"`
	DepartmentName string `bun:"department_name" json:"departmentName"`
	StudentCount   int    `bun:"student_count" json:"studentCount"`
	BillingSummary
}

// OutstandingFilter narrows OutstandingPayments; zero fields match all.
type OutstandingFilter struct {
	DepartmentID int64 `json:"departmentId"`
	StudentID    int64 `json:"studentId"`
}

// OutstandingBill is a bill with money still due.
type OutstandingBill struct {
	BillID         int64            `bun:"bill_id" json:"billId"`
	BillName       string           `bun:"bill_name" json:"billName"`
	StudentID      int64            `bun:"student_id" json:"studentId"`
	Firstname      string           `bun:"firstname" json:"firstname"`
	Othernames     string           `bun:"othernames" json:"othernames"`
	DepartmentID   int64            `bun:"department_id" json:"departmentId"`
	DepartmentName string           `bun:"department_name" json:"departmentName"`
	DueDate        time.Time        `bun:"due_date" json:"dueDate"`
	Status         model.BillStatus `bun:"status" json:"status"`
	TotalAmount    decimal.Decimal  `bun:"total_amount" json:"totalAmount"`
	AmountPaid     decimal.Decimal  `bun:"amount_paid" json:"amountPaid"`
	AmountDue      decimal.Decimal  `bun:"amount_due" json:"amountDue"`
}

// PaymentRecord is one line of a payment history.
type PaymentRecord struct {
	PaymentID      int64               `bun:"payment_id" json:"paymentId"`
	BillID         int64               `bun:"bill_id" json:"billId"`
	BillName       string              `bun:"bill_name" json:"billName"`
	DepartmentName string              `bun:"department_name" json:"departmentName"`
	Amount         decimal.Decimal     `bun:"amount" json:"amount"`
	PaymentDate    time.Time           `bun:"payment_date" json:"paymentDate"`
	Method         string              `bun:"method" json:"method"`
	Reference      string              `bun:"reference" json:"reference"`
	Status         model.PaymentStatus `bun:"status" json:"status"`
}

// EnrollmentStats counts a department's enrollments by status. Withdrawn
// enrollments are included.
type EnrollmentStats struct {
	DepartmentID   int64  `bun:"department_id" json:"departmentId"`
	DepartmentName string `bun:"department_name" json:"departmentName"`
	Total          int    `bun:"total" json:"total"`
	Active         int    `bun:"active" json:"active"`
	Completed      int    `bun:"completed" json:"completed"`
	Withdrawn      int    `bun:"withdrawn" json:"withdrawn"`
}

// paidByBill sums completed, active payments per bill.
func paidByBill(db bun.IDB) *bun.SelectQuery {
	return db.NewSelect().
		TableExpr("payments AS p").
		ColumnExpr("p.bill_id").
		ColumnExpr("SUM(p.amount) AS paid").
		Where("p.status = ?", model.PaymentCompleted).
		Where("p.is_active = ?", true).
		GroupExpr("p.bill_id")
}

// StudentBillingSummary returns the student's billing per department.
func (r *ReportService) StudentBillingSummary(ctx context.Context, studentID int64) ([]*StudentDepartmentSummary, error) {
	if err := mustExist(ctx, r.students, EntityStudent, studentID); err != nil {
		return nil, err
	}
	rows := make([]*StudentDepartmentSummary, 0)
	err := r.db.NewSelect().
		TableExpr("bills AS b").
		ColumnExpr("d.id AS department_id, d.name AS department_name").
		ColumnExpr("COUNT(b.id) AS bill_count").
		ColumnExpr("COALESCE(SUM(b.total_amount), 0) AS total_billed").
		ColumnExpr("COALESCE(SUM(pp.paid), 0) AS total_paid").
		Join("JOIN departments AS d ON d.id = b.department_id").
		Join("LEFT JOIN (?) AS pp ON pp.bill_id = b.id", paidByBill(r.db)).
		Where("b.student_id = ?", studentID).
		Where("b.is_active = ?", true).
		Where("b.status <> ?", model.BillCancelled).
		Where("d.is_active = ?", true).
		GroupExpr("d.id, d.name").
		OrderExpr("d.name ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errs.FromDB(err, EntityBill, 0)
	}
	for _, row := range rows {
		row.settle()
	}
	return rows, nil
}

// DepartmentBillingSummary returns the billing of one department.
func (r *ReportService) DepartmentBillingSummary(ctx context.Context, departmentID int64) (*DepartmentSummary, error) {
	rows, err := r.departmentSummaries(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.NotFound(EntityDepartment, departmentID)
	}
	return rows[0], nil
}

// DepartmentBillingSummaries returns the billing of every active department.
func (r *ReportService) DepartmentBillingSummaries(ctx context.Context) ([]*DepartmentSummary, error) {
	return r.departmentSummaries(ctx, 0)
}

func (r *ReportService) departmentSummaries(ctx context.Context, departmentID int64) ([]*DepartmentSummary, error) {
	rows := make([]*DepartmentSummary, 0)
	q := r.db.NewSelect().
		TableExpr("departments AS d").
		ColumnExpr("d.id AS department_id, d.name AS department_name").
		ColumnExpr("COUNT(DISTINCT b.student_id) AS student_count").
		ColumnExpr("COUNT(b.id) AS bill_count").
		ColumnExpr("COALESCE(SUM(b.total_amount), 0) AS total_billed").
		ColumnExpr("COALESCE(SUM(pp.paid), 0) AS total_paid").
		Join("LEFT JOIN bills AS b ON b.department_id = d.id AND b.is_active = ? AND b.status <> ? "+
			"AND EXISTS (SELECT 1 FROM students AS s WHERE s.id = b.student_id AND s.is_active = ?)",
			true, model.BillCancelled, true).
		Join("LEFT JOIN (?) AS pp ON pp.bill_id = b.id", paidByBill(r.db)).
		Where("d.is_active = ?", true)
	if departmentID != 0 {
		q = q.Where("d.id = ?", departmentID)
	}
	err := q.GroupExpr("d.id, d.name").OrderExpr("d.name ASC").Scan(ctx, &rows)
	if err != nil {
		return nil, errs.FromDB(err, EntityDepartment, departmentID)
	}
	for _, row := range rows {
		row.settle()
	}
	return rows, nil
}

// OutstandingPayments lists bills with an amount due, earliest due first.
// Paid and cancelled bills are skipped.
func (r *ReportService) OutstandingPayments(ctx context.Context, filter OutstandingFilter) ([]*OutstandingBill, error) {
	rows := make([]*OutstandingBill, 0)
	q := r.db.NewSelect().
		TableExpr("bills AS b").
		ColumnExpr("b.id AS bill_id, b.name AS bill_name").
		ColumnExpr("s.id AS student_id, s.firstname, s.othernames").
		ColumnExpr("d.id AS department_id, d.name AS department_name").
		ColumnExpr("b.due_date, b.status, b.total_amount").
		ColumnExpr("COALESCE(pp.paid, 0) AS amount_paid").
		ColumnExpr("b.total_amount - COALESCE(pp.paid, 0) AS amount_due").
		Join("JOIN students AS s ON s.id = b.student_id").
		Join("JOIN departments AS d ON d.id = b.department_id").
		Join("LEFT JOIN (?) AS pp ON pp.bill_id = b.id", paidByBill(r.db)).
		Where("b.is_active = ?", true).
		Where("s.is_active = ?", true).
		Where("d.is_active = ?", true).
		Where("b.status NOT IN (?)", bun.In([]model.BillStatus{model.BillPaid, model.BillCancelled})).
		Where("b.total_amount - COALESCE(pp.paid, 0) > 0")
	if filter.DepartmentID != 0 {
		q = q.Where("b.department_id = ?", filter.DepartmentID)
	}
	if filter.StudentID != 0 {
		q = q.Where("b.student_id = ?", filter.StudentID)
	}
	err := q.OrderExpr("b.due_date ASC, b.id ASC").Scan(ctx, &rows)
	if err != nil {
		return nil, errs.FromDB(err, EntityBill, 0)
	}
	for _, row := range rows {
		row.AmountPaid = row.AmountPaid.Round(2)
		row.AmountDue = row.AmountDue.Round(2)
	}
	return rows, nil
}

// PaymentHistory lists a student's payments oldest first.
func (r *ReportService) PaymentHistory(ctx context.Context, studentID int64) ([]*PaymentRecord, error) {
	if err := mustExist(ctx, r.students, EntityStudent, studentID); err != nil {
		return nil, err
	}
	rows := make([]*PaymentRecord, 0)
	err := r.db.NewSelect().
		TableExpr("payments AS p").
		ColumnExpr("p.id AS payment_id, p.bill_id, b.name AS bill_name, d.name AS department_name").
		ColumnExpr("p.amount, p.payment_date, p.method, p.reference, p.status").
		Join("JOIN bills AS b ON b.id = p.bill_id").
		Join("JOIN departments AS d ON d.id = b.department_id").
		Where("p.student_id = ?", studentID).
		Where("p.is_active = ?", true).
		Where("b.is_active = ?", true).
		OrderExpr("p.payment_date ASC, p.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errs.FromDB(err, EntityPayment, 0)
	}
	return rows, nil
}

// DepartmentEnrollmentStats counts enrollments by status per active
// department. Enrollments of inactive students are skipped.
func (r *ReportService) DepartmentEnrollmentStats(ctx context.Context) ([]*EnrollmentStats, error) {
	rows := make([]*EnrollmentStats, 0)
	err := r.db.NewSelect().
		TableExpr("departments AS d").
		ColumnExpr("d.id AS department_id, d.name AS department_name").
		ColumnExpr("COUNT(sd.id) AS total").
		ColumnExpr("COALESCE(SUM(CASE WHEN sd.status = ? THEN 1 ELSE 0 END), 0) AS active", model.EnrollmentActive).
		ColumnExpr("COALESCE(SUM(CASE WHEN sd.status = ? THEN 1 ELSE 0 END), 0) AS completed", model.EnrollmentCompleted).
		ColumnExpr("COALESCE(SUM(CASE WHEN sd.status = ? THEN 1 ELSE 0 END), 0) AS withdrawn", model.EnrollmentWithdrawn).
		Join("LEFT JOIN student_departments AS sd ON sd.department_id = d.id "+
			"AND EXISTS (SELECT 1 FROM students AS s WHERE s.id = sd.student_id AND s.is_active = ?)", true).
		Where("d.is_active = ?", true).
		GroupExpr("d.id, d.name").
		OrderExpr("d.name ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errs.FromDB(err, EntityEnrollment, 0)
	}
	return rows, nil
}
