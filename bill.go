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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tomoncle/bursar/database"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
	"github.com/tomoncle/bursar/validation"
	"github.com/uptrace/bun"
)

// BillService issues bills, singly with explicit lines or for a whole
// department at once.
type BillService struct {
	*baseServiceImpl[model.Bill]
	payments *PaymentService
}

var _ Service[model.Bill] = (*BillService)(nil)

// DepartmentBillItem selects a catalog item for department-wide billing.
// The item must be active and offered by the billed department. A nil
// Amount uses the stored item amount; a zero Quantity means 1.
type DepartmentBillItem struct {
	BillItemID int64            `json:"billItemId" validate:"required"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Quantity   int              `json:"quantity" validate:"gte=0"`
}

// GenerateBillsRequest describes one bill per enrolled student.
type GenerateBillsRequest struct {
	DepartmentID int64                `json:"departmentId" validate:"required"`
	Name         string               `json:"name" validate:"required,max=150"`
	Items        []DepartmentBillItem `json:"items" validate:"min=1,dive"`
	DueDate      *time.Time           `json:"dueDate,omitempty"`
	Note         string               `json:"note"`
}

// BillError is the failure recorded for one student.
type BillError struct {
	StudentID int64  `json:"studentId"`
	Error     string `json:"error"`
}

// GenerateBillsResult totals the bills actually created.
type GenerateBillsResult struct {
	BillsCreated int             `json:"billsCreated"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Errors       []BillError     `json:"errors"`
}

// BillLineRequest is one line of CreateBillWithItems. A nil Amount is 0.
type BillLineRequest struct {
	BillItemID int64            `json:"billItemId" validate:"required"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Quantity   int              `json:"quantity" validate:"gte=0"`
	Discount   decimal.Decimal  `json:"discount" validate:"gte=0"`
}

type BillWithItemsRequest struct {
	StudentID    int64             `json:"studentId" validate:"required"`
	DepartmentID int64             `json:"departmentId" validate:"required"`
	Name         string            `json:"name" validate:"required,max=150"`
	DueDate      *time.Time        `json:"dueDate,omitempty"`
	Note         string            `json:"note"`
	Discount     decimal.Decimal   `json:"discount" validate:"gte=0"`
	Items        []BillLineRequest `json:"items" validate:"min=1,dive"`
}

// CreateBillsForDepartment bills every actively enrolled student of a
// department for items under billName.
func (s *BillService) CreateBillsForDepartment(ctx context.Context, departmentID int64, items []DepartmentBillItem, billName string) (*GenerateBillsResult, error) {
	return s.GenerateBills(ctx, &GenerateBillsRequest{DepartmentID: departmentID, Name: billName, Items: items})
}

// GenerateBills creates one pending bill per actively enrolled student in a
// single transaction. A student whose bill cannot be built is reported in
// Errors and leaves no rows; a missing department fails the call.
func (s *BillService) GenerateBills(ctx context.Context, req *GenerateBillsRequest) (*GenerateBillsResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if item.Amount != nil && item.Amount.IsNegative() {
			return nil, errs.Validation("invalid generate bills request",
				errs.FieldError{Field: "items.amount", Error: "must be greater than or equal to 0"})
		}
	}
	dueDate := s.dueDate(req.DueDate)

	result := &GenerateBillsResult{}
	err := s.inTx(ctx, EntityBill, func(ctx context.Context, tx bun.Tx) error {
		result.BillsCreated, result.TotalAmount, result.Errors = 0, decimal.Zero, make([]BillError, 0)
		if err := mustExist(ctx, s.departments.WithTx(tx), EntityDepartment, req.DepartmentID); err != nil {
			return err
		}
		studentIDs, err := enrolledStudentIDs(ctx, tx, req.DepartmentID)
		if err != nil {
			return err
		}
		for _, studentID := range studentIDs {
			var total decimal.Decimal
			err := database.Savepoint(ctx, tx, func(ctx context.Context) error {
				var err error
				total, err = s.billStudent(ctx, tx, req, studentID, dueDate)
				return err
			})
			if err == nil {
				result.BillsCreated++
				result.TotalAmount = result.TotalAmount.Add(total)
				continue
			}
			if !errs.IsBusiness(err) {
				return err
			}
			result.Errors = append(result.Errors, BillError{StudentID: studentID, Error: err.Error()})
		}
		return nil
	})
	if err != nil {
		s.log.WithField("department_id", req.DepartmentID).WithError(err).Error("Bill generation failed")
		return nil, err
	}
	s.log.WithField("department_id", req.DepartmentID).
		WithField("bills", result.BillsCreated).
		WithField("total", result.TotalAmount.StringFixed(2)).
		WithField("errors", len(result.Errors)).
		Info("Bills generated")
	return result, nil
}

func (s *BillService) billStudent(ctx context.Context, tx bun.IDB, req *GenerateBillsRequest, studentID int64, dueDate time.Time) (decimal.Decimal, error) {
	lines := make([]*model.BillItemRelation, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		amount, err := s.resolveAmount(ctx, tx, req.DepartmentID, item)
		if err != nil {
			return decimal.Zero, err
		}
		line := &model.BillItemRelation{BillItemID: item.BillItemID, Amount: amount, Quantity: item.Quantity}
		line.SetDefaults()
		total = total.Add(line.LineTotal())
		lines = append(lines, line)
	}

	bill := &model.Bill{
		Name:         req.Name,
		StudentID:    studentID,
		DepartmentID: req.DepartmentID,
		TotalAmount:  total,
		DueDate:      dueDate,
		Status:       model.BillPending,
		Note:         req.Note,
	}
	if err := s.bills.WithTx(tx).Create(ctx, bill); err != nil {
		return decimal.Zero, err
	}
	if err := s.insertLines(ctx, tx, bill.ID, lines); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *BillService) resolveAmount(ctx context.Context, tx bun.IDB, departmentID int64, item DepartmentBillItem) (decimal.Decimal, error) {
	stored, err := s.departmentItem(ctx, tx, departmentID, item.BillItemID)
	if err != nil {
		return decimal.Zero, err
	}
	if item.Amount != nil {
		return *item.Amount, nil
	}
	if stored.Amount.IsZero() {
		return decimal.Zero, errs.Validation("Bill item has no amount")
	}
	return stored.Amount, nil
}

// departmentItem loads an active bill item owned by departmentID.
func (s *BillService) departmentItem(ctx context.Context, db bun.IDB, departmentID, itemID int64) (*model.BillItem, error) {
	stored, err := s.billItems.WithTx(db).Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if stored.DepartmentID != departmentID {
		return nil, errs.Validation("Bill item belongs to another department",
			errs.FieldError{Field: "billItemId", Error: fmt.Sprintf("%d is not offered by department %d", itemID, departmentID)})
	}
	return stored, nil
}

func (s *BillService) insertLines(ctx context.Context, tx bun.IDB, billID int64, lines []*model.BillItemRelation) error {
	relations := s.relations.WithTx(tx)
	for _, line := range lines {
		line.BillID = billID
		if err := relations.Create(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// enrolledStudentIDs returns the active students actively enrolled in a
// department, in id order.
func enrolledStudentIDs(ctx context.Context, db bun.IDB, departmentID int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := db.NewSelect().
		Model((*model.Enrollment)(nil)).
		ColumnExpr("sd.student_id").
		Join("JOIN students AS s ON s.id = sd.student_id").
		Where("sd.department_id = ?", departmentID).
		Where("sd.is_active = ?", true).
		Where("sd.status = ?", model.EnrollmentActive).
		Where("s.is_active = ?", true).
		OrderExpr("sd.student_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errs.FromDB(err, EntityEnrollment, 0)
	}
	return ids, nil
}

// CreateBillWithItems inserts a bill and its lines as one unit. Every
// referenced record must exist; any failure leaves nothing behind.
func (s *BillService) CreateBillWithItems(ctx context.Context, req *BillWithItemsRequest) (*model.Bill, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if item.Amount != nil && item.Amount.IsNegative() {
			return nil, errs.Validation("invalid bill",
				errs.FieldError{Field: "items.amount", Error: "must be greater than or equal to 0"})
		}
	}

	var bill *model.Bill
	err := s.inTx(ctx, EntityBill, func(ctx context.Context, tx bun.Tx) error {
		if err := mustExist(ctx, s.students.WithTx(tx), EntityStudent, req.StudentID); err != nil {
			return err
		}
		if err := mustExist(ctx, s.departments.WithTx(tx), EntityDepartment, req.DepartmentID); err != nil {
			return err
		}
		bills := s.bills.WithTx(tx)
		bill = &model.Bill{
			Name:         req.Name,
			StudentID:    req.StudentID,
			DepartmentID: req.DepartmentID,
			TotalAmount:  decimal.Zero,
			DueDate:      s.dueDate(req.DueDate),
			Status:       model.BillPending,
			Discount:     req.Discount,
			Note:         req.Note,
		}
		if err := bills.Create(ctx, bill); err != nil {
			return err
		}

		lines := make([]*model.BillItemRelation, 0, len(req.Items))
		for _, item := range req.Items {
			if _, err := s.departmentItem(ctx, tx, req.DepartmentID, item.BillItemID); err != nil {
				return err
			}
			line := &model.BillItemRelation{BillItemID: item.BillItemID, Quantity: item.Quantity, Discount: item.Discount}
			if item.Amount != nil {
				line.Amount = *item.Amount
			}
			lines = append(lines, line)
		}
		if err := s.insertLines(ctx, tx, bill.ID, lines); err != nil {
			return err
		}

		bill.Items = lines
		bill.TotalAmount = billTotal(lines, bill.Discount)
		if bill.TotalAmount.IsNegative() {
			return errs.Validation("invalid bill", errs.FieldError{Field: "discount", Error: "exceeds the bill amount"})
		}
		return s.setTotal(ctx, tx, bill.ID, bill.TotalAmount)
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

func billTotal(lines []*model.BillItemRelation, discount decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total.Sub(discount)
}

func (s *BillService) setTotal(ctx context.Context, db bun.IDB, billID int64, total decimal.Decimal) error {
	_, err := db.NewUpdate().
		Model((*model.Bill)(nil)).
		Set("total_amount = ?", total).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", billID).
		Exec(ctx)
	return errs.FromDB(err, EntityBill, billID)
}

func (s *BillService) dueDate(requested *time.Time) time.Time {
	if requested != nil && !requested.IsZero() {
		return *requested
	}
	return time.Now().Add(s.cfg.Billing.DefaultDueIn)
}

// Get returns an active bill with its active lines and their bill items.
func (s *BillService) Get(ctx context.Context, id int64) (*model.Bill, error) {
	bill := new(model.Bill)
	err := s.db.NewSelect().
		Model(bill).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true).OrderExpr("?TableAlias.id ASC")
		}).
		Relation("Items.BillItem").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, errs.FromDB(err, EntityBill, id)
	}
	return bill, nil
}

// ByStudent lists the active bills of a student, latest due date first.
func (s *BillService) ByStudent(ctx context.Context, studentID int64) ([]*model.Bill, error) {
	return s.repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.student_id = ?", studentID).OrderExpr("?TableAlias.due_date DESC")
	})
}

// RecalculateTotal recomputes a bill total from its active lines and
// re-derives its payment status.
func (s *BillService) RecalculateTotal(ctx context.Context, id int64) (*model.Bill, error) {
	err := s.inTx(ctx, EntityBill, func(ctx context.Context, tx bun.Tx) error {
		bill, err := s.bills.WithTx(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		lines, err := s.relations.WithTx(tx).List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.bill_id = ?", id)
		})
		if err != nil {
			return err
		}
		total := billTotal(lines, bill.Discount)
		if total.IsNegative() {
			total = decimal.Zero
		}
		if err := s.setTotal(ctx, tx, id, total); err != nil {
			return err
		}
		_, err = refreshBillStatus(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// MarkOverdue flags pending and partially paid bills due before asOf as
// overdue and returns how many changed.
func (s *BillService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*model.Bill)(nil)).
		Set("status = ?", model.BillOverdue).
		Set("updated_at = ?", time.Now()).
		Where("status IN (?)", bun.In([]model.BillStatus{model.BillPending, model.BillPartial})).
		Where("due_date < ?", asOf).
		Where("is_active = ?", true).
		Exec(ctx)
	if err != nil {
		return 0, errs.FromDB(err, EntityBill, 0)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Storage("bill", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("Bills marked overdue")
	}
	return n, nil
}

// Payments returns the payment service bound to the same store.
func (s *BillService) Payments() *PaymentService { return s.payments }
