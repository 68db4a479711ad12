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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
	"github.com/tomoncle/bursar/repository"
	"github.com/tomoncle/bursar/types"
	"github.com/tomoncle/bursar/validation"
	"github.com/uptrace/bun"
)

// PaymentService records payments against bills and keeps each bill's status
// in line with its completed payments.
type PaymentService struct {
	*core
}

// Record validates and stores p, then refreshes the bill status. StudentID
// defaults to the bill's student and a blank Reference is generated.
func (s *PaymentService) Record(ctx context.Context, p *model.Payment) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	err := s.inTx(ctx, EntityPayment, func(ctx context.Context, tx bun.Tx) error {
		bill, err := s.bills.WithTx(tx).Get(ctx, p.BillID)
		if err != nil {
			return err
		}
		if bill.Status == model.BillCancelled {
			return errs.Validation("bill is cancelled", errs.FieldError{Field: "billId", Error: "refers to a cancelled bill"})
		}
		if p.StudentID == 0 {
			p.StudentID = bill.StudentID
		} else if p.StudentID != bill.StudentID {
			return errs.Validation("invalid payment", errs.FieldError{Field: "studentId", Error: "does not match the bill"})
		}
		if p.Reference == "" {
			p.Reference = s.cfg.Billing.PaymentReferencePrefix + uuid.NewString()
		}
		if err := s.payments.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}
		_, err = refreshBillStatus(ctx, tx, p.BillID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.WithField("bill_id", p.BillID).WithField("amount", p.Amount.StringFixed(2)).Info("Payment recorded")
	return nil
}

func (s *PaymentService) Get(ctx context.Context, id int64) (*model.Payment, error) {
	return s.payments.Get(ctx, id)
}

// ByBill lists the active payments of a bill in payment order.
func (s *PaymentService) ByBill(ctx context.Context, billID int64) ([]*model.Payment, error) {
	return s.payments.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.bill_id = ?", billID)
	})
}

// ByStudent lists the active payments of a student in payment order.
func (s *PaymentService) ByStudent(ctx context.Context, studentID int64) ([]*model.Payment, error) {
	return s.payments.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.student_id = ?", studentID)
	})
}

// UpdateStatus changes a payment status and refreshes its bill.
func (s *PaymentService) UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus) error {
	if !status.IsValid() {
		return errs.Validation("invalid payment status", errs.FieldError{Field: "status", Error: "must be one of: completed pending failed refunded"})
	}
	return s.inTx(ctx, EntityPayment, func(ctx context.Context, tx bun.Tx) error {
		payments := s.payments.WithTx(tx)
		p, err := payments.Get(ctx, id)
		if err != nil {
			return err
		}
		p.Status = status
		if err := payments.Update(ctx, p); err != nil {
			return err
		}
		_, err = refreshBillStatus(ctx, tx, p.BillID)
		return err
	})
}

// Delete soft-deletes a payment and refreshes its bill.
func (s *PaymentService) Delete(ctx context.Context, id int64) error {
	return s.inTx(ctx, EntityPayment, func(ctx context.Context, tx bun.Tx) error {
		payments := s.payments.WithTx(tx)
		p, err := payments.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := payments.Delete(ctx, id); err != nil {
			return err
		}
		_, err = refreshBillStatus(ctx, tx, p.BillID)
		return err
	})
}

func (s *PaymentService) Search(ctx context.Context, search *repository.Search) (*types.Pagination[model.Payment], error) {
	return s.payments.Search(ctx, search)
}

// paidAmount sums the completed, active payments of a bill.
func paidAmount(ctx context.Context, db bun.IDB, billID int64) (decimal.Decimal, error) {
	var paid decimal.NullDecimal
	err := db.NewSelect().
		Model((*model.Payment)(nil)).
		ColumnExpr("SUM(?TableAlias.amount)").
		Where("?TableAlias.bill_id = ?", billID).
		Where("?TableAlias.status = ?", model.PaymentCompleted).
		Where("?TableAlias.is_active = ?", true).
		Scan(ctx, &paid)
	if err != nil {
		return decimal.Zero, errs.FromDB(err, EntityPayment, 0)
	}
	if !paid.Valid {
		return decimal.Zero, nil
	}
	return paid.Decimal, nil
}

// billStatusFor derives a bill status from what has been paid. Cancelled
// bills keep their status and unpaid overdue bills stay overdue.
func billStatusFor(current model.BillStatus, total, paid decimal.Decimal) model.BillStatus {
	switch {
	case current == model.BillCancelled:
		return current
	case paid.IsPositive() && paid.GreaterThanOrEqual(total):
		return model.BillPaid
	case current == model.BillOverdue:
		return current
	case paid.IsPositive():
		return model.BillPartial
	default:
		return model.BillPending
	}
}

func refreshBillStatus(ctx context.Context, db bun.IDB, billID int64) (model.BillStatus, error) {
	bill := new(model.Bill)
	err := db.NewSelect().
		Model(bill).
		Column("id", "status", "total_amount").
		Where("?TableAlias.id = ?", billID).
		Scan(ctx)
	if err != nil {
		return "", errs.FromDB(err, EntityBill, billID)
	}
	paid, err := paidAmount(ctx, db, billID)
	if err != nil {
		return "", err
	}
	status := billStatusFor(bill.Status, bill.TotalAmount, paid)
	if status == bill.Status {
		return status, nil
	}
	_, err = db.NewUpdate().
		Model((*model.Bill)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", billID).
		Exec(ctx)
	if err != nil {
		return "", errs.FromDB(err, EntityBill, billID)
	}
	return status, nil
}
