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

	"github.com/shopspring/decimal"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
	"github.com/uptrace/bun"
)

// BillItemService manages the department bill item catalog and the lines
// linking bills to it.
type BillItemService struct {
	*baseServiceImpl[model.BillItem]
}

var _ Service[model.BillItem] = (*BillItemService)(nil)

// ByDepartment returns the active bill items of a department by name.
func (s *BillItemService) ByDepartment(ctx context.Context, departmentID int64) ([]*model.BillItem, error) {
	return listByDepartment(ctx, s.repo, departmentID)
}

// DepartmentTotal sums the active bill item amounts of a department.
func (s *BillItemService) DepartmentTotal(ctx context.Context, departmentID int64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.db.NewSelect().
		Model((*model.BillItem)(nil)).
		ColumnExpr("SUM(?TableAlias.amount)").
		Where("?TableAlias.department_id = ?", departmentID).
		Where("?TableAlias.is_active = ?", true).
		Scan(ctx, &total)
	if err != nil {
		return decimal.Zero, errs.FromDB(err, EntityBillItem, 0)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// AddRelation attaches a bill item to a bill. Bill and item must exist.
func (s *BillItemService) AddRelation(ctx context.Context, rel *model.BillItemRelation) error {
	if rel.Amount.IsNegative() || rel.Discount.IsNegative() || rel.Quantity < 0 {
		return errs.Validation("invalid bill item relation")
	}
	return s.inTx(ctx, EntityBillItemRelation, func(ctx context.Context, tx bun.Tx) error {
		if err := mustExist(ctx, s.bills.WithTx(tx), EntityBill, rel.BillID); err != nil {
			return err
		}
		if err := mustExist(ctx, s.billItems.WithTx(tx), EntityBillItem, rel.BillItemID); err != nil {
			return err
		}
		return s.relations.WithTx(tx).Create(ctx, rel)
	})
}

// Relations returns every active bill line with its bill item loaded.
func (s *BillItemService) Relations(ctx context.Context) ([]*model.BillItemRelation, error) {
	return s.relations.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("BillItem").OrderExpr("?TableAlias.bill_id ASC")
	})
}

// GetRelation returns one active bill line with its bill item loaded.
func (s *BillItemService) GetRelation(ctx context.Context, id int64) (*model.BillItemRelation, error) {
	rel := new(model.BillItemRelation)
	err := s.db.NewSelect().
		Model(rel).
		Relation("BillItem").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, errs.FromDB(err, EntityBillItemRelation, id)
	}
	return rel, nil
}

type existsChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

func mustExist(ctx context.Context, repo existsChecker, entity string, id int64) error {
	ok, err := repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound(entity, id)
	}
	return nil
}
