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
	"github.com/tomoncle/bursar/model"
	"github.com/tomoncle/bursar/repository"
	"github.com/tomoncle/bursar/validation"
	"github.com/uptrace/bun"
)

// DepartmentService manages departments and their bill item catalog.
type DepartmentService struct {
	*baseServiceImpl[model.Department]
}

var _ Service[model.Department] = (*DepartmentService)(nil)

// DepartmentWithItems is a department with its active bill items and their sum.
type DepartmentWithItems struct {
	*model.Department
	BillItems   []*model.BillItem `json:"billItems"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
}

// CreateWithBillItems inserts dept and every item tagged with the new
// department id in one transaction.
func (s *DepartmentService) CreateWithBillItems(ctx context.Context, dept *model.Department, items []*model.BillItem) (*DepartmentWithItems, error) {
	if err := validation.Struct(dept); err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, EntityDepartment, func(ctx context.Context, tx bun.Tx) error {
		if err := s.departments.WithTx(tx).Create(ctx, dept); err != nil {
			return err
		}
		return insertBillItems(ctx, s.billItems.WithTx(tx), dept.ID, items)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("department_id", dept.ID).WithField("items", len(items)).Info("Department created")
	return withItems(dept, items), nil
}

// UpdateWithBillItems updates dept. When items is non-nil every bill item of
// the department is removed and the supplied set inserted in its place.
func (s *DepartmentService) UpdateWithBillItems(ctx context.Context, dept *model.Department, items []*model.BillItem) (*DepartmentWithItems, error) {
	if err := requireID(dept); err != nil {
		return nil, err
	}
	if err := validation.Struct(dept); err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	var current []*model.BillItem
	err := s.inTx(ctx, EntityDepartment, func(ctx context.Context, tx bun.Tx) error {
		if err := s.departments.WithTx(tx).Update(ctx, dept); err != nil {
			return err
		}
		billItems := s.billItems.WithTx(tx)
		if items != nil {
			_, err := tx.NewDelete().
				Model((*model.BillItem)(nil)).
				Where("department_id = ?", dept.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
			if err := insertBillItems(ctx, billItems, dept.ID, items); err != nil {
				return err
			}
		}
		var err error
		current, err = listByDepartment(ctx, billItems, dept.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return withItems(dept, current), nil
}

// GetWithBillItems returns the department and its active bill items.
func (s *DepartmentService) GetWithBillItems(ctx context.Context, id int64) (*DepartmentWithItems, error) {
	dept, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := listByDepartment(ctx, s.billItems, id)
	if err != nil {
		return nil, err
	}
	return withItems(dept, items), nil
}

// Students returns the active students holding an active enrollment in the
// department, ordered by first name.
func (s *DepartmentService) Students(ctx context.Context, id int64) ([]*model.Student, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.students.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Join("JOIN student_departments AS sd ON sd.student_id = s.id").
			Where("sd.department_id = ?", id).
			Where("sd.is_active = ?", true).
			Where("sd.status <> ?", model.EnrollmentWithdrawn)
	})
}

func validateItems(items []*model.BillItem) error {
	for _, item := range items {
		if err := validation.Struct(item); err != nil {
			return err
		}
	}
	return nil
}

func insertBillItems(ctx context.Context, repo repository.Repository[model.BillItem], departmentID int64, items []*model.BillItem) error {
	for _, item := range items {
		item.ID = 0
		item.DepartmentID = departmentID
		if err := repo.Create(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func listByDepartment(ctx context.Context, repo repository.Repository[model.BillItem], departmentID int64) ([]*model.BillItem, error) {
	return repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.department_id = ?", departmentID)
	})
}

func withItems(dept *model.Department, items []*model.BillItem) *DepartmentWithItems {
	if items == nil {
		items = make([]*model.BillItem, 0)
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return &DepartmentWithItems{Department: dept, BillItems: items, TotalAmount: total}
}
