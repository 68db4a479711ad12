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
	"github.com/tomoncle/bursar/database"
)

const (
	TableStudents          = "students"
	TableDepartments       = "departments"
	TableEnrollments       = "student_departments"
	TableBillItems         = "bill_items"
	TableBills             = "bills"
	TableBillItemRelations = "bill_item_relations"
	TablePayments          = "payments"
)

func cascade(column, refTable string) database.ForeignKeyConstraint {
	return database.ForeignKeyConstraint{
		Column:          column,
		ReferenceTable:  refTable,
		ReferenceColumn: "id",
		OnDelete:        "CASCADE",
		OnUpdate:        "CASCADE",
	}
}

// NewSchema builds the store schema. Every call returns an independent copy
// so foreign key overrides from configuration stay local to one store.
func NewSchema() *database.Schema {
	return database.NewSchema(
		database.TableDef{
			Name:     TableStudents,
			Model:    (*Student)(nil),
			Priority: 10,
			Indexes: []database.IndexDef{
				{Name: "idx_students_firstname", Columns: []string{"firstname"}},
				{Name: "idx_students_status", Columns: []string{"status", "is_active"}},
			},
		},
		database.TableDef{
			Name:     TableDepartments,
			Model:    (*Department)(nil),
			Priority: 10,
			Indexes: []database.IndexDef{
				{Name: "idx_departments_name", Columns: []string{"name"}},
			},
		},
		database.TableDef{
			Name:        TableEnrollments,
			Model:       (*Enrollment)(nil),
			Priority:    20,
			ForeignKeys: []database.ForeignKeyConstraint{cascade("student_id", TableStudents), cascade("department_id", TableDepartments)},
			Indexes: []database.IndexDef{
				{Name: "idx_student_departments_department", Columns: []string{"department_id", "status"}},
			},
		},
		database.TableDef{
			Name:        TableBillItems,
			Model:       (*BillItem)(nil),
			Priority:    20,
			ForeignKeys: []database.ForeignKeyConstraint{cascade("department_id", TableDepartments)},
			Indexes: []database.IndexDef{
				{Name: "idx_bill_items_department", Columns: []string{"department_id"}},
			},
		},
		database.TableDef{
			Name:        TableBills,
			Model:       (*Bill)(nil),
			Priority:    30,
			ForeignKeys: []database.ForeignKeyConstraint{cascade("student_id", TableStudents), cascade("department_id", TableDepartments)},
			Indexes: []database.IndexDef{
				{Name: "idx_bills_student", Columns: []string{"student_id"}},
				{Name: "idx_bills_department", Columns: []string{"department_id"}},
				{Name: "idx_bills_status_due", Columns: []string{"status", "due_date"}},
			},
		},
		database.TableDef{
			Name:        TableBillItemRelations,
			Model:       (*BillItemRelation)(nil),
			Priority:    40,
			ForeignKeys: []database.ForeignKeyConstraint{cascade("bill_id", TableBills), cascade("bill_item_id", TableBillItems)},
			Indexes: []database.IndexDef{
				{Name: "idx_bill_item_relations_bill", Columns: []string{"bill_id"}},
				{Name: "idx_bill_item_relations_item", Columns: []string{"bill_item_id"}},
			},
		},
		database.TableDef{
			Name:        TablePayments,
			Model:       (*Payment)(nil),
			Priority:    40,
			ForeignKeys: []database.ForeignKeyConstraint{cascade("bill_id", TableBills), cascade("student_id", TableStudents)},
			Indexes: []database.IndexDef{
				{Name: "idx_payments_bill", Columns: []string{"bill_id"}},
				{Name: "idx_payments_student", Columns: []string{"student_id", "payment_date"}},
			},
		},
	)
}
