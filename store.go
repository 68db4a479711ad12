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

// Package bursar is the billing and enrollment data layer: students,
// departments, enrollments, bill items, bills and payments kept in a Bun
// store, with transactional bulk operations and read-only reports.
//
//	store, err := bursar.Open(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//	res, err := store.Enrollments.BulkEnroll(ctx, deptID, studentIDs)
package bursar

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/bursar/config"
	"github.com/tomoncle/bursar/database"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
	"github.com/tomoncle/bursar/repository"
	"github.com/tomoncle/bursar/utils"
	"github.com/uptrace/bun"
)

const (
	EntityStudent          = "Student"
	EntityDepartment       = "Department"
	EntityEnrollment       = "Enrollment"
	EntityBillItem         = "Bill item"
	EntityBill             = "Bill"
	EntityBillItemRelation = "Bill item relation"
	EntityPayment          = "Payment"
)

var (
	studentFields = repository.FieldSet{
		Text:        []string{"firstname", "othernames", "phone", "address"},
		Filterable:  []string{"id", "firstname", "othernames", "phone", "address", "status", "created_at"},
		Sortable:    []string{"id", "firstname", "othernames", "status", "created_at", "updated_at"},
		DefaultSort: "firstname",
	}
	departmentFields = repository.FieldSet{
		Text:        []string{"name", "term", "description"},
		Filterable:  []string{"id", "name", "term", "year", "start_date", "end_date", "created_at"},
		Sortable:    []string{"id", "name", "term", "year", "start_date", "created_at"},
		DefaultSort: "name",
	}
	enrollmentFields = repository.FieldSet{
		Filterable:  []string{"student_id", "department_id", "status", "enrollment_date"},
		Sortable:    []string{"enrollment_date", "status"},
		DefaultSort: "enrollment_date",
	}
	billItemFields = repository.FieldSet{
		Text:        []string{"name", "category"},
		Filterable:  []string{"id", "name", "category", "department_id", "amount", "is_required"},
		Sortable:    []string{"id", "name", "category", "amount", "created_at"},
		DefaultSort: "name",
	}
	billFields = repository.FieldSet{
		Text:        []string{"name", "note"},
		Filterable:  []string{"id", "name", "student_id", "department_id", "status", "due_date", "total_amount"},
		Sortable:    []string{"id", "name", "due_date", "total_amount", "status", "created_at"},
		DefaultSort: "name",
	}
	relationFields = repository.FieldSet{
		Filterable: []string{"bill_id", "bill_item_id"},
	}
	paymentFields = repository.FieldSet{
		Text:        []string{"method", "reference"},
		Filterable:  []string{"bill_id", "student_id", "status", "method", "payment_date", "amount"},
		Sortable:    []string{"payment_date", "amount", "status"},
		DefaultSort: "payment_date",
	}
)

// core is shared by every service of one Store.
type core struct {
	db  *bun.DB
	cfg *config.Config
	log *logrus.Logger

	students    repository.Repository[model.Student]
	departments repository.Repository[model.Department]
	enrollments repository.Repository[model.Enrollment]
	billItems   repository.Repository[model.BillItem]
	bills       repository.Repository[model.Bill]
	relations   repository.Repository[model.BillItemRelation]
	payments    repository.Repository[model.Payment]
}

func newCore(db *bun.DB, cfg *config.Config) *core {
	maxPage := cfg.Billing.MaxPageSize
	opts := func(entity string, fields repository.FieldSet) repository.Options {
		return repository.Options{Entity: entity, Fields: fields, MaxPageSize: maxPage}
	}
	return &core{
		db:          db,
		cfg:         cfg,
		log:         utils.NewLogger("BILLING"),
		students:    repository.NewRepository[model.Student](db, opts(EntityStudent, studentFields)),
		departments: repository.NewRepository[model.Department](db, opts(EntityDepartment, departmentFields)),
		enrollments: repository.NewRepository[model.Enrollment](db, opts(EntityEnrollment, enrollmentFields)),
		billItems:   repository.NewRepository[model.BillItem](db, opts(EntityBillItem, billItemFields)),
		bills:       repository.NewRepository[model.Bill](db, opts(EntityBill, billFields)),
		relations:   repository.NewRepository[model.BillItemRelation](db, opts(EntityBillItemRelation, relationFields)),
		payments:    repository.NewRepository[model.Payment](db, opts(EntityPayment, paymentFields)),
	}
}

// inTx runs fn in one transaction and converts stray driver errors.
func (c *core) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := database.InTx(ctx, c.db, fn)
	if err == nil || errs.IsBusiness(err) {
		return err
	}
	return errs.FromDB(err, op, 0)
}

func requireID(v interface{}) error {
	e, ok := v.(repository.Entity)
	if !ok || e.GetID() == 0 {
		return errs.Validation("ID required")
	}
	return nil
}

// Store is the entry point: one service per record type plus reports.
type Store struct {
	*core
	factory *database.BaseDatabaseFactory

	Students    *StudentService
	Departments *DepartmentService
	BillItems   *BillItemService
	Bills       *BillService
	Enrollments *EnrollmentService
	Payments    *PaymentService
	Reports     *ReportService
}

// Open connects with cfg.Database, migrates the schema when enabled and
// returns a ready Store. A nil cfg means config.Default().
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Log.ApplyLogging()
	factory, err := database.Open(ctx, &cfg.Database, model.NewSchema(), nil)
	if err != nil {
		return nil, err
	}
	store := New(factory.GetDB(), cfg)
	store.factory = factory
	return store, nil
}

// New wraps an already migrated database. Close does not close db.
func New(db *bun.DB, cfg *config.Config) *Store {
	if cfg == nil {
		cfg = config.Default()
	}
	c := newCore(db, cfg)
	s := &Store{core: c}
	s.Students = &StudentService{baseServiceImpl: newBaseServiceImpl(c, c.students)}
	s.Departments = &DepartmentService{baseServiceImpl: newBaseServiceImpl(c, c.departments)}
	s.BillItems = &BillItemService{baseServiceImpl: newBaseServiceImpl(c, c.billItems)}
	s.Payments = &PaymentService{core: c}
	s.Bills = &BillService{baseServiceImpl: newBaseServiceImpl(c, c.bills), payments: s.Payments}
	s.Enrollments = &EnrollmentService{core: c}
	s.Reports = &ReportService{core: c}
	return s
}

func (s *Store) DB() *bun.DB { return s.db }

func (s *Store) Config() *config.Config { return s.cfg }

// InitData runs the SQL seed files configured in cfg.Database.DataInitConfig.
func (s *Store) InitData(ctx context.Context) error {
	if s.factory == nil {
		return database.NewMigrationManager(s.db, nil, nil, &s.cfg.Database).InitData(ctx)
	}
	return s.factory.GetManager().InitData(ctx, &s.cfg.Database)
}

// Health pings the store.
func (s *Store) Health(ctx context.Context) *database.HealthStatus {
	if s.factory == nil {
		status := &database.HealthStatus{}
		if err := s.db.PingContext(ctx); err != nil {
			status.LastError = err.Error()
			return status
		}
		status.Healthy, status.Connected = true, true
		return status
	}
	return s.factory.GetHealthStatus(ctx)
}

func (s *Store) Stats() *database.DBStats {
	if s.factory == nil {
		return &database.DBStats{}
	}
	return s.factory.GetStats()
}

// Close releases the connection opened by Open.
func (s *Store) Close() error {
	if s.factory == nil {
		return nil
	}
	if err := s.factory.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
