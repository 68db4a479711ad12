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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/model"
)

type reportFixture struct {
	*billFixture
	adaBill *model.Bill
	bobBill *model.Bill
}

// newReportFixture bills Ada and Bob 120 each. Ada pays in full; Bob pays 50
// plus a pending 30.
func newReportFixture(t *testing.T, s *Store) *reportFixture {
	t.Helper()
	ctx := context.Background()
	f := newBillFixture(t, s, "Ada", "Bob")
	_, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{
		{BillItemID: f.tuition.ID},
		{BillItemID: f.books.ID},
	}, "Term1")
	require.NoError(t, err)

	r := &reportFixture{billFixture: f}
	for i, dst := range []**model.Bill{&r.adaBill, &r.bobBill} {
		bills, err := s.Bills.ByStudent(ctx, f.students[i].ID)
		require.NoError(t, err)
		require.Len(t, bills, 1)
		*dst = bills[0]
	}

	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Payments.Record(ctx, &model.Payment{BillID: r.adaBill.ID, Amount: dec("120"), PaymentDate: day}))
	require.NoError(t, s.Payments.Record(ctx, &model.Payment{BillID: r.bobBill.ID, Amount: dec("50"), PaymentDate: day.AddDate(0, 0, 2)}))
	require.NoError(t, s.Payments.Record(ctx, &model.Payment{BillID: r.bobBill.ID, Amount: dec("30"), PaymentDate: day.AddDate(0, 0, 1), Status: model.PaymentPending}))
	return r
}

func TestStudentBillingSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReportFixture(t, s)

	rows, err := s.Reports.StudentBillingSummary(ctx, r.students[1].ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, r.dept.ID, rows[0].DepartmentID)
	assert.Equal(t, "Science", rows[0].DepartmentName)
	assert.Equal(t, 1, rows[0].BillCount)
	assertDecimal(t, "120", rows[0].TotalBilled)
	assertDecimal(t, "50", rows[0].TotalPaid)
	assertDecimal(t, "70", rows[0].TotalUnpaid)

	_, err = s.Reports.StudentBillingSummary(ctx, 999)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDepartmentBillingSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReportFixture(t, s)
	empty := seedDepartment(t, s, "Arts")

	sum, err := s.Reports.DepartmentBillingSummary(ctx, r.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.StudentCount)
	assert.Equal(t, 2, sum.BillCount)
	assertDecimal(t, "240", sum.TotalBilled)
	assertDecimal(t, "170", sum.TotalPaid)
	assertDecimal(t, "70", sum.TotalUnpaid)

	all, err := s.Reports.DepartmentBillingSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, empty.ID, all[0].DepartmentID)
	assert.Zero(t, all[0].BillCount)
	assert.True(t, all[0].TotalBilled.IsZero())

	_, err = s.Reports.DepartmentBillingSummary(ctx, 999)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBillingSummaryExcludesCancelledAndInactive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReportFixture(t, s)

	r.bobBill.Status = model.BillCancelled
	require.NoError(t, s.Bills.Update(ctx, r.bobBill))

	sum, err := s.Reports.DepartmentBillingSummary(ctx, r.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.StudentCount)
	assertDecimal(t, "120", sum.TotalBilled)

	require.NoError(t, s.Bills.Delete(ctx, r.adaBill.ID))
	sum, err = s.Reports.DepartmentBillingSummary(ctx, r.dept.ID)
	require.NoError(t, err)
	assert.Zero(t, sum.BillCount)
	assert.True(t, sum.TotalUnpaid.IsZero())
}

func TestOutstandingPayments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReportFixture(t, s)

	rows, err := s.Reports.OutstandingPayments(ctx, OutstandingFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, r.bobBill.ID, rows[0].BillID)
	assert.Equal(t, "Bob", rows[0].Firstname)
	assert.Equal(t, model.BillPartial, rows[0].Status)
	assertDecimal(t, "50", rows[0].AmountPaid)
	assertDecimal(t, "70", rows[0].AmountDue)

	rows, err = s.Reports.OutstandingPayments(ctx, OutstandingFilter{StudentID: r.students[0].ID})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.Reports.OutstandingPayments(ctx, OutstandingFilter{DepartmentID: r.dept.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPaymentHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReportFixture(t, s)

	rows, err := s.Reports.PaymentHistory(ctx, r.students[1].ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.PaymentPending, rows[0].Status)
	assertDecimal(t, "30", rows[0].Amount)
	assert.Equal(t, model.PaymentCompleted, rows[1].Status)
	assert.True(t, rows[0].PaymentDate.Before(rows[1].PaymentDate))
	assert.Equal(t, "Term1", rows[1].BillName)
	assert.Equal(t, "Science", rows[1].DepartmentName)
}

func TestDepartmentEnrollmentStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := seedDepartment(t, s, "Science")
	seedDepartment(t, s, "Arts")
	students := seedStudents(t, s, "A", "B", "C", "D")
	_, err := s.Enrollments.BulkEnroll(ctx, d.ID, studentIDs(students))
	require.NoError(t, err)

	require.NoError(t, s.Enrollments.Complete(ctx, students[0].ID, d.ID))
	require.NoError(t, s.Enrollments.Unenroll(ctx, students[1].ID, d.ID))
	require.NoError(t, s.Students.Delete(ctx, students[3].ID))

	stats, err := s.Reports.DepartmentEnrollmentStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, EnrollmentStats{DepartmentID: stats[0].DepartmentID, DepartmentName: "Arts"}, *stats[0])
	assert.Equal(t, EnrollmentStats{
		DepartmentID:   d.ID,
		DepartmentName: "Science",
		Total:          3,
		Active:         1,
		Completed:      1,
		Withdrawn:      1,
	}, *stats[1])
}
