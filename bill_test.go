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

type billFixture struct {
	dept     *DepartmentWithItems
	tuition  *model.BillItem
	books    *model.BillItem
	students []*model.Student
}

// newBillFixture creates a department with Tuition=100 and Books=20 and
// enrolls the named students.
func newBillFixture(t *testing.T, s *Store, names ...string) *billFixture {
	t.Helper()
	d := seedDepartment(t, s, "Science",
		&model.BillItem{Name: "Tuition", Amount: dec("100"), IsRequired: true},
		&model.BillItem{Name: "Books", Amount: dec("20")},
	)
	students := seedStudents(t, s, names...)
	if len(students) > 0 {
		res, err := s.Enrollments.BulkEnroll(context.Background(), d.ID, studentIDs(students))
		require.NoError(t, err)
		require.Equal(t, len(students), res.SuccessCount)
	}
	return &billFixture{dept: d, tuition: d.BillItems[0], books: d.BillItems[1], students: students}
}

func TestCreateBillsForDepartmentScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada", "Bob")

	res, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{
		{BillItemID: f.tuition.ID},
		{BillItemID: f.books.ID},
	}, "Term1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.BillsCreated)
	assertDecimal(t, "240", res.TotalAmount)
	assert.Empty(t, res.Errors)

	bills, err := s.Bills.All(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	sum := dec("0")
	for _, b := range bills {
		assertDecimal(t, "120", b.TotalAmount)
		assert.Equal(t, model.BillPending, b.Status)
		assert.Equal(t, "Term1", b.Name)
		assert.True(t, b.DueDate.After(time.Now().Add(29*24*time.Hour)))
		sum = sum.Add(b.TotalAmount)
	}
	assert.True(t, sum.Equal(res.TotalAmount))
	assert.Equal(t, 4, countRows(t, s, (*model.BillItemRelation)(nil)))

	got, err := s.Bills.Get(ctx, bills[0].ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	require.NotNil(t, got.Items[0].BillItem)
	assert.Equal(t, "Tuition", got.Items[0].BillItem.Name)
}

func TestCreateBillsForDepartmentOverridesAndQuantity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	due := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	override := dec("50")

	res, err := s.Bills.GenerateBills(ctx, &GenerateBillsRequest{
		DepartmentID: f.dept.ID,
		Name:         "Term2",
		DueDate:      &due,
		Items: []DepartmentBillItem{
			{BillItemID: f.tuition.ID, Amount: &override, Quantity: 2},
			{BillItemID: f.books.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.BillsCreated)
	assertDecimal(t, "160", res.TotalAmount)

	bills, err := s.Bills.ByStudent(ctx, f.students[0].ID)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assertDecimal(t, "160", bills[0].TotalAmount)
	assert.True(t, due.Equal(bills[0].DueDate))
}

func TestCreateBillsForDepartmentRecordsStudentErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada", "Bob")

	res, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{
		{BillItemID: f.tuition.ID},
		{BillItemID: 999},
	}, "Term1")
	require.NoError(t, err)
	assert.Zero(t, res.BillsCreated)
	assert.True(t, res.TotalAmount.IsZero())
	require.Len(t, res.Errors, 2)
	for i, e := range res.Errors {
		assert.Equal(t, f.students[i].ID, e.StudentID)
		assert.Equal(t, "Bill item not found", e.Error)
	}
	assert.Zero(t, countRows(t, s, (*model.Bill)(nil)))
	assert.Zero(t, countRows(t, s, (*model.BillItemRelation)(nil)))
}

func TestCreateBillsForDepartmentRejectsItemWithoutAmount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	free := &model.BillItem{Name: "Free", Amount: dec("0"), DepartmentID: f.dept.ID}
	require.NoError(t, s.BillItems.Create(ctx, free))

	res, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{{BillItemID: free.ID}}, "Term1")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Bill item has no amount", res.Errors[0].Error)
}

func TestCreateBillsForDepartmentChecksOverriddenItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada", "Bob")
	arts := seedDepartment(t, s, "Arts", &model.BillItem{Name: "Paint", Amount: dec("7")})
	override := dec("50")
	require.NoError(t, s.BillItems.Delete(ctx, f.books.ID))

	cases := []struct {
		name   string
		itemID int64
		errMsg string
	}{
		{"unknown item", 999, "Bill item not found"},
		{"deleted item", f.books.ID, "Bill item not found"},
		{"other department", arts.BillItems[0].ID, "Bill item belongs to another department"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{
				{BillItemID: f.tuition.ID},
				{BillItemID: tc.itemID, Amount: &override},
			}, "Term1")
			require.NoError(t, err)
			assert.Zero(t, res.BillsCreated)
			assert.True(t, res.TotalAmount.IsZero())
			require.Len(t, res.Errors, 2)
			for i, e := range res.Errors {
				assert.Equal(t, f.students[i].ID, e.StudentID)
				assert.Contains(t, e.Error, tc.errMsg)
			}
			assert.Zero(t, countRows(t, s, (*model.Bill)(nil)))
			assert.Zero(t, countRows(t, s, (*model.BillItemRelation)(nil)))
		})
	}
}

func TestCreateBillsForDepartmentSkipsInactiveEnrollments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada", "Bob", "Cy")
	require.NoError(t, s.Enrollments.Unenroll(ctx, f.students[1].ID, f.dept.ID))
	require.NoError(t, s.Students.Delete(ctx, f.students[2].ID))

	res, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{{BillItemID: f.tuition.ID}}, "Term1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.BillsCreated)
	assertDecimal(t, "100", res.TotalAmount)
}

func TestCreateBillsForDepartmentPreconditions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s)

	_, err := s.Bills.CreateBillsForDepartment(ctx, 999, []DepartmentBillItem{{BillItemID: f.tuition.ID}}, "Term1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, nil, "Term1")
	require.ErrorIs(t, err, errs.ErrValidation)

	res, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{{BillItemID: f.tuition.ID}}, "Term1")
	require.NoError(t, err)
	assert.Zero(t, res.BillsCreated)
	assert.NotNil(t, res.Errors)
}

func TestCreateBillWithItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	tuition, books := dec("100"), dec("20")

	bill, err := s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Custom",
		Note:         "sibling discount",
		Discount:     dec("5"),
		Items: []BillLineRequest{
			{BillItemID: f.tuition.ID, Amount: &tuition, Quantity: 2, Discount: dec("10")},
			{BillItemID: f.books.ID, Amount: &books},
		},
	})
	require.NoError(t, err)
	assertDecimal(t, "205", bill.TotalAmount)
	require.Len(t, bill.Items, 2)
	assert.Equal(t, 1, bill.Items[1].Quantity)

	got, err := s.Bills.Get(ctx, bill.ID)
	require.NoError(t, err)
	assertDecimal(t, "205", got.TotalAmount)
	assertDecimal(t, "5", got.Discount)
	require.Len(t, got.Items, 2)
	lines := dec("0")
	for _, item := range got.Items {
		lines = lines.Add(item.LineTotal())
	}
	assert.True(t, lines.Sub(got.Discount).Equal(got.TotalAmount))
}

func TestCreateBillWithItemsAmountDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")

	bill, err := s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Placeholder",
		Items:        []BillLineRequest{{BillItemID: f.tuition.ID}},
	})
	require.NoError(t, err)
	assert.True(t, bill.TotalAmount.IsZero())
}

func TestCreateBillWithItemsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	amount := dec("100")

	_, err := s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Broken",
		Items: []BillLineRequest{
			{BillItemID: f.tuition.ID, Amount: &amount},
			{BillItemID: 999, Amount: &amount},
		},
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Zero(t, countRows(t, s, (*model.Bill)(nil)))
	assert.Zero(t, countRows(t, s, (*model.BillItemRelation)(nil)))

	_, err = s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Over discounted",
		Discount:     dec("500"),
		Items:        []BillLineRequest{{BillItemID: f.tuition.ID, Amount: &amount}},
	})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Zero(t, countRows(t, s, (*model.Bill)(nil)))

	_, err = s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    404,
		DepartmentID: f.dept.ID,
		Name:         "Nobody",
		Items:        []BillLineRequest{{BillItemID: f.tuition.ID}},
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.EqualError(t, err, "Student not found")
}

func TestCreateBillWithItemsRejectsForeignItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	arts := seedDepartment(t, s, "Arts", &model.BillItem{Name: "Paint", Amount: dec("7")})
	amount := dec("7")

	_, err := s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Mixed",
		Items: []BillLineRequest{
			{BillItemID: f.tuition.ID},
			{BillItemID: arts.BillItems[0].ID, Amount: &amount},
		},
	})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "Bill item belongs to another department")
	assert.Zero(t, countRows(t, s, (*model.Bill)(nil)))

	require.NoError(t, s.BillItems.Delete(ctx, f.books.ID))
	_, err = s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Deleted item",
		Items:        []BillLineRequest{{BillItemID: f.books.ID, Amount: &amount}},
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Zero(t, countRows(t, s, (*model.Bill)(nil)))
}

func TestRecalculateTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	amount := dec("100")
	bill, err := s.Bills.CreateBillWithItems(ctx, &BillWithItemsRequest{
		StudentID:    f.students[0].ID,
		DepartmentID: f.dept.ID,
		Name:         "Term1",
		Items:        []BillLineRequest{{BillItemID: f.tuition.ID, Amount: &amount}},
	})
	require.NoError(t, err)

	require.NoError(t, s.BillItems.AddRelation(ctx, &model.BillItemRelation{
		BillID: bill.ID, BillItemID: f.books.ID, Amount: dec("20"), Quantity: 2,
	}))
	got, err := s.Bills.Get(ctx, bill.ID)
	require.NoError(t, err)
	assertDecimal(t, "100", got.TotalAmount)

	got, err = s.Bills.RecalculateTotal(ctx, bill.ID)
	require.NoError(t, err)
	assertDecimal(t, "140", got.TotalAmount)
	assert.Len(t, got.Items, 2)

	err = s.BillItems.AddRelation(ctx, &model.BillItemRelation{BillID: 999, BillItemID: f.books.ID})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBillRelations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada")
	_, err := s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{{BillItemID: f.books.ID}}, "Books")
	require.NoError(t, err)

	rels, err := s.BillItems.Relations(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.NotNil(t, rels[0].BillItem)
	assert.Equal(t, "Books", rels[0].BillItem.Name)

	rel, err := s.BillItems.GetRelation(ctx, rels[0].ID)
	require.NoError(t, err)
	assertDecimal(t, "20", rel.Amount)

	_, err = s.BillItems.GetRelation(ctx, 999)
	require.ErrorIs(t, err, errs.ErrNotFound)

	items, err := s.BillItems.ByDepartment(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMarkOverdue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := newBillFixture(t, s, "Ada", "Bob")
	past := time.Now().Add(-48 * time.Hour)

	_, err := s.Bills.GenerateBills(ctx, &GenerateBillsRequest{
		DepartmentID: f.dept.ID,
		Name:         "Late",
		DueDate:      &past,
		Items:        []DepartmentBillItem{{BillItemID: f.tuition.ID}},
	})
	require.NoError(t, err)
	_, err = s.Bills.CreateBillsForDepartment(ctx, f.dept.ID, []DepartmentBillItem{{BillItemID: f.books.ID}}, "Future")
	require.NoError(t, err)

	n, err := s.Bills.MarkOverdue(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.Bills.MarkOverdue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	bills, err := s.Bills.ByStudent(ctx, f.students[0].ID)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "Future", bills[0].Name)
	assert.Equal(t, model.BillPending, bills[0].Status)
	assert.Equal(t, model.BillOverdue, bills[1].Status)
}
