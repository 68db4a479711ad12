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

package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bursar/errs"
)

type line struct {
	Amount   decimal.Decimal `json:"amount" validate:"gte=0"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

type payload struct {
	Name  string `json:"name" validate:"required"`
	Kind  string `json:"kind" validate:"omitempty,oneof=a b"`
	Items []line `json:"items" validate:"min=1,dive"`
}

func TestStructValid(t *testing.T) {
	p := payload{Name: "x", Items: []line{{Amount: decimal.NewFromInt(5), Quantity: 1}}}
	assert.NoError(t, Struct(&p))
}

func TestStructFieldErrors(t *testing.T) {
	p := payload{Kind: "c", Items: []line{{Amount: decimal.NewFromInt(-1), Quantity: -2}}}
	err := Struct(&p)
	require.ErrorIs(t, err, errs.ErrValidation)

	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid payload", verr.Message)

	got := map[string]string{}
	for _, f := range verr.Fields {
		got[f.Field] = f.Error
	}
	assert.Equal(t, "is required", got["name"])
	assert.Equal(t, "must be one of: a b", got["kind"])
	assert.Equal(t, "must be greater than or equal to 0", got["items[0].amount"])
	assert.Equal(t, "must be greater than or equal to 0", got["items[0].quantity"])
}

func TestStructEmptySlice(t *testing.T) {
	err := Struct(&payload{Name: "x"})
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "items", verr.Fields[0].Field)
	assert.Equal(t, "must contain at least 1 item(s)", verr.Fields[0].Error)
}

type window struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end" validate:"omitempty,gtefield=Start"`
}

func TestStructFieldComparison(t *testing.T) {
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, 0)
	assert.NoError(t, Struct(&window{Start: &start, End: &end}))
	assert.NoError(t, Struct(&window{Start: &start}))

	err := Struct(&window{Start: &end, End: &start})
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "end", verr.Fields[0].Field)
	assert.Equal(t, "must not be before Start", verr.Fields[0].Error)
}
