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

package repository

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/types"
	"github.com/uptrace/bun"
)

// Operator is a comparison allowed in a Filter.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

var comparisons = map[Operator]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// FieldSet enumerates the columns a search may touch.
type FieldSet struct {
	// Text columns matched case-insensitively by Search.Text, OR'd together.
	Text []string
	// Filterable columns usable in Filters.
	Filterable []string
	// Sortable columns usable in Search.SortBy.
	Sortable []string
	// DefaultSort orders All and Search when no sort is requested.
	DefaultSort string
}

// Filter is a single AND'd condition.
type Filter struct {
	Field string      `json:"field"`
	Op    Operator    `json:"op"`
	Value interface{} `json:"value"`
}

// Search is a paginated query: free text, typed filters and one sort term.
type Search struct {
	types.PageRequest
	Text            string              `json:"text"`
	Filters         []Filter            `json:"filters"`
	SortBy          string              `json:"sortBy"`
	SortDir         types.SortDirection `json:"sortDir"`
	IncludeInactive bool                `json:"includeInactive"`
}

// NewSearch starts a search for one page.
func NewSearch(page, pageSize int) *Search {
	return &Search{PageRequest: types.NewPageRequest(page, pageSize)}
}

func (s *Search) WithText(text string) *Search {
	s.Text = text
	return s
}

func (s *Search) Where(field string, op Operator, value interface{}) *Search {
	s.Filters = append(s.Filters, Filter{Field: field, Op: op, Value: value})
	return s
}

func (s *Search) OrderBy(field string, dir types.SortDirection) *Search {
	s.SortBy = field
	s.SortDir = dir
	return s
}

// likeEscaper escapes LIKE wildcards with '!', which needs no quoting in any
// supported dialect.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern matches text literally anywhere in a lowercased column.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
}

// apply validates the search against fields and adds its terms to q.
func (s *Search) apply(q *bun.SelectQuery, fields FieldSet) (*bun.SelectQuery, error) {
	if !s.IncludeInactive {
		q = q.Where("?TableAlias.is_active = ?", true)
	}

	if text := strings.TrimSpace(s.Text); text != "" && len(fields.Text) > 0 {
		pattern := containsPattern(text)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, col := range fields.Text {
				q = q.WhereOr("LOWER(?TableAlias.?) LIKE ? ESCAPE '!'", bun.Ident(col), pattern)
			}
			return q
		})
	}

	var invalid []errs.FieldError
	for i, f := range s.Filters {
		if !slices.Contains(fields.Filterable, f.Field) {
			invalid = append(invalid, errs.FieldError{Field: fmt.Sprintf("filters[%d].field", i), Error: fmt.Sprintf("unknown field %q", f.Field)})
			continue
		}
		if f.Op == OpContains {
			q = q.Where("LOWER(?TableAlias.?) LIKE ? ESCAPE '!'", bun.Ident(f.Field), containsPattern(fmt.Sprint(f.Value)))
			continue
		}
		cmp, ok := comparisons[f.Op]
		if !ok {
			invalid = append(invalid, errs.FieldError{Field: fmt.Sprintf("filters[%d].op", i), Error: fmt.Sprintf("unknown operator %q", f.Op)})
			continue
		}
		q = q.Where("?TableAlias.? "+cmp+" ?", bun.Ident(f.Field), f.Value)
	}

	sortBy := s.SortBy
	if sortBy == "" {
		sortBy = fields.DefaultSort
	} else if !slices.Contains(fields.Sortable, sortBy) {
		invalid = append(invalid, errs.FieldError{Field: "sortBy", Error: fmt.Sprintf("unknown field %q", sortBy)})
	}
	dir := strings.ToLower(string(s.SortDir))
	switch types.SortDirection(dir) {
	case "":
		dir = string(types.SortAsc)
	case types.SortAsc, types.SortDesc:
	default:
		invalid = append(invalid, errs.FieldError{Field: "sortDir", Error: "must be one of: asc desc"})
	}

	if len(invalid) > 0 {
		return nil, errs.Validation("invalid search", invalid...)
	}
	if sortBy != "" {
		q = q.OrderExpr("?TableAlias.? "+strings.ToUpper(dir), bun.Ident(sortBy))
	}
	return q.OrderExpr("?TableAlias.id ASC"), nil
}
