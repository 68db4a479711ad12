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

package types

import (
	"fmt"

	"github.com/tomoncle/bursar/errs"
)

// Pagination defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// SortDirection is the direction of a single ORDER BY term.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// PageRequest selects one page of results. Page is 1-based.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// NewPageRequest constructs a PageRequest.
func NewPageRequest(page, pageSize int) PageRequest {
	return PageRequest{Page: page, PageSize: pageSize}
}

// Validate rejects page < 1, pageSize < 1 and pageSize > maxPageSize.
// A non-positive maxPageSize means MaxPageSize.
func (p PageRequest) Validate(maxPageSize int) error {
	if maxPageSize <= 0 {
		maxPageSize = MaxPageSize
	}
	var fields []errs.FieldError
	if p.Page < 1 {
		fields = append(fields, errs.FieldError{Field: "page", Error: "must be at least 1"})
	}
	if p.PageSize < 1 {
		fields = append(fields, errs.FieldError{Field: "pageSize", Error: "must be at least 1"})
	} else if p.PageSize > maxPageSize {
		fields = append(fields, errs.FieldError{Field: "pageSize", Error: fmt.Sprintf("must not exceed %d", maxPageSize)})
	}
	if len(fields) > 0 {
		return errs.Validation("invalid pagination", fields...)
	}
	return nil
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pagination holds one page of results with its metadata.
type Pagination[T any] struct {
	Data       []*T `json:"data"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalPages int  `json:"totalPages"`
}

// NewPagination builds a page; TotalPages is derived from total and pageSize.
func NewPagination[T any](req PageRequest, total int, data []*T) *Pagination[T] {
	if data == nil {
		data = make([]*T, 0)
	}
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = (total + req.PageSize - 1) / req.PageSize
	}
	return &Pagination[T]{
		Data:       data,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}
}
