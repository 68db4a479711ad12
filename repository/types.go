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
	"context"
	"time"

	"github.com/tomoncle/bursar/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Entity is implemented by every record through model.Base.
type Entity interface {
	GetID() int64
	StampCreate(now time.Time)
	StampUpdate(now time.Time)
}

// defaulter fills zero-valued columns such as statuses before insert.
type defaulter interface {
	SetDefaults()
}

// QueryFunc customizes a select query, e.g. extra WHERE or ORDER terms.
type QueryFunc func(q *bun.SelectQuery) *bun.SelectQuery

// CrudRepository defines basic CRUD operations for a generic entity type.
// Reads skip soft-deleted rows; GetAny does not.
type CrudRepository[T any] interface {
	Get(ctx context.Context, id int64) (*T, error)

	GetAny(ctx context.Context, id int64) (*T, error)

	Exists(ctx context.Context, id int64) (bool, error)

	All(ctx context.Context) ([]*T, error)

	List(ctx context.Context, apply QueryFunc) ([]*T, error)

	Create(ctx context.Context, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	// Delete soft-deletes the row.
	Delete(ctx context.Context, id int64) error

	// Purge removes the row; the store cascades to dependants.
	Purge(ctx context.Context, id int64) error
}

// SearchRepository defines filtered, paginated listing.
type SearchRepository[T any] interface {
	Search(ctx context.Context, search *Search) (*types.Pagination[T], error)
}

// Repository combines CRUD and search and exposes Bun query builders bound
// to the same connection or transaction.
type Repository[T any] interface {
	CrudRepository[T]
	SearchRepository[T]
	// WithTx returns a repository running on db, usually a bun.Tx.
	WithTx(db bun.IDB) Repository[T]
	DB() bun.IDB
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}

// Options describe one entity to the generic repository.
type Options struct {
	// Entity names the record in errors, e.g. "Student".
	Entity string
	Fields FieldSet
	// MaxPageSize bounds Search page sizes; zero means types.MaxPageSize.
	MaxPageSize int
}
