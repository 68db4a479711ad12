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

	"github.com/tomoncle/bursar/errs"
	"github.com/tomoncle/bursar/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db   bun.IDB
	opts Options
}

// NewRepository returns a generic repository for T on db. *T must
// implement Entity.
func NewRepository[T any](db bun.IDB, opts Options) Repository[T] {
	if opts.Entity == "" {
		opts.Entity = "Record"
	}
	return &baseRepositoryImpl[T]{db: db, opts: opts}
}

func (r *baseRepositoryImpl[T]) WithTx(db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db, opts: r.opts}
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, id int64) (*T, error) {
	var entity T
	err := r.db.NewSelect().
		Model(&entity).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, errs.FromDB(err, r.opts.Entity, id)
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) GetAny(ctx context.Context, id int64) (*T, error) {
	var entity T
	err := r.db.NewSelect().Model(&entity).Where("?TableAlias.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, errs.FromDB(err, r.opts.Entity, id)
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, id int64) (bool, error) {
	ok, err := r.db.NewSelect().
		Model((*T)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Exists(ctx)
	if err != nil {
		return false, errs.FromDB(err, r.opts.Entity, id)
	}
	return ok, nil
}

// All returns active rows ordered by the entity's default sort column.
func (r *baseRepositoryImpl[T]) All(ctx context.Context) ([]*T, error) {
	return r.List(ctx, nil)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, apply QueryFunc) ([]*T, error) {
	entities := make([]*T, 0)
	q := r.db.NewSelect().Model(&entities).Where("?TableAlias.is_active = ?", true)
	if apply != nil {
		q = q.Apply(apply)
	}
	if sortColumn := r.opts.Fields.DefaultSort; sortColumn != "" {
		q = q.OrderExpr("?TableAlias.? ASC", bun.Ident(sortColumn))
	}
	q = q.OrderExpr("?TableAlias.id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, errs.FromDB(err, r.opts.Entity, 0)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	now := time.Now()
	for _, e := range entity {
		if d, ok := any(e).(defaulter); ok {
			d.SetDefaults()
		}
		if s, ok := any(e).(Entity); ok {
			s.StampCreate(now)
		}
		if _, err := r.db.NewInsert().Model(e).Exec(ctx); err != nil {
			return errs.FromDB(err, r.opts.Entity, 0)
		}
	}
	return nil
}

// Update writes every column except id, created_at and is_active of an
// active row. A zero id is a validation error.
func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	e, ok := any(entity).(Entity)
	if !ok || e.GetID() == 0 {
		return errs.Validation("ID required")
	}
	if d, ok := any(entity).(defaulter); ok {
		d.SetDefaults()
	}
	e.StampUpdate(time.Now())
	res, err := r.db.NewUpdate().
		Model(entity).
		ExcludeColumn("id", "created_at", "is_active").
		Where("id = ?", e.GetID()).
		Where("is_active = ?", true).
		Exec(ctx)
	return r.checkAffected(res, err, e.GetID())
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id int64) error {
	res, err := r.db.NewUpdate().
		Model((*T)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Exec(ctx)
	return r.checkAffected(res, err, id)
}

func (r *baseRepositoryImpl[T]) Purge(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().Model((*T)(nil)).Where("id = ?", id).Exec(ctx)
	return r.checkAffected(res, err, id)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func (r *baseRepositoryImpl[T]) checkAffected(res rowsAffected, err error, id int64) error {
	if err != nil {
		return errs.FromDB(err, r.opts.Entity, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Storage(r.opts.Entity, err)
	}
	if n == 0 {
		return errs.NotFound(r.opts.Entity, id)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Search(ctx context.Context, search *Search) (*types.Pagination[T], error) {
	if search == nil {
		search = &Search{PageRequest: types.NewPageRequest(1, types.DefaultPageSize)}
	}
	if err := search.PageRequest.Validate(r.opts.MaxPageSize); err != nil {
		return nil, err
	}

	entities := make([]*T, 0)
	q := r.db.NewSelect().Model(&entities)
	q, err := search.apply(q, r.opts.Fields)
	if err != nil {
		return nil, err
	}
	total, err := q.
		Limit(search.PageSize).
		Offset(search.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, errs.FromDB(err, r.opts.Entity, 0)
	}
	return types.NewPagination(search.PageRequest, total, entities), nil
}
