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

	"github.com/tomoncle/bursar/repository"
	"github.com/tomoncle/bursar/types"
	"github.com/tomoncle/bursar/validation"
)

// Service is the CRUD surface shared by the entity services.
type Service[T any] interface {
	// Create validates and inserts a new entity; its ID is set on return.
	Create(ctx context.Context, model *T) error

	// Get returns an active entity; errs.ErrNotFound when missing or deleted.
	Get(ctx context.Context, id int64) (*T, error)

	// All returns every active entity in name order.
	All(ctx context.Context) ([]*T, error)

	// Update writes an existing entity. A zero ID fails with "ID required".
	Update(ctx context.Context, model *T) error

	// Delete soft-deletes an entity.
	Delete(ctx context.Context, id int64) error

	// Purge removes an entity and, through the store, its dependants.
	Purge(ctx context.Context, id int64) error

	// Search returns one page of entities matching search.
	Search(ctx context.Context, search *repository.Search) (*types.Pagination[T], error)
}

type baseServiceImpl[T any] struct {
	*core
	repo repository.Repository[T]
}

func newBaseServiceImpl[T any](c *core, repo repository.Repository[T]) *baseServiceImpl[T] {
	return &baseServiceImpl[T]{core: c, repo: repo}
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, model *T) error {
	if err := validation.Struct(model); err != nil {
		return err
	}
	return s.repo.Create(ctx, model)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id int64) (*T, error) {
	return s.repo.Get(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.All(ctx)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	if err := requireID(model); err != nil {
		return err
	}
	if err := validation.Struct(model); err != nil {
		return err
	}
	return s.repo.Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Purge(ctx context.Context, id int64) error {
	return s.repo.Purge(ctx, id)
}

func (s *baseServiceImpl[T]) Search(ctx context.Context, search *repository.Search) (*types.Pagination[T], error) {
	return s.repo.Search(ctx, search)
}
