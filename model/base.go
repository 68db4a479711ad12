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

// Package model holds the persisted records of the billing store.
package model

import (
	"time"
)

// Base carries the columns every table shares.
type Base struct {
	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	IsActive  bool      `bun:"is_active,notnull,default:true" json:"isActive"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

func (b *Base) GetID() int64 { return b.ID }

// StampCreate prepares a new row: active, both timestamps set to now.
func (b *Base) StampCreate(now time.Time) {
	b.IsActive = true
	b.CreatedAt = now
	b.UpdatedAt = now
}

// StampUpdate refreshes UpdatedAt.
func (b *Base) StampUpdate(now time.Time) {
	b.UpdatedAt = now
}
